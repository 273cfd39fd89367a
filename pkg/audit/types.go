package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/contextkeys"
)

// EventType represents the category of audit event
type EventType string

const (
	// Session events
	EventTypeLogin           EventType = "session.login"
	EventTypeLoginFailed     EventType = "session.login_failed"
	EventTypeLogout          EventType = "session.logout"
	EventTypeRefresh         EventType = "session.refresh"
	EventTypeRefreshRejected EventType = "session.refresh_rejected"

	// Authorization events
	EventTypeAccessDenied EventType = "authz.access_denied"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event is a single audit log entry
type Event struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	UserID      string           `json:"user_id,omitempty"`
	Username    string           `json:"username,omitempty"`
	LoginMethod auth.LoginMethod `json:"login_method,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message string `json:"message,omitempty"`
}

// NewEvent builds an event carrying the request's identifying context.
// clientIP is passed in so callers can apply their own proxy rules.
func NewEvent(r *http.Request, clientIP string, eventType EventType, status EventStatus) *Event {
	ctx := r.Context()
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Status:    status,
		UserID:    contextkeys.GetUserID(ctx),
		IPAddress: clientIP,
		UserAgent: r.UserAgent(),
		RequestID: contextkeys.GetRequestID(ctx),
		Method:    r.Method,
		Path:      r.URL.Path,
	}
}

// Logger records audit events
type Logger interface {
	Log(ctx context.Context, event *Event) error
	Close() error
}

// NopLogger discards every event
type NopLogger struct{}

func (NopLogger) Log(context.Context, *Event) error { return nil }
func (NopLogger) Close() error                      { return nil }
