package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/sirupsen/logrus"
)

// EventKind describes what changed in a session
type EventKind string

const (
	EventLogin   EventKind = "login"
	EventLogout  EventKind = "logout"
	EventRefresh EventKind = "refresh"
)

// Event is delivered to subscribers after a successful write
type Event struct {
	Kind     EventKind
	Snapshot Snapshot
}

// Manager hands out Providers over a shared Backend and fans out change events
// to subscribers of the same session.
type Manager struct {
	backend Backend
	logger  logrus.FieldLogger
	metrics *observability.Metrics

	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]func(Event)
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithLogger sets the manager's logger
func WithLogger(logger logrus.FieldLogger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics records session writes
func WithMetrics(metrics *observability.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates a session manager over backend
func NewManager(backend Backend, opts ...ManagerOption) *Manager {
	m := &Manager{
		backend: backend,
		logger:  logrus.StandardLogger(),
		subs:    make(map[string]map[uint64]func(Event)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Backend returns the underlying storage backend
func (m *Manager) Backend() Backend {
	return m.backend
}

// Provider returns the read/write surface for one session
func (m *Manager) Provider(sessionID string) *Provider {
	return &Provider{
		manager: m,
		id:      auth.HashSessionID(sessionID),
		store:   m.backend.Open(sessionID),
	}
}

func (m *Manager) subscribe(id string, fn func(Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	subID := m.nextID
	if m.subs[id] == nil {
		m.subs[id] = make(map[uint64]func(Event))
	}
	m.subs[id][subID] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs[id], subID)
			if len(m.subs[id]) == 0 {
				delete(m.subs, id)
			}
		})
	}
}

func (m *Manager) notify(id string, event Event) {
	m.mu.Lock()
	fns := make([]func(Event), 0, len(m.subs[id]))
	for _, fn := range m.subs[id] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

// Provider is the single injected surface through which components read and
// write a session. Writers notify subscribers of the same session.
type Provider struct {
	manager *Manager
	id      string
	store   Store
}

// Store returns the raw key-value store
func (p *Provider) Store() Store {
	return p.store
}

// Snapshot reads the current session
func (p *Provider) Snapshot(ctx context.Context) (Snapshot, error) {
	snap, err := ReadSnapshot(ctx, p.store)
	if err != nil {
		return snap, err
	}
	if snap.RolesErr != nil {
		p.manager.logger.WithError(snap.RolesErr).Debug("session roles value was malformed, treating as empty")
	}
	return snap, nil
}

// Subscribe registers fn for change events on this session and returns an
// unsubscribe function.
func (p *Provider) Subscribe(fn func(Event)) func() {
	return p.manager.subscribe(p.id, fn)
}

// Login replaces the session contents with creds.
func (p *Provider) Login(ctx context.Context, creds auth.Credentials) error {
	if creds.Token == "" {
		return fmt.Errorf("login: %w", ErrMissingToken)
	}
	method := creds.LoginMethod
	if method == "" {
		method = auth.LoginMethodLocal
	}

	err := p.store.Clear(ctx)
	if err == nil {
		values := map[string]string{
			KeyToken:       creds.Token,
			KeyUserID:      creds.UserID,
			KeyRoles:       auth.EncodeRoles(creds.Roles),
			KeyLoginMethod: string(method),
		}
		if creds.RefreshToken != "" {
			values[KeyRefreshToken] = creds.RefreshToken
		}
		err = setAll(ctx, p.store, values)
		if err != nil {
			// A half-written login must not leave a token behind.
			if clearErr := p.store.Clear(ctx); clearErr != nil {
				p.manager.logger.WithError(clearErr).Warn("failed to clear partially written login")
			}
		}
	}
	return p.finish(ctx, EventLogin, err)
}

// Logout removes every key from the session
func (p *Provider) Logout(ctx context.Context) error {
	return p.finish(ctx, EventLogout, p.store.Clear(ctx))
}

// RefreshTokens replaces the token pair after a successful refresh. An empty
// refreshToken keeps the current one. It returns ErrNotFound when the session
// has no token to refresh.
func (p *Provider) RefreshTokens(ctx context.Context, token, refreshToken string) error {
	if token == "" {
		return fmt.Errorf("refresh: %w", ErrMissingToken)
	}
	if _, ok, err := p.store.Get(ctx, KeyToken); err != nil {
		return p.finish(ctx, EventRefresh, err)
	} else if !ok {
		return fmt.Errorf("refresh: %w", ErrNotFound)
	}
	values := map[string]string{KeyToken: token}
	if refreshToken != "" {
		values[KeyRefreshToken] = refreshToken
	}
	return p.finish(ctx, EventRefresh, setAll(ctx, p.store, values))
}

func (p *Provider) finish(ctx context.Context, kind EventKind, err error) error {
	p.manager.metrics.RecordSessionWrite(string(kind), err)
	if err != nil {
		return fmt.Errorf("session %s: %w", kind, err)
	}

	snap, readErr := p.Snapshot(ctx)
	if readErr != nil {
		p.manager.logger.WithError(readErr).WithField("event", kind).Warn("failed to read session after write")
	}
	p.manager.notify(p.id, Event{Kind: kind, Snapshot: snap})
	return nil
}
