// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/platinummonkey/warden/pkg/contextkeys"
//   ctx = contextkeys.WithSnapshot(ctx, snap)
//   snap, ok := ctx.Value(contextkeys.SnapshotKey).(session.Snapshot)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// SessionIDKey contains the raw session cookie value
	// Set by: middleware.SessionMiddleware (pkg/middleware/session.go)
	// Used by: login/logout handlers, SSO callback
	// Type: string
	SessionIDKey Key = "session_id"

	// SnapshotKey contains session.Snapshot read for this request
	// Set by: middleware.SessionMiddleware
	// Required by: authgate.Middleware, accessguard.RoleGuard
	// Type: session.Snapshot
	SnapshotKey Key = "session_snapshot"

	// ResolutionKey contains *rbac.Resolution started for this request
	// Set by: middleware.ResolutionMiddleware (pkg/middleware/resolution.go)
	// Required by: accessguard.PermissionGuard, /api/me/permissions
	// Type: *rbac.Resolution
	ResolutionKey Key = "permission_resolution"

	// TokenKey contains the bearer token forwarded to the permission gateway
	// Set by: rbac.Resolver before each gateway fetch
	// Used by: gateway.HTTPGateway
	// Type: string
	TokenKey Key = "bearer_token"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, distributed tracing
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: middleware.SessionMiddleware after reading the snapshot
	// Used by: Logger
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains logrus.FieldLogger
	// Set by: observability.WithLogger
	// Used by: Handlers that need structured logging with request context
	// Type: logrus.FieldLogger
	LoggerKey Key = "logger"
)

// Helper functions for type-safe context operations

// WithSessionID adds the raw session ID to the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// GetSessionID retrieves the raw session ID from context
func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(SessionIDKey).(string); ok {
		return id
	}
	return ""
}

// WithSnapshot adds a session snapshot to the context
func WithSnapshot(ctx context.Context, snapshot interface{}) context.Context {
	return context.WithValue(ctx, SnapshotKey, snapshot)
}

// WithResolution adds a permission resolution to the context
func WithResolution(ctx context.Context, resolution interface{}) context.Context {
	return context.WithValue(ctx, ResolutionKey, resolution)
}

// WithToken adds the bearer token to the context
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, TokenKey, token)
}

// GetToken retrieves the bearer token from context
func GetToken(ctx context.Context) string {
	if token, ok := ctx.Value(TokenKey).(string); ok {
		return token
	}
	return ""
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}
