// Package audit records session and authorization events for security review.
//
// # Event Types
//
// Session: login, login_failed, logout, refresh, refresh_rejected
// Authorization: access_denied
//
// # Sinks
//
// FileLogger appends JSON lines to <dir>/audit.log and rotates by size.
// LogrusLogger writes the same events through the service logger with an
// audit=true field. MultiLogger fans out to several sinks.
//
//	event := audit.NewEvent(r, middleware.ClientIP(r), audit.EventTypeLogin, audit.EventStatusSuccess)
//	event.UserID = creds.UserID
//	_ = auditLog.Log(ctx, event)
package audit
