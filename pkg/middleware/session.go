package middleware

import (
	"net/http"
	"time"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/contextkeys"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/session"
)

// CookieConfig controls the session cookie
type CookieConfig struct {
	Name   string
	Path   string
	Secure bool
	MaxAge time.Duration
}

// DefaultCookieConfig returns the cookie settings used when none are configured
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Name:   "warden_session",
		Path:   "/",
		Secure: true,
		MaxAge: 24 * time.Hour,
	}
}

// SessionMiddleware resolves the session cookie to a snapshot and stores it in
// the request context. Requests without a valid cookie, or whose session cannot
// be read, continue with an empty snapshot.
func SessionMiddleware(manager *session.Manager, cookie CookieConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			var snap session.Snapshot

			if sid, ok := SessionIDFromRequest(r, cookie); ok {
				ctx = contextkeys.WithSessionID(ctx, sid)
				s, err := manager.Provider(sid).Snapshot(ctx)
				if err != nil {
					observability.FromContext(ctx).WithError(err).Warn("failed to read session, continuing unauthenticated")
				} else {
					snap = s
				}
			}

			if snap.UserID != "" {
				ctx = contextkeys.WithUserID(ctx, snap.UserID)
			}
			ctx = session.WithSnapshot(ctx, snap)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionIDFromRequest returns the session cookie value when it is well formed
func SessionIDFromRequest(r *http.Request, cookie CookieConfig) (string, bool) {
	c, err := r.Cookie(cookie.Name)
	if err != nil || !auth.ValidSessionID(c.Value) {
		return "", false
	}
	return c.Value, true
}

// SetSessionCookie writes sid to the response
func SetSessionCookie(w http.ResponseWriter, cookie CookieConfig, sid string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookie.Name,
		Value:    sid,
		Path:     cookie.Path,
		MaxAge:   int(cookie.MaxAge.Seconds()),
		Secure:   cookie.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie
func ClearSessionCookie(w http.ResponseWriter, cookie CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookie.Name,
		Value:    "",
		Path:     cookie.Path,
		MaxAge:   -1,
		Secure:   cookie.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
