package middleware

import (
	"net/http"

	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/session"
)

// ResolutionMiddleware starts a permission resolution for the request's session
// and places it in the context for guards and handlers. The resolution is
// cancelled when the handler returns, so late gateway responses are discarded.
func ResolutionMiddleware(resolver *rbac.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap, _ := session.SnapshotFromContext(r.Context())
			res := resolver.Resolve(r.Context(), snap)
			defer res.Cancel()

			next.ServeHTTP(w, r.WithContext(rbac.WithResolution(r.Context(), res)))
		})
	}
}
