package authgate

import (
	"net/http"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/session"
	"github.com/sirupsen/logrus"
)

// InputFromSnapshot builds the guard input for a request
func InputFromSnapshot(snap session.Snapshot, path string) Input {
	return Input{
		HasToken:    snap.HasToken(),
		IsAdmin:     snap.IsAdmin(),
		CurrentPath: path,
	}
}

// Middleware redirects page requests according to routes. It expects the session
// snapshot to already be in the request context; a missing snapshot is treated
// as unauthenticated.
func Middleware(routes Routes, metrics *observability.Metrics, otelMetrics *observability.OTelMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap, _ := session.SnapshotFromContext(r.Context())
			in := InputFromSnapshot(snap, r.URL.Path)

			directive := routes.Evaluate(in)
			if directive == nil {
				next.ServeHTTP(w, r)
				return
			}

			state := ClassifyState(in).String()
			metrics.RecordRedirect(state, directive.Target)
			otelMetrics.RecordRedirect(r.Context(), state, directive.Target)
			observability.FromContext(r.Context()).WithFields(logrus.Fields{
				"from":  r.URL.Path,
				"to":    directive.Target,
				"state": state,
			}).Debug("route guard redirect")

			if directive.ReplaceHistory {
				w.Header().Set("Cache-Control", "no-store")
			}
			http.Redirect(w, r, directive.Target, http.StatusSeeOther)
		})
	}
}
