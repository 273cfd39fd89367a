package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// NewHealthRouter serves /healthz, /readyz and, when registry is set, /metrics.
// It is meant for a separate internal listener.
func NewHealthRouter(checker *observability.HealthChecker, registry *prometheus.Registry) *mux.Router {
	router := mux.NewRouter()
	observability.RegisterHealthRoutes(router, checker)
	if registry != nil {
		router.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet)
	}
	return router
}
