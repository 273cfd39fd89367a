package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Permission resolution
	ResolutionsTotal      *prometheus.CounterVec
	ResolutionDuration    *prometheus.HistogramVec
	DanglingMappingsTotal prometheus.Counter

	// Permission gateway
	GatewayRequestsTotal   *prometheus.CounterVec
	GatewayRequestDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Routing and gating
	RedirectsTotal       *prometheus.CounterVec
	AccessDecisionsTotal *prometheus.CounterVec

	// Session store
	SessionWritesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_permission_resolutions_total",
				Help: "Total number of effective permission resolutions by outcome",
			},
			[]string{"outcome"},
		),
		ResolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_permission_resolution_duration_seconds",
				Help:    "Effective permission resolution duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"outcome"},
		),
		DanglingMappingsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_dangling_mappings_total",
				Help: "Role permission mapping rows dropped for a missing role or permission reference",
			},
		),

		GatewayRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_gateway_requests_total",
				Help: "Total number of permission gateway requests",
			},
			[]string{"operation", "status"},
		),
		GatewayRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_gateway_request_duration_seconds",
				Help:    "Permission gateway request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_cache_hits_total",
				Help: "Total number of gateway cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_cache_misses_total",
				Help: "Total number of gateway cache misses",
			},
			[]string{"cache"},
		),

		RedirectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_route_redirects_total",
				Help: "Total number of route guard redirects",
			},
			[]string{"state", "target"},
		),
		AccessDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_access_decisions_total",
				Help: "Total number of access guard decisions",
			},
			[]string{"guard", "decision"},
		),

		SessionWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_session_writes_total",
				Help: "Total number of session store writes",
			},
			[]string{"operation", "status"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ResolutionsTotal,
		m.ResolutionDuration,
		m.DanglingMappingsTotal,
		m.GatewayRequestsTotal,
		m.GatewayRequestDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.RedirectsTotal,
		m.AccessDecisionsTotal,
		m.SessionWritesTotal,
	)

	return m
}

// RecordResolution records a finished permission resolution
func (m *Metrics) RecordResolution(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(outcome).Inc()
	m.ResolutionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordDanglingMappings records mapping rows dropped during resolution
func (m *Metrics) RecordDanglingMappings(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.DanglingMappingsTotal.Add(float64(count))
}

// RecordGatewayRequest records a call to the permission gateway
func (m *Metrics) RecordGatewayRequest(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.GatewayRequestsTotal.WithLabelValues(operation, status).Inc()
	m.GatewayRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCacheLookup records a gateway cache hit or miss
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordRedirect records a route guard redirect
func (m *Metrics) RecordRedirect(state, target string) {
	if m == nil {
		return
	}
	m.RedirectsTotal.WithLabelValues(state, target).Inc()
}

// RecordAccessDecision records an access guard decision
func (m *Metrics) RecordAccessDecision(guard, decision string) {
	if m == nil {
		return
	}
	m.AccessDecisionsTotal.WithLabelValues(guard, decision).Inc()
}

// RecordSessionWrite records a session store write
func (m *Metrics) RecordSessionWrite(operation string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.SessionWritesTotal.WithLabelValues(operation, status).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled by their mux route template to keep cardinality bounded.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
