package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	return NewMetrics(registry), registry
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordResolution("wildcard", time.Millisecond)
	m.RecordDanglingMappings(3)
	m.RecordGatewayRequest("roles_by_user", nil, time.Millisecond)
	m.RecordCacheLookup("mappings", true)
	m.RecordRedirect("unauthenticated", "/login")
	m.RecordAccessDecision("permission", "granted")
	m.RecordSessionWrite("login", nil)
}

func TestRecordResolution(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordResolution("resolved", 10*time.Millisecond)
	m.RecordResolution("resolved", 20*time.Millisecond)
	m.RecordResolution("gateway_error", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ResolutionsTotal.WithLabelValues("resolved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResolutionsTotal.WithLabelValues("gateway_error")))
}

func TestRecordGatewayRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordGatewayRequest("mappings", nil, time.Millisecond)
	m.RecordGatewayRequest("mappings", errors.New("boom"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayRequestsTotal.WithLabelValues("mappings", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayRequestsTotal.WithLabelValues("mappings", "error")))
}

func TestRecordDanglingMappings(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordDanglingMappings(0)
	m.RecordDanglingMappings(-1)
	m.RecordDanglingMappings(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DanglingMappingsTotal))
}

func TestRecordCacheLookup(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordCacheLookup("assignments", true)
	m.RecordCacheLookup("assignments", false)
	m.RecordCacheLookup("assignments", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("assignments")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("assignments")))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m, registry := newTestMetrics(t)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	router.HandleFunc("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"1", "2"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/users/"+id, nil))
		assert.Equal(t, http.StatusTeapot, w.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/users/{id}", "418")))

	w := httptest.NewRecorder()
	MetricsHandler(registry).ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "warden_http_requests_total")
}

func TestHTTPMetricsMiddleware_NilMetrics(t *testing.T) {
	called := false
	handler := HTTPMetricsMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	assert.True(t, called)
}
