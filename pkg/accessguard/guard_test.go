package accessguard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticChecker struct {
	loading bool
	set     rbac.PermissionSet
}

func (c staticChecker) Loading() bool { return c.loading }
func (c staticChecker) HasAnyPermission(codes ...auth.PermissionCode) bool {
	return c.set.HasAny(codes...)
}
func (c staticChecker) HasAllPermissions(codes ...auth.PermissionCode) bool {
	return c.set.HasAll(codes...)
}

// blockingGateway grants "project.read" to user "u1" through role "r1" once release is closed.
type blockingGateway struct {
	release chan struct{}
}

func (g *blockingGateway) RolesByUser(ctx context.Context, userID string) ([]rbac.RoleAssignment, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []rbac.RoleAssignment{{RoleID: "r1"}}, nil
}

func (g *blockingGateway) RolePermissionMappings(ctx context.Context) ([]rbac.RolePermissionMapping, error) {
	return []rbac.RolePermissionMapping{
		{RoleID: "r1", PermissionID: "p1", Permission: rbac.ResolvedPermission("project.read")},
	}, nil
}

func codes(values ...string) []auth.PermissionCode {
	out := make([]auth.PermissionCode, len(values))
	for i, v := range values {
		out[i] = auth.PermissionCode(v)
	}
	return out
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("protected"))
	})
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestDecide(t *testing.T) {
	settled := staticChecker{set: rbac.NewPermissionSet(codes("a", "b")...)}

	tests := []struct {
		name     string
		checker  Checker
		anyOf    []auth.PermissionCode
		all      []auth.PermissionCode
		expected Decision
	}{
		{"nil checker denied", nil, codes("a"), nil, DecisionDenied},
		{"loading", staticChecker{loading: true}, codes("a"), nil, DecisionLoading},
		{"any held", settled, codes("x", "a"), nil, DecisionGranted},
		{"any missing", settled, codes("x"), nil, DecisionDenied},
		{"all held", settled, nil, codes("a", "b"), DecisionGranted},
		{"all partial", settled, nil, codes("a", "x"), DecisionDenied},
		{"all wins over any", settled, codes("a"), codes("x"), DecisionDenied},
		{"all wins over failing any", settled, codes("x"), codes("a"), DecisionGranted},
		{"no requirements", staticChecker{set: rbac.EmptySet()}, nil, nil, DecisionGranted},
		{"wildcard", staticChecker{set: rbac.WildcardSet()}, nil, codes("anything"), DecisionGranted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Decide(tt.checker, tt.anyOf, tt.all))
		})
	}
}

func TestPermissionGuard_Wrap(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	guard := PermissionGuard{
		Name:                "projects",
		RequiredPermissions: codes("project.read"),
		Metrics:             metrics,
	}
	handler := guard.Wrap(okHandler())

	serve := func(ctx context.Context) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/dashboard/projects", nil).WithContext(ctx)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	t.Run("granted", func(t *testing.T) {
		ctx := rbac.WithResolution(context.Background(), rbac.SettledResolution(rbac.NewPermissionSet(codes("project.read")...)))
		w := serve(ctx)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "protected", w.Body.String())
	})

	t.Run("denied renders fallback panel", func(t *testing.T) {
		ctx := rbac.WithResolution(context.Background(), rbac.SettledResolution(rbac.EmptySet()))
		w := serve(ctx)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "Access denied")
		assert.NotContains(t, w.Body.String(), "protected")
	})

	t.Run("no resolution is denied", func(t *testing.T) {
		w := serve(context.Background())
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AccessDecisionsTotal.WithLabelValues("projects", "granted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.AccessDecisionsTotal.WithLabelValues("projects", "denied")))
}

func TestPermissionGuard_CustomFallback(t *testing.T) {
	guard := PermissionGuard{
		RequireAllPermissions: codes("a", "b"),
		Fallback: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
	}
	ctx := rbac.WithResolution(context.Background(), rbac.SettledResolution(rbac.NewPermissionSet("a")))
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	guard.Wrap(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestPermissionGuard_Loading(t *testing.T) {
	gw := &blockingGateway{release: make(chan struct{})}
	resolver := rbac.NewResolver(gw, rbac.WithLogger(quietLogger()))
	snap := session.Snapshot{Token: "t", UserID: "u1", Roles: []auth.RoleName{"viewer"}}

	res := resolver.Resolve(context.Background(), snap)
	defer res.Cancel()
	require.True(t, res.Loading())

	ctx := rbac.WithResolution(context.Background(), res)
	guard := PermissionGuard{RequiredPermissions: codes("project.read")}
	handler := guard.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/dashboard/projects", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.NotContains(t, w.Body.String(), "protected")

	close(gw.release)
	awaiting := PermissionGuard{RequiredPermissions: codes("project.read"), Await: 5 * time.Second}
	w = httptest.NewRecorder()
	awaiting.Wrap(okHandler()).ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "protected", w.Body.String())
}

func TestPermissionGuard_JSONClients(t *testing.T) {
	ctx := rbac.WithResolution(context.Background(), rbac.SettledResolution(rbac.EmptySet()))
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()

	PermissionGuard{RequiredPermissions: codes("a")}.Wrap(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"access denied"}`, w.Body.String())
}

func TestRoleGuard(t *testing.T) {
	guard := RoleGuard{AllowedRoles: []auth.RoleName{"auditor", "admin"}}
	handler := guard.Wrap(okHandler())

	tests := []struct {
		name     string
		roles    []auth.RoleName
		expected int
	}{
		{"allowed role", []auth.RoleName{"viewer", "auditor"}, http.StatusOK},
		{"no overlap", []auth.RoleName{"viewer"}, http.StatusForbidden},
		{"no roles", nil, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := session.WithSnapshot(context.Background(), session.Snapshot{Token: "t", Roles: tt.roles})
			req := httptest.NewRequest(http.MethodGet, "/audit", nil).WithContext(ctx)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.expected, w.Code)
		})
	}

	t.Run("no snapshot", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/audit", nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
