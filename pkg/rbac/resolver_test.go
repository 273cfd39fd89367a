package rbac

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/contextkeys"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func tokenFrom(ctx context.Context) string { return contextkeys.GetToken(ctx) }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestResolver(gw Gateway, opts ...Option) *Resolver {
	return NewResolver(gw, append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func snapshot(userID string, roles ...auth.RoleName) session.Snapshot {
	if roles == nil {
		roles = []auth.RoleName{}
	}
	return session.Snapshot{Token: "tok-" + userID, UserID: userID, Roles: roles}
}

func TestResolver_PrivilegedRolesShortCircuit(t *testing.T) {
	for _, role := range []auth.RoleName{auth.RoleAdmin, auth.RoleSystemManager} {
		t.Run(string(role), func(t *testing.T) {
			gw := newFakeGateway()
			res := newTestResolver(gw).Resolve(context.Background(), snapshot("u1", "viewer", role))

			assert.False(t, res.Loading(), "wildcard is known without a fetch")
			assert.True(t, res.Permissions().IsWildcard())
			assert.True(t, res.HasAllPermissions("x", "y"))

			roles, mappings := gw.calls()
			assert.Zero(t, roles)
			assert.Zero(t, mappings)
		})
	}
}

func TestResolver_PrivilegedRolesWithoutUserID(t *testing.T) {
	gw := newFakeGateway()
	res := newTestResolver(gw).ResolveSync(context.Background(), session.Snapshot{Roles: []auth.RoleName{"admin"}})
	assert.True(t, res.Permissions().IsWildcard())
}

func TestResolver_NoUserIDIsEmpty(t *testing.T) {
	gw := newFakeGateway()
	res := newTestResolver(gw).Resolve(context.Background(), session.Snapshot{Token: "t", Roles: []auth.RoleName{"viewer"}})

	assert.False(t, res.Loading())
	assert.Equal(t, 0, res.Permissions().Len())
	roles, _ := gw.calls()
	assert.Zero(t, roles)
}

func TestResolver_CollectsCodesFromAssignedRoles(t *testing.T) {
	gw := newFakeGateway()
	gw.assignments["u1"] = []RoleAssignment{{RoleID: "r1"}, {RoleID: "r2"}}
	gw.mappings = []RolePermissionMapping{
		mapping("r1", "p1", "reports.view"),
		mapping("r2", "p1", "reports.view"),
		mapping("r2", "p2", "users.edit"),
		mapping("r3", "p3", "billing.read"),
		mapping("r1", "p4", ""),
		{RoleID: "", PermissionID: "p5", Permission: ResolvedPermission("ghost.role")},
		{RoleID: "r1", PermissionID: "", Permission: ResolvedPermission("ghost.permission")},
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	res := newTestResolver(gw, WithMetrics(metrics)).ResolveSync(context.Background(), snapshot("u1", "operator"))

	assert.False(t, res.Loading())
	assert.NoError(t, res.Diagnostic())
	assert.Equal(t, []auth.PermissionCode{"reports.view", "users.edit"}, res.Permissions().Codes())
	assert.False(t, res.HasPermission("billing.read"), "unassigned role grants nothing")
	assert.False(t, res.HasPermission("ghost.role"))
	assert.False(t, res.HasPermission("ghost.permission"))

	assert.Equal(t, "tok-u1", gw.lastToken.Load(), "session token is forwarded to the gateway")
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.DanglingMappingsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ResolutionsTotal.WithLabelValues(OutcomeResolved)))
}

func TestResolver_EmptyAssignmentsIgnoreLocalRoles(t *testing.T) {
	gw := newFakeGateway()
	gw.mappings = []RolePermissionMapping{mapping("operator", "p1", "reports.view")}

	res := newTestResolver(gw).ResolveSync(context.Background(), snapshot("u1", "operator"))

	assert.Equal(t, 0, res.Permissions().Len())
	_, mappings := gw.calls()
	assert.Zero(t, mappings, "mappings are not fetched without assignments")
}

func TestResolver_AssignmentFailureFailsClosed(t *testing.T) {
	gw := newFakeGateway()
	gw.rolesErr = errors.New("connection refused")

	res := newTestResolver(gw).ResolveSync(context.Background(), snapshot("u1"))

	assert.False(t, res.Loading())
	assert.Equal(t, 0, res.Permissions().Len())
	assert.ErrorIs(t, res.Diagnostic(), ErrGatewayUnavailable)
	_, mappings := gw.calls()
	assert.Zero(t, mappings)
}

func TestResolver_MappingFailureFailsClosed(t *testing.T) {
	gw := newFakeGateway()
	gw.assignments["u1"] = []RoleAssignment{{RoleID: "r1"}}
	gw.mappingsErr = errors.New("503")

	res := newTestResolver(gw).ResolveSync(context.Background(), snapshot("u1"))

	assert.Equal(t, 0, res.Permissions().Len())
	assert.ErrorIs(t, res.Diagnostic(), ErrGatewayUnavailable)
}

func TestResolver_LoadingUntilApplied(t *testing.T) {
	gw := newFakeGateway()
	gw.block = make(chan struct{})
	gw.assignments["u1"] = []RoleAssignment{{RoleID: "r1"}}
	gw.mappings = []RolePermissionMapping{mapping("r1", "p1", "reports.view")}

	res := newTestResolver(gw).Resolve(context.Background(), snapshot("u1"))
	assert.True(t, res.Loading())
	assert.False(t, res.HasPermission("reports.view"))

	close(gw.block)
	require.NoError(t, res.Wait(context.Background()))
	assert.False(t, res.Loading())
	assert.True(t, res.HasPermission("reports.view"))
}

func TestResolver_CancelDiscardsResult(t *testing.T) {
	gw := newFakeGateway()
	gw.block = make(chan struct{})
	gw.assignments["u1"] = []RoleAssignment{{RoleID: "r1"}}
	gw.mappings = []RolePermissionMapping{mapping("r1", "p1", "reports.view")}

	res := newTestResolver(gw).Resolve(context.Background(), snapshot("u1"))
	require.Eventually(t, func() bool {
		roles, _ := gw.calls()
		return roles == 1
	}, time.Second, 5*time.Millisecond)

	res.Cancel()
	close(gw.block)

	assert.ErrorIs(t, res.Wait(context.Background()), ErrResolutionCancelled)
	assert.True(t, res.Cancelled())
	assert.False(t, res.Loading())

	time.Sleep(20 * time.Millisecond)
	assert.False(t, res.HasPermission("reports.view"), "late results are not applied")
	_, mappings := gw.calls()
	assert.Zero(t, mappings, "cancellation stops before the second fetch")
}

func TestResolver_TimeoutFailsClosed(t *testing.T) {
	gw := newFakeGateway()
	gw.block = make(chan struct{})
	defer close(gw.block)

	res := newTestResolver(gw, WithTimeout(20*time.Millisecond)).Resolve(context.Background(), snapshot("u1"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, res.Wait(ctx))
	assert.False(t, res.Loading())
	assert.Equal(t, 0, res.Permissions().Len())
	assert.ErrorIs(t, res.Diagnostic(), context.DeadlineExceeded)
}

func TestResolver_ResolveSyncHonoursContext(t *testing.T) {
	gw := newFakeGateway()
	gw.block = make(chan struct{})
	defer close(gw.block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := newTestResolver(gw).ResolveSync(ctx, snapshot("u1"))
	assert.False(t, res.Loading())
	assert.Equal(t, 0, res.Permissions().Len())
}

func TestResolver_ResolveUserReturnsErrors(t *testing.T) {
	gw := newFakeGateway()
	gw.rolesErr = errors.New("down")

	_, err := newTestResolver(gw).ResolveUser(context.Background(), "u1", nil)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)

	set, err := newTestResolver(gw).ResolveUser(context.Background(), "u1", []auth.RoleName{"System_Manager"})
	require.NoError(t, err)
	assert.True(t, set.IsWildcard())
}

func TestResolver_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	gw := newFakeGateway()
	gw.assignments["u1"] = []RoleAssignment{{RoleID: "r1"}}
	gw.mappings = []RolePermissionMapping{mapping("r1", "p1", "reports.view")}

	newTestResolver(gw, WithTracerProvider(tp)).ResolveSync(context.Background(), snapshot("u1"))

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.ElementsMatch(t, []string{"rbac.Resolve", "rbac.RolesByUser", "rbac.RolePermissionMappings"}, names)
}

func TestResolver_RoleAssignmentScenario(t *testing.T) {
	gw := newFakeGateway()
	gw.assignments["u1"] = []RoleAssignment{{RoleID: "role-1"}}
	gw.mappings = []RolePermissionMapping{
		mapping("role-1", "p1", "USER_VIEW"),
		mapping("role-1", "p2", "USER_CREATE"),
		mapping("role-2", "p3", "ADMIN_PANEL"),
	}

	res := newTestResolver(gw).ResolveSync(context.Background(), snapshot("u1", "operator"))

	assert.Equal(t, []auth.PermissionCode{"USER_CREATE", "USER_VIEW"}, res.Permissions().Codes())
	assert.True(t, res.HasAnyPermission("USER_CREATE", "ROLE_DELETE"))
	assert.True(t, res.HasAllPermissions("USER_VIEW", "USER_CREATE"))
	assert.False(t, res.HasAllPermissions("USER_VIEW", "ADMIN_PANEL"))
}

type panicGateway struct{}

func (panicGateway) RolesByUser(context.Context, string) ([]RoleAssignment, error) {
	panic("gateway bug")
}

func (panicGateway) RolePermissionMappings(context.Context) ([]RolePermissionMapping, error) {
	return nil, nil
}

func TestResolver_GatewayPanicFailsClosed(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	res := newTestResolver(panicGateway{}, WithMetrics(metrics)).Resolve(context.Background(), snapshot("u1"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, res.Wait(ctx))
	assert.False(t, res.Loading())
	assert.Equal(t, 0, res.Permissions().Len())
	assert.ErrorIs(t, res.Diagnostic(), ErrGatewayUnavailable)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ResolutionsTotal.WithLabelValues(OutcomeGatewayError)))

	settled := newTestResolver(panicGateway{}).ResolveSync(ctx, snapshot("u1"))
	assert.False(t, settled.Loading())
	assert.False(t, settled.HasPermission("reports.view"))
}

func TestResolver_MappingOrderDoesNotMatter(t *testing.T) {
	gw := newFakeGateway()
	gw.assignments["u1"] = []RoleAssignment{{RoleID: "role-1"}, {RoleID: "role-3"}}
	rows := []RolePermissionMapping{
		mapping("role-1", "p1", "USER_VIEW"),
		mapping("role-1", "p2", "USER_CREATE"),
		mapping("role-3", "p1", "USER_VIEW"),
		mapping("role-2", "p3", "ADMIN_PANEL"),
		mapping("role-3", "p4", ""),
		{RoleID: "", PermissionID: "p5", Permission: ResolvedPermission("ROLE_DELETE")},
		{RoleID: "role-1", PermissionID: "", Permission: ResolvedPermission("AUDIT_EXPORT")},
	}
	want := []auth.PermissionCode{"USER_CREATE", "USER_VIEW"}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]RolePermissionMapping(nil), rows...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		gw.mu.Lock()
		gw.mappings = shuffled
		gw.mu.Unlock()

		res := newTestResolver(gw).ResolveSync(context.Background(), snapshot("u1"))
		assert.Equal(t, want, res.Permissions().Codes(), "order %d", i)
	}
}
