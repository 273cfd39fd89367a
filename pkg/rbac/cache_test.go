package rbac

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedGateway_CachesSuccess(t *testing.T) {
	gw := newFakeGateway()
	gw.assignments["u1"] = []RoleAssignment{{RoleID: "r1"}}
	gw.mappings = []RolePermissionMapping{mapping("r1", "p1", "a")}

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	cache := NewCachedGateway(gw, 10, time.Minute, metrics)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assignments, err := cache.RolesByUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []RoleAssignment{{RoleID: "r1"}}, assignments)

		mappings, err := cache.RolePermissionMappings(ctx)
		require.NoError(t, err)
		assert.Len(t, mappings, 1)
	}

	roles, mappings := gw.calls()
	assert.Equal(t, int32(1), roles)
	assert.Equal(t, int32(1), mappings)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("assignments")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues("mappings")))
}

func TestCachedGateway_ReturnsCopies(t *testing.T) {
	gw := newFakeGateway()
	gw.assignments["u1"] = []RoleAssignment{{RoleID: "r1"}}
	cache := NewCachedGateway(gw, 0, 0, nil)

	first, err := cache.RolesByUser(context.Background(), "u1")
	require.NoError(t, err)
	first[0].RoleID = "mutated"

	second, err := cache.RolesByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "r1", second[0].RoleID)
}

func TestCachedGateway_DoesNotCacheFailures(t *testing.T) {
	gw := newFakeGateway()
	gw.mappingsErr = errors.New("down")
	cache := NewCachedGateway(gw, 10, time.Minute, nil)

	_, err := cache.RolePermissionMappings(context.Background())
	require.Error(t, err)

	gw.mu.Lock()
	gw.mappingsErr = nil
	gw.mappings = []RolePermissionMapping{mapping("r1", "p1", "a")}
	gw.mu.Unlock()

	mappings, err := cache.RolePermissionMappings(context.Background())
	require.NoError(t, err)
	assert.Len(t, mappings, 1)
}

func TestCachedGateway_CollapsesConcurrentCalls(t *testing.T) {
	gw := newFakeGateway()
	gw.block = make(chan struct{})
	gw.mappings = []RolePermissionMapping{mapping("r1", "p1", "a")}
	cache := NewCachedGateway(gw, 10, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.RolePermissionMappings(context.Background())
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool {
		_, calls := gw.calls()
		return calls == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gw.block)
	wg.Wait()

	_, calls := gw.calls()
	assert.Equal(t, int32(1), calls)
}

func TestCachedGateway_InvalidateAndRefresh(t *testing.T) {
	gw := newFakeGateway()
	gw.assignments["u1"] = []RoleAssignment{{RoleID: "r1"}}
	gw.mappings = []RolePermissionMapping{mapping("r1", "p1", "a")}
	cache := NewCachedGateway(gw, 10, time.Minute, nil)
	ctx := context.Background()

	_, err := cache.RolesByUser(ctx, "u1")
	require.NoError(t, err)
	cache.Invalidate("u1")
	_, err = cache.RolesByUser(ctx, "u1")
	require.NoError(t, err)
	roles, _ := gw.calls()
	assert.Equal(t, int32(2), roles)

	_, err = cache.RolePermissionMappings(ctx)
	require.NoError(t, err)

	gw.mu.Lock()
	gw.mappings = append(gw.mappings, mapping("r1", "p2", "b"))
	gw.mu.Unlock()

	require.NoError(t, cache.Refresh(ctx))
	mappings, err := cache.RolePermissionMappings(ctx)
	require.NoError(t, err)
	assert.Len(t, mappings, 2)

	gw.mu.Lock()
	gw.mappingsErr = errors.New("down")
	gw.mu.Unlock()
	assert.Error(t, cache.Refresh(ctx))
	mappings, err = cache.RolePermissionMappings(ctx)
	require.NoError(t, err)
	assert.Len(t, mappings, 2, "failed refresh keeps the previous table")

	cache.Purge()
	_, err = cache.RolePermissionMappings(ctx)
	assert.Error(t, err)
}

func TestCacheRefresher(t *testing.T) {
	gw := newFakeGateway()
	cache := NewCachedGateway(gw, 10, time.Minute, nil)

	_, err := NewCacheRefresher(cache, "not a schedule", quietLogger())
	assert.Error(t, err)

	refresher, err := NewCacheRefresher(cache, "@every 1h", quietLogger())
	require.NoError(t, err)

	refresher.RunOnce()
	_, calls := gw.calls()
	assert.Equal(t, int32(1), calls)

	refresher.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, refresher.Stop(ctx))
}

func TestCachedGateway_WithResolver(t *testing.T) {
	gw := newFakeGateway()
	gw.assignments["u1"] = []RoleAssignment{{RoleID: "r1"}}
	gw.mappings = []RolePermissionMapping{mapping("r1", "p1", "reports.view")}

	resolver := newTestResolver(NewCachedGateway(gw, 10, time.Minute, nil))
	for i := 0; i < 3; i++ {
		res := resolver.ResolveSync(context.Background(), snapshot("u1"))
		assert.True(t, res.HasPermission("reports.view"))
	}

	roles, mappings := gw.calls()
	assert.Equal(t, int32(1), roles)
	assert.Equal(t, int32(1), mappings)
}

func TestCachedGateway_CallerLeavingDoesNotFailJoinedCallers(t *testing.T) {
	gw := newFakeGateway()
	gw.block = make(chan struct{})
	gw.assignments["u1"] = []RoleAssignment{{RoleID: "r1"}}
	gw.mappings = []RolePermissionMapping{mapping("r1", "p1", "reports.view")}
	resolver := newTestResolver(NewCachedGateway(gw, 10, time.Minute, nil))

	first := resolver.Resolve(context.Background(), snapshot("u1"))
	require.Eventually(t, func() bool {
		roles, _ := gw.calls()
		return roles == 1
	}, time.Second, 5*time.Millisecond)

	second := resolver.Resolve(context.Background(), snapshot("u1"))
	time.Sleep(20 * time.Millisecond)

	first.Cancel()
	close(gw.block)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, second.Wait(ctx))
	assert.NoError(t, second.Diagnostic())
	assert.True(t, second.HasPermission("reports.view"))
	assert.Equal(t, "tok-u1", gw.lastToken.Load(), "shared call keeps the first caller's token")

	roles, _ := gw.calls()
	assert.Equal(t, int32(1), roles)
}

func TestCachedGateway_SharedCallHasItsOwnTimeout(t *testing.T) {
	gw := newFakeGateway()
	gw.block = make(chan struct{})
	defer close(gw.block)
	cache := NewCachedGateway(gw, 10, time.Minute, nil)
	cache.SetFetchTimeout(20 * time.Millisecond)

	_, err := cache.RolesByUser(context.Background(), "u1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
