package rbac

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	cacheAssignments = "assignments"
	cacheMappings    = "mappings"
	mappingsKey      = "all"

	// DefaultCacheSize bounds the number of cached users.
	DefaultCacheSize = 1024
	// DefaultCacheTTL is how long a successful gateway response is reused.
	DefaultCacheTTL = 30 * time.Second
	// DefaultFetchTimeout bounds a shared backend call once no caller owns it.
	DefaultFetchTimeout = 30 * time.Second
)

// CachedGateway caches successful responses from another Gateway for a fixed TTL
// and collapses concurrent identical requests into one backend call. Failures are
// never cached.
type CachedGateway struct {
	next        Gateway
	assignments *lru.LRU[string, []RoleAssignment]
	mappings    *lru.LRU[string, []RolePermissionMapping]
	group       singleflight.Group
	metrics     *observability.Metrics

	fetchTimeout time.Duration
}

// NewCachedGateway wraps next. Non-positive size or ttl fall back to the defaults.
func NewCachedGateway(next Gateway, size int, ttl time.Duration, metrics *observability.Metrics) *CachedGateway {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedGateway{
		next:        next,
		assignments: lru.NewLRU[string, []RoleAssignment](size, nil, ttl),
		mappings:    lru.NewLRU[string, []RolePermissionMapping](1, nil, ttl),
		metrics:     metrics,

		fetchTimeout: DefaultFetchTimeout,
	}
}

// SetFetchTimeout bounds each shared backend call. Non-positive values restore
// DefaultFetchTimeout.
func (c *CachedGateway) SetFetchTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	c.fetchTimeout = timeout
}

// RolesByUser implements Gateway
func (c *CachedGateway) RolesByUser(ctx context.Context, userID string) ([]RoleAssignment, error) {
	if cached, ok := c.assignments.Get(userID); ok {
		c.metrics.RecordCacheLookup(cacheAssignments, true)
		return append([]RoleAssignment(nil), cached...), nil
	}
	c.metrics.RecordCacheLookup(cacheAssignments, false)

	v, err := c.do(ctx, "user:"+userID, func(ctx context.Context) (interface{}, error) {
		assignments, err := c.next.RolesByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		c.assignments.Add(userID, assignments)
		return assignments, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]RoleAssignment(nil), v.([]RoleAssignment)...), nil
}

// RolePermissionMappings implements Gateway
func (c *CachedGateway) RolePermissionMappings(ctx context.Context) ([]RolePermissionMapping, error) {
	if cached, ok := c.mappings.Get(mappingsKey); ok {
		c.metrics.RecordCacheLookup(cacheMappings, true)
		return append([]RolePermissionMapping(nil), cached...), nil
	}
	c.metrics.RecordCacheLookup(cacheMappings, false)

	v, err := c.do(ctx, "mappings", c.loadMappings)
	if err != nil {
		return nil, err
	}
	return append([]RolePermissionMapping(nil), v.([]RolePermissionMapping)...), nil
}

func (c *CachedGateway) loadMappings(ctx context.Context) (interface{}, error) {
	mappings, err := c.next.RolePermissionMappings(ctx)
	if err != nil {
		return nil, err
	}
	c.mappings.Add(mappingsKey, mappings)
	return mappings, nil
}

// do runs fn once per key across concurrent callers. The shared call keeps the
// first caller's context values but not its cancellation, so one caller leaving
// never fails the others; each caller drops out only through its own ctx.
func (c *CachedGateway) do(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(shared, c.fetchTimeout)
		defer cancel()
		return fn(fetchCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops the cached assignments for userID
func (c *CachedGateway) Invalidate(userID string) {
	c.assignments.Remove(userID)
}

// Purge drops everything cached
func (c *CachedGateway) Purge() {
	c.assignments.Purge()
	c.mappings.Purge()
}

// Refresh reloads the mapping table from the backend, replacing the cached copy
// only on success.
func (c *CachedGateway) Refresh(ctx context.Context) error {
	c.group.Forget("mappings")
	if _, err := c.do(ctx, "mappings", c.loadMappings); err != nil {
		return fmt.Errorf("refresh role permission mappings: %w", err)
	}
	return nil
}

// CacheRefresher periodically refreshes a CachedGateway's mapping table.
type CacheRefresher struct {
	cron    *cron.Cron
	cache   *CachedGateway
	logger  logrus.FieldLogger
	timeout time.Duration
}

// NewCacheRefresher schedules cache.Refresh with a standard five-field cron spec
// or a descriptor such as "@every 1m".
func NewCacheRefresher(cache *CachedGateway, schedule string, logger logrus.FieldLogger) (*CacheRefresher, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	r := &CacheRefresher{
		cron:    cron.New(),
		cache:   cache,
		logger:  logger,
		timeout: 30 * time.Second,
	}
	if _, err := r.cron.AddFunc(schedule, r.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	return r, nil
}

// RunOnce performs a single refresh
func (r *CacheRefresher) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.cache.Refresh(ctx); err != nil {
		r.logger.WithError(err).Warn("Failed to refresh role permission mappings")
		return
	}
	r.logger.Debug("Role permission mappings refreshed")
}

// Start runs the scheduler in the background
func (r *CacheRefresher) Start() {
	r.cron.Start()
}

// Stop halts the scheduler and waits for a running refresh to finish, up to ctx.
func (r *CacheRefresher) Stop(ctx context.Context) error {
	select {
	case <-r.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
