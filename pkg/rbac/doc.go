// Package rbac computes a session's effective permission set.
//
// Privileged roles (admin, System_Manager) short-circuit to the wildcard set without
// touching the backend. Otherwise the Resolver fetches the user's role assignments,
// then the global role-to-permission mappings, and keeps the codes reachable from
// an assigned role. Every failure collapses to the empty set; nothing is granted on
// error and no error escapes to the caller beyond a logged diagnostic.
//
// Resolution happens in the background. A Resolution reports Loading until the
// result is applied, and Cancel makes any later application a no-op.
//
//	res := resolver.Resolve(ctx, snapshot)
//	defer res.Cancel()
//	if err := res.Wait(ctx); err == nil && res.HasAnyPermission("reports.view") {
//		...
//	}
//
// CachedGateway wraps any Gateway with a TTL cache and request collapsing, and
// CacheRefresher keeps the mapping table warm on a cron schedule.
package rbac
