// Package accessguard gates page handlers on the caller's effective permissions
// or session roles.
//
// A PermissionGuard reads the rbac.Resolution placed in the request context by
// the resolution middleware and serves one of three things: a loading view
// while the resolution is still in flight, the wrapped handler when access is
// granted, or a fallback when it is denied.
//
//	guard := accessguard.PermissionGuard{
//		RequiredPermissions: []auth.PermissionCode{"project.read", "project.write"},
//	}
//	router.Handle("/dashboard/projects", guard.Wrap(projectsPage))
//
// RequiredPermissions passes when any listed code is held. RequireAllPermissions
// passes only when every listed code is held and, when non-empty, replaces the
// ANY check entirely. Both lists empty always grants.
//
// A RoleGuard checks the session's local role list against an allow-list and
// never waits on the gateway.
package accessguard
