// Package gateway provides rbac.Gateway implementations backed by the dashboard
// API over HTTP, by SQL tables, and by a YAML fixture file, plus a client for the
// external token issuance service.
//
// The HTTP wire format is
//
//	GET /roles/user/{userId}  -> {"data": [{"roleId": "r1"}, ...]}
//	GET /role-permissions     -> {"data": [{"roleId": "r1", "permissionId": {"id": "p1", "code": "reports.view"}}, ...]}
//
// References may be bare ids or embedded objects. A bare permission id carries no
// code and decodes to an unresolved rbac.PermissionRef; null references decode to
// empty ids and are dropped downstream as dangling rows.
package gateway
