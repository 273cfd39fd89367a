// Package auth defines the identity vocabulary shared by the session store,
// the permission resolver and the route guard.
//
// # Overview
//
// A session carries a set of role names. Two of them are reserved:
//
//	auth.RoleAdmin         - "admin"
//	auth.RoleSystemManager - "System_Manager"
//
// Any session holding either of them is privileged and passes every permission
// check without a round trip to the permission backend.
//
// # Persisted Roles
//
// Roles are persisted as a JSON array. DecodeRoles is deliberately forgiving:
//
//	roles, err := auth.DecodeRoles(`["operator","auditor"]`) // [operator auditor], nil
//	roles, err = auth.DecodeRoles("operator, auditor")       // [operator auditor], nil
//	roles, err = auth.DecodeRoles("{broken")                 // [], ErrMalformedSessionData
//
// A decoding error is diagnostic only. The caller proceeds with an empty role
// list, which is always the least privileged interpretation.
//
// # Session IDs
//
// Browsers hold an opaque session ID (wsid_ + 32 random bytes, base64url).
// The backend stores sessions under HashSessionID(id), never the raw value.
//
// # Related Packages
//
//   - pkg/session: persisted credentials and snapshots
//   - pkg/rbac: effective permission resolution
//   - pkg/authgate: route guard
package auth
