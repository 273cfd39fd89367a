package rbac

import (
	"github.com/platinummonkey/warden/pkg/auth"
)

// RoleAssignment binds a user to a role
type RoleAssignment struct {
	RoleID string `json:"roleId"`
}

// PermissionRefKind tells whether a mapping's permission was embedded or only referenced
type PermissionRefKind int

const (
	// PermissionUnresolved means only the permission's ID is known. It grants nothing.
	PermissionUnresolved PermissionRefKind = iota
	// PermissionResolved means the permission record, and so its code, was embedded.
	PermissionResolved
)

func (k PermissionRefKind) String() string {
	if k == PermissionResolved {
		return "resolved"
	}
	return "unresolved"
}

// PermissionRef is the permission side of a role mapping
type PermissionRef struct {
	Kind PermissionRefKind
	Code auth.PermissionCode
	ID   string
}

// ResolvedPermission returns a reference carrying its code
func ResolvedPermission(code auth.PermissionCode) PermissionRef {
	return PermissionRef{Kind: PermissionResolved, Code: code}
}

// UnresolvedPermission returns a reference carrying only an ID
func UnresolvedPermission(id string) PermissionRef {
	return PermissionRef{Kind: PermissionUnresolved, ID: id}
}

// IsResolved reports whether the reference contributes a usable code
func (r PermissionRef) IsResolved() bool {
	return r.Kind == PermissionResolved && r.Code != ""
}

// RolePermissionMapping grants a permission to a role
type RolePermissionMapping struct {
	RoleID       string
	PermissionID string
	Permission   PermissionRef
}

// Dangling reports whether the row is missing its role or permission reference
func (m RolePermissionMapping) Dangling() bool {
	return m.RoleID == "" || m.PermissionID == ""
}
