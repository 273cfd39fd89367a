package rbac

import (
	"context"
	"errors"
)

// ErrGatewayUnavailable wraps every failure to reach or decode the permission backend.
var ErrGatewayUnavailable = errors.New("permission gateway unavailable")

// Gateway is the backend that owns role assignments and role-to-permission mappings.
type Gateway interface {
	// RolesByUser returns every role assigned to userID.
	RolesByUser(ctx context.Context, userID string) ([]RoleAssignment, error)
	// RolePermissionMappings returns the full mapping table. Rows may be dangling.
	RolePermissionMappings(ctx context.Context) ([]RolePermissionMapping, error)
}
