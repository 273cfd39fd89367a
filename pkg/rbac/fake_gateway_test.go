package rbac

import (
	"context"
	"sync"
	"sync/atomic"
)

// fakeGateway is an in-memory Gateway with call counters and optional blocking.
type fakeGateway struct {
	mu          sync.Mutex
	assignments map[string][]RoleAssignment
	mappings    []RolePermissionMapping

	rolesErr    error
	mappingsErr error

	// block, when set, holds every call until closed or the context ends.
	block chan struct{}

	roleCalls    atomic.Int32
	mappingCalls atomic.Int32
	lastToken    atomic.Value
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{assignments: make(map[string][]RoleAssignment)}
}

func (g *fakeGateway) wait(ctx context.Context) error {
	if g.block == nil {
		return nil
	}
	select {
	case <-g.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *fakeGateway) RolesByUser(ctx context.Context, userID string) ([]RoleAssignment, error) {
	g.roleCalls.Add(1)
	g.lastToken.Store(tokenFrom(ctx))
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rolesErr != nil {
		return nil, g.rolesErr
	}
	return append([]RoleAssignment(nil), g.assignments[userID]...), nil
}

func (g *fakeGateway) RolePermissionMappings(ctx context.Context) ([]RolePermissionMapping, error) {
	g.mappingCalls.Add(1)
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mappingsErr != nil {
		return nil, g.mappingsErr
	}
	return append([]RolePermissionMapping(nil), g.mappings...), nil
}

func (g *fakeGateway) calls() (int32, int32) {
	return g.roleCalls.Load(), g.mappingCalls.Load()
}

func mapping(roleID, permissionID, code string) RolePermissionMapping {
	ref := UnresolvedPermission(permissionID)
	if code != "" {
		ref = ResolvedPermission(authCode(code))
	}
	return RolePermissionMapping{RoleID: roleID, PermissionID: permissionID, Permission: ref}
}
