package gateway

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureV1 = `
permissions:
  - {id: p1, code: reports.view}
userRoles:
  u1: [r1]
rolePermissions:
  - {role: r1, permission: p1}
  - {role: r1, permission: p2}
`

const fixtureV2 = `
permissions:
  - {id: p1, code: reports.view}
  - {id: p2, code: users.edit}
userRoles:
  u1: [r1]
rolePermissions:
  - {role: r1, permission: p1}
  - {role: r1, permission: p2}
`

func writeFixture(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestFileGateway_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rbac.yaml")
	writeFixture(t, path, fixtureV1)

	gw, err := NewFileGateway(path, quietLogger())
	require.NoError(t, err)

	assignments, err := gw.RolesByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, assignments, 1)

	mappings, err := gw.RolePermissionMappings(context.Background())
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.True(t, mappings[0].Permission.IsResolved())
	assert.False(t, mappings[1].Permission.IsResolved(), "unknown permission ids stay unresolved")
}

func TestFileGateway_BadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rbac.yaml")
	writeFixture(t, path, "permissions: [")
	_, err := NewFileGateway(path, quietLogger())
	assert.Error(t, err)

	_, err = NewFileGateway(filepath.Join(t.TempDir(), "missing.yaml"), quietLogger())
	assert.Error(t, err)
}

func TestFileGateway_ReloadKeepsLastGood(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rbac.yaml")
	writeFixture(t, path, fixtureV1)
	gw, err := NewFileGateway(path, quietLogger())
	require.NoError(t, err)

	writeFixture(t, path, "userRoles: {")
	assert.Error(t, gw.Reload())

	assignments, err := gw.RolesByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, assignments, 1)
}

func TestFileGateway_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rbac.yaml")
	writeFixture(t, path, fixtureV1)
	gw, err := NewFileGateway(path, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan struct{}, 10)
	done := make(chan error, 1)
	go func() { done <- gw.Watch(ctx, func() { reloaded <- struct{}{} }) }()

	// give the watcher time to register before writing
	time.Sleep(50 * time.Millisecond)
	writeFixture(t, path, fixtureV2)

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("fixture was not reloaded")
	}

	require.Eventually(t, func() bool {
		mappings, err := gw.RolePermissionMappings(context.Background())
		return err == nil && len(mappings) == 2 && mappings[1].Permission.IsResolved()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
