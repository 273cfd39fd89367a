package rbac

import (
	"encoding/json"
	"testing"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authCode(s string) auth.PermissionCode { return auth.PermissionCode(s) }

func TestPermissionSet_Predicates(t *testing.T) {
	set := NewPermissionSet("reports.view", "reports.view", "users.edit", "")

	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Has("reports.view"))
	assert.False(t, set.Has("Reports.View"), "codes are case-sensitive")

	assert.True(t, set.HasAny("nope", "users.edit"))
	assert.False(t, set.HasAny("nope"))
	assert.True(t, set.HasAny(), "empty ANY list is vacuously true")

	assert.True(t, set.HasAll("reports.view", "users.edit"))
	assert.False(t, set.HasAll("reports.view", "billing.read"))
	assert.True(t, set.HasAll(), "empty ALL list is vacuously true")
}

func TestPermissionSet_Wildcard(t *testing.T) {
	for _, set := range []PermissionSet{WildcardSet(), NewPermissionSet("a", auth.WildcardPermission)} {
		assert.True(t, set.IsWildcard())
		assert.Equal(t, -1, set.Len())
		assert.True(t, set.Has("anything"))
		assert.True(t, set.HasAll("x", "y", "z"))
		assert.True(t, set.HasAny("x"))
	}
}

func TestPermissionSet_EmptyGrantsNothing(t *testing.T) {
	for _, set := range []PermissionSet{{}, EmptySet(), NewPermissionSet()} {
		assert.False(t, set.Has("a"))
		assert.False(t, set.HasAny("a"))
		assert.False(t, set.HasAll("a"))
		assert.Equal(t, 0, set.Len())
	}
}

func TestPermissionSet_JSON(t *testing.T) {
	data, err := json.Marshal(WildcardSet())
	require.NoError(t, err)
	assert.JSONEq(t, `"*"`, string(data))

	data, err = json.Marshal(NewPermissionSet("b", "a"))
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(data))

	data, err = json.Marshal(EmptySet())
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestRolePermissionMapping_Dangling(t *testing.T) {
	assert.True(t, RolePermissionMapping{PermissionID: "p"}.Dangling())
	assert.True(t, RolePermissionMapping{RoleID: "r"}.Dangling())
	assert.False(t, mapping("r", "p", "").Dangling())

	assert.False(t, UnresolvedPermission("p1").IsResolved())
	assert.True(t, ResolvedPermission("x").IsResolved())
	assert.Equal(t, "resolved", PermissionResolved.String())
	assert.Equal(t, "unresolved", PermissionUnresolved.String())
}
