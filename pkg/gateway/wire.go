package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// envelope is the {data: [...]} wrapper every list endpoint returns
type envelope[T any] struct {
	Data []T `json:"data"`
}

// reference decodes a foreign key that may be null, a string, a number, or an
// embedded record with an id and optionally a code.
type reference struct {
	ID       string
	Code     string
	Embedded bool
}

type embeddedRecord struct {
	ID    json.RawMessage `json:"id"`
	AltID json.RawMessage `json:"_id"`
	Code  string          `json:"code"`
}

func (r *reference) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*r = reference{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '{':
		var rec embeddedRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode embedded reference: %w", err)
		}
		id, err := scalarID(rec.ID)
		if err != nil {
			return err
		}
		if id == "" {
			if id, err = scalarID(rec.AltID); err != nil {
				return err
			}
		}
		r.Embedded = true
		r.Code = strings.TrimSpace(rec.Code)
		r.ID = id
		if r.ID == "" {
			r.ID = r.Code
		}
		return nil
	default:
		id, err := scalarID(data)
		if err != nil {
			return err
		}
		r.ID = id
		return nil
	}
}

// scalarID reads a JSON string or number as an id string
func scalarID(data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", fmt.Errorf("decode id: %w", err)
		}
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", fmt.Errorf("decode id: %w", err)
	}
	return n.String(), nil
}

type wireAssignment struct {
	RoleID reference `json:"roleId"`
}

type wireMapping struct {
	RoleID       reference `json:"roleId"`
	PermissionID reference `json:"permissionId"`
	// PermissionCode is the flat form of the code; an embedded code wins.
	PermissionCode *string `json:"permissionCode"`
}

func (w wireAssignment) toRBAC() rbac.RoleAssignment {
	return rbac.RoleAssignment{RoleID: w.RoleID.ID}
}

func (w wireMapping) toRBAC() rbac.RolePermissionMapping {
	m := rbac.RolePermissionMapping{
		RoleID:       w.RoleID.ID,
		PermissionID: w.PermissionID.ID,
		Permission:   rbac.UnresolvedPermission(w.PermissionID.ID),
	}
	switch {
	case w.PermissionID.Embedded && w.PermissionID.Code != "":
		m.Permission = rbac.ResolvedPermission(auth.PermissionCode(w.PermissionID.Code))
	case w.PermissionCode != nil && strings.TrimSpace(*w.PermissionCode) != "":
		m.Permission = rbac.ResolvedPermission(auth.PermissionCode(strings.TrimSpace(*w.PermissionCode)))
	}
	return m
}

// DecodeAssignments parses a /roles/user response body
func DecodeAssignments(body []byte) ([]rbac.RoleAssignment, error) {
	var env envelope[wireAssignment]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode role assignments: %w", rbac.ErrGatewayUnavailable, err)
	}
	out := make([]rbac.RoleAssignment, 0, len(env.Data))
	for _, w := range env.Data {
		out = append(out, w.toRBAC())
	}
	return out, nil
}

// DecodeMappings parses a /role-permissions response body
func DecodeMappings(body []byte) ([]rbac.RolePermissionMapping, error) {
	var env envelope[wireMapping]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode role permission mappings: %w", rbac.ErrGatewayUnavailable, err)
	}
	out := make([]rbac.RolePermissionMapping, 0, len(env.Data))
	for _, w := range env.Data {
		out = append(out, w.toRBAC())
	}
	return out, nil
}
