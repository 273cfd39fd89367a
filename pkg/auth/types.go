package auth

import (
	"encoding/json"
	"errors"
	"strings"
)

// RoleName identifies a role assigned to a user
type RoleName string

// PermissionCode identifies a fine-grained capability. Codes are compared
// by exact, case-sensitive equality.
type PermissionCode string

// Privileged role names. A session holding either is granted every permission.
const (
	RoleAdmin         RoleName = "admin"
	RoleSystemManager RoleName = "System_Manager"
)

// WildcardPermission is the sentinel meaning "all permission checks pass"
const WildcardPermission PermissionCode = "*"

// PrivilegedRoles returns the reserved role names that grant the wildcard
func PrivilegedRoles() []RoleName {
	return []RoleName{RoleAdmin, RoleSystemManager}
}

// IsPrivileged reports whether roles contains a privileged role name
func IsPrivileged(roles []RoleName) bool {
	return HasAnyRole(roles, PrivilegedRoles())
}

// HasAnyRole reports whether roles and allowed share at least one name
func HasAnyRole(roles []RoleName, allowed []RoleName) bool {
	for _, r := range roles {
		for _, a := range allowed {
			if r == a {
				return true
			}
		}
	}
	return false
}

// LoginMethod records how the session was established
type LoginMethod string

const (
	LoginMethodLocal LoginMethod = "local"
	LoginMethodSSO   LoginMethod = "sso"
)

// ParseLoginMethod parses a persisted login-method flag. Unknown values are
// treated as a local login.
func ParseLoginMethod(value string) LoginMethod {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(LoginMethodSSO), "true":
		return LoginMethodSSO
	default:
		return LoginMethodLocal
	}
}

// Credentials is what a login or refresh hands to the session store
type Credentials struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	UserID       string      `json:"userId"`
	Roles        []RoleName  `json:"roles"`
	LoginMethod  LoginMethod `json:"loginMethod,omitempty"`
}

// ErrMalformedSessionData is returned when a persisted value cannot be decoded
var ErrMalformedSessionData = errors.New("malformed session data")

// EncodeRoles serialises roles the way they are persisted in the session store
func EncodeRoles(roles []RoleName) string {
	if roles == nil {
		roles = []RoleName{}
	}
	data, err := json.Marshal(roles)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// DecodeRoles parses a persisted roles value.
//
// The value is expected to be a JSON array of strings. A bare JSON string is
// accepted as a single role, and anything else falls back to a comma separated
// list. If nothing usable remains, DecodeRoles returns an empty list together
// with ErrMalformedSessionData; callers treat that as "no roles" and never fail.
func DecodeRoles(raw string) ([]RoleName, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []RoleName{}, nil
	}

	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return normalizeRoles(list), nil
	}

	var single string
	if err := json.Unmarshal([]byte(raw), &single); err == nil {
		return normalizeRoles(strings.Split(single, ",")), nil
	}

	if strings.ContainsAny(raw, `[]{}"`) {
		return []RoleName{}, ErrMalformedSessionData
	}

	roles := normalizeRoles(strings.Split(raw, ","))
	if len(roles) == 0 {
		return roles, ErrMalformedSessionData
	}
	return roles, nil
}

// normalizeRoles trims names, drops empties and duplicates while keeping order
func normalizeRoles(names []string) []RoleName {
	seen := make(map[string]struct{}, len(names))
	roles := make([]RoleName, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		roles = append(roles, RoleName(n))
	}
	return roles
}
