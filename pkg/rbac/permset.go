package rbac

import (
	"encoding/json"
	"sort"

	"github.com/platinummonkey/warden/pkg/auth"
)

// PermissionSet is a session's effective permissions: either the wildcard, which
// satisfies every check, or a finite set of codes. The zero value is empty.
type PermissionSet struct {
	wildcard bool
	codes    map[auth.PermissionCode]struct{}
}

// WildcardSet returns the set that satisfies every check
func WildcardSet() PermissionSet {
	return PermissionSet{wildcard: true}
}

// EmptySet returns a set that satisfies only vacuous checks
func EmptySet() PermissionSet {
	return PermissionSet{}
}

// NewPermissionSet builds a deduplicated set. Empty codes are ignored, and the
// wildcard code yields the wildcard set.
func NewPermissionSet(codes ...auth.PermissionCode) PermissionSet {
	set := PermissionSet{codes: make(map[auth.PermissionCode]struct{}, len(codes))}
	for _, c := range codes {
		if c == auth.WildcardPermission {
			return WildcardSet()
		}
		if c == "" {
			continue
		}
		set.codes[c] = struct{}{}
	}
	return set
}

// IsWildcard reports whether the set is the wildcard
func (s PermissionSet) IsWildcard() bool {
	return s.wildcard
}

// Len returns the number of distinct codes, or -1 for the wildcard
func (s PermissionSet) Len() int {
	if s.wildcard {
		return -1
	}
	return len(s.codes)
}

// Has reports whether code is granted
func (s PermissionSet) Has(code auth.PermissionCode) bool {
	if s.wildcard {
		return true
	}
	_, ok := s.codes[code]
	return ok
}

// HasAny reports whether at least one of codes is granted. No codes is vacuously true.
func (s PermissionSet) HasAny(codes ...auth.PermissionCode) bool {
	if len(codes) == 0 || s.wildcard {
		return true
	}
	for _, c := range codes {
		if s.Has(c) {
			return true
		}
	}
	return false
}

// HasAll reports whether every one of codes is granted. No codes is vacuously true.
func (s PermissionSet) HasAll(codes ...auth.PermissionCode) bool {
	if s.wildcard {
		return true
	}
	for _, c := range codes {
		if !s.Has(c) {
			return false
		}
	}
	return true
}

// Codes returns the granted codes sorted, or just the wildcard code
func (s PermissionSet) Codes() []auth.PermissionCode {
	if s.wildcard {
		return []auth.PermissionCode{auth.WildcardPermission}
	}
	out := make([]auth.PermissionCode, 0, len(s.codes))
	for c := range s.codes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON encodes the wildcard as "*" and anything else as a sorted array
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	if s.wildcard {
		return json.Marshal(string(auth.WildcardPermission))
	}
	return json.Marshal(s.Codes())
}
