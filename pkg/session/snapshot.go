package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/contextkeys"
)

// Snapshot is a point-in-time read of a session. It is derived fresh for every
// request and never written back.
type Snapshot struct {
	Token        string           `json:"-"`
	RefreshToken string           `json:"-"`
	UserID       string           `json:"userId,omitempty"`
	Roles        []auth.RoleName  `json:"roles"`
	LoginMethod  auth.LoginMethod `json:"loginMethod,omitempty"`

	// RolesErr is set when the persisted roles value was malformed; Roles is then empty.
	RolesErr error `json:"-"`
}

// HasToken reports whether the session carries a non-empty auth token
func (s Snapshot) HasToken() bool {
	return s.Token != ""
}

// IsAdmin reports whether the session holds a privileged role
func (s Snapshot) IsAdmin() bool {
	return auth.IsPrivileged(s.Roles)
}

// HasAnyRole reports whether the session holds any of allowed
func (s Snapshot) HasAnyRole(allowed ...auth.RoleName) bool {
	return auth.HasAnyRole(s.Roles, allowed)
}

// ReadSnapshot reads every session key from store. A malformed roles value is
// recovered to an empty role list and reported through Snapshot.RolesErr; only
// storage failures are returned as errors.
func ReadSnapshot(ctx context.Context, store Store) (Snapshot, error) {
	values := make(map[string]string, len(AllKeys))
	for _, key := range AllKeys {
		value, ok, err := store.Get(ctx, key)
		if err != nil {
			return Snapshot{Roles: []auth.RoleName{}}, fmt.Errorf("read %s: %w", key, err)
		}
		if ok {
			values[key] = value
		}
	}

	roles, rolesErr := auth.DecodeRoles(values[KeyRoles])
	snap := Snapshot{
		Token:        values[KeyToken],
		RefreshToken: values[KeyRefreshToken],
		UserID:       values[KeyUserID],
		Roles:        roles,
		RolesErr:     rolesErr,
	}
	if method, ok := values[KeyLoginMethod]; ok {
		snap.LoginMethod = auth.ParseLoginMethod(method)
	}
	return snap, nil
}

// WithSnapshot stores a snapshot in the context
func WithSnapshot(ctx context.Context, snap Snapshot) context.Context {
	return contextkeys.WithSnapshot(ctx, snap)
}

// SnapshotFromContext returns the request's snapshot. A missing snapshot is
// reported as an empty, unauthenticated session.
func SnapshotFromContext(ctx context.Context) (Snapshot, bool) {
	snap, ok := ctx.Value(contextkeys.SnapshotKey).(Snapshot)
	if !ok {
		return Snapshot{Roles: []auth.RoleName{}}, false
	}
	return snap, true
}

// IsMalformed reports whether err came from an undecodable session value
func IsMalformed(err error) bool {
	return errors.Is(err, auth.ErrMalformedSessionData)
}
