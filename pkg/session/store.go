package session

import (
	"context"
	"errors"
)

// Keys persisted in a session store.
const (
	KeyToken        = "token"
	KeyRefreshToken = "refreshToken"
	KeyUserID       = "userId"
	KeyRoles        = "roles"
	KeyLoginMethod  = "loginMethod"
)

// AllKeys lists every key a session may hold.
var AllKeys = []string{KeyToken, KeyRefreshToken, KeyUserID, KeyRoles, KeyLoginMethod}

var (
	// ErrNotFound is returned by lookups for a session that was never written.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidSessionID is returned for a malformed session cookie value.
	ErrInvalidSessionID = errors.New("invalid session id")
	// ErrMissingToken is returned when a writer is given an empty auth token.
	ErrMissingToken = errors.New("missing auth token")
)

// Store is a single session's key-value storage.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	// Clear removes every key in the session.
	Clear(ctx context.Context) error
}

// Backend opens per-session stores.
type Backend interface {
	Open(sessionID string) Store
	Close() error
}

// setAll writes values in key order, stopping at the first failure.
func setAll(ctx context.Context, store Store, values map[string]string) error {
	for _, key := range AllKeys {
		value, ok := values[key]
		if !ok {
			continue
		}
		if err := store.Set(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}
