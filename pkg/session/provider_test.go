package session

import (
	"context"
	"errors"
	"testing"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_LoginSnapshotLogout(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(NewMemoryBackend())
	provider := manager.Provider("wsid_user")

	snap, err := provider.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.HasToken())
	assert.Empty(t, snap.Roles)

	require.NoError(t, provider.Login(ctx, auth.Credentials{
		Token:        "t1",
		RefreshToken: "r1",
		UserID:       "u7",
		Roles:        []auth.RoleName{"operator", "viewer"},
	}))

	snap, err = provider.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.HasToken())
	assert.Equal(t, "r1", snap.RefreshToken)
	assert.Equal(t, "u7", snap.UserID)
	assert.Equal(t, []auth.RoleName{"operator", "viewer"}, snap.Roles)
	assert.Equal(t, auth.LoginMethodLocal, snap.LoginMethod)
	assert.False(t, snap.IsAdmin())
	assert.True(t, snap.HasAnyRole("viewer"))

	require.NoError(t, provider.Logout(ctx))
	snap, err = provider.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.HasToken())
	assert.Empty(t, snap.UserID)
}

func TestProvider_LoginReplacesPreviousSession(t *testing.T) {
	ctx := context.Background()
	provider := NewManager(NewMemoryBackend()).Provider("wsid_user")

	require.NoError(t, provider.Login(ctx, auth.Credentials{Token: "t1", RefreshToken: "r1", UserID: "u1"}))
	require.NoError(t, provider.Login(ctx, auth.Credentials{Token: "t2", UserID: "u2", LoginMethod: auth.LoginMethodSSO}))

	snap, err := provider.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t2", snap.Token)
	assert.Empty(t, snap.RefreshToken, "stale refresh token must not survive a new login")
	assert.Equal(t, auth.LoginMethodSSO, snap.LoginMethod)
}

func TestProvider_LoginRequiresToken(t *testing.T) {
	provider := NewManager(NewMemoryBackend()).Provider("wsid_user")
	err := provider.Login(context.Background(), auth.Credentials{UserID: "u1"})
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestProvider_RefreshTokens(t *testing.T) {
	ctx := context.Background()
	provider := NewManager(NewMemoryBackend()).Provider("wsid_user")

	assert.ErrorIs(t, provider.RefreshTokens(ctx, "t2", "r2"), ErrNotFound)

	require.NoError(t, provider.Login(ctx, auth.Credentials{Token: "t1", RefreshToken: "r1", UserID: "u1", Roles: []auth.RoleName{"admin"}}))
	require.NoError(t, provider.RefreshTokens(ctx, "t2", ""))

	snap, err := provider.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t2", snap.Token)
	assert.Equal(t, "r1", snap.RefreshToken)
	assert.True(t, snap.IsAdmin())

	require.NoError(t, provider.RefreshTokens(ctx, "t3", "r3"))
	snap, err = provider.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r3", snap.RefreshToken)
}

func TestProvider_SubscribeReceivesEventsForSameSession(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(NewMemoryBackend())

	var events []Event
	unsubscribe := manager.Provider("wsid_a").Subscribe(func(e Event) { events = append(events, e) })

	other := 0
	manager.Provider("wsid_b").Subscribe(func(Event) { other++ })

	writer := manager.Provider("wsid_a")
	require.NoError(t, writer.Login(ctx, auth.Credentials{Token: "t", UserID: "u"}))
	require.NoError(t, writer.RefreshTokens(ctx, "t2", ""))
	require.NoError(t, writer.Logout(ctx))

	require.Len(t, events, 3)
	assert.Equal(t, EventLogin, events[0].Kind)
	assert.Equal(t, "u", events[0].Snapshot.UserID)
	assert.Equal(t, EventRefresh, events[1].Kind)
	assert.Equal(t, "t2", events[1].Snapshot.Token)
	assert.Equal(t, EventLogout, events[2].Kind)
	assert.False(t, events[2].Snapshot.HasToken())
	assert.Zero(t, other)

	unsubscribe()
	unsubscribe()
	require.NoError(t, writer.Login(ctx, auth.Credentials{Token: "t", UserID: "u"}))
	assert.Len(t, events, 3)
}

type failingStore struct {
	Store
	err error
}

func (s failingStore) Clear(ctx context.Context) error { return s.err }

type failingBackend struct {
	*MemoryBackend
	err error
}

func (b failingBackend) Open(id string) Store {
	return failingStore{Store: b.MemoryBackend.Open(id), err: b.err}
}

func TestProvider_WriteFailureDoesNotNotify(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	boom := errors.New("store down")
	manager := NewManager(failingBackend{MemoryBackend: NewMemoryBackend(), err: boom}, WithMetrics(metrics))
	provider := manager.Provider("wsid_user")

	notified := false
	provider.Subscribe(func(Event) { notified = true })

	err := provider.Logout(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, notified)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionWritesTotal.WithLabelValues("logout", "error")))
}

type flakySetStore struct {
	Store
	failKey string
	err     error
}

func (s flakySetStore) Set(ctx context.Context, key, value string) error {
	if key == s.failKey {
		return s.err
	}
	return s.Store.Set(ctx, key, value)
}

type flakySetBackend struct {
	*MemoryBackend
	failKey string
	err     error
}

func (b flakySetBackend) Open(id string) Store {
	return flakySetStore{Store: b.MemoryBackend.Open(id), failKey: b.failKey, err: b.err}
}

func TestProvider_PartialLoginLeavesNoToken(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("write failed")
	manager := NewManager(flakySetBackend{MemoryBackend: NewMemoryBackend(), failKey: KeyRoles, err: boom})
	provider := manager.Provider("wsid_user")

	notified := false
	provider.Subscribe(func(Event) { notified = true })

	err := provider.Login(ctx, auth.Credentials{
		Token:  "t1",
		UserID: "u7",
		Roles:  []auth.RoleName{"admin"},
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, notified)

	snap, err := provider.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.HasToken())
	assert.Empty(t, snap.UserID)
	assert.Empty(t, snap.Roles)
}
