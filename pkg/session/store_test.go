package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"redis":  NewRedisBackendWithClient(client, time.Hour, ""),
	}
}

func TestStore_GetSetRemoveClear(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := backend.Open("wsid_one")

			_, ok, err := store.Get(ctx, KeyToken)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Set(ctx, KeyToken, "tok"))
			require.NoError(t, store.Set(ctx, KeyUserID, "u1"))

			value, ok, err := store.Get(ctx, KeyToken)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "tok", value)

			require.NoError(t, store.Remove(ctx, KeyToken))
			_, ok, err = store.Get(ctx, KeyToken)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Clear(ctx))
			_, ok, err = store.Get(ctx, KeyUserID)
			require.NoError(t, err)
			assert.False(t, ok)

			// removing from an empty session is not an error
			assert.NoError(t, store.Remove(ctx, KeyRoles))
		})
	}
}

func TestStore_SessionsAreIsolated(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := backend.Open("wsid_a")
			b := backend.Open("wsid_b")

			require.NoError(t, a.Set(ctx, KeyToken, "token-a"))

			_, ok, err := b.Get(ctx, KeyToken)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, b.Clear(ctx))
			value, ok, err := a.Get(ctx, KeyToken)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "token-a", value)
		})
	}
}

func TestRedisBackend_TTLAndHashedKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	backend := NewRedisBackendWithClient(client, time.Minute, "test:")
	store := backend.Open("wsid_secret")
	require.NoError(t, store.Set(context.Background(), KeyToken, "tok"))

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.NotContains(t, keys[0], "wsid_secret", "raw session ids are never used as keys")
	assert.Equal(t, time.Minute, mr.TTL(keys[0]))

	mr.FastForward(2 * time.Minute)
	_, ok, err := store.Get(context.Background(), KeyToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)

	backend, err := NewRedisBackend(RedisConfig{URL: "redis://" + mr.Addr(), TTL: time.Hour})
	require.NoError(t, err)
	defer backend.Close()
	assert.NotNil(t, backend.Client())

	_, err = NewRedisBackend(RedisConfig{URL: "not-a-url"})
	assert.Error(t, err)
}

func TestMemoryStore_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewMemoryBackend().Open("wsid_x")
	assert.ErrorIs(t, store.Set(ctx, KeyToken, "t"), context.Canceled)
	_, _, err := store.Get(ctx, KeyToken)
	assert.ErrorIs(t, err, context.Canceled)
}
