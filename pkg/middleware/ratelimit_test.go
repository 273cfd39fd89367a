package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	config := &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Second,
		BurstSize:         2,
	}
	limiter := NewRateLimiter(config)
	ctx := context.Background()

	allowed := 0
	for i := 0; i < config.RequestsPerWindow+config.BurstSize+5; i++ {
		ok, err := limiter.Allow(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		if ok {
			allowed++
		}
	}
	assert.Equal(t, config.RequestsPerWindow+config.BurstSize, allowed)
	assert.Equal(t, 0, limiter.Remaining("ip:1.2.3.4"))

	ok, err := limiter.Allow(ctx, "ip:5.6.7.8")
	require.NoError(t, err)
	assert.True(t, ok, "keys are limited independently")

	time.Sleep(200 * time.Millisecond)
	ok, _ = limiter.Allow(ctx, "ip:1.2.3.4")
	assert.True(t, ok, "tokens refill over time")
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    50 * time.Millisecond,
		BurstSize:         0,
	})
	_, _ = limiter.Allow(context.Background(), "k")
	assert.Equal(t, 9, limiter.Remaining("k"))

	time.Sleep(150 * time.Millisecond)
	limiter.Cleanup()
	assert.Equal(t, 10, limiter.Remaining("k"), "idle bucket is dropped")
}

func TestRateLimit_Middleware(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Hour})
	handler := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/session/login", nil)
		req.RemoteAddr = ip + ":5555"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, send("10.0.0.1").Code)
	w := send("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3600", w.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusNoContent, send("10.0.0.2").Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return true, errors.New("redis down")
}
func (failingLimiter) Config() *RateLimitConfig { return LoginRateLimitConfig() }

func TestRateLimit_FailsOpen(t *testing.T) {
	handler := RateLimit(failingLimiter{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(req))
}

func TestDistributedRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiter := NewDistributedRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}, "")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "ip:a")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := limiter.Allow(ctx, "ip:a")
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := limiter.Remaining(ctx, "ip:a")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	ttl, err := limiter.TTL(ctx, "ip:a")
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.True(t, mr.Exists("warden:ratelimit:ip:a"))

	mr.FastForward(2 * time.Minute)
	ok, err = limiter.Allow(ctx, "ip:a")
	require.NoError(t, err)
	assert.True(t, ok, "window expires")

	require.NoError(t, limiter.Reset(ctx, "ip:a"))
	remaining, err = limiter.Remaining(ctx, "ip:a")
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
}

func TestDistributedRateLimiter_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	ok, err := NewDistributedRateLimiter(client, nil, "").Allow(context.Background(), "ip:a")
	assert.Error(t, err)
	assert.True(t, ok)
}
