package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/warden/pkg/auth"
)

// RedisConfig configures the Redis session backend.
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
	// TTL is the sliding idle expiry applied on every write. Zero disables expiry.
	TTL       time.Duration
	KeyPrefix string
}

// RedisBackend stores each session as a Redis hash.
type RedisBackend struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB > 0 {
		opts.DB = cfg.DB
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisBackendWithClient(client, cfg.TTL, cfg.KeyPrefix), nil
}

// NewRedisBackendWithClient wraps an existing client.
func NewRedisBackendWithClient(client redis.UniversalClient, ttl time.Duration, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "warden:session:"
	}
	return &RedisBackend{client: client, ttl: ttl, prefix: prefix}
}

// Client exposes the underlying client for health checks
func (b *RedisBackend) Client() redis.UniversalClient {
	return b.client
}

// Open returns the store for sessionID
func (b *RedisBackend) Open(sessionID string) Store {
	return &redisStore{backend: b, key: b.prefix + auth.HashSessionID(sessionID)}
}

// Close closes the Redis client
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

type redisStore struct {
	backend *RedisBackend
	key     string
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.backend.client.HGet(ctx, s.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis hget failed: %w", err)
	}
	return value, true, nil
}

func (s *redisStore) Set(ctx context.Context, key, value string) error {
	pipe := s.backend.client.TxPipeline()
	pipe.HSet(ctx, s.key, key, value)
	if s.backend.ttl > 0 {
		pipe.Expire(ctx, s.key, s.backend.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}

func (s *redisStore) Remove(ctx context.Context, key string) error {
	if err := s.backend.client.HDel(ctx, s.key, key).Err(); err != nil {
		return fmt.Errorf("redis hdel failed: %w", err)
	}
	return nil
}

func (s *redisStore) Clear(ctx context.Context) error {
	if err := s.backend.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
