package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ensembleai/agentgate/internal/observability"
)

// incrementWithExpiryScript atomically increments a counter and sets the
// expiration only when this call created the key.
// KEYS[1] = key, ARGV[1] = delta, ARGV[2] = expiration in seconds.
var incrementWithExpiryScript = redis.NewScript(`
	local current = redis.call('INCRBY', KEYS[1], ARGV[1])
	if current == tonumber(ARGV[1]) then
		redis.call('EXPIRE', KEYS[1], ARGV[2])
	end
	return current
`)

// Redis implements Store using Redis, sharing counters across gateway
// replicas.
type Redis struct {
	client *redis.Client
	prefix string
	logger observability.Logger
}

// RedisConfig holds configuration for the Redis counter store.
type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	PoolSize int           `yaml:"poolSize"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DefaultRedisConfig returns a RedisConfig with default values.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Address: "localhost:6379",
		Prefix:  "agentgate:rl:",
		Timeout: 3 * time.Second,
	}
}

// NewRedis creates a Redis counter store and verifies connectivity.
func NewRedis(ctx context.Context, cfg *RedisConfig, logger observability.Logger) (*Redis, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Redis{client: client, prefix: cfg.Prefix, logger: logger}, nil
}

// NewRedisWithClient wraps an existing client. Intended for tests.
func NewRedisWithClient(client *redis.Client, prefix string, logger observability.Logger) *Redis {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Redis{client: client, prefix: prefix, logger: logger}
}

// Get implements Store.
func (s *Redis) Get(ctx context.Context, key string) (int64, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, &ErrKeyNotFound{Key: key}
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return value, nil
}

// IncrementWithExpiry implements Store.
func (s *Redis) IncrementWithExpiry(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error) {
	seconds := int64(expiration.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	value, err := incrementWithExpiryScript.Run(ctx, s.client, []string{s.prefix + key}, delta, seconds).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis increment: %w", err)
	}
	return value, nil
}

// Delete implements Store.
func (s *Redis) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *Redis) Close() error {
	return s.client.Close()
}

var _ Store = (*Redis)(nil)
