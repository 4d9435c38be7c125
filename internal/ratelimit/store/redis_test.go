package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisWithClient(client, "test:rl:", nil)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisIncrementWithExpiry(t *testing.T) {
	t.Parallel()

	s, mr := setupRedis(t)
	ctx := context.Background()

	value, err := s.IncrementWithExpiry(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)

	value, err = s.IncrementWithExpiry(ctx, "counter", 2, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(3), value)

	// Expiration was set on creation only.
	assert.Greater(t, mr.TTL("test:rl:counter"), time.Duration(0))

	got, err := s.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)
}

func TestRedisExpiration(t *testing.T) {
	t.Parallel()

	s, mr := setupRedis(t)
	ctx := context.Background()

	_, err := s.IncrementWithExpiry(ctx, "counter", 1, time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = s.Get(ctx, "counter")
	assert.True(t, IsKeyNotFound(err))
}

func TestRedisDelete(t *testing.T) {
	t.Parallel()

	s, _ := setupRedis(t)
	ctx := context.Background()

	_, err := s.IncrementWithExpiry(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "counter"))

	_, err = s.Get(ctx, "counter")
	assert.True(t, IsKeyNotFound(err))
}

func TestNewRedisConnectionFailure(t *testing.T) {
	t.Parallel()

	cfg := DefaultRedisConfig()
	cfg.Address = "127.0.0.1:1"
	cfg.Timeout = 100 * time.Millisecond

	_, err := NewRedis(context.Background(), cfg, nil)
	require.Error(t, err)
}
