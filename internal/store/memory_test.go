package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_PutGet(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	defer s.Close()

	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k1", []byte("v1"), 0))

	value, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)
}

func TestMemory_GetMissing(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	defer s.Close()

	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))
}

func TestMemory_Expiration(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	defer s.Close()

	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "session:abc", []byte("data"), 10*time.Millisecond))

	value, err := s.Get(ctx, "session:abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), value)

	time.Sleep(20 * time.Millisecond)

	_, err = s.Get(ctx, "session:abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_Delete(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	defer s.Close()

	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k1", []byte("v1"), 0))
	require.NoError(t, s.Delete(ctx, "k1"))

	_, err := s.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing key is not an error.
	assert.NoError(t, s.Delete(ctx, "k1"))
}

func TestMemory_List(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	defer s.Close()

	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "apikey:one", []byte("1"), 0))
	require.NoError(t, s.Put(ctx, "apikey:two", []byte("2"), 0))
	require.NoError(t, s.Put(ctx, "session:x", []byte("3"), 0))

	keys, err := s.List(ctx, "apikey:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"apikey:one", "apikey:two"}, keys)
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	defer s.Close()

	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k1", []byte("v1"), 0))

	value, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	value[0] = 'X'

	again, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), again)
}

func TestMemory_ContextCanceled(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Get(ctx, "k1")
	assert.ErrorIs(t, err, context.Canceled)

	err = s.Put(ctx, "k1", []byte("v1"), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemory_PutAfterClose(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	require.NoError(t, s.Close())

	err := s.Put(context.Background(), "k1", []byte("v1"), 0)
	assert.ErrorIs(t, err, ErrClosed)

	// Close is idempotent.
	assert.NoError(t, s.Close())
}
