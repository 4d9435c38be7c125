// Package store provides the key-value storage port consumed by the
// authentication validators (API keys, sessions) and by session lifecycle
// helpers. The gateway depends only on the get/put/delete/list contract, not
// on any particular backing technology.
package store

import (
	"context"
	"errors"
	"time"
)

// Common store errors.
var (
	// ErrNotFound indicates that the key was not found in the store.
	ErrNotFound = errors.New("key not found")

	// ErrInvalidConfig indicates that the store configuration is invalid.
	ErrInvalidConfig = errors.New("invalid store configuration")

	// ErrClosed indicates that the store has been closed.
	ErrClosed = errors.New("store closed")
)

// KV is the key-value storage port.
type KV interface {
	// Get retrieves the value stored under key.
	// Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key with the given TTL.
	// A TTL of 0 means the entry never expires.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the key from the store. Deleting a missing key is not
	// an error.
	Delete(ctx context.Context, key string) error

	// List returns the keys matching the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close closes the store and releases resources.
	Close() error
}

// IsNotFound reports whether err indicates a missing key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
