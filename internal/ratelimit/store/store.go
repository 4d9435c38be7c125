// Package store provides counter storage backends for rate limiting.
package store

import (
	"context"
	"time"
)

// Store is a windowed counter store.
type Store interface {
	// Get retrieves the counter for the given key.
	Get(ctx context.Context, key string) (int64, error)

	// IncrementWithExpiry increments the counter by delta, setting the
	// expiration when the key is created by this call.
	IncrementWithExpiry(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error)

	// Delete removes the key from the store.
	Delete(ctx context.Context, key string) error

	// Close closes the store and releases resources.
	Close() error
}

// ErrKeyNotFound is returned when a key is not found in the store.
type ErrKeyNotFound struct {
	Key string
}

func (e *ErrKeyNotFound) Error() string {
	return "key not found: " + e.Key
}

// IsKeyNotFound returns true if the error is a key not found error.
func IsKeyNotFound(err error) bool {
	_, ok := err.(*ErrKeyNotFound)
	return ok
}
