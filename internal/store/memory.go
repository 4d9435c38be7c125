package store

import (
	"context"
	"strings"
	"sync"
	"time"
)

// memoryEntry represents a stored value with expiration.
type memoryEntry struct {
	value      []byte
	expiration time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiration.IsZero() && now.After(e.expiration)
}

// Memory implements KV using in-process storage. It is intended for tests and
// single-instance deployments.
type Memory struct {
	mu      sync.RWMutex
	data    map[string]*memoryEntry
	cleanup *time.Ticker
	done    chan struct{}
	closed  bool
}

// NewMemory creates a new in-memory store with a background sweep for expired
// entries.
func NewMemory() *Memory {
	return NewMemoryWithCleanupInterval(time.Minute)
}

// NewMemoryWithCleanupInterval creates a new in-memory store with a custom
// sweep interval.
func NewMemoryWithCleanupInterval(interval time.Duration) *Memory {
	s := &Memory{
		data:    make(map[string]*memoryEntry),
		cleanup: time.NewTicker(interval),
		done:    make(chan struct{}),
	}

	go s.sweep()

	return s
}

// Get implements KV.
func (s *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	entry, ok := s.data[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	if entry.expired(time.Now()) {
		s.mu.Lock()
		delete(s.data, key)
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	// Copy so callers cannot mutate stored state.
	value := make([]byte, len(entry.value))
	copy(value, entry.value)

	return value, nil
}

// Put implements KV.
func (s *Memory) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.data[key] = &memoryEntry{value: stored, expiration: exp}

	return nil
}

// Delete implements KV.
func (s *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()

	return nil
}

// List implements KV.
func (s *Memory) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for key, entry := range s.data {
		if entry.expired(now) {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// Close implements KV.
func (s *Memory) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		s.cleanup.Stop()
		close(s.done)
	}

	return nil
}

// sweep periodically removes expired entries.
func (s *Memory) sweep() {
	for {
		select {
		case <-s.done:
			return
		case <-s.cleanup.C:
			now := time.Now()
			s.mu.Lock()
			for key, entry := range s.data {
				if entry.expired(now) {
					delete(s.data, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Ensure Memory implements KV.
var _ KV = (*Memory)(nil)
