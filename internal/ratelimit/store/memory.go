package store

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value      int64
	expiration time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiration.IsZero() && now.After(e.expiration)
}

// Memory implements Store using in-process counters.
type Memory struct {
	mu      sync.Mutex
	data    map[string]*entry
	cleanup *time.Ticker
	done    chan struct{}
	closed  bool
}

// NewMemory creates a new in-memory counter store.
func NewMemory() *Memory {
	return NewMemoryWithCleanupInterval(time.Minute)
}

// NewMemoryWithCleanupInterval creates a new in-memory counter store with a
// custom cleanup interval.
func NewMemoryWithCleanupInterval(interval time.Duration) *Memory {
	s := &Memory{
		data:    make(map[string]*entry),
		cleanup: time.NewTicker(interval),
		done:    make(chan struct{}),
	}
	go s.startCleanup()
	return s
}

// Get implements Store.
func (s *Memory) Get(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok || e.expired(time.Now()) {
		delete(s.data, key)
		return 0, &ErrKeyNotFound{Key: key}
	}
	return e.value, nil
}

// IncrementWithExpiry implements Store.
func (s *Memory) IncrementWithExpiry(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e, ok := s.data[key]
	if !ok || e.expired(now) {
		e = &entry{}
		if expiration > 0 {
			e.expiration = now.Add(expiration)
		}
		s.data[key] = e
	}
	e.value += delta
	return e.value, nil
}

// Delete implements Store.
func (s *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Close implements Store.
func (s *Memory) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.cleanup.Stop()
	close(s.done)
	return nil
}

func (s *Memory) startCleanup() {
	for {
		select {
		case <-s.done:
			return
		case <-s.cleanup.C:
			now := time.Now()
			s.mu.Lock()
			for key, e := range s.data {
				if e.expired(now) {
					delete(s.data, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

var _ Store = (*Memory)(nil)
