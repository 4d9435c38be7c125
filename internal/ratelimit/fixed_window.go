package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/ensembleai/agentgate/internal/observability"
	"github.com/ensembleai/agentgate/internal/ratelimit/store"
)

// FixedWindow implements the fixed window counter algorithm over a counter
// store. Counters are keyed by window number so stale windows age out on
// their own; the expiration is twice the window to survive clock drift
// between replicas.
type FixedWindow struct {
	store  store.Store
	limit  Limit
	logger observability.Logger
	now    func() time.Time
}

// FixedWindowOption is a functional option for the limiter.
type FixedWindowOption func(*FixedWindow)

// WithFixedWindowLogger sets the logger.
func WithFixedWindowLogger(logger observability.Logger) FixedWindowOption {
	return func(l *FixedWindow) { l.logger = logger }
}

// withClock overrides the time source. Intended for tests.
func withClock(now func() time.Time) FixedWindowOption {
	return func(l *FixedWindow) { l.now = now }
}

// NewFixedWindow creates a fixed window limiter with a default limit.
func NewFixedWindow(s store.Store, limit Limit, opts ...FixedWindowOption) *FixedWindow {
	l := &FixedWindow{
		store:  s,
		limit:  limit,
		logger: observability.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow implements Limiter.
func (l *FixedWindow) Allow(ctx context.Context, key string) (*Result, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN implements Limiter.
func (l *FixedWindow) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	return l.AllowWithLimit(ctx, key, n, l.limit)
}

// AllowWithLimit checks n requests against an explicit limit, letting one
// limiter serve per-route and per-identity limits from a shared store.
func (l *FixedWindow) AllowWithLimit(ctx context.Context, key string, n int, limit Limit) (*Result, error) {
	if limit.Requests <= 0 || limit.Window <= 0 {
		return &Result{Allowed: true}, nil
	}

	now := l.now()
	windowStart := now.Truncate(limit.Window)
	counterKey := fmt.Sprintf("%s:%d", key, windowStart.Unix())

	count, err := l.store.IncrementWithExpiry(ctx, counterKey, int64(n), 2*limit.Window)
	if err != nil {
		return nil, fmt.Errorf("incrementing window counter: %w", err)
	}

	allowed := count <= int64(limit.Requests)
	remaining := int64(limit.Requests) - count
	if remaining < 0 {
		remaining = 0
	}

	resetAfter := windowStart.Add(limit.Window).Sub(now)
	if resetAfter < 0 {
		resetAfter = 0
	}

	result := &Result{
		Allowed:    allowed,
		Limit:      limit.Requests,
		Remaining:  int(remaining),
		ResetAfter: resetAfter,
	}
	if !allowed {
		result.RetryAfter = resetAfter
	}
	return result, nil
}

// Reset implements Limiter. It clears the current window only; past windows
// expire on their own.
func (l *FixedWindow) Reset(ctx context.Context, key string) error {
	if l.limit.Window <= 0 {
		return nil
	}
	windowStart := l.now().Truncate(l.limit.Window)
	return l.store.Delete(ctx, fmt.Sprintf("%s:%d", key, windowStart.Unix()))
}

var _ Limiter = (*FixedWindow)(nil)
