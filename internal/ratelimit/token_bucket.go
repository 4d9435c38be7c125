package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket implements an in-process token bucket per key. It has no
// shared state, so it suits single replica deployments where smoothing
// matters more than exact window counts.
type TokenBucket struct {
	limit    Limit
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewTokenBucket creates a token bucket limiter with a default limit. Burst
// defaults to the request count when unset.
func NewTokenBucket(limit Limit) *TokenBucket {
	return &TokenBucket{
		limit:    limit,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Buckets are keyed by (key, limit) so a rule change starts a fresh bucket
// instead of reinterpreting an old one.
func (l *TokenBucket) limiterFor(key string, limit Limit) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucketKey := fmt.Sprintf("%s|%d/%s", key, limit.Requests, limit.Window)
	limiter, ok := l.limiters[bucketKey]
	if !ok {
		burst := limit.Burst
		if burst <= 0 {
			burst = limit.Requests
		}
		perSecond := float64(limit.Requests) / limit.Window.Seconds()
		limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		l.limiters[bucketKey] = limiter
	}
	return limiter
}

// Allow implements Limiter.
func (l *TokenBucket) Allow(ctx context.Context, key string) (*Result, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN implements Limiter.
func (l *TokenBucket) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	return l.AllowWithLimit(ctx, key, n, l.limit)
}

// AllowWithLimit checks n requests against an explicit limit.
func (l *TokenBucket) AllowWithLimit(_ context.Context, key string, n int, limit Limit) (*Result, error) {
	if limit.Requests <= 0 || limit.Window <= 0 {
		return &Result{Allowed: true}, nil
	}

	limiter := l.limiterFor(key, limit)
	reservation := limiter.ReserveN(time.Now(), n)
	if !reservation.OK() {
		return &Result{Allowed: false, Limit: limit.Requests, RetryAfter: limit.Window}, nil
	}

	delay := reservation.Delay()
	if delay > 0 {
		reservation.Cancel()
		return &Result{
			Allowed:    false,
			Limit:      limit.Requests,
			RetryAfter: delay,
			ResetAfter: delay,
		}, nil
	}

	return &Result{
		Allowed:   true,
		Limit:     limit.Requests,
		Remaining: int(limiter.Tokens()),
	}, nil
}

// Reset implements Limiter. It drops every bucket for the key.
func (l *TokenBucket) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	prefix := key + "|"
	for bucketKey := range l.limiters {
		if strings.HasPrefix(bucketKey, prefix) {
			delete(l.limiters, bucketKey)
		}
	}
	return nil
}

var _ Limiter = (*TokenBucket)(nil)
