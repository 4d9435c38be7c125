// Package ratelimit provides request rate limiting for the gateway using a
// fixed window counter, with an in-process token bucket variant for single
// replica deployments.
package ratelimit

import (
	"context"
	"time"

	"github.com/ensembleai/agentgate/internal/policy"
)

// Limiter decides whether requests identified by a key may proceed.
type Limiter interface {
	// Allow checks if a single request is allowed for the given key.
	Allow(ctx context.Context, key string) (*Result, error)

	// AllowN checks if n requests are allowed for the given key.
	AllowN(ctx context.Context, key string, n int) (*Result, error)

	// Reset clears the rate limit state for the given key.
	Reset(ctx context.Context, key string) error
}

// Limit represents a rate limit configuration.
type Limit struct {
	// Requests is the maximum number of requests allowed in the window.
	Requests int

	// Window is the time window for the rate limit.
	Window time.Duration

	// Burst is the maximum burst size for the token bucket variant.
	Burst int
}

// FromSpec converts a policy rate limit into a Limit.
func FromSpec(spec *policy.RateLimitSpec) Limit {
	if spec == nil {
		return Limit{}
	}
	return Limit{
		Requests: spec.Requests,
		Window:   time.Duration(spec.WindowSeconds) * time.Second,
	}
}

// Result represents the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the request may proceed.
	Allowed bool

	// Limit is the maximum number of requests allowed.
	Limit int

	// Remaining is the number of requests left in the current window.
	Remaining int

	// ResetAfter is the duration until the window resets.
	ResetAfter time.Duration

	// RetryAfter is the duration to wait before retrying. Zero when the
	// request was allowed.
	RetryAfter time.Duration
}

// NoopLimiter always allows requests.
type NoopLimiter struct{}

// NewNoopLimiter creates a limiter that never rejects.
func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

// Allow implements Limiter.
func (l *NoopLimiter) Allow(_ context.Context, _ string) (*Result, error) {
	return &Result{Allowed: true}, nil
}

// AllowN implements Limiter.
func (l *NoopLimiter) AllowN(ctx context.Context, key string, _ int) (*Result, error) {
	return l.Allow(ctx, key)
}

// Reset implements Limiter.
func (l *NoopLimiter) Reset(_ context.Context, _ string) error {
	return nil
}

var _ Limiter = (*NoopLimiter)(nil)
