package common

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimiter paces outgoing REST requests.
type RateLimiter struct {
	limiter *rate.Limiter
	waited  atomic.Uint64
}

// NewRateLimiter allows perSecond requests with the given burst.
// perSecond <= 0 disables pacing.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &RateLimiter{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until a request may be sent or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}
	if !rl.limiter.Allow() {
		rl.waited.Add(1)
		return rl.limiter.Wait(ctx)
	}
	return nil
}

// Throttled returns how many requests had to wait for a token.
func (rl *RateLimiter) Throttled() uint64 {
	if rl == nil {
		return 0
	}
	return rl.waited.Load()
}
