package providers

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket shared across analysis workers so the
// server stays under the provider's request ceiling. Tokens refill
// continuously at requestsPerMinute/60 per second, with burst capacity
// equal to the full minute budget.
type RateLimiter struct {
	mu         sync.Mutex
	perMinute  int
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a limiter allowing requestsPerMinute requests.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 150
	}
	return &RateLimiter{
		perMinute:  requestsPerMinute,
		tokens:     float64(requestsPerMinute),
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()
		if r.tokens >= 1 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		wait := r.untilNextToken()
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// refill credits tokens for the time elapsed since the last call.
// Callers must hold mu.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.lastRefill = now

	r.tokens += elapsed * r.ratePerSecond()
	if max := float64(r.perMinute); r.tokens > max {
		r.tokens = max
	}
}

// untilNextToken estimates how long until one full token accrues.
// Callers must hold mu.
func (r *RateLimiter) untilNextToken() time.Duration {
	missing := 1 - r.tokens
	return time.Duration(missing / r.ratePerSecond() * float64(time.Second))
}

func (r *RateLimiter) ratePerSecond() float64 {
	return float64(r.perMinute) / 60
}
