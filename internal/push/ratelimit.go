package push

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token-bucket limiter capping a rate of calls through
// Allow and Wait. The push providers and the Dispatcher do not call it, so
// APNS/FCM/Expo sends are not rate limited.
type RateLimiter struct {
	mu           sync.Mutex
	tokens       float64
	maxTokens    float64
	refillRate   float64 // tokens per second
	lastRefill   time.Time
	refillPeriod time.Duration
}

// NewRateLimiter creates a rate limiter with the given capacity and refill
// period. NewRateLimiter(10, time.Second) allows 10 sends per second.
func NewRateLimiter(capacity int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:       float64(capacity),
		maxTokens:    float64(capacity),
		refillRate:   float64(capacity) / period.Seconds(),
		lastRefill:   time.Now(),
		refillPeriod: period,
	}
}

// Allow reports whether a send is permitted right now, consuming one token.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		if r.Allow() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// refill adds tokens for elapsed time. Must be called with r.mu held.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.tokens += elapsed * r.refillRate
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}
	r.lastRefill = now
}

// TokensRemaining returns the current token count, for diagnostics.
func (r *RateLimiter) TokensRemaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	return int(r.tokens)
}
