package integrated

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket refilled once per minute, matching the
// teacher's Binance client rate limiter.
type rateLimiter struct {
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
	mu         sync.Mutex
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		tokens:     perMinute,
		maxTokens:  perMinute,
		refillRate: time.Minute,
		lastRefill: time.Now(),
	}
}

func (rl *rateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastRefill) >= rl.refillRate {
		rl.tokens = rl.maxTokens
		rl.lastRefill = now
	}
	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}
