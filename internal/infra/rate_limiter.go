package infra

import (
	"sync"
	"time"
)

// RateLimiter enforces a minimum spacing between outbound gateway calls.
// Thread-safe; concurrent callers are serialized so that no two calls are
// ever initiated closer together than the configured interval.
type RateLimiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	lastCall    time.Time
}

// NewRateLimiter creates a limiter with the given minimum inter-call spacing.
func NewRateLimiter(minInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		minInterval: minInterval,
		lastCall:    time.Now().Add(-minInterval), // allow immediate first call
	}
}

// Wait blocks until the spacing from the previous call has elapsed. The
// last-call timestamp is updated after the wait, not before, so back-to-back
// calls never under-space even when the caller itself took non-trivial time.
// The mutex is held across the sleep: that is what serializes concurrent
// callers into properly spaced slots.
func (r *RateLimiter) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := time.Since(r.lastCall)
	if elapsed < r.minInterval {
		time.Sleep(r.minInterval - elapsed)
	}
	r.lastCall = time.Now()
}

// TryAcquire reports whether a call may proceed right now, without blocking.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if time.Since(r.lastCall) < r.minInterval {
		return false
	}
	r.lastCall = time.Now()
	return true
}
