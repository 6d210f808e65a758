package api

import (
	"sync"
	"time"
)

// RateLimiter throttles chat turns per browser session over a sliding window.
// Each turn holds an upstream streaming connection open for seconds, so a
// burst of turns from one browser is cut off before it reaches the agent
// endpoint.
type RateLimiter struct {
	mu      sync.Mutex
	history map[string][]time.Time // session id -> turn timestamps, oldest first
	limit   int
	window  time.Duration
}

// NewRateLimiter creates a rate limiter allowing limit turns per window and
// starts the background eviction goroutine.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		history: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
	}
	go rl.evictLoop()
	return rl
}

// Allow reports whether the session may run another turn now, recording the
// turn when it may.
func (r *RateLimiter) Allow(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	times := prune(r.history[sessionID], now.Add(-r.window))

	if len(times) >= r.limit {
		r.history[sessionID] = times
		return false
	}
	r.history[sessionID] = append(times, now)
	return true
}

// evictLoop periodically drops sessions whose whole history has aged out, so
// the map does not grow with every browser that ever sent a turn.
func (r *RateLimiter) evictLoop() {
	ticker := time.NewTicker(r.window)
	defer ticker.Stop()
	for range ticker.C {
		r.mu.Lock()
		cutoff := time.Now().Add(-r.window)
		for id, times := range r.history {
			if kept := prune(times, cutoff); len(kept) == 0 {
				delete(r.history, id)
			} else {
				r.history[id] = kept
			}
		}
		r.mu.Unlock()
	}
}

// prune drops timestamps at or before cutoff, reusing the slice's storage.
// Timestamps are appended in order, so everything before the first survivor
// is expired.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}
