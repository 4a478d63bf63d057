// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package cache

import (
	"sync"
	"time"
)

// SlidingWindowCounter counts events over a sliding time window using a
// circular buffer of fixed-duration buckets. Increment is O(1); Count is
// O(buckets).
type SlidingWindowCounter struct {
	mu         sync.Mutex
	buckets    []int64
	bucketSize time.Duration
	numBuckets int
	current    int
	lastUpdate time.Time
}

// NewSlidingWindowCounter creates a counter covering windowSize, divided
// into numBuckets buckets.
func NewSlidingWindowCounter(windowSize time.Duration, numBuckets int) *SlidingWindowCounter {
	if numBuckets <= 0 {
		numBuckets = 10
	}
	if windowSize <= 0 {
		windowSize = time.Minute
	}

	return &SlidingWindowCounter{
		buckets:    make([]int64, numBuckets),
		bucketSize: windowSize / time.Duration(numBuckets),
		numBuckets: numBuckets,
		lastUpdate: time.Now(),
	}
}

// Increment adds delta to the current bucket.
func (sw *SlidingWindowCounter) Increment(delta int64) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.advance(time.Now())
	sw.buckets[sw.current] += delta
}

// Count returns the total across all buckets in the window.
func (sw *SlidingWindowCounter) Count() int64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.advance(time.Now())

	var total int64
	for _, n := range sw.buckets {
		total += n
	}
	return total
}

// advance rotates the circular buffer forward, zeroing buckets that have
// fallen out of the window. Must be called with mu held.
func (sw *SlidingWindowCounter) advance(now time.Time) {
	elapsed := now.Sub(sw.lastUpdate)
	if elapsed < sw.bucketSize {
		return
	}

	steps := int(elapsed / sw.bucketSize)
	if steps > sw.numBuckets {
		steps = sw.numBuckets
	}
	for i := 0; i < steps; i++ {
		sw.current = (sw.current + 1) % sw.numBuckets
		sw.buckets[sw.current] = 0
	}
	sw.lastUpdate = now
}

// SessionRateLimiter enforces a per-session request budget over a sliding
// window. Counters are created on first use and reaped once idle for two
// windows, bounding memory under session churn.
type SessionRateLimiter struct {
	mu       sync.Mutex
	limit    int64
	window   time.Duration
	counters map[string]*sessionCounter
}

type sessionCounter struct {
	counter  *SlidingWindowCounter
	lastSeen time.Time
}

// NewSessionRateLimiter creates a limiter allowing limit requests per window
// for each session ID.
func NewSessionRateLimiter(limit int, window time.Duration) *SessionRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}

	return &SessionRateLimiter{
		limit:    int64(limit),
		window:   window,
		counters: make(map[string]*sessionCounter),
	}
}

// Allow records one request for the session and reports whether it is within
// budget. The request is counted even when denied, so a client hammering the
// endpoint stays limited.
func (rl *SessionRateLimiter) Allow(sessionID string) bool {
	rl.mu.Lock()
	sc, ok := rl.counters[sessionID]
	if !ok {
		sc = &sessionCounter{counter: NewSlidingWindowCounter(rl.window, 10)}
		rl.counters[sessionID] = sc
		rl.reapStaleLocked()
	}
	sc.lastSeen = time.Now()
	rl.mu.Unlock()

	sc.counter.Increment(1)
	return sc.counter.Count() <= rl.limit
}

// reapStaleLocked drops counters idle for more than two windows.
// Must be called with mu held. Runs on counter creation, so reap cost is
// amortized over new-session arrivals.
func (rl *SessionRateLimiter) reapStaleLocked() {
	cutoff := time.Now().Add(-2 * rl.window)
	for id, sc := range rl.counters {
		if sc.lastSeen.Before(cutoff) {
			delete(rl.counters, id)
		}
	}
}

// Len returns the number of live session counters.
func (rl *SessionRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.counters)
}
