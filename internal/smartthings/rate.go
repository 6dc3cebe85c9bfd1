package smartthings

import (
	"context"
	"sync"
	"time"
)

// rateLimiter is a sliding-window request limiter.
//
// It records the timestamp of each admitted request and blocks new
// requests while the window already holds the maximum. The SmartThings
// cloud enforces roughly 10 requests per 10 seconds per token; the
// default configuration stays at 8 to leave headroom for the mobile app
// and other consumers of the same token.
type rateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	stamps []time.Time

	// now is swappable for tests.
	now func() time.Time
}

func newRateLimiter(window time.Duration, max int) *rateLimiter {
	return &rateLimiter{
		window: window,
		max:    max,
		stamps: make([]time.Time, 0, max),
		now:    time.Now,
	}
}

// Wait blocks until a request slot is available or the context is
// cancelled. On success the slot is consumed. The boolean reports
// whether the caller had to wait for a slot.
func (r *rateLimiter) Wait(ctx context.Context) (bool, error) {
	waited := false
	for {
		wait := r.tryAcquire()
		if wait <= 0 {
			return waited, nil
		}
		waited = true

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return waited, ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire consumes a slot if one is free. Otherwise it returns how
// long until the oldest in-window request ages out.
func (r *rateLimiter) tryAcquire() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	// Drop timestamps that have aged out of the window.
	kept := r.stamps[:0]
	for _, ts := range r.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	r.stamps = kept

	if len(r.stamps) < r.max {
		r.stamps = append(r.stamps, now)
		return 0
	}

	return r.stamps[0].Sub(cutoff)
}

// Pending returns the number of requests currently inside the window.
func (r *rateLimiter) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.window)
	n := 0
	for _, ts := range r.stamps {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}
