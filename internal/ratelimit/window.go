// Package ratelimit bounds outbound journey requests to a fixed number
// per rolling window, shared across all concurrent callers.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits at most limit acquisitions per rolling window. It never
// rejects: callers over the limit sleep until the oldest retained
// admission falls outside the window. Safe for concurrent use.
type Limiter struct {
	mu         sync.Mutex
	limit      int
	window     time.Duration
	timestamps []time.Time

	// test seams
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Limiter admitting limit acquisitions per window.
// limit <= 0 falls back to 499.
func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 499
	}
	return &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Acquire blocks until one more request may be issued without exceeding
// the limit, then records the admission. The only error it returns is the
// context's: rate pressure delays, it never fails.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		wait := l.tryAcquire()
		if wait <= 0 {
			return nil
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// tryAcquire records an admission and returns 0, or returns how long the
// caller must wait for the oldest retained timestamp to age out.
func (l *Limiter) tryAcquire() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if len(l.timestamps) < l.limit {
		l.timestamps = append(l.timestamps, now)
		return 0
	}

	// timestamps are appended in order; index 0 is the oldest.
	return l.window - now.Sub(l.timestamps[0])
}

// prune drops timestamps that have left the trailing window.
func (l *Limiter) prune(now time.Time) {
	cut := 0
	for cut < len(l.timestamps) && now.Sub(l.timestamps[cut]) >= l.window {
		cut++
	}
	if cut > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[cut:]...)
	}
}

// InFlight returns the number of admissions currently inside the window.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.timestamps)
}
