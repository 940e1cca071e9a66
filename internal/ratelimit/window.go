// Package ratelimit bounds how many calls a user may place inside a rolling
// window. The check is a hard dial precondition and never reaches the
// provider.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrRateLimited = errors.New("ratelimit: call limit exceeded")

// Limiter reports whether one more call may be placed for key right now.
// Allow records the attempt when it is admitted.
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

// Window is an in-process rolling-window limiter. It backs the client-side
// dial guard and tests; server deployments use the Redis variant so the
// window survives restarts and is shared between instances.
type Window struct {
	mu       sync.Mutex
	attempts map[string][]time.Time

	Max    int
	Period time.Duration
	Now    func() time.Time
}

func NewWindow(max int, period time.Duration) *Window {
	if max <= 0 {
		max = 10
	}
	if period <= 0 {
		period = time.Hour
	}
	return &Window{
		attempts: map[string][]time.Time{},
		Max:      max,
		Period:   period,
		Now:      time.Now,
	}
}

func (w *Window) Allow(ctx context.Context, key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.Now()
	cutoff := now.Add(-w.Period)

	kept := w.attempts[key][:0]
	for _, t := range w.attempts[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= w.Max {
		w.attempts[key] = kept
		return ErrRateLimited
	}
	w.attempts[key] = append(kept, now)
	return nil
}
