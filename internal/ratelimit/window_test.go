package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWindowAllowsUpToMax(t *testing.T) {
	w := NewWindow(10, time.Hour)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := w.Allow(ctx, "u1"); err != nil {
			t.Fatalf("attempt %d rejected: %v", i+1, err)
		}
	}
	if err := w.Allow(ctx, "u1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("11th attempt = %v, want ErrRateLimited", err)
	}
}

func TestWindowIsPerKey(t *testing.T) {
	w := NewWindow(1, time.Hour)
	ctx := context.Background()

	if err := w.Allow(ctx, "u1"); err != nil {
		t.Fatalf("u1: %v", err)
	}
	if err := w.Allow(ctx, "u2"); err != nil {
		t.Fatalf("u2 must have its own budget: %v", err)
	}
	if err := w.Allow(ctx, "u1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("u1 second attempt = %v", err)
	}
}

func TestWindowExpiresOldAttempts(t *testing.T) {
	w := NewWindow(2, time.Minute)
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	w.Now = func() time.Time { return now }
	ctx := context.Background()

	if err := w.Allow(ctx, "u1"); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := w.Allow(ctx, "u1"); err != nil {
		t.Fatalf("second: %v", err)
	}
	if err := w.Allow(ctx, "u1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third = %v", err)
	}

	// The window rolls forward and the oldest attempt falls out.
	now = now.Add(61 * time.Second)
	if err := w.Allow(ctx, "u1"); err != nil {
		t.Fatalf("after window: %v", err)
	}
}

func TestWindowDefaults(t *testing.T) {
	w := NewWindow(0, 0)
	if w.Max != 10 || w.Period != time.Hour {
		t.Fatalf("defaults: max=%d period=%v", w.Max, w.Period)
	}
}
