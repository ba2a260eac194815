// Package ratelimit provides the process-wide pacing gate for outbound
// engagement API calls.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrContextCancelled is returned when the context is cancelled while
// waiting for admission.
var ErrContextCancelled = errors.New("context cancelled while waiting for admission")

// Gate is a single shared pacing gate bounding outbound API calls to a
// queries-per-second ceiling across all workers and job types. Admission
// decisions are serialized under one mutex so the invariant "time between
// any two admitted requests >= 1/qps" holds under concurrency, not just
// per caller.
type Gate struct {
	interval time.Duration
	mu       sync.Mutex
	nextAt   time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewGate creates a gate admitting at most qps requests per second.
// A qps of zero or less disables pacing.
func NewGate(qps int) *Gate {
	var interval time.Duration
	if qps > 0 {
		// ceil(1000ms / qps)
		interval = (time.Second + time.Duration(qps) - 1) / time.Duration(qps)
	}
	return &Gate{
		interval: interval,
		sleep:    sleepCtx,
	}
}

// Interval returns the minimum spacing between admitted requests.
func (g *Gate) Interval() time.Duration {
	return g.interval
}

// Wait blocks until the caller is admitted or the context is cancelled.
func (g *Gate) Wait(ctx context.Context) error {
	if g.interval <= 0 {
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return ErrContextCancelled
	}

	// Reserve a slot under the lock, then sleep outside it so waiting
	// callers queue up on successive slots instead of on the mutex.
	g.mu.Lock()
	now := time.Now()
	slot := g.nextAt
	if slot.Before(now) {
		slot = now
	}
	g.nextAt = slot.Add(g.interval)
	g.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return nil
	}
	if err := g.sleep(ctx, wait); err != nil {
		return ErrContextCancelled
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
