package ratelimit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGateInterval(t *testing.T) {
	tests := []struct {
		name string
		qps  int
		want time.Duration
	}{
		{name: "one per second", qps: 1, want: time.Second},
		{name: "three qps rounds up", qps: 3, want: 333333334 * time.Nanosecond},
		{name: "ten qps", qps: 10, want: 100 * time.Millisecond},
		{name: "disabled", qps: 0, want: 0},
		{name: "negative disabled", qps: -5, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(tt.qps)
			assert.Equal(t, tt.want, g.Interval())
		})
	}
}

func TestGateFirstAdmissionImmediate(t *testing.T) {
	g := NewGate(1)

	start := time.Now()
	require.NoError(t, g.Wait(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestGateSpacingUnderConcurrency(t *testing.T) {
	const (
		qps     = 50 // 20ms spacing
		callers = 15
	)
	g := NewGate(qps)

	var (
		mu    sync.Mutex
		times []time.Time
		wg    sync.WaitGroup
	)

	start := time.Now()
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, g.Wait(context.Background()))
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	// N admissions take at least (N-1) intervals regardless of caller count.
	minElapsed := time.Duration(callers-1) * g.Interval()
	assert.GreaterOrEqual(t, time.Since(start), minElapsed,
		"admissions completed faster than the configured ceiling allows")

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	const tolerance = 10 * time.Millisecond
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		assert.GreaterOrEqual(t, gap, g.Interval()-tolerance,
			"admissions %d and %d were only %v apart", i-1, i, gap)
	}
}

func TestGateWaitCancelled(t *testing.T) {
	g := NewGate(1)

	// Consume the immediate slot so the next caller must wait a full second.
	require.NoError(t, g.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := g.Wait(ctx)
	assert.ErrorIs(t, err, ErrContextCancelled)
}

func TestGateDisabledNeverBlocks(t *testing.T) {
	g := NewGate(0)

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, g.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
