package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("engagement API returned status 503")
var errRefused = errors.New("invalid bearer token")

// countUpstream treats only upstream errors as health signals, the way
// the API client wires transient classification in.
func countUpstream(err error) bool {
	return errors.Is(err, errUpstream)
}

func newTestBreaker(tripAfter int) (*Breaker, *time.Time) {
	clock := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	b := New(&Config{
		Name:             "engage-api",
		TripAfter:        tripAfter,
		Cooldown:         30 * time.Second,
		HalfOpenMaxCalls: 2,
		CountFailure:     countUpstream,
	})
	b.now = func() time.Time { return clock }
	return b, &clock
}

func fail(b *Breaker) error {
	return b.Execute(context.Background(), func() error { return errUpstream })
}

func succeed(b *Breaker) error {
	return b.Execute(context.Background(), func() error { return nil })
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(3)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, fail(b), errUpstream)
	}
	assert.Equal(t, StateOpen, b.State())

	// Open circuit fails fast without touching the upstream.
	called := false
	err := b.Execute(context.Background(), func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsConsecutiveCount(t *testing.T) {
	b, _ := newTestBreaker(3)

	require.Error(t, fail(b))
	require.Error(t, fail(b))
	require.NoError(t, succeed(b))
	require.Error(t, fail(b))
	require.Error(t, fail(b))

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_UncountedFailuresDoNotTrip(t *testing.T) {
	b, _ := newTestBreaker(2)

	// The upstream answered each of these; it is not unhealthy.
	for i := 0; i < 10; i++ {
		err := b.Execute(context.Background(), func() error { return errRefused })
		assert.ErrorIs(t, err, errRefused)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_CooldownAdmitsTrialCallsThenCloses(t *testing.T) {
	b, clock := newTestBreaker(2)

	require.Error(t, fail(b))
	require.Error(t, fail(b))
	require.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, succeed(b), ErrOpen)

	*clock = clock.Add(31 * time.Second)

	// HalfOpenMaxCalls is 2: two successes close the circuit.
	require.NoError(t, succeed(b))
	require.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, succeed(b))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(2)

	require.Error(t, fail(b))
	require.Error(t, fail(b))
	*clock = clock.Add(31 * time.Second)

	require.Error(t, fail(b))
	assert.Equal(t, StateOpen, b.State())

	// The cooldown restarts from the half-open failure.
	assert.ErrorIs(t, succeed(b), ErrOpen)
}

func TestBreaker_HalfOpenCallsBounded(t *testing.T) {
	b, clock := newTestBreaker(2)

	require.Error(t, fail(b))
	require.Error(t, fail(b))
	*clock = clock.Add(31 * time.Second)

	require.NoError(t, succeed(b))
	require.Equal(t, StateHalfOpen, b.State())

	// Simulate the half-open slots being held by in-flight callers.
	b.mu.Lock()
	b.totalCalls = b.halfOpenMaxCalls
	b.mu.Unlock()

	called := false
	err := b.Execute(context.Background(), func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrTooManyRequests)
	assert.False(t, called)
}

func TestBreaker_FailureRateTrips(t *testing.T) {
	b, _ := newTestBreaker(100) // consecutive path out of reach
	b.minCalls = 4
	b.threshold = 0.6

	require.NoError(t, succeed(b))
	require.Error(t, fail(b))
	require.NoError(t, succeed(b))
	require.Error(t, fail(b))
	require.Equal(t, StateClosed, b.State())

	// Fifth call pushes the rate to 3/5.
	require.Error(t, fail(b))
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(1)

	require.Error(t, fail(b))
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	require.NoError(t, succeed(b))

	stats := b.GetStats()
	assert.Equal(t, 1, stats.TotalCalls)
	assert.Equal(t, 0, stats.Failures)
}
