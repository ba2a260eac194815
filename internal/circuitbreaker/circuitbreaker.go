// Package circuitbreaker protects the engagement API from hammering a
// degraded upstream: once transient failures pile up, calls fail fast
// until a cooldown passes and a few trial requests confirm recovery.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/engagement-monitor/internal/logging"
)

// State is the breaker's position in its recovery cycle.
type State string

const (
	// StateClosed admits every request.
	StateClosed State = "closed"
	// StateOpen rejects requests until the cooldown elapses.
	StateOpen State = "open"
	// StateHalfOpen admits a limited number of requests to test recovery.
	StateHalfOpen State = "half_open"
)

// ErrOpen is returned while the breaker is rejecting requests.
var ErrOpen = errors.New("engagement API circuit open")

// ErrTooManyRequests is returned when the half-open call allowance is spent.
var ErrTooManyRequests = errors.New("too many requests in half-open state")

// Config tunes a breaker.
type Config struct {
	// Name labels the guarded upstream in logs.
	Name string
	// TripAfter opens the circuit after this many consecutive counted
	// failures.
	TripAfter int
	// FailureThreshold opens the circuit when the counted failure rate
	// reaches this fraction (0.0-1.0) over at least MinCalls requests.
	FailureThreshold float64
	// MinCalls is the smallest sample the rate check acts on.
	MinCalls int
	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration
	// HalfOpenMaxCalls is the number of requests admitted while half-open.
	HalfOpenMaxCalls int
	// CountFailure reports whether an error says something about
	// upstream health. Errors it rejects (auth, validation) pass
	// through without moving the breaker: the upstream answered.
	CountFailure func(error) bool
}

// DefaultConfig returns the engagement API breaker configuration.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		TripAfter:        5,
		FailureThreshold: 0.5,
		MinCalls:         10,
		Cooldown:         30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// Breaker guards one upstream. All state lives under a single mutex; the
// guarded call itself runs outside it.
type Breaker struct {
	name             string
	tripAfter        int
	threshold        float64
	minCalls         int
	cooldown         time.Duration
	halfOpenMaxCalls int
	countFailure     func(error) bool

	mu              sync.RWMutex
	state           State
	failures        int
	successes       int
	totalCalls      int
	consecutive     int
	lastFailure     time.Time
	lastStateChange time.Time

	now func() time.Time
}

// New creates a breaker from config, applying defaults for zero fields.
func New(cfg *Config) *Breaker {
	def := DefaultConfig(cfg.Name)
	if cfg.TripAfter <= 0 {
		cfg.TripAfter = def.TripAfter
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.MinCalls <= 0 {
		cfg.MinCalls = def.MinCalls
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	return &Breaker{
		name:             cfg.Name,
		tripAfter:        cfg.TripAfter,
		threshold:        cfg.FailureThreshold,
		minCalls:         cfg.MinCalls,
		cooldown:         cfg.Cooldown,
		halfOpenMaxCalls: cfg.HalfOpenMaxCalls,
		countFailure:     cfg.CountFailure,
		state:            StateClosed,
		now:              time.Now,
	}
}

// Execute runs fn under breaker protection. While open it returns ErrOpen
// without calling fn; while half-open it admits up to HalfOpenMaxCalls.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	logger := logging.FromContext(ctx)

	if err := b.admit(logger); err != nil {
		return err
	}

	err := fn()
	b.record(logger, err)
	return err
}

func (b *Breaker) admit(logger *logging.Logger) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastStateChange) <= b.cooldown {
			return ErrOpen
		}
		b.transition(StateHalfOpen)
		logger.WithField("breaker", b.name).Info("circuit half-open, testing upstream")
		return nil

	case StateHalfOpen:
		if b.totalCalls >= b.halfOpenMaxCalls {
			return ErrTooManyRequests
		}
		return nil

	default:
		return nil
	}
}

func (b *Breaker) record(logger *logging.Logger, err error) {
	// Failures that say nothing about upstream health count as contact:
	// the API answered, it just refused the request.
	failed := err != nil && (b.countFailure == nil || b.countFailure(err))

	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++
	if failed {
		b.onFailure(logger)
	} else {
		b.onSuccess(logger)
	}
}

func (b *Breaker) onSuccess(logger *logging.Logger) {
	b.successes++
	b.consecutive = 0

	if b.state == StateHalfOpen && b.successes >= b.halfOpenMaxCalls {
		b.transition(StateClosed)
		b.resetCounters()
		logger.WithField("breaker", b.name).Info("circuit closed after recovery")
	}
}

func (b *Breaker) onFailure(logger *logging.Logger) {
	b.failures++
	b.consecutive++
	b.lastFailure = b.now()

	switch b.state {
	case StateClosed:
		if b.shouldTrip() {
			b.transition(StateOpen)
			logger.WithFields(map[string]interface{}{
				"breaker":     b.name,
				"failures":    b.failures,
				"totalCalls":  b.totalCalls,
				"consecutive": b.consecutive,
			}).Warn("circuit opened")
		}

	case StateHalfOpen:
		// Any failure while half-open means the upstream is still down.
		b.transition(StateOpen)
		logger.WithField("breaker", b.name).Warn("circuit reopened after failure in half-open state")
	}
}

func (b *Breaker) shouldTrip() bool {
	if b.consecutive >= b.tripAfter {
		return true
	}
	if b.totalCalls < b.minCalls {
		return false
	}
	return b.failureRate() >= b.threshold
}

func (b *Breaker) failureRate() float64 {
	if b.totalCalls == 0 {
		return 0.0
	}
	return float64(b.failures) / float64(b.totalCalls)
}

func (b *Breaker) transition(state State) {
	b.state = state
	b.lastStateChange = b.now()
	if state == StateHalfOpen {
		// Half-open accounting starts fresh.
		b.totalCalls = 0
		b.successes = 0
	}
}

func (b *Breaker) resetCounters() {
	b.failures = 0
	b.successes = 0
	b.totalCalls = 0
	b.consecutive = 0
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Stats is a point-in-time snapshot for diagnostics.
type Stats struct {
	Name            string    `json:"name"`
	State           State     `json:"state"`
	Failures        int       `json:"failures"`
	Successes       int       `json:"successes"`
	TotalCalls      int       `json:"totalCalls"`
	Consecutive     int       `json:"consecutiveFailures"`
	FailureRate     float64   `json:"failureRate"`
	LastFailure     time.Time `json:"lastFailure"`
	LastStateChange time.Time `json:"lastStateChange"`
}

// GetStats returns a snapshot of the breaker's counters.
func (b *Breaker) GetStats() *Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return &Stats{
		Name:            b.name,
		State:           b.state,
		Failures:        b.failures,
		Successes:       b.successes,
		TotalCalls:      b.totalCalls,
		Consecutive:     b.consecutive,
		FailureRate:     b.failureRate(),
		LastFailure:     b.lastFailure,
		LastStateChange: b.lastStateChange,
	}
}

// Reset forces the breaker back to closed with clean counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
	b.resetCounters()
}
