// Package retry provides bounded exponential backoff for crawl requests.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/engagement-monitor/internal/logging"
)

// Config configures retry behavior
type Config struct {
	MaxAttempts  int           // Maximum number of attempts (including the first)
	InitialDelay time.Duration // Delay before the first retry
	MaxDelay     time.Duration // Cap on the delay between retries
	Multiplier   float64       // Multiplier for exponential backoff
}

// DefaultConfig returns the crawl-client retry configuration.
// Pattern: 1s, 2s, 4s, 8s, capped at 16s.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}
}

// Func is a function that can be retried. The attempt counter starts at 1.
type Func func(ctx context.Context, attempt int) error

// ShouldRetryFunc decides whether a failure is worth another attempt.
type ShouldRetryFunc func(err error) bool

// HintFunc extracts a server-provided wait hint from a failure, or zero.
type HintFunc func(err error) time.Duration

// Do executes fn with exponential backoff. It stops early when shouldRetry
// returns false, when the context is cancelled, or when attempts run out.
// A non-zero hint from hintFn overrides the computed delay when longer.
func Do(ctx context.Context, cfg *Config, fn Func, shouldRetry ShouldRetryFunc, hintFn HintFunc) error {
	logger := logging.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				logger.WithField("attempts", attempt).Info("operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			break
		}

		delay := Delay(cfg, attempt)
		if hintFn != nil {
			if hint := hintFn(err); hint > delay {
				delay = hint
			}
		}

		logger.WithFields(map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": cfg.MaxAttempts,
			"delay":       delay.String(),
			"error":       err.Error(),
		}).Warn("operation failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// Delay returns the backoff delay after the given attempt number (1-based):
// InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func Delay(cfg *Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
