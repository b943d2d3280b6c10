package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/Veraticus/modality/internal/service"
)

// ErrMaxRetries indicates that all retry attempts have been exhausted.
var ErrMaxRetries = errors.New("max retries exceeded")

// Outcome tags the result of a single attempt.
type Outcome int

const (
	// OutcomeOK means the attempt succeeded.
	OutcomeOK Outcome = iota
	// OutcomeRetryable means the attempt failed transiently.
	OutcomeRetryable
	// OutcomeFatal means retrying cannot help.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is what an attempt reports back to WithRetry.
type Result struct {
	Err     error
	Outcome Outcome
}

// Succeeded returns an OK result.
func Succeeded() Result { return Result{Outcome: OutcomeOK} }

// Retryable wraps a transient failure.
func Retryable(err error) Result { return Result{Outcome: OutcomeRetryable, Err: err} }

// Fatal wraps a permanent failure.
func Fatal(err error) Result { return Result{Outcome: OutcomeFatal, Err: err} }

// DefaultRetryOptions returns three attempts with exponential backoff and jitter.
func DefaultRetryOptions() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.5,
	}
}

// WithRetry executes an operation with configurable retry behavior.
// The operation decides whether a failure is retryable by the Outcome it returns.
func WithRetry(ctx context.Context, operation func(ctx context.Context) Result, opts service.RetryOptions) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}

	delay := opts.InitialDelay

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		res := operation(ctx)
		switch res.Outcome {
		case OutcomeOK:
			return nil
		case OutcomeFatal:
			return res.Err
		}

		if attempt == opts.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, opts.MaxAttempts, res.Err)
		}

		wait := withJitter(delay, opts.Jitter)
		slog.Warn("Operation failed, retrying",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", wait,
			"error", res.Err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			delay = time.Duration(float64(delay) * opts.Multiplier)
			if delay > opts.MaxDelay {
				delay = opts.MaxDelay
			}
		}
	}

	return ErrMaxRetries
}

// withJitter spreads d over [d*(1-j), d].
func withJitter(d time.Duration, j float64) time.Duration {
	if j <= 0 || d <= 0 {
		return d
	}
	if j > 1 {
		j = 1
	}
	spread := int64(float64(d) * j)
	if spread <= 0 {
		return d
	}
	return d - time.Duration(rand.Int64N(spread))
}
