package hacienda

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"3tcapital/hacienda_client/internal/infrastructure/clock"
)

const (
	defaultMaxRetries   = 2
	defaultInitialDelay = time.Second
	defaultMultiplier   = 2.0
)

// RetryOptions configure the retry policy. Zero values fall back to two
// retries with a one second initial delay doubling per attempt.
type RetryOptions struct {
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64
}

// RetryPolicy retries transient failures with exponential backoff. Transient
// means a transport failure with no HTTP status or a 5xx response; everything
// else, 4xx included, is permanent and surfaces immediately.
type RetryPolicy struct {
	maxRetries   int
	initialDelay time.Duration
	multiplier   float64
	clock        clock.Clock
	log          *slog.Logger
}

// NewRetryPolicy creates a policy with the given options.
func NewRetryPolicy(opts RetryOptions, clk clock.Clock, log *slog.Logger) *RetryPolicy {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = defaultInitialDelay
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = defaultMultiplier
	}
	if clk == nil {
		clk = clock.System()
	}
	return &RetryPolicy{
		maxRetries:   opts.MaxRetries,
		initialDelay: opts.InitialDelay,
		multiplier:   opts.Multiplier,
		clock:        clk,
		log:          log,
	}
}

// Do runs op up to maxRetries+1 times, sleeping before each retry. The error
// of the final attempt is returned unchanged so callers can still branch on
// its type; a context cancellation during backoff is returned as-is.
func (p *RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.maxRetries+1; attempt++ {
		if attempt > 1 {
			delay := p.Delay(attempt - 1)
			p.log.Warn("Retrying after transient failure",
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			if err := p.clock.Sleep(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !ShouldRetry(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// Delay returns the backoff before the nth retry, 1-based:
// initialDelay × multiplier^(n−1).
func (p *RetryPolicy) Delay(retry int) time.Duration {
	if retry <= 1 {
		return p.initialDelay
	}
	return time.Duration(float64(p.initialDelay) * math.Pow(p.multiplier, float64(retry-1)))
}

// ShouldRetry reports whether an error is transient: a transport failure that
// produced no HTTP status, or a 5xx response. 4xx responses, 401 and 409
// included, are permanent. Context cancellation is never retried.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 0 {
			return true
		}
		return apiErr.StatusCode >= 500 && apiErr.StatusCode <= 599
	}
	// Errors without an API shape (marshalling, auth state) are not transport
	// failures; retrying cannot change their outcome.
	return false
}
