package hacienda

import (
	"context"
	"sync"
	"time"

	"3tcapital/hacienda_client/internal/infrastructure/clock"
)

const (
	defaultMaxRequests = 10
	defaultWindow      = time.Second
)

// RateLimiterOptions configure a sliding-window limiter. Zero values fall
// back to 10 requests per second, the ministry's published ceiling.
type RateLimiterOptions struct {
	MaxRequests int
	Window      time.Duration
}

// RateLimiter throttles outbound calls with a sliding window: at most
// MaxRequests admissions inside any trailing Window. Excess callers sleep
// until the oldest admission leaves the window and then re-check.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	clock       clock.Clock

	mu         sync.Mutex
	timestamps []time.Time
}

// NewRateLimiter creates a limiter with the given options.
func NewRateLimiter(opts RateLimiterOptions, clk clock.Clock) *RateLimiter {
	if opts.MaxRequests <= 0 {
		opts.MaxRequests = defaultMaxRequests
	}
	if opts.Window <= 0 {
		opts.Window = defaultWindow
	}
	if clk == nil {
		clk = clock.System()
	}
	return &RateLimiter{
		maxRequests: opts.MaxRequests,
		window:      opts.Window,
		clock:       clk,
		timestamps:  make([]time.Time, 0, opts.MaxRequests),
	}
}

// Execute blocks until a slot is free, records the admission and runs op,
// returning its result unchanged. Waiting is aborted by ctx.
func (l *RateLimiter) Execute(ctx context.Context, op func() error) error {
	if err := l.wait(ctx); err != nil {
		return err
	}
	return op()
}

// AvailableTokens returns how many admissions remain in the current window.
// Diagnostic only; a caller can lose the race between this check and Execute.
func (l *RateLimiter) AvailableTokens() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.clock.Now())
	return l.maxRequests - len(l.timestamps)
}

// Reset clears all tracked admissions.
func (l *RateLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timestamps = l.timestamps[:0]
}

func (l *RateLimiter) wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.clock.Now()
		l.prune(now)
		if len(l.timestamps) < l.maxRequests {
			l.timestamps = append(l.timestamps, now)
			l.mu.Unlock()
			return nil
		}
		// Window is full; sleep until the oldest admission exits, then
		// re-prune. Another caller may steal the slot, so loop.
		wait := l.timestamps[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		if err := l.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// prune drops timestamps that have left the trailing window. Caller holds mu.
func (l *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.timestamps) && !l.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[i:]...)
	}
}
