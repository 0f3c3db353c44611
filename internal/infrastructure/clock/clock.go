package clock

import (
	"context"
	"time"
)

// Clock abstracts time observation and waiting so components with temporal
// behavior (token expiry, rate-limit windows, backoff delays, poll intervals)
// can be driven by a fake clock in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks for d or until ctx is cancelled.
	// Returns ctx.Err() when the context ends the wait early.
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

// System returns a Clock backed by the runtime clock.
func System() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
