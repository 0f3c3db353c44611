package submission

import (
	"errors"
	"sync"
	"time"

	"3tcapital/hacienda_client/internal/infrastructure/clock"
)

// BreakerState represents the state of the circuit breaker.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // Normal operation
	BreakerOpen                         // Circuit is open, calls fail fast
	BreakerHalfOpen                     // Testing if the API recovered
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// ErrBreakerOpen is returned when the circuit breaker rejects a call without
// running it.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// CircuitBreaker fails calls fast once the API has failed too many times in a
// row. After the reset timeout the next call runs as a probe: success closes
// the circuit, failure reopens it.
type CircuitBreaker struct {
	failureThreshold int           // consecutive failures before opening
	resetTimeout     time.Duration // time to wait before attempting half-open
	clock            clock.Clock

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
}

// NewCircuitBreaker creates a circuit breaker. A nil clock uses the runtime
// clock.
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration, clk clock.Clock) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	if clk == nil {
		clk = clock.System()
	}

	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		clock:            clk,
		state:            BreakerClosed,
	}
}

// Execute runs fn unless the circuit is open, and records its outcome.
// Returns ErrBreakerOpen without running fn when the circuit rejects the call.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrBreakerOpen
	}

	err := fn()
	cb.record(err)
	return err
}

// allow reports whether a call may proceed, moving an expired open circuit to
// half-open.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != BreakerOpen {
		return true
	}
	if cb.clock.Now().Sub(cb.openedAt) < cb.resetTimeout {
		return false
	}
	cb.state = BreakerHalfOpen
	return true
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		// Any failure while half-open reopens the circuit immediately.
		if cb.state == BreakerHalfOpen || cb.failures >= cb.failureThreshold {
			cb.state = BreakerOpen
			cb.openedAt = cb.clock.Now()
		}
		return
	}

	cb.failures = 0
	if cb.state == BreakerHalfOpen {
		cb.state = BreakerClosed
	}
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset returns the circuit breaker to the closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = BreakerClosed
	cb.failures = 0
}
