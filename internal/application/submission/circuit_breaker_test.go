package submission

import (
	"errors"
	"testing"
	"time"

	"3tcapital/hacienda_client/internal/testutil"
)

var errAPIDown = errors.New("api unreachable")

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, 30*time.Second, testutil.NewFakeClock(time.Now()))

	calls := 0
	fail := func() error {
		calls++
		return errAPIDown
	}

	for i := 0; i < 3; i++ {
		if err := cb.Execute(fail); !errors.Is(err, errAPIDown) {
			t.Fatalf("call %d: expected pipeline error, got %v", i+1, err)
		}
	}

	if cb.State() != BreakerOpen {
		t.Fatalf("expected breaker open after 3 consecutive failures, got %v", cb.State())
	}

	if err := cb.Execute(fail); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected ErrBreakerOpen, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected open breaker to skip the call, got %d calls", calls)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(3, 30*time.Second, testutil.NewFakeClock(time.Now()))

	fail := func() error { return errAPIDown }
	succeed := func() error { return nil }

	cb.Execute(fail)
	cb.Execute(fail)
	cb.Execute(succeed)
	cb.Execute(fail)
	cb.Execute(fail)

	if cb.State() != BreakerClosed {
		t.Errorf("expected breaker closed while failures are not consecutive, got %v", cb.State())
	}

	cb.Execute(fail)
	if cb.State() != BreakerOpen {
		t.Errorf("expected breaker open after third consecutive failure, got %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbeCloses(t *testing.T) {
	clk := testutil.NewFakeClock(time.Now())
	cb := NewCircuitBreaker(1, 30*time.Second, clk)

	cb.Execute(func() error { return errAPIDown })
	if cb.State() != BreakerOpen {
		t.Fatalf("expected breaker open, got %v", cb.State())
	}

	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected fail-fast before reset timeout, got %v", err)
	}

	clk.Advance(30 * time.Second)

	probed := false
	if err := cb.Execute(func() error { probed = true; return nil }); err != nil {
		t.Fatalf("expected probe to run after reset timeout, got %v", err)
	}
	if !probed {
		t.Fatal("expected the probe call to run")
	}
	if cb.State() != BreakerClosed {
		t.Errorf("expected breaker closed after successful probe, got %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	clk := testutil.NewFakeClock(time.Now())
	cb := NewCircuitBreaker(1, 30*time.Second, clk)

	cb.Execute(func() error { return errAPIDown })
	clk.Advance(30 * time.Second)

	if err := cb.Execute(func() error { return errAPIDown }); !errors.Is(err, errAPIDown) {
		t.Fatalf("expected probe error, got %v", err)
	}
	if cb.State() != BreakerOpen {
		t.Fatalf("expected breaker reopened after failed probe, got %v", cb.State())
	}

	// The reset timeout starts over from the failed probe.
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("expected fail-fast after reopened circuit, got %v", err)
	}
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(0, 0, nil)

	if cb.State() != BreakerClosed {
		t.Fatalf("expected new breaker closed, got %v", cb.State())
	}

	for i := 0; i < 5; i++ {
		cb.Execute(func() error { return errAPIDown })
	}
	if cb.State() != BreakerOpen {
		t.Errorf("expected default threshold of 5 consecutive failures, got %v", cb.State())
	}

	cb.Reset()
	if cb.State() != BreakerClosed {
		t.Errorf("expected Reset to close the breaker, got %v", cb.State())
	}
}

func TestBreakerState_String(t *testing.T) {
	tests := []struct {
		state    BreakerState
		expected string
	}{
		{BreakerClosed, "closed"},
		{BreakerOpen, "open"},
		{BreakerHalfOpen, "half_open"},
		{BreakerState(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %q, expected %q", tt.state, got, tt.expected)
		}
	}
}
