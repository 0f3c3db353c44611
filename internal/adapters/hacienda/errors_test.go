package hacienda

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected string
	}{
		{
			name:     "status with body",
			err:      &APIError{StatusCode: 400, Body: `{"message":"clave inválida"}`},
			expected: `api request failed with status 400: {"message":"clave inválida"}`,
		},
		{
			name:     "status without body",
			err:      &APIError{StatusCode: 503},
			expected: "api request failed with status 503",
		},
		{
			name:     "no status",
			err:      &APIError{cause: errors.New("connection refused")},
			expected: "api request failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestPollTimeoutError_Error(t *testing.T) {
	err := &PollTimeoutError{Clave: "123", Attempts: 16, Elapsed: 80 * time.Second}
	expected := "timed out waiting for document 123 after 16 poll attempts (1m20s elapsed)"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestCountsAsOutage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"duplicate submission", fmt.Errorf("submit: %w", ErrDuplicateSubmission), false},
		{"poll timeout", &PollTimeoutError{Clave: "123", Attempts: 16, Elapsed: 80 * time.Second}, false},
		{"wrapped poll timeout", fmt.Errorf("batch: %w", &PollTimeoutError{Clave: "123"}), false},
		{"caller cancelled", context.Canceled, false},
		{"server error", &APIError{StatusCode: 500, Body: "internal"}, true},
		{"network failure", &APIError{cause: errors.New("connection refused")}, true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"anything else", errors.New("boom"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountsAsOutage(tt.err); got != tt.expected {
				t.Errorf("CountsAsOutage(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}
