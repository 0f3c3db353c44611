package hacienda

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel authentication errors. Callers branch with errors.Is; wrap chains
// keep the underlying cause reachable through errors.As.
var (
	// ErrTokenRequestFailed marks a network or HTTP failure while talking to
	// the identity provider, during login or refresh.
	ErrTokenRequestFailed = errors.New("token request failed")

	// ErrInvalidTokenResponse marks an identity provider response that does
	// not match the expected token shape.
	ErrInvalidTokenResponse = errors.New("invalid token response")

	// ErrNotAuthenticated is returned by GetAccessToken before Authenticate
	// has succeeded, or after Invalidate.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrRefreshTokenExpired marks a session whose refresh token lapsed
	// before it could be used.
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// ErrTokenRefreshFailed marks a refresh grant that failed and whose
	// password-grant fallback could not recover the session.
	ErrTokenRefreshFailed = errors.New("token refresh failed")
)

// ErrDuplicateSubmission marks a 409 on submission: the ministry already
// received a document with this clave. Permanent; never retried, never polled.
// The message casing is part of the contract callers match on.
var ErrDuplicateSubmission = errors.New("Duplicate submission")

// APIError is the single normalized error for outbound API failures: any
// non-2xx response or transport-level failure. StatusCode is zero when no
// HTTP status was received, which is what retry classification keys on.
type APIError struct {
	StatusCode int
	Body       string
	cause      error
}

func (e *APIError) Error() string {
	switch {
	case e.StatusCode == 0:
		return fmt.Sprintf("api request failed: %v", e.cause)
	case e.Body != "":
		return fmt.Sprintf("api request failed with status %d: %s", e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("api request failed with status %d", e.StatusCode)
	}
}

// Unwrap exposes the transport-level cause, when there is one.
func (e *APIError) Unwrap() error {
	return e.cause
}

// PollTimeoutError reports that a submit-and-wait run exceeded its deadline
// while the document was still in a non-terminal state.
type PollTimeoutError struct {
	Clave    string
	Attempts int
	Elapsed  time.Duration
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for document %s after %d poll attempts (%s elapsed)",
		e.Clave, e.Attempts, e.Elapsed)
}

// CountsAsOutage reports whether err suggests the API itself is unavailable.
// A duplicate 409 and a poll that ran out of time both prove the service
// answered, so they never count; the same goes for a caller cancelling its
// own context.
func CountsAsOutage(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicateSubmission) || errors.Is(err, context.Canceled) {
		return false
	}
	var pollTimeout *PollTimeoutError
	return !errors.As(err, &pollTimeout)
}
