package resilience

import (
	"errors"
	"fmt"
)

var (
	// ErrCircuitOpen is returned when the breaker rejects a call without
	// invoking the operation.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests is returned when the half-open trial budget is
	// already consumed by in-flight calls.
	ErrTooManyRequests = errors.New("too many requests in half-open state")

	// ErrNoFallback signals that neither a cached nor a simulated response
	// exists for an operation. Callers must surface the original failure,
	// not this sentinel.
	ErrNoFallback = errors.New("no fallback available")
)

// TransportError wraps a network-level failure. It is retryable and counts
// toward breaker failures.
type TransportError struct {
	Operation string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error in %s: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err as a transport failure for the given operation.
func NewTransportError(operation string, err error) *TransportError {
	return &TransportError{Operation: operation, Err: err}
}

// ExpectedError wraps a failure the remote service reported deliberately
// (validation, authentication). It is not retried and does not count toward
// breaker failures.
type ExpectedError struct {
	Operation string
	Status    int
	Err       error
}

func (e *ExpectedError) Error() string {
	return fmt.Sprintf("expected error in %s (status %d): %v", e.Operation, e.Status, e.Err)
}

func (e *ExpectedError) Unwrap() error { return e.Err }

// NewExpectedError wraps err as a non-retryable, non-counted failure.
func NewExpectedError(operation string, status int, err error) *ExpectedError {
	return &ExpectedError{Operation: operation, Status: status, Err: err}
}

// IsRetryable reports whether err should be retried by the retry policy.
// Open-circuit rejections and expected errors are terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests) {
		return false
	}
	var expected *ExpectedError
	return !errors.As(err, &expected)
}

// IsExpected reports whether err must not count as a breaker failure.
// A rejection from a nested breaker is terminal and never re-counted.
func IsExpected(err error) bool {
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests) {
		return true
	}
	var expected *ExpectedError
	return errors.As(err, &expected)
}

// ErrorKind classifies err for metrics labels.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrTooManyRequests):
		return "too_many_requests"
	case errors.Is(err, ErrNoFallback):
		return "no_fallback"
	default:
		var expected *ExpectedError
		if errors.As(err, &expected) {
			return "expected"
		}
		var transport *TransportError
		if errors.As(err, &transport) {
			return "transport"
		}
		return "unknown"
	}
}
