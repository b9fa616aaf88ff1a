package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, BackoffFactor: 2}

	calls := 0
	result, err := policy.Do(context.Background(), func() (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, NewTransportError("churn.predict", errBoom)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, BackoffFactor: 2}

	calls := 0
	_, err := policy.Do(context.Background(), func() (interface{}, error) {
		calls++
		return nil, NewTransportError("churn.predict", errBoom)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var transport *TransportError
	assert.ErrorAs(t, err, &transport)
}

func TestRetryObserverFiresBeforeDelay(t *testing.T) {
	var attempts []int
	policy := RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     time.Millisecond,
		BackoffFactor: 2,
		OnRetry: func(err error, attempt int) {
			attempts = append(attempts, attempt)
		},
	}

	policy.Do(context.Background(), func() (interface{}, error) {
		return nil, NewTransportError("churn.predict", errBoom)
	})

	// The final attempt has no retry after it, so it is never observed.
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestRetryDoesNotRetryCircuitOpen(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, BackoffFactor: 2}

	calls := 0
	_, err := policy.Do(context.Background(), func() (interface{}, error) {
		calls++
		return nil, ErrCircuitOpen
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, calls)
}

func TestRetryDoesNotRetryExpectedErrors(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, BackoffFactor: 2}

	calls := 0
	_, err := policy.Do(context.Background(), func() (interface{}, error) {
		calls++
		return nil, NewExpectedError("churn.predict", 422, errors.New("bad payload"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour, BackoffFactor: 2}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := policy.Do(ctx, func() (interface{}, error) {
		return nil, NewTransportError("churn.predict", errBoom)
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetryClampsInvalidSettings(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 0, BaseDelay: 0, BackoffFactor: 0}

	calls := 0
	_, err := policy.Do(context.Background(), func() (interface{}, error) {
		calls++
		return nil, NewTransportError("churn.predict", errBoom)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		expected  bool
		kind      string
	}{
		{"nil", nil, false, false, "none"},
		{"circuit open", ErrCircuitOpen, false, true, "circuit_open"},
		{"too many requests", ErrTooManyRequests, false, true, "too_many_requests"},
		{"no fallback", ErrNoFallback, true, false, "no_fallback"},
		{"transport", NewTransportError("op", errBoom), true, false, "transport"},
		{"expected", NewExpectedError("op", 400, errBoom), false, true, "expected"},
		{"plain", errBoom, true, false, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
			assert.Equal(t, tt.expected, IsExpected(tt.err))
			assert.Equal(t, tt.kind, ErrorKind(tt.err))
		})
	}
}
