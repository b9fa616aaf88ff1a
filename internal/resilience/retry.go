package resilience

import (
	"context"
	"math"
	"time"
)

// RetryObserver is called once per failed attempt that will be retried,
// before the backoff delay starts.
type RetryObserver func(err error, attempt int)

// RetryPolicy wraps an operation with bounded retries and exponential
// backoff. Open-circuit rejections and expected errors are never retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of invocations, including the first.
	MaxAttempts int
	// BaseDelay is the wait after the first failed attempt.
	BaseDelay time.Duration
	// BackoffFactor multiplies the delay after each attempt:
	// delay(i) = BaseDelay * BackoffFactor^(i-1).
	BackoffFactor float64
	// OnRetry observes each retried failure for logging and metrics.
	OnRetry RetryObserver
}

// DefaultRetryPolicy matches the remote service's recommended settings.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     time.Second,
		BackoffFactor: 2.0,
	}
}

// Do invokes fn up to MaxAttempts times. The last error is surfaced when
// attempts are exhausted. Backoff delays respect ctx cancellation.
func (p RetryPolicy) Do(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !IsRetryable(err) {
			return nil, err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		// The observer fires before the delay so the retry is visible
		// while the caller is still waiting.
		if p.OnRetry != nil {
			p.OnRetry(err, attempt)
		}

		delay := time.Duration(float64(p.BaseDelay) * math.Pow(factor, float64(attempt-1)))
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return nil, lastErr
}
