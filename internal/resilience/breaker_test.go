package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failN(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		b.Execute(func() (interface{}, error) {
			return nil, errBoom
		})
	}
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		settings      Settings
		requests      []bool // true = success, false = failure
		expectedState State
	}{
		{
			name: "stays closed on successes",
			settings: Settings{
				FailureThreshold: 3,
				OpenTimeout:      time.Minute,
			},
			requests:      []bool{true, true, true},
			expectedState: StateClosed,
		},
		{
			name: "opens after consecutive failures",
			settings: Settings{
				FailureThreshold: 3,
				OpenTimeout:      time.Minute,
			},
			requests:      []bool{false, false, false},
			expectedState: StateOpen,
		},
		{
			name: "success resets the consecutive failure count",
			settings: Settings{
				FailureThreshold: 3,
				OpenTimeout:      time.Minute,
			},
			requests:      []bool{false, false, true, false, false},
			expectedState: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := New("test", tt.settings)

			for _, success := range tt.requests {
				breaker.Execute(func() (interface{}, error) {
					if success {
						return "ok", nil
					}
					return nil, errBoom
				})
			}

			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestBreakerRejectsWhileOpen(t *testing.T) {
	breaker := New("test", Settings{
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
	})

	failN(breaker, 2)
	require.Equal(t, StateOpen, breaker.State())

	called := false
	_, err := breaker.Execute(func() (interface{}, error) {
		called = true
		return "ok", nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "open breaker must not invoke the operation")

	stats := breaker.Stats()
	assert.Equal(t, uint64(1), stats.Rejections)
	assert.Equal(t, stats.Requests, stats.Successes+stats.Failures+stats.Rejections)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	breaker := New("test", Settings{
		FailureThreshold:    2,
		OpenTimeout:         10 * time.Millisecond,
		HalfOpenMaxRequests: 2,
	})

	failN(breaker, 2)
	require.Equal(t, StateOpen, breaker.State())

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, breaker.State())

	// First trial success keeps the breaker half-open.
	_, err := breaker.Execute(func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, breaker.State())

	// Second trial success meets the budget and closes it.
	_, err = breaker.Execute(func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	breaker := New("test", Settings{
		FailureThreshold:    2,
		OpenTimeout:         10 * time.Millisecond,
		HalfOpenMaxRequests: 2,
	})

	failN(breaker, 2)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, breaker.State())

	failN(breaker, 1)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerHalfOpenTrialBudget(t *testing.T) {
	breaker := New("test", Settings{
		FailureThreshold:    1,
		OpenTimeout:         10 * time.Millisecond,
		HalfOpenMaxRequests: 1,
	})

	failN(breaker, 1)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, breaker.State())

	release := make(chan struct{})
	started := make(chan struct{})
	go breaker.Execute(func() (interface{}, error) {
		close(started)
		<-release
		return "ok", nil
	})
	<-started

	// The trial slot is taken; a second concurrent call is rejected.
	_, err := breaker.Execute(func() (interface{}, error) { return "ok", nil })
	assert.ErrorIs(t, err, ErrTooManyRequests)

	close(release)
}

func TestBreakerExpectedErrorsDoNotTrip(t *testing.T) {
	breaker := New("test", Settings{
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
	})

	for i := 0; i < 5; i++ {
		_, err := breaker.Execute(func() (interface{}, error) {
			return nil, NewExpectedError("churn.predict", 422, errors.New("bad payload"))
		})
		require.Error(t, err)
	}

	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, uint32(0), breaker.Counts().ConsecutiveFailures)
}

func TestBreakerCustomExpectedPredicate(t *testing.T) {
	marker := errors.New("tenant suspended")
	breaker := New("test", Settings{
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
		IsExpected: func(err error) bool {
			return errors.Is(err, marker)
		},
	})

	failN(breaker, 1)
	for i := 0; i < 3; i++ {
		breaker.Execute(func() (interface{}, error) { return nil, marker })
	}
	failN(breaker, 1)

	// The marker errors land as successes, so the two real failures never
	// become consecutive.
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerReset(t *testing.T) {
	breaker := New("test", Settings{
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
	})

	failN(breaker, 3)
	require.Equal(t, StateOpen, breaker.State())

	breaker.Reset()

	assert.Equal(t, StateClosed, breaker.State())
	stats := breaker.Stats()
	assert.Zero(t, stats.Requests)
	assert.Zero(t, stats.Failures)
	assert.Zero(t, stats.Rejections)

	// The breaker is usable again immediately.
	_, err := breaker.Execute(func() (interface{}, error) { return "ok", nil })
	assert.NoError(t, err)
}

func TestBreakerListeners(t *testing.T) {
	var changes []StateChange
	breaker := New("orders", Settings{
		FailureThreshold:    2,
		OpenTimeout:         10 * time.Millisecond,
		HalfOpenMaxRequests: 1,
		Listeners: []StateChangeListener{
			func(change StateChange) { changes = append(changes, change) },
		},
	})

	failN(breaker, 2)
	time.Sleep(20 * time.Millisecond)
	breaker.Execute(func() (interface{}, error) { return "ok", nil })

	require.Len(t, changes, 3)
	assert.Equal(t, "orders", changes[0].Name)
	assert.Equal(t, StateClosed, changes[0].From)
	assert.Equal(t, StateOpen, changes[0].To)
	assert.Equal(t, StateHalfOpen, changes[1].To)
	assert.Equal(t, StateClosed, changes[2].To)
}

func TestBreakerStatsInvariant(t *testing.T) {
	breaker := New("test", Settings{
		FailureThreshold: 3,
		OpenTimeout:      time.Minute,
	})

	outcomes := []bool{true, false, true, false, false, false}
	for _, success := range outcomes {
		breaker.Execute(func() (interface{}, error) {
			if success {
				return "ok", nil
			}
			return nil, errBoom
		})
	}
	// Two more arrive while open.
	failN(breaker, 2)

	stats := breaker.Stats()
	assert.Equal(t, stats.Requests, stats.Successes+stats.Failures+stats.Rejections)
	assert.Equal(t, uint64(2), stats.Rejections)
	assert.Equal(t, "open", stats.State)
	assert.False(t, stats.OpenedAt.IsZero())
	assert.Greater(t, stats.FailureRate, 0.5)
}

func TestBreakerThresholdScenario(t *testing.T) {
	// threshold 3, open for 1s: three failures trip it, the fourth call is
	// rejected without reaching the service, and after the open timeout one
	// trial success closes it again.
	breaker := New("test", Settings{
		FailureThreshold:    3,
		OpenTimeout:         time.Second,
		HalfOpenMaxRequests: 1,
	})

	failN(breaker, 3)
	require.Equal(t, StateOpen, breaker.State())

	_, err := breaker.Execute(func() (interface{}, error) {
		t.Fatal("should not be called")
		return nil, nil
	})
	require.ErrorIs(t, err, ErrCircuitOpen)

	time.Sleep(1100 * time.Millisecond)
	_, err = breaker.Execute(func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	breaker := New("test", Settings{
		FailureThreshold: 1,
		OpenTimeout:      time.Minute,
	})

	assert.Panics(t, func() {
		breaker.Execute(func() (interface{}, error) { panic("kaboom") })
	})
	assert.Equal(t, StateOpen, breaker.State())
}
