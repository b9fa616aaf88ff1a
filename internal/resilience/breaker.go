package resilience

import (
	"sync"
	"time"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// StateChange describes a single breaker transition.
type StateChange struct {
	Name   string
	From   State
	To     State
	Reason string
	At     time.Time
}

// StateChangeListener is invoked synchronously on every transition.
// Listeners are registered at construction time only.
type StateChangeListener func(change StateChange)

// Settings configures the circuit breaker behavior
type Settings struct {
	// FailureThreshold is the number of consecutive failures that trips the
	// breaker from closed to open. Must be >= 1.
	FailureThreshold uint32
	// OpenTimeout is the period of the open state until a trial call is
	// allowed (transition to half-open).
	OpenTimeout time.Duration
	// HalfOpenMaxRequests is the trial budget: consecutive successes needed
	// in half-open to close, and the cap on concurrent half-open calls.
	HalfOpenMaxRequests uint32
	// HalfOpenTimeout forces half-open back to open when no trial resolves
	// within this period. Zero disables the forced transition.
	HalfOpenTimeout time.Duration
	// MonitoringWindow bounds the recent-outcome ring used for the windowed
	// failure rate.
	MonitoringWindow time.Duration
	// IsExpected marks errors that must not count as breaker failures.
	// Open-circuit rejections from nested breakers are always expected.
	IsExpected func(err error) bool
	// Listeners receive every state transition.
	Listeners []StateChangeListener
}

// Counts holds the transition-driving statistics for the current generation.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Stats holds cumulative statistics across generations. Only a manual
// Reset clears them.
type Stats struct {
	Requests       uint64        `json:"requests"`
	Successes      uint64        `json:"successes"`
	Failures       uint64        `json:"failures"`
	Rejections     uint64        `json:"rejections"`
	AverageLatency time.Duration `json:"average_latency"`
	FailureRate    float64       `json:"failure_rate"` // over the monitoring window
	State          string        `json:"state"`
	OpenedAt       time.Time     `json:"opened_at,omitempty"`
}

// outcome is one entry of the bounded recent-outcome ring.
type outcome struct {
	at      time.Time
	success bool
	latency time.Duration
}

const outcomeRingSize = 256

// Breaker implements the circuit breaker pattern
type Breaker struct {
	name     string
	settings Settings

	mu            sync.Mutex
	state         State
	generation    uint64
	counts        Counts
	expiry        time.Time
	halfOpenSince time.Time

	// cumulative, cleared only by Reset
	requests     uint64
	successes    uint64
	failures     uint64
	rejections   uint64
	totalLatency time.Duration
	openedAt     time.Time

	ring    [outcomeRingSize]outcome
	ringLen int
	ringPos int
}

// New creates a new circuit breaker with the given settings
func New(name string, settings Settings) *Breaker {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	if settings.OpenTimeout == 0 {
		settings.OpenTimeout = 60 * time.Second
	}
	if settings.HalfOpenMaxRequests == 0 {
		settings.HalfOpenMaxRequests = 1
	}
	if settings.MonitoringWindow == 0 {
		settings.MonitoringWindow = 60 * time.Second
	}

	return &Breaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, _ := b.currentState(time.Now())
	return state
}

// Counts returns a copy of the current-generation counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.counts
}

// Stats returns a copy of the cumulative statistics
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, _ := b.currentState(now)

	s := Stats{
		Requests:    b.requests,
		Successes:   b.successes,
		Failures:    b.failures,
		Rejections:  b.rejections,
		FailureRate: b.windowedFailureRate(now),
		State:       state.String(),
		OpenedAt:    b.openedAt,
	}
	if completed := b.successes + b.failures; completed > 0 {
		s.AverageLatency = b.totalLatency / time.Duration(completed)
	}
	return s
}

// Execute runs the given request if the circuit breaker accepts it
func (b *Breaker) Execute(req func() (interface{}, error)) (interface{}, error) {
	generation, err := b.beforeRequest()
	if err != nil {
		return nil, err
	}

	start := time.Now()

	defer func() {
		if e := recover(); e != nil {
			b.afterRequest(generation, time.Since(start), false)
			panic(e)
		}
	}()

	result, err := req()
	b.afterRequest(generation, time.Since(start), err == nil || b.isExpected(err))
	return result, err
}

// Reset forces the breaker closed and zeroes all counters and history.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.state
	b.state = StateClosed
	b.generation++
	b.counts = Counts{}
	b.expiry = time.Time{}
	b.halfOpenSince = time.Time{}
	b.requests = 0
	b.successes = 0
	b.failures = 0
	b.rejections = 0
	b.totalLatency = 0
	b.openedAt = time.Time{}
	b.ringLen = 0
	b.ringPos = 0

	if prev != StateClosed {
		b.notify(prev, StateClosed, "manual reset", time.Now())
	}
}

func (b *Breaker) isExpected(err error) bool {
	if IsExpected(err) {
		return true
	}
	if b.settings.IsExpected != nil {
		return b.settings.IsExpected(err)
	}
	return false
}

func (b *Breaker) beforeRequest() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, generation := b.currentState(now)

	b.requests++

	if state == StateOpen {
		b.rejections++
		return generation, ErrCircuitOpen
	}

	if state == StateHalfOpen && b.counts.Requests >= b.settings.HalfOpenMaxRequests {
		b.rejections++
		return generation, ErrTooManyRequests
	}

	b.counts.Requests++
	return generation, nil
}

func (b *Breaker) afterRequest(before uint64, latency time.Duration, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()

	b.totalLatency += latency
	if success {
		b.successes++
	} else {
		b.failures++
	}
	b.recordOutcome(now, success, latency)

	// A result committed against a stale generation must not drive a
	// transition: the state already changed while the call was in flight.
	state, generation := b.currentState(now)
	if generation != before {
		return
	}

	if success {
		b.onSuccess(state, now)
	} else {
		b.onFailure(state, now)
	}
}

func (b *Breaker) onSuccess(state State, now time.Time) {
	switch state {
	case StateClosed:
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
	case StateHalfOpen:
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if b.counts.ConsecutiveSuccesses >= b.settings.HalfOpenMaxRequests {
			b.setState(StateClosed, now, "trial budget met")
		}
	}
}

func (b *Breaker) onFailure(state State, now time.Time) {
	switch state {
	case StateClosed:
		b.counts.TotalFailures++
		b.counts.ConsecutiveFailures++
		b.counts.ConsecutiveSuccesses = 0
		if b.counts.ConsecutiveFailures >= b.settings.FailureThreshold {
			b.setState(StateOpen, now, "failure threshold exceeded")
		}
	case StateHalfOpen:
		b.setState(StateOpen, now, "trial call failed")
	}
}

// currentState returns the current state and generation, applying any
// time-driven transition first.
func (b *Breaker) currentState(now time.Time) (State, uint64) {
	switch b.state {
	case StateOpen:
		if b.expiry.Before(now) {
			b.setState(StateHalfOpen, now, "open timeout elapsed")
		}
	case StateHalfOpen:
		if b.settings.HalfOpenTimeout > 0 && now.Sub(b.halfOpenSince) > b.settings.HalfOpenTimeout {
			b.setState(StateOpen, now, "half-open timeout elapsed")
		}
	}

	return b.state, b.generation
}

// setState changes the state of the circuit breaker. Idempotent: a
// transition to the current state is a no-op.
func (b *Breaker) setState(state State, now time.Time, reason string) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state
	b.generation++
	b.counts = Counts{}

	switch state {
	case StateClosed:
		b.expiry = time.Time{}
		b.halfOpenSince = time.Time{}
	case StateOpen:
		b.expiry = now.Add(b.settings.OpenTimeout)
		b.halfOpenSince = time.Time{}
		b.openedAt = now
	case StateHalfOpen:
		b.expiry = time.Time{}
		b.halfOpenSince = now
	}

	b.notify(prev, state, reason, now)
}

// notify runs with b.mu held; listeners must not call back into the breaker.
func (b *Breaker) notify(from, to State, reason string, now time.Time) {
	change := StateChange{Name: b.name, From: from, To: to, Reason: reason, At: now}
	for _, l := range b.settings.Listeners {
		l(change)
	}
}

func (b *Breaker) recordOutcome(now time.Time, success bool, latency time.Duration) {
	b.ring[b.ringPos] = outcome{at: now, success: success, latency: latency}
	b.ringPos = (b.ringPos + 1) % outcomeRingSize
	if b.ringLen < outcomeRingSize {
		b.ringLen++
	}
}

func (b *Breaker) windowedFailureRate(now time.Time) float64 {
	cutoff := now.Add(-b.settings.MonitoringWindow)
	var total, failed int
	for i := 0; i < b.ringLen; i++ {
		o := b.ring[i]
		if o.at.Before(cutoff) {
			continue
		}
		total++
		if !o.success {
			failed++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
