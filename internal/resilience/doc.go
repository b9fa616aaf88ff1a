// Package resilience provides the failure-handling primitives of the
// prediction client: a circuit breaker, a retry policy with exponential
// backoff, and the error taxonomy that connects them.
//
// The breaker trips open after consecutive failures, rejects calls while
// open, and probes recovery through a bounded half-open trial budget.
// Results are committed against the generation they started in, so calls
// that resolve after a transition cannot corrupt the new state.
//
// The retry policy retries transport failures only. Open-circuit
// rejections and expected errors (client-side 4xx responses) pass through
// immediately, so a tripped breaker is never hammered and a bad request
// is never replayed.
package resilience
