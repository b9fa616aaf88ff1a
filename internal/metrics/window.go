package metrics

import (
	"time"
)

// EventKind tags a recorded metric event.
type EventKind string

const (
	EventRequest      EventKind = "request"
	EventSuccess      EventKind = "success"
	EventFailure      EventKind = "failure"
	EventRejection    EventKind = "rejection"
	EventRetry        EventKind = "retry"
	EventCacheHit     EventKind = "cache_hit"
	EventCacheMiss    EventKind = "cache_miss"
	EventCircuitTrip  EventKind = "circuit_trip"
	EventFallbackUsed EventKind = "fallback_used"
)

type windowEvent struct {
	at   time.Time
	kind EventKind
}

// window counts events over a trailing fixed duration. Entries older than
// the duration are pruned on every insert so memory stays bounded even when
// nobody reads the window. Callers hold the aggregator lock.
type window struct {
	duration time.Duration
	events   []windowEvent
}

func newWindow(duration time.Duration) *window {
	return &window{duration: duration}
}

func (w *window) record(now time.Time, kind EventKind) {
	w.prune(now)
	w.events = append(w.events, windowEvent{at: now, kind: kind})
}

// prune drops events older than the window duration. Events are appended in
// time order, so the retained suffix starts at the first fresh entry.
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.duration)
	i := 0
	for i < len(w.events) && w.events[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.events = append(w.events[:0], w.events[i:]...)
	}
}

// counts returns per-kind totals for events still inside the window.
func (w *window) counts(now time.Time) map[EventKind]uint64 {
	w.prune(now)
	out := make(map[EventKind]uint64, 8)
	for _, e := range w.events {
		out[e.kind]++
	}
	return out
}

// WindowSnapshot summarizes one sliding window for the read API.
type WindowSnapshot struct {
	Duration    string  `json:"duration"`
	Requests    uint64  `json:"requests"`
	Successes   uint64  `json:"successes"`
	Failures    uint64  `json:"failures"`
	Rejections  uint64  `json:"rejections"`
	Retries     uint64  `json:"retries"`
	SuccessRate float64 `json:"success_rate"`
	FailureRate float64 `json:"failure_rate"`
}

func (w *window) snapshot(now time.Time) WindowSnapshot {
	c := w.counts(now)
	s := WindowSnapshot{
		Duration:   w.duration.String(),
		Requests:   c[EventRequest],
		Successes:  c[EventSuccess],
		Failures:   c[EventFailure],
		Rejections: c[EventRejection],
		Retries:    c[EventRetry],
	}
	if s.Requests > 0 {
		s.SuccessRate = float64(s.Successes) / float64(s.Requests)
		s.FailureRate = float64(s.Failures+s.Rejections) / float64(s.Requests)
	}
	return s
}
