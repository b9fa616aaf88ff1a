package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// maxLatencySamples bounds the ring used for percentile computation.
// Percentiles are computed by sorting a copy on read, which is acceptable
// at this size.
const maxLatencySamples = 1000

// windowDurations are the fixed sliding windows exposed by the read API.
var windowDurations = []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute, time.Hour}

// Aggregator records prediction-client events into cumulative counters,
// sliding time windows, and a bounded latency sample ring. It also mirrors
// everything into Prometheus collectors registered on the given registerer.
type Aggregator struct {
	mu        sync.Mutex
	startTime time.Time

	requests     uint64
	successes    uint64
	failures     uint64
	rejections   uint64
	retries      uint64
	cacheHits    uint64
	cacheMisses  uint64
	circuitTrips uint64
	fallbacks    uint64

	retriesByReason map[string]uint64
	failuresByKind  map[string]uint64

	windows []*window

	samples   [maxLatencySamples]time.Duration
	sampleLen int
	samplePos int
	totalTime time.Duration

	// Prometheus mirror
	promRequests  *prometheus.CounterVec
	promOutcomes  *prometheus.CounterVec
	promRetries   *prometheus.CounterVec
	promCache     *prometheus.CounterVec
	promTrips     *prometheus.CounterVec
	promFallbacks *prometheus.CounterVec
	promLatency   *prometheus.HistogramVec
}

// NewAggregator creates an aggregator whose Prometheus collectors are
// registered on reg. Pass prometheus.NewRegistry() in tests to avoid
// duplicate registration on the default registry.
func NewAggregator(reg prometheus.Registerer) *Aggregator {
	factory := promauto.With(reg)

	a := &Aggregator{
		startTime:       time.Now(),
		retriesByReason: make(map[string]uint64),
		failuresByKind:  make(map[string]uint64),

		promRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prediction_client_requests_total",
				Help: "Total prediction requests by operation",
			},
			[]string{"operation"},
		),
		promOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prediction_client_outcomes_total",
				Help: "Request outcomes by operation and result",
			},
			[]string{"operation", "outcome"},
		),
		promRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prediction_client_retries_total",
				Help: "Retry attempts by operation and reason",
			},
			[]string{"operation", "reason"},
		),
		promCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prediction_client_cache_total",
				Help: "Fallback cache lookups by result",
			},
			[]string{"operation", "result"},
		),
		promTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prediction_client_circuit_trips_total",
				Help: "Circuit breaker trips by breaker name",
			},
			[]string{"breaker"},
		),
		promFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prediction_client_fallbacks_total",
				Help: "Fallback responses served by operation",
			},
			[]string{"operation"},
		),
		promLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prediction_client_latency_seconds",
				Help:    "Prediction call latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
	}

	for _, d := range windowDurations {
		a.windows = append(a.windows, newWindow(d))
	}

	return a
}

// RecordRequest records an admitted facade invocation.
func (a *Aggregator) RecordRequest(operation string) {
	a.promRequests.WithLabelValues(operation).Inc()

	a.mu.Lock()
	a.requests++
	a.recordWindowed(EventRequest)
	a.mu.Unlock()
}

// RecordSuccess records a completed call and its latency.
func (a *Aggregator) RecordSuccess(operation string, latency time.Duration) {
	a.promOutcomes.WithLabelValues(operation, "success").Inc()
	a.promLatency.WithLabelValues(operation).Observe(latency.Seconds())

	a.mu.Lock()
	a.successes++
	a.recordSample(latency)
	a.recordWindowed(EventSuccess)
	a.mu.Unlock()
}

// RecordFailure records a failed call by error kind.
func (a *Aggregator) RecordFailure(operation, kind string, latency time.Duration) {
	a.promOutcomes.WithLabelValues(operation, "failure").Inc()
	a.promLatency.WithLabelValues(operation).Observe(latency.Seconds())

	a.mu.Lock()
	a.failures++
	a.failuresByKind[kind]++
	a.recordSample(latency)
	a.recordWindowed(EventFailure)
	a.mu.Unlock()
}

// RecordRejection records a call the breaker refused to admit.
func (a *Aggregator) RecordRejection(operation string) {
	a.promOutcomes.WithLabelValues(operation, "rejection").Inc()

	a.mu.Lock()
	a.rejections++
	a.recordWindowed(EventRejection)
	a.mu.Unlock()
}

// RecordRetry records one retry attempt with its reason.
func (a *Aggregator) RecordRetry(operation, reason string) {
	a.promRetries.WithLabelValues(operation, reason).Inc()

	a.mu.Lock()
	a.retries++
	a.retriesByReason[reason]++
	a.recordWindowed(EventRetry)
	a.mu.Unlock()
}

// RecordCacheHit records a fallback cache hit.
func (a *Aggregator) RecordCacheHit(operation string) {
	a.promCache.WithLabelValues(operation, "hit").Inc()

	a.mu.Lock()
	a.cacheHits++
	a.recordWindowed(EventCacheHit)
	a.mu.Unlock()
}

// RecordCacheMiss records a fallback cache miss.
func (a *Aggregator) RecordCacheMiss(operation string) {
	a.promCache.WithLabelValues(operation, "miss").Inc()

	a.mu.Lock()
	a.cacheMisses++
	a.recordWindowed(EventCacheMiss)
	a.mu.Unlock()
}

// RecordCircuitTrip records a breaker opening.
func (a *Aggregator) RecordCircuitTrip(breaker string) {
	a.promTrips.WithLabelValues(breaker).Inc()

	a.mu.Lock()
	a.circuitTrips++
	a.recordWindowed(EventCircuitTrip)
	a.mu.Unlock()
}

// RecordFallbackUsed records a degraded response served to a caller.
func (a *Aggregator) RecordFallbackUsed(operation string) {
	a.promFallbacks.WithLabelValues(operation).Inc()

	a.mu.Lock()
	a.fallbacks++
	a.recordWindowed(EventFallbackUsed)
	a.mu.Unlock()
}

func (a *Aggregator) recordWindowed(kind EventKind) {
	now := time.Now()
	for _, w := range a.windows {
		w.record(now, kind)
	}
}

func (a *Aggregator) recordSample(latency time.Duration) {
	a.samples[a.samplePos] = latency
	a.samplePos = (a.samplePos + 1) % maxLatencySamples
	if a.sampleLen < maxLatencySamples {
		a.sampleLen++
	}
	a.totalTime += latency
}

// Percentiles holds latency percentiles over the retained sample ring.
type Percentiles struct {
	P50 time.Duration `json:"p50"`
	P90 time.Duration `json:"p90"`
	P95 time.Duration `json:"p95"`
	P99 time.Duration `json:"p99"`
}

// Snapshot is a point-in-time view of all metrics for the read API.
type Snapshot struct {
	UptimeSeconds float64 `json:"uptime_seconds"`

	Requests     uint64 `json:"requests"`
	Successes    uint64 `json:"successes"`
	Failures     uint64 `json:"failures"`
	Rejections   uint64 `json:"rejections"`
	Retries      uint64 `json:"retries"`
	CacheHits    uint64 `json:"cache_hits"`
	CacheMisses  uint64 `json:"cache_misses"`
	CircuitTrips uint64 `json:"circuit_trips"`
	Fallbacks    uint64 `json:"fallbacks"`

	SuccessRate    float64 `json:"success_rate"`
	FailureRate    float64 `json:"failure_rate"`
	CacheHitRate   float64 `json:"cache_hit_rate"`
	AverageLatency float64 `json:"average_latency_ms"`

	Latency Percentiles `json:"latency_percentiles"`

	RetriesByReason map[string]uint64 `json:"retries_by_reason"`
	FailuresByKind  map[string]uint64 `json:"failures_by_kind"`

	Windows []WindowSnapshot `json:"windows"`
}

// GetSnapshot computes the current snapshot. Percentiles sort a copy of the
// bounded sample ring.
func (a *Aggregator) GetSnapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()

	s := Snapshot{
		UptimeSeconds: now.Sub(a.startTime).Seconds(),
		Requests:      a.requests,
		Successes:     a.successes,
		Failures:      a.failures,
		Rejections:    a.rejections,
		Retries:       a.retries,
		CacheHits:     a.cacheHits,
		CacheMisses:   a.cacheMisses,
		CircuitTrips:  a.circuitTrips,
		Fallbacks:     a.fallbacks,

		RetriesByReason: make(map[string]uint64, len(a.retriesByReason)),
		FailuresByKind:  make(map[string]uint64, len(a.failuresByKind)),
	}
	for k, v := range a.retriesByReason {
		s.RetriesByReason[k] = v
	}
	for k, v := range a.failuresByKind {
		s.FailuresByKind[k] = v
	}

	if a.requests > 0 {
		s.SuccessRate = float64(a.successes) / float64(a.requests)
		s.FailureRate = float64(a.failures+a.rejections) / float64(a.requests)
	}
	if lookups := a.cacheHits + a.cacheMisses; lookups > 0 {
		s.CacheHitRate = float64(a.cacheHits) / float64(lookups)
	}
	if completed := a.successes + a.failures; completed > 0 {
		s.AverageLatency = float64(a.totalTime.Milliseconds()) / float64(completed)
	}

	s.Latency = a.percentiles()

	for _, w := range a.windows {
		s.Windows = append(s.Windows, w.snapshot(now))
	}

	return s
}

func (a *Aggregator) percentiles() Percentiles {
	if a.sampleLen == 0 {
		return Percentiles{}
	}

	sorted := make([]time.Duration, a.sampleLen)
	copy(sorted, a.samples[:a.sampleLen])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	at := func(p float64) time.Duration {
		idx := int(p * float64(len(sorted)-1))
		return sorted[idx]
	}

	return Percentiles{
		P50: at(0.50),
		P90: at(0.90),
		P95: at(0.95),
		P99: at(0.99),
	}
}

// RenderText renders the snapshot in a flat "key value" exposition format
// for operators who want plain-text scraping.
func (a *Aggregator) RenderText() string {
	s := a.GetSnapshot()

	var sb strings.Builder
	write := func(key string, value interface{}) {
		fmt.Fprintf(&sb, "%s %v\n", key, value)
	}

	write("uptime_seconds", fmt.Sprintf("%.0f", s.UptimeSeconds))
	write("requests_total", s.Requests)
	write("successes_total", s.Successes)
	write("failures_total", s.Failures)
	write("rejections_total", s.Rejections)
	write("retries_total", s.Retries)
	write("cache_hits_total", s.CacheHits)
	write("cache_misses_total", s.CacheMisses)
	write("circuit_trips_total", s.CircuitTrips)
	write("fallbacks_total", s.Fallbacks)
	write("success_rate", fmt.Sprintf("%.4f", s.SuccessRate))
	write("failure_rate", fmt.Sprintf("%.4f", s.FailureRate))
	write("cache_hit_rate", fmt.Sprintf("%.4f", s.CacheHitRate))
	write("latency_avg_ms", fmt.Sprintf("%.2f", s.AverageLatency))
	write("latency_p50_ms", s.Latency.P50.Milliseconds())
	write("latency_p90_ms", s.Latency.P90.Milliseconds())
	write("latency_p95_ms", s.Latency.P95.Milliseconds())
	write("latency_p99_ms", s.Latency.P99.Milliseconds())

	for _, w := range s.Windows {
		prefix := "window_" + strings.ReplaceAll(w.Duration, ".", "_")
		write(prefix+"_requests", w.Requests)
		write(prefix+"_successes", w.Successes)
		write(prefix+"_failures", w.Failures)
	}

	return sb.String()
}
