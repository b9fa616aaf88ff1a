// Package health monitors the remote prediction service's liveness
// endpoint independently of the circuit breaker. Status flips use
// hysteresis: several consecutive failures to go unhealthy, several
// consecutive successes to recover, so a single flaky probe never flaps
// the reported status.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/bhuwanb23/profitpulse-sub001/internal/logging"
)

// Status is the monitor's rolling view of the remote service.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Trend classifies the recent probe history.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDegrading Trend = "degrading"
	TrendStable    Trend = "stable"
)

// Record is the outcome of a single probe.
type Record struct {
	Timestamp time.Time     `json:"timestamp"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Snapshot is a point-in-time view of the monitor state.
type Snapshot struct {
	Status               Status        `json:"status"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	ConsecutiveSuccesses int           `json:"consecutive_successes"`
	LastProbeAt          time.Time     `json:"last_probe_at"`
	LastProbeDuration    time.Duration `json:"last_probe_duration"`
	Uptime               time.Duration `json:"uptime"`
	Downtime             time.Duration `json:"downtime"`
	TotalProbes          uint64        `json:"total_probes"`
	TotalFailures        uint64        `json:"total_failures"`
}

// Config tunes the monitor.
type Config struct {
	Interval           time.Duration
	Timeout            time.Duration
	ProbeRetries       int
	UnhealthyThreshold int
	RecoveryThreshold  int
	HistorySize        int
}

// ProbeFunc performs one liveness check.
type ProbeFunc func(ctx context.Context) error

// HTTPProbe returns a ProbeFunc that calls the service's liveness endpoint
// with bounded inline retries. These retries are transport-level plumbing,
// separate from the domain retry policy.
func HTTPProbe(baseURL string, cfg Config) ProbeFunc {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.ProbeRetries
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = nil

	url := baseURL + "/health"

	return func(ctx context.Context) error {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("liveness check returned status %d", resp.StatusCode)
		}
		return nil
	}
}

// Monitor runs the periodic probe loop and maintains health status.
type Monitor struct {
	cfg    Config
	probe  ProbeFunc
	logger *logging.Logger

	mu             sync.Mutex
	status         Status
	consecFailures int
	consecSuccess  int
	lastProbeAt    time.Time
	lastProbeDur   time.Duration
	totalProbes    uint64
	totalFailures  uint64
	uptime         time.Duration
	downtime       time.Duration
	statusSince    time.Time
	history        []Record

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewMonitor creates a stopped monitor. Call Start to begin probing.
func NewMonitor(cfg Config, probe ProbeFunc, logger *logging.Logger) *Monitor {
	if cfg.HistorySize < 1 {
		cfg.HistorySize = 100
	}
	if cfg.UnhealthyThreshold < 1 {
		cfg.UnhealthyThreshold = 3
	}
	if cfg.RecoveryThreshold < 1 {
		cfg.RecoveryThreshold = 2
	}
	return &Monitor{
		cfg:    cfg,
		probe:  probe,
		logger: logger,
		status: StatusUnknown,
	}
}

// Start launches the probe loop. Starting a running monitor is a no-op
// with a warning.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.logger.Warn("health monitor already running, ignoring start")
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.statusSince = time.Now()
	m.mu.Unlock()

	m.logger.Info("health monitor started",
		zap.Duration("interval", m.cfg.Interval),
		zap.Duration("timeout", m.cfg.Timeout),
	)

	go m.loop()
}

// Stop halts the probe loop and waits for it to exit. Stopping a stopped
// monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()

	<-done
	m.logger.Info("health monitor stopped")
}

func (m *Monitor) loop() {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	// Probe once immediately so status is meaningful before the first tick.
	m.runProbe(context.Background())

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.runProbe(context.Background())
		}
	}
}

// ForceCheck performs one probe synchronously and returns the updated
// snapshot. Safe to call whether or not the loop is running.
func (m *Monitor) ForceCheck(ctx context.Context) Snapshot {
	m.runProbe(ctx)
	return m.Snapshot()
}

func (m *Monitor) runProbe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := m.probe(probeCtx)
	duration := time.Since(start)

	m.handleResult(Record{
		Timestamp: start,
		Success:   err == nil,
		Duration:  duration,
		Error:     errText(err),
	})
}

func (m *Monitor) handleResult(rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := rec.Timestamp.Add(rec.Duration)

	m.totalProbes++
	m.lastProbeAt = rec.Timestamp
	m.lastProbeDur = rec.Duration

	m.history = append(m.history, rec)
	if len(m.history) > m.cfg.HistorySize {
		m.history = m.history[len(m.history)-m.cfg.HistorySize:]
	}

	if rec.Success {
		m.consecSuccess++
		m.consecFailures = 0

		switch m.status {
		case StatusUnknown:
			m.transition(StatusHealthy, now)
		case StatusUnhealthy:
			if m.consecSuccess >= m.cfg.RecoveryThreshold {
				m.transition(StatusHealthy, now)
			}
		}
		return
	}

	m.totalFailures++
	m.consecFailures++
	m.consecSuccess = 0

	if m.status != StatusUnhealthy && m.consecFailures >= m.cfg.UnhealthyThreshold {
		m.transition(StatusUnhealthy, now)
	}
}

// transition runs with m.mu held.
func (m *Monitor) transition(to Status, now time.Time) {
	elapsed := now.Sub(m.statusSince)
	if m.statusSince.IsZero() {
		elapsed = 0
	}
	switch m.status {
	case StatusHealthy:
		m.uptime += elapsed
	case StatusUnhealthy:
		m.downtime += elapsed
	}

	from := m.status
	m.status = to
	m.statusSince = now

	m.logger.Info("health status changed",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Duration("previous_state_duration", elapsed),
	)
}

// Snapshot returns the current monitor state. The uptime/downtime
// accumulators include the in-progress segment.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Status:               m.status,
		ConsecutiveFailures:  m.consecFailures,
		ConsecutiveSuccesses: m.consecSuccess,
		LastProbeAt:          m.lastProbeAt,
		LastProbeDuration:    m.lastProbeDur,
		Uptime:               m.uptime,
		Downtime:             m.downtime,
		TotalProbes:          m.totalProbes,
		TotalFailures:        m.totalFailures,
	}

	if !m.statusSince.IsZero() {
		current := time.Since(m.statusSince)
		switch m.status {
		case StatusHealthy:
			s.Uptime += current
		case StatusUnhealthy:
			s.Downtime += current
		}
	}

	return s
}

// IsHealthy reports whether the last settled status is healthy.
func (m *Monitor) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == StatusHealthy
}

// History returns a copy of the bounded probe history, oldest first.
func (m *Monitor) History() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.history))
	copy(out, m.history)
	return out
}

// TrendOver classifies the probe trend inside the trailing window by
// comparing the success ratio of the older half against the newer half.
func (m *Monitor) TrendOver(window time.Duration) Trend {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-window)
	var recent []Record
	for _, rec := range m.history {
		if !rec.Timestamp.Before(cutoff) {
			recent = append(recent, rec)
		}
	}

	if len(recent) < 4 {
		return TrendStable
	}

	mid := len(recent) / 2
	older := successRatio(recent[:mid])
	newer := successRatio(recent[mid:])

	const margin = 0.1
	switch {
	case newer-older > margin:
		return TrendImproving
	case older-newer > margin:
		return TrendDegrading
	default:
		return TrendStable
	}
}

func successRatio(records []Record) float64 {
	if len(records) == 0 {
		return 0
	}
	ok := 0
	for _, r := range records {
		if r.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(records))
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
