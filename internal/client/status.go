package client

import (
	"time"

	"github.com/bhuwanb23/profitpulse-sub001/internal/fallback"
	"github.com/bhuwanb23/profitpulse-sub001/internal/health"
	"github.com/bhuwanb23/profitpulse-sub001/internal/resilience"
)

// CompositeStatus aggregates breaker state, monitor state, and recent
// success rate into a single view for operational dashboards.
type CompositeStatus struct {
	Status            string              `json:"status"` // "ok", "degraded", "down"
	Timestamp         time.Time           `json:"timestamp"`
	Breaker           resilience.Stats    `json:"circuit_breaker"`
	Health            health.Snapshot     `json:"health"`
	Trend             health.Trend        `json:"trend"`
	RecentSuccessRate float64             `json:"recent_success_rate"`
	FallbackCache     fallback.CacheStats `json:"fallback_cache"`
	Operations        []string            `json:"operations"`
}

// Status assembles the composite status. The health monitor and breaker
// are independent observers of the same service; "down" requires both to
// agree, a single pessimist only degrades.
func (c *Client) Status() CompositeStatus {
	breakerStats := c.breaker.Stats()
	healthSnap := c.monitor.Snapshot()

	// Success rate over the shortest metrics window.
	snapshot := c.metrics.GetSnapshot()
	recentRate := 1.0
	if len(snapshot.Windows) > 0 && snapshot.Windows[0].Requests > 0 {
		recentRate = snapshot.Windows[0].SuccessRate
	}

	breakerOpen := breakerStats.State == resilience.StateOpen.String()
	unhealthy := healthSnap.Status == health.StatusUnhealthy

	overall := "ok"
	switch {
	case breakerOpen && unhealthy:
		overall = "down"
	case breakerOpen || unhealthy || recentRate < 0.5:
		overall = "degraded"
	}

	return CompositeStatus{
		Status:            overall,
		Timestamp:         time.Now().UTC(),
		Breaker:           breakerStats,
		Health:            healthSnap,
		Trend:             c.monitor.TrendOver(15 * time.Minute),
		RecentSuccessRate: recentRate,
		FallbackCache:     c.fallback.Cache().Stats(),
		Operations:        Operations(),
	}
}
