package fallback

import (
	"math/rand"
	"sync"
)

// Simulator synthesizes a structurally valid response for one operation
// when no live or cached result is available. The numbers it produces are
// business stand-ins, not predictions.
type Simulator func(payload map[string]interface{}) map[string]interface{}

// Registry maps operation names to simulator functions.
type Registry struct {
	mu   sync.RWMutex
	sims map[string]Simulator
}

// NewRegistry creates an empty simulator registry.
func NewRegistry() *Registry {
	return &Registry{sims: make(map[string]Simulator)}
}

// Register installs (or replaces) the simulator for an operation.
func (r *Registry) Register(operation string, sim Simulator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sims[operation] = sim
}

// Get returns the simulator for an operation, or nil when none exists.
func (r *Registry) Get(operation string) Simulator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sims[operation]
}

// Operations lists registered operation names.
func (r *Registry) Operations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ops := make([]string, 0, len(r.sims))
	for op := range r.sims {
		ops = append(ops, op)
	}
	return ops
}

// NewBuiltinRegistry returns a registry pre-populated with simulators for
// the full operation catalogue.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()

	r.Register("profitability.predict", func(payload map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"predicted_margin":   round2(randFloat(0.08, 0.35)),
			"margin_trend":       pick("improving", "stable", "declining"),
			"confidence":         round2(randFloat(0.55, 0.9)),
			"contributing_costs": []string{"labor", "licensing", "infrastructure"},
		}
	})

	r.Register("churn.predict", func(payload map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"churn_probability": round2(randFloat(0.02, 0.45)),
			"risk_level":        pick("low", "medium", "high"),
			"confidence":        round2(randFloat(0.5, 0.85)),
			"retention_actions": []string{"quarterly review", "pricing check-in"},
		}
	})

	r.Register("revenue_leak.detect", func(payload map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"leaks_detected":        rand.Intn(4),
			"estimated_monthly":     round2(randFloat(200, 4500)),
			"top_source":            pick("unbilled_hours", "scope_creep", "expired_contracts"),
			"confidence":            round2(randFloat(0.5, 0.8)),
			"requires_manual_audit": true,
		}
	})

	r.Register("pricing.recommend", func(payload map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"recommended_adjustment": round2(randFloat(-0.05, 0.15)),
			"strategy":               pick("value_based", "tiered", "per_seat"),
			"confidence":             round2(randFloat(0.5, 0.85)),
		}
	})

	r.Register("budget.optimize", func(payload map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"suggested_reallocation": round2(randFloat(0.05, 0.25)),
			"savings_estimate":       round2(randFloat(500, 8000)),
			"focus_areas":            []string{"tooling", "cloud_spend"},
			"confidence":             round2(randFloat(0.5, 0.8)),
		}
	})

	r.Register("demand.forecast", func(payload map[string]interface{}) map[string]interface{} {
		points := make([]float64, 6)
		base := randFloat(80, 120)
		for i := range points {
			base *= randFloat(0.97, 1.06)
			points[i] = round2(base)
		}
		return map[string]interface{}{
			"forecast":   points,
			"trend":      pick("up", "flat", "down"),
			"confidence": round2(randFloat(0.5, 0.85)),
		}
	})

	r.Register("anomaly.detect", func(payload map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"anomalies_found": rand.Intn(3),
			"severity":        pick("info", "warning", "critical"),
			"confidence":      round2(randFloat(0.5, 0.85)),
		}
	})

	return r
}

func randFloat(min, max float64) float64 {
	return min + rand.Float64()*(max-min)
}

func round2(v float64) float64 {
	return float64(int(v*100)) / 100
}

func pick(options ...string) string {
	return options[rand.Intn(len(options))]
}
