package fallback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhuwanb23/profitpulse-sub001/internal/logging"
	"github.com/bhuwanb23/profitpulse-sub001/internal/resilience"
)

func newTestProvider(registry *Registry) *Provider {
	return NewProvider(NewCache(10, time.Minute), registry, logging.NewNop())
}

func TestGetFallbackSimulatesAndCaches(t *testing.T) {
	provider := newTestProvider(NewBuiltinRegistry())
	payload := map[string]interface{}{"client_id": "c-1"}

	resp, fromCache, err := provider.GetFallback("churn.predict", payload, time.Minute)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, true, resp["is_fallback"])
	assert.Equal(t, "churn.predict", resp["operation"])
	assert.Contains(t, resp, "churn_probability")

	// Second lookup with the same payload hits the cache.
	again, fromCache, err := provider.GetFallback("churn.predict", payload, time.Minute)
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, resp, again)
}

func TestGetFallbackNoSimulator(t *testing.T) {
	provider := newTestProvider(NewRegistry())

	_, _, err := provider.GetFallback("unknown.op", map[string]interface{}{}, time.Minute)
	assert.ErrorIs(t, err, resilience.ErrNoFallback)
}

func TestGetFallbackPrefersCachedResult(t *testing.T) {
	provider := newTestProvider(NewBuiltinRegistry())
	payload := map[string]interface{}{"client_id": "c-2"}

	provider.StoreResult("churn.predict", payload, map[string]interface{}{
		"churn_probability": 0.12,
	}, time.Minute)

	resp, fromCache, err := provider.GetFallback("churn.predict", payload, time.Minute)
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, 0.12, resp["churn_probability"])
	assert.Equal(t, true, resp["is_fallback"])
}

func TestStoreResultDoesNotMutateOriginal(t *testing.T) {
	provider := newTestProvider(NewRegistry())
	result := map[string]interface{}{"churn_probability": 0.12}

	provider.StoreResult("churn.predict", map[string]interface{}{}, result, time.Minute)

	assert.NotContains(t, result, "is_fallback")
}

func TestBuiltinRegistryCoversCatalogue(t *testing.T) {
	registry := NewBuiltinRegistry()

	for _, op := range []string{
		"profitability.predict",
		"churn.predict",
		"revenue_leak.detect",
		"pricing.recommend",
		"budget.optimize",
		"demand.forecast",
		"anomaly.detect",
	} {
		sim := registry.Get(op)
		require.NotNil(t, sim, op)

		resp := sim(map[string]interface{}{})
		assert.Contains(t, resp, "confidence", op)
	}
}

func TestRegistryRegisterReplaces(t *testing.T) {
	registry := NewRegistry()
	registry.Register("custom.op", func(map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{"v": 1}
	})
	registry.Register("custom.op", func(map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{"v": 2}
	})

	resp := registry.Get("custom.op")(nil)
	assert.Equal(t, 2, resp["v"])
	assert.Equal(t, []string{"custom.op"}, registry.Operations())
}
