package fallback

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyDeterministic(t *testing.T) {
	payload := map[string]interface{}{
		"client_id": "c-42",
		"horizon":   6,
		"features":  map[string]interface{}{"mrr": 1200.50, "seats": 18},
	}

	k1, err := Key("churn.predict", payload)
	require.NoError(t, err)
	k2, err := Key("churn.predict", payload)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.True(t, strings.HasPrefix(k1, "churn.predict:"))
}

func TestKeyIgnoresMapOrder(t *testing.T) {
	// Same logical payload built in a different insertion order.
	a := map[string]interface{}{"x": 1, "y": 2, "z": map[string]interface{}{"a": true, "b": false}}
	b := map[string]interface{}{"z": map[string]interface{}{"b": false, "a": true}, "y": 2, "x": 1}

	ka, err := Key("pricing.recommend", a)
	require.NoError(t, err)
	kb, err := Key("pricing.recommend", b)
	require.NoError(t, err)

	assert.Equal(t, ka, kb)
}

func TestKeyVariesByOperationAndPayload(t *testing.T) {
	payload := map[string]interface{}{"client_id": "c-42"}

	k1, err := Key("churn.predict", payload)
	require.NoError(t, err)
	k2, err := Key("profitability.predict", payload)
	require.NoError(t, err)
	k3, err := Key("churn.predict", map[string]interface{}{"client_id": "c-43"})
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestKeyNilPayload(t *testing.T) {
	k1, err := Key("anomaly.detect", nil)
	require.NoError(t, err)
	k2, err := Key("anomaly.detect", nil)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestKeyRejectsUnmarshalablePayload(t *testing.T) {
	_, err := Key("anomaly.detect", map[string]interface{}{"bad": make(chan int)})
	assert.Error(t, err)
}
