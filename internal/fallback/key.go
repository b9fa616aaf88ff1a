package fallback

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Key computes a deterministic cache key from an operation name and its
// request payload. The payload is canonicalized by a marshal/unmarshal
// round-trip so map key order never affects the hash.
func Key(operation string, payload map[string]interface{}) (string, error) {
	canonical, err := canonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize payload: %w", err)
	}

	hash := sha256.Sum256(append([]byte(operation+"|"), canonical...))
	// Keep the operation name in the key so operators can clear by pattern.
	return operation + ":" + hex.EncodeToString(hash[:])[:16], nil
}

// canonicalJSON marshals v with deterministic output. encoding/json sorts
// map keys, so a round-trip through interface{} normalizes any input.
func canonicalJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var normalized interface{}
	if err := json.Unmarshal(data, &normalized); err != nil {
		return nil, err
	}

	return json.Marshal(normalized)
}
