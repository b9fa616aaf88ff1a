// Package fallback serves degraded but structurally valid responses when
// the remote prediction service cannot be reached. Responses come from a
// TTL cache of prior results or from operation-specific simulators, and are
// always tagged with is_fallback so callers can tell them apart from
// authoritative answers.
package fallback

import (
	"time"

	"go.uber.org/zap"

	"github.com/bhuwanb23/profitpulse-sub001/internal/logging"
	"github.com/bhuwanb23/profitpulse-sub001/internal/resilience"
)

// Provider dispatches fallback lookups: cache first, simulator second.
type Provider struct {
	cache    *Cache
	registry *Registry
	logger   *logging.Logger
}

// NewProvider creates a fallback provider over the given cache and
// simulator registry.
func NewProvider(cache *Cache, registry *Registry, logger *logging.Logger) *Provider {
	return &Provider{cache: cache, registry: registry, logger: logger}
}

// GetFallback returns a response for the operation. fromCache reports
// whether it was a cache hit. When neither a cached entry nor a simulator
// exists, resilience.ErrNoFallback is returned and the caller must
// propagate its original error instead.
func (p *Provider) GetFallback(operation string, payload map[string]interface{}, ttl time.Duration) (response map[string]interface{}, fromCache bool, err error) {
	key, err := Key(operation, payload)
	if err != nil {
		return nil, false, err
	}

	if cached, ok := p.cache.Get(key); ok {
		return cached, true, nil
	}

	sim := p.registry.Get(operation)
	if sim == nil {
		return nil, false, resilience.ErrNoFallback
	}

	response = sim(payload)
	response["is_fallback"] = true
	response["operation"] = operation
	response["generated_at"] = time.Now().UTC().Format(time.RFC3339)

	p.cache.Set(key, response, ttl)
	p.logger.Debug("simulated fallback response cached",
		zap.String("operation", operation),
		zap.String("key", key),
		zap.Duration("ttl", ttl),
	)

	return response, false, nil
}

// StoreResult caches an authoritative response so later failures can serve
// it as last-known-good. The stored copy is tagged is_fallback because
// anything served out of this provider is a degraded answer.
func (p *Provider) StoreResult(operation string, payload, result map[string]interface{}, ttl time.Duration) {
	key, err := Key(operation, payload)
	if err != nil {
		p.logger.Warn("failed to build cache key for result", zap.String("operation", operation), zap.Error(err))
		return
	}

	stored := make(map[string]interface{}, len(result)+1)
	for k, v := range result {
		stored[k] = v
	}
	stored["is_fallback"] = true

	p.cache.Set(key, stored, ttl)
}

// Cache exposes the underlying cache for admin operations.
func (p *Provider) Cache() *Cache { return p.cache }
