package client

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	modelCacheSize = 32
	modelCacheTTL  = 5 * time.Minute
)

// modelInfoCache memoizes per-model metadata from the remote service.
// Model info changes rarely, so a short-TTL LRU keeps the passthrough
// endpoint from hammering the service on dashboard refreshes.
type modelInfoCache struct {
	lru *expirable.LRU[string, map[string]interface{}]
}

func newModelInfoCache() *modelInfoCache {
	return &modelInfoCache{
		lru: expirable.NewLRU[string, map[string]interface{}](modelCacheSize, nil, modelCacheTTL),
	}
}

// ModelInfo returns metadata for a remote model, passing through to the
// prediction service on cache miss. Passthrough calls share the breaker so
// a dead service does not get hammered from the admin surface either.
func (c *Client) ModelInfo(ctx context.Context, model string) (map[string]interface{}, error) {
	if info, ok := c.models.lru.Get(model); ok {
		return info, nil
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Prediction.RequestTimeout)
		defer cancel()
		return c.transport.ModelInfo(attemptCtx, model)
	})
	if err != nil {
		return nil, err
	}

	info := result.(map[string]interface{})
	c.models.lru.Add(model, info)
	return info, nil
}
