// Package client composes the circuit breaker, retry policy, health
// monitor, fallback provider, and metrics aggregator behind a fixed
// catalogue of prediction operations.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bhuwanb23/profitpulse-sub001/internal/config"
	"github.com/bhuwanb23/profitpulse-sub001/internal/fallback"
	"github.com/bhuwanb23/profitpulse-sub001/internal/health"
	"github.com/bhuwanb23/profitpulse-sub001/internal/logging"
	"github.com/bhuwanb23/profitpulse-sub001/internal/metrics"
	"github.com/bhuwanb23/profitpulse-sub001/internal/resilience"
)

// Operation names accepted by Invoke.
const (
	OpProfitabilityPredict = "profitability.predict"
	OpChurnPredict         = "churn.predict"
	OpRevenueLeakDetect    = "revenue_leak.detect"
	OpPricingRecommend     = "pricing.recommend"
	OpBudgetOptimize       = "budget.optimize"
	OpDemandForecast       = "demand.forecast"
	OpAnomalyDetect        = "anomaly.detect"
)

// ErrUnknownOperation is returned for operations outside the catalogue.
var ErrUnknownOperation = errors.New("unknown prediction operation")

var operations = map[string]struct{}{
	OpProfitabilityPredict: {},
	OpChurnPredict:         {},
	OpRevenueLeakDetect:    {},
	OpPricingRecommend:     {},
	OpBudgetOptimize:       {},
	OpDemandForecast:       {},
	OpAnomalyDetect:        {},
}

// Operations returns the fixed operation catalogue.
func Operations() []string {
	return []string{
		OpProfitabilityPredict,
		OpChurnPredict,
		OpRevenueLeakDetect,
		OpPricingRecommend,
		OpBudgetOptimize,
		OpDemandForecast,
		OpAnomalyDetect,
	}
}

// Options is the per-call options bag. Use DefaultOptions as the base and
// override individual fields.
type Options struct {
	UseCircuitBreaker bool
	UseFallback       bool
	CacheTTL          time.Duration
	Retries           int
	RetryDelay        time.Duration
	RetryBackoff      float64
}

// Client is the resilient prediction client facade.
type Client struct {
	cfg       *config.Config
	transport *Transport
	breaker   *resilience.Breaker
	monitor   *health.Monitor
	fallback  *fallback.Provider
	metrics   *metrics.Aggregator
	logger    *logging.Logger
	models    *modelInfoCache
}

// New wires the facade. The breaker's listeners are registered here so the
// metrics aggregator and logger observe every transition.
func New(cfg *config.Config, transport *Transport, monitor *health.Monitor, fb *fallback.Provider, agg *metrics.Aggregator, logger *logging.Logger) *Client {
	c := &Client{
		cfg:       cfg,
		transport: transport,
		monitor:   monitor,
		fallback:  fb,
		metrics:   agg,
		logger:    logger,
		models:    newModelInfoCache(),
	}

	c.breaker = resilience.New("prediction-service", resilience.Settings{
		FailureThreshold:    cfg.Breaker.FailureThreshold,
		OpenTimeout:         cfg.Breaker.OpenDuration,
		HalfOpenMaxRequests: cfg.Breaker.HalfOpenMaxRequests,
		HalfOpenTimeout:     cfg.Breaker.ResetDuration,
		MonitoringWindow:    cfg.Breaker.MonitoringWindow,
		Listeners: []resilience.StateChangeListener{
			func(change resilience.StateChange) {
				logger.Warn("circuit breaker state changed",
					zap.String("breaker", change.Name),
					zap.String("from", change.From.String()),
					zap.String("to", change.To.String()),
					zap.String("reason", change.Reason),
				)
				if change.To == resilience.StateOpen && cfg.Features.Metrics {
					agg.RecordCircuitTrip(change.Name)
				}
			},
		},
	})

	return c
}

// DefaultOptions returns the options bag filled from configuration.
func (c *Client) DefaultOptions() Options {
	return Options{
		UseCircuitBreaker: c.cfg.Features.CircuitBreaker,
		UseFallback:       c.cfg.Features.Fallback,
		CacheTTL:          c.cfg.Fallback.TTL,
		Retries:           c.cfg.Prediction.RetryCount,
		RetryDelay:        c.cfg.Prediction.RetryDelay,
		RetryBackoff:      c.cfg.Prediction.RetryBackoff,
	}
}

// Invoke executes one prediction operation through the retry+breaker
// pipeline, falling back to a cached or simulated response on exhaustion.
// The returned map is either the authoritative remote result or a response
// tagged is_fallback. opts may be nil for defaults.
func (c *Client) Invoke(ctx context.Context, operation string, payload map[string]interface{}, opts *Options) (map[string]interface{}, error) {
	if _, ok := operations[operation]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, operation)
	}

	o := c.DefaultOptions()
	if opts != nil {
		o = *opts
	}

	requestID := uuid.NewString()
	start := time.Now()

	c.recordRequest(operation)

	call := func() (interface{}, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Prediction.RequestTimeout)
		defer cancel()
		return c.transport.Predict(attemptCtx, operation, payload)
	}

	guarded := call
	if o.UseCircuitBreaker {
		guarded = func() (interface{}, error) {
			return c.breaker.Execute(call)
		}
	}

	policy := resilience.RetryPolicy{
		MaxAttempts:   o.Retries,
		BaseDelay:     o.RetryDelay,
		BackoffFactor: o.RetryBackoff,
		OnRetry: func(err error, attempt int) {
			c.recordRetry(operation, resilience.ErrorKind(err))
			c.logger.Warn("retrying prediction call",
				zap.String("operation", operation),
				zap.String("request_id", requestID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		},
	}

	result, err := policy.Do(ctx, guarded)
	latency := time.Since(start)

	if err == nil {
		response := result.(map[string]interface{})
		c.recordSuccess(operation, latency)
		if o.UseFallback {
			c.fallback.StoreResult(operation, payload, response, o.CacheTTL)
		}
		c.logger.Debug("prediction call succeeded",
			zap.String("operation", operation),
			zap.String("request_id", requestID),
			zap.Duration("latency", latency),
		)
		return response, nil
	}

	c.recordOutcome(operation, err, latency)
	c.logger.Error("prediction call failed",
		zap.String("operation", operation),
		zap.String("request_id", requestID),
		zap.String("kind", resilience.ErrorKind(err)),
		zap.Error(err),
	)

	if !o.UseFallback {
		return nil, err
	}

	response, fromCache, fbErr := c.fallback.GetFallback(operation, payload, o.CacheTTL)
	if fbErr != nil {
		// No cached or simulated response: the original failure is the
		// one the caller must see.
		c.recordCacheMiss(operation)
		return nil, err
	}

	if fromCache {
		c.recordCacheHit(operation)
	} else {
		c.recordCacheMiss(operation)
	}
	c.recordFallbackUsed(operation)

	c.logger.Warn("serving fallback response",
		zap.String("operation", operation),
		zap.String("request_id", requestID),
		zap.Bool("from_cache", fromCache),
	)

	return response, nil
}

// ResetBreaker forces the circuit breaker closed. Operator recovery tool.
func (c *Client) ResetBreaker() {
	c.breaker.Reset()
	c.logger.Info("circuit breaker manually reset")
}

// BreakerStats returns the breaker's cumulative statistics.
func (c *Client) BreakerStats() resilience.Stats {
	return c.breaker.Stats()
}

// ClearFallbackCache removes fallback entries matching pattern (empty
// clears all) and returns the number removed.
func (c *Client) ClearFallbackCache(pattern string) int {
	removed := c.fallback.Cache().Clear(pattern)
	c.logger.Info("fallback cache cleared",
		zap.String("pattern", pattern),
		zap.Int("removed", removed),
	)
	return removed
}

// FallbackCacheStats returns fallback cache statistics.
func (c *Client) FallbackCacheStats() fallback.CacheStats {
	return c.fallback.Cache().Stats()
}

// ForceHealthCheck runs one synchronous probe and returns the new status.
func (c *Client) ForceHealthCheck(ctx context.Context) health.Snapshot {
	return c.monitor.ForceCheck(ctx)
}

// MetricsSnapshot returns the aggregator's current snapshot.
func (c *Client) MetricsSnapshot() metrics.Snapshot {
	return c.metrics.GetSnapshot()
}

// MetricsText renders metrics in the flat key/value exposition format.
func (c *Client) MetricsText() string {
	return c.metrics.RenderText()
}

func (c *Client) recordRequest(op string) {
	if c.cfg.Features.Metrics {
		c.metrics.RecordRequest(op)
	}
}

func (c *Client) recordSuccess(op string, latency time.Duration) {
	if c.cfg.Features.Metrics {
		c.metrics.RecordSuccess(op, latency)
	}
}

// recordOutcome classifies a terminal pipeline error: breaker rejections
// are counted separately from failures so rejected calls stay visible.
func (c *Client) recordOutcome(op string, err error, latency time.Duration) {
	if !c.cfg.Features.Metrics {
		return
	}
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		c.metrics.RecordRejection(op)
		return
	}
	c.metrics.RecordFailure(op, resilience.ErrorKind(err), latency)
}

func (c *Client) recordRetry(op, reason string) {
	if c.cfg.Features.Metrics {
		c.metrics.RecordRetry(op, reason)
	}
}

func (c *Client) recordCacheHit(op string) {
	if c.cfg.Features.Metrics {
		c.metrics.RecordCacheHit(op)
	}
}

func (c *Client) recordCacheMiss(op string) {
	if c.cfg.Features.Metrics {
		c.metrics.RecordCacheMiss(op)
	}
}

func (c *Client) recordFallbackUsed(op string) {
	if c.cfg.Features.Metrics {
		c.metrics.RecordFallbackUsed(op)
	}
}
