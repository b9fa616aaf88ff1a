// Package http exposes the administrative surface of the prediction
// client: composite health, metrics, breaker control, fallback cache
// control, and the prediction invoke endpoint itself.
package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bhuwanb23/profitpulse-sub001/internal/client"
	"github.com/bhuwanb23/profitpulse-sub001/internal/logging"
	"github.com/bhuwanb23/profitpulse-sub001/internal/resilience"
)

// Handlers holds the HTTP handlers for the prediction client.
type Handlers struct {
	client *client.Client
	logger *logging.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(c *client.Client, logger *logging.Logger) *Handlers {
	return &Handlers{client: c, logger: logger}
}

// Register mounts all routes on the router.
func (h *Handlers) Register(router *gin.Engine) {
	router.GET("/health", h.Liveness)

	api := router.Group("/api/predictions")
	{
		api.POST("/invoke", h.Invoke)
		api.GET("/operations", h.ListOperations)
		api.GET("/status", h.Status)
		api.POST("/health/check", h.ForceHealthCheck)
		api.GET("/metrics", h.MetricsJSON)
		api.GET("/metrics/text", h.MetricsText)
		api.GET("/breaker", h.BreakerStatus)
		api.POST("/breaker/reset", h.ResetBreaker)
		api.GET("/cache", h.CacheStats)
		api.DELETE("/cache", h.ClearCache)
		api.GET("/models/:model", h.ModelInfo)
	}
}

// Liveness reports that this service itself is up.
func (h *Handlers) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// invokeRequest is the body of POST /api/predictions/invoke. Option fields
// are pointers so unset fields fall back to configured defaults.
type invokeRequest struct {
	Operation string                 `json:"operation" binding:"required"`
	Payload   map[string]interface{} `json:"payload"`
	Options   *invokeOptions         `json:"options"`
}

type invokeOptions struct {
	UseCircuitBreaker *bool    `json:"use_circuit_breaker"`
	UseFallback       *bool    `json:"use_fallback"`
	CacheTTLMs        *int64   `json:"cache_ttl_ms"`
	Retries           *int     `json:"retries"`
	RetryDelayMs      *int64   `json:"retry_delay_ms"`
	RetryBackoff      *float64 `json:"retry_backoff"`
}

// Invoke executes a prediction operation through the resilient pipeline.
func (h *Handlers) Invoke(c *gin.Context) {
	var req invokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	opts := h.client.DefaultOptions()
	if req.Options != nil {
		applyOptions(&opts, req.Options)
	}

	result, err := h.client.Invoke(c.Request.Context(), req.Operation, req.Payload, &opts)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, client.ErrUnknownOperation):
			status = http.StatusBadRequest
		case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
			status = http.StatusServiceUnavailable
		default:
			var expected *resilience.ExpectedError
			if errors.As(err, &expected) {
				status = expected.Status
			}
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func applyOptions(opts *client.Options, in *invokeOptions) {
	if in.UseCircuitBreaker != nil {
		opts.UseCircuitBreaker = *in.UseCircuitBreaker
	}
	if in.UseFallback != nil {
		opts.UseFallback = *in.UseFallback
	}
	if in.CacheTTLMs != nil {
		opts.CacheTTL = time.Duration(*in.CacheTTLMs) * time.Millisecond
	}
	if in.Retries != nil {
		opts.Retries = *in.Retries
	}
	if in.RetryDelayMs != nil {
		opts.RetryDelay = time.Duration(*in.RetryDelayMs) * time.Millisecond
	}
	if in.RetryBackoff != nil {
		opts.RetryBackoff = *in.RetryBackoff
	}
}

// ListOperations returns the fixed operation catalogue.
func (h *Handlers) ListOperations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"operations": client.Operations()})
}

// Status returns the composite health status.
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.client.Status())
}

// ForceHealthCheck runs one synchronous probe.
func (h *Handlers) ForceHealthCheck(c *gin.Context) {
	snapshot := h.client.ForceHealthCheck(c.Request.Context())
	c.JSON(http.StatusOK, snapshot)
}

// MetricsJSON returns the aggregator snapshot.
func (h *Handlers) MetricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, h.client.MetricsSnapshot())
}

// MetricsText returns metrics in the flat key/value exposition format.
func (h *Handlers) MetricsText(c *gin.Context) {
	c.String(http.StatusOK, h.client.MetricsText())
}

// BreakerStatus returns circuit breaker statistics.
func (h *Handlers) BreakerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.client.BreakerStats())
}

// ResetBreaker forces the breaker closed.
func (h *Handlers) ResetBreaker(c *gin.Context) {
	h.client.ResetBreaker()
	h.logger.Info("breaker reset via admin API", zap.String("remote", c.ClientIP()))
	c.JSON(http.StatusOK, gin.H{"status": "reset", "breaker": h.client.BreakerStats()})
}

// CacheStats returns fallback cache statistics.
func (h *Handlers) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.client.FallbackCacheStats())
}

// ClearCache clears fallback entries, optionally restricted by the
// "pattern" query parameter.
func (h *Handlers) ClearCache(c *gin.Context) {
	pattern := c.Query("pattern")
	removed := h.client.ClearFallbackCache(pattern)
	c.JSON(http.StatusOK, gin.H{"removed": removed, "pattern": pattern})
}

// ModelInfo passes model metadata through from the remote service.
func (h *Handlers) ModelInfo(c *gin.Context) {
	info, err := h.client.ModelInfo(c.Request.Context(), c.Param("model"))
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, resilience.ErrCircuitOpen) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}
