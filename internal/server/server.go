// Package server wires configuration, logging, the resilient prediction
// client, and the admin HTTP surface into one runnable service.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	apihttp "github.com/bhuwanb23/profitpulse-sub001/internal/api/http"
	"github.com/bhuwanb23/profitpulse-sub001/internal/api/middleware"
	"github.com/bhuwanb23/profitpulse-sub001/internal/client"
	"github.com/bhuwanb23/profitpulse-sub001/internal/config"
	"github.com/bhuwanb23/profitpulse-sub001/internal/fallback"
	"github.com/bhuwanb23/profitpulse-sub001/internal/health"
	"github.com/bhuwanb23/profitpulse-sub001/internal/logging"
	"github.com/bhuwanb23/profitpulse-sub001/internal/metrics"
)

// Admin surface rate limit. Generous: it only needs to stop a runaway
// dashboard, not shape real traffic.
const (
	adminRateLimitRPS   = 50
	adminRateLimitBurst = 100
)

// Server is the assembled service.
type Server struct {
	cfg     *config.Config
	logger  *logging.Logger
	http    *http.Server
	client  *client.Client
	monitor *health.Monitor
	cache   *fallback.Cache
	cron    *cron.Cron
}

// New builds the full dependency graph from configuration.
func New(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		File:        cfg.Logging.File,
		MaxSizeMB:   100,
		MaxBackups:  3,
		MaxAgeDays:  14,
	})
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	agg := metrics.NewAggregator(registry)

	transport := client.NewTransport(cfg.Prediction)

	monitorCfg := health.Config{
		Interval:           cfg.Health.Interval,
		Timeout:            cfg.Health.Timeout,
		ProbeRetries:       cfg.Health.ProbeRetries,
		UnhealthyThreshold: cfg.Health.UnhealthyThreshold,
		RecoveryThreshold:  cfg.Health.RecoveryThreshold,
		HistorySize:        cfg.Health.HistorySize,
	}
	monitor := health.NewMonitor(monitorCfg, health.HTTPProbe(cfg.Prediction.BaseURL, monitorCfg), logger)

	cache := fallback.NewCache(cfg.Fallback.MaxSize, cfg.Fallback.TTL)
	fb := fallback.NewProvider(cache, fallback.NewBuiltinRegistry(), logger)

	cli := client.New(cfg, transport, monitor, fb, agg, logger)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestLogger(logger),
		middleware.CORS(),
		middleware.RateLimit(adminRateLimitRPS, adminRateLimitBurst),
	)

	apihttp.NewHandlers(cli, logger).Register(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every "+cfg.Fallback.SweepEvery.String(), func() {
		if removed := cache.Sweep(); removed > 0 {
			logger.Debug("fallback cache swept", zap.Int("removed", removed))
		}
	}); err != nil {
		return nil, err
	}

	return &Server{
		cfg:    cfg,
		logger: logger,
		http: &http.Server{
			Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		client:  cli,
		monitor: monitor,
		cache:   cache,
		cron:    scheduler,
	}, nil
}

// Client exposes the prediction client for embedding callers.
func (s *Server) Client() *client.Client { return s.client }

// Logger exposes the service logger.
func (s *Server) Logger() *logging.Logger { return s.logger }

// Run starts background work and serves HTTP until the listener fails or
// Shutdown is called.
func (s *Server) Run() error {
	s.monitor.Start()
	s.cron.Start()

	s.logger.Info("server listening",
		zap.String("addr", s.http.Addr),
		zap.String("prediction_service", s.cfg.Prediction.BaseURL),
	)

	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains HTTP connections, then stops the sweep scheduler and the
// health monitor.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")

	err := s.http.Shutdown(ctx)

	cronCtx := s.cron.Stop()
	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
	}

	s.monitor.Stop()
	_ = s.logger.Sync()
	return err
}
