// Package config loads and validates service configuration from
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// minRequestTimeout is the smallest accepted timeout for any remote call.
const minRequestTimeout = 100 * time.Millisecond

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Prediction PredictionConfig
	Breaker    BreakerConfig
	Health     HealthConfig
	Fallback   FallbackConfig
	Logging    LogConfig
	Features   FeatureConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// PredictionConfig holds remote prediction service configuration.
type PredictionConfig struct {
	BaseURL        string        `envconfig:"PREDICTION_BASE_URL" default:"http://localhost:5000"`
	APIKey         string        `envconfig:"PREDICTION_API_KEY"`
	RequestTimeout time.Duration `envconfig:"PREDICTION_TIMEOUT" default:"10s"`
	RetryCount     int           `envconfig:"PREDICTION_RETRIES" default:"3"`
	RetryDelay     time.Duration `envconfig:"PREDICTION_RETRY_DELAY" default:"1s"`
	RetryBackoff   float64       `envconfig:"PREDICTION_RETRY_BACKOFF" default:"2.0"`
	RateLimitRPS   float64       `envconfig:"PREDICTION_RATE_LIMIT_RPS" default:"0"`
}

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	FailureThreshold    uint32        `envconfig:"BREAKER_THRESHOLD" default:"5"`
	OpenDuration        time.Duration `envconfig:"BREAKER_OPEN_DURATION" default:"30s"`
	ResetDuration       time.Duration `envconfig:"BREAKER_RESET_DURATION" default:"60s"`
	HalfOpenMaxRequests uint32        `envconfig:"BREAKER_HALF_OPEN_REQUESTS" default:"2"`
	MonitoringWindow    time.Duration `envconfig:"BREAKER_MONITORING_WINDOW" default:"60s"`
}

// HealthConfig holds health monitor configuration.
type HealthConfig struct {
	Interval           time.Duration `envconfig:"HEALTH_CHECK_INTERVAL" default:"30s"`
	Timeout            time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`
	ProbeRetries       int           `envconfig:"HEALTH_CHECK_RETRIES" default:"1"`
	UnhealthyThreshold int           `envconfig:"HEALTH_UNHEALTHY_THRESHOLD" default:"3"`
	RecoveryThreshold  int           `envconfig:"HEALTH_RECOVERY_THRESHOLD" default:"2"`
	HistorySize        int           `envconfig:"HEALTH_HISTORY_SIZE" default:"100"`
}

// FallbackConfig holds fallback cache configuration.
type FallbackConfig struct {
	TTL        time.Duration `envconfig:"FALLBACK_CACHE_TTL" default:"5m"`
	MaxSize    int           `envconfig:"FALLBACK_CACHE_MAX_SIZE" default:"500"`
	SweepEvery time.Duration `envconfig:"FALLBACK_CACHE_SWEEP_INTERVAL" default:"1m"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
	File        string `envconfig:"LOG_FILE"`
}

// FeatureConfig enables or disables resilience features independently.
type FeatureConfig struct {
	CircuitBreaker bool `envconfig:"FEATURE_CIRCUIT_BREAKER" default:"true"`
	Fallback       bool `envconfig:"FEATURE_FALLBACK" default:"true"`
	Metrics        bool `envconfig:"FEATURE_METRICS" default:"true"`
}

// Load loads configuration from environment variables and validates it.
// Invalid configuration fails with the full list of violations.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidationError aggregates every configuration violation so operators fix
// them in one pass instead of one restart per mistake.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration (%d problems):\n  - %s",
		len(e.Problems), strings.Join(e.Problems, "\n  - "))
}

// Validate checks every field and returns an aggregated error.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Prediction.BaseURL == "" {
		add("PREDICTION_BASE_URL must not be empty")
	}
	if c.Prediction.RequestTimeout < minRequestTimeout {
		add("PREDICTION_TIMEOUT must be at least %s, got %s", minRequestTimeout, c.Prediction.RequestTimeout)
	}
	if c.Prediction.RetryCount < 0 {
		add("PREDICTION_RETRIES must not be negative, got %d", c.Prediction.RetryCount)
	}
	if c.Prediction.RetryDelay < 0 {
		add("PREDICTION_RETRY_DELAY must not be negative, got %s", c.Prediction.RetryDelay)
	}
	if c.Prediction.RetryBackoff < 1.0 {
		add("PREDICTION_RETRY_BACKOFF must be at least 1.0, got %g", c.Prediction.RetryBackoff)
	}

	if c.Breaker.FailureThreshold < 1 {
		add("BREAKER_THRESHOLD must be at least 1, got %d", c.Breaker.FailureThreshold)
	}
	if c.Breaker.OpenDuration <= 0 {
		add("BREAKER_OPEN_DURATION must be positive, got %s", c.Breaker.OpenDuration)
	}
	if c.Breaker.HalfOpenMaxRequests < 1 {
		add("BREAKER_HALF_OPEN_REQUESTS must be at least 1, got %d", c.Breaker.HalfOpenMaxRequests)
	}

	if c.Health.Interval <= 0 {
		add("HEALTH_CHECK_INTERVAL must be positive, got %s", c.Health.Interval)
	}
	if c.Health.Timeout < minRequestTimeout {
		add("HEALTH_CHECK_TIMEOUT must be at least %s, got %s", minRequestTimeout, c.Health.Timeout)
	}
	if c.Health.ProbeRetries < 0 {
		add("HEALTH_CHECK_RETRIES must not be negative, got %d", c.Health.ProbeRetries)
	}
	if c.Health.UnhealthyThreshold < 1 {
		add("HEALTH_UNHEALTHY_THRESHOLD must be at least 1, got %d", c.Health.UnhealthyThreshold)
	}
	if c.Health.RecoveryThreshold < 1 {
		add("HEALTH_RECOVERY_THRESHOLD must be at least 1, got %d", c.Health.RecoveryThreshold)
	}
	if c.Health.HistorySize < 1 {
		add("HEALTH_HISTORY_SIZE must be at least 1, got %d", c.Health.HistorySize)
	}

	if c.Fallback.TTL <= 0 {
		add("FALLBACK_CACHE_TTL must be positive, got %s", c.Fallback.TTL)
	}
	if c.Fallback.MaxSize < 1 {
		add("FALLBACK_CACHE_MAX_SIZE must be at least 1, got %d", c.Fallback.MaxSize)
	}
	if c.Fallback.SweepEvery <= 0 {
		add("FALLBACK_CACHE_SWEEP_INTERVAL must be positive, got %s", c.Fallback.SweepEvery)
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
