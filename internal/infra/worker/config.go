package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"social-relay/internal/pkg/config"
	"social-relay/internal/resilience/retry"
	"social-relay/internal/usecase/delivery"
	"social-relay/internal/utils/text"
)

// Job store backends selectable with DELIVERY_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// WorkerConfig holds the settings of the delivery worker process.
//
// Every field is loaded from the environment by LoadConfigFromEnv. An
// invalid value never stops the process: the default is used instead, a
// warning is logged and the fallback metrics are updated.
type WorkerConfig struct {
	// Concurrency is the number of jobs published at the same time.
	// DELIVERY_CONCURRENCY, 1-50, default 3.
	Concurrency int

	// TickInterval is how often eligible jobs are claimed.
	// DELIVERY_TICK_INTERVAL, 100ms-1m, default 1s.
	TickInterval time.Duration

	// RetryDelay is the backoff before the second attempt.
	// DELIVERY_RETRY_DELAY, 100ms-1h, default 2s.
	RetryDelay time.Duration

	// BackoffMultiplier grows the delay after each failed attempt.
	// DELIVERY_BACKOFF_MULTIPLIER, 1-10, default 2.
	BackoffMultiplier float64

	// MaxDelay caps the backoff.
	// DELIVERY_MAX_DELAY, 1s-24h, default 5m.
	MaxDelay time.Duration

	// MaxAttempts applies to jobs that do not set their own bound.
	// DELIVERY_MAX_ATTEMPTS, 1-20, default 3.
	MaxAttempts int

	// JobTimeout bounds one publish attempt including media uploads.
	// DELIVERY_JOB_TIMEOUT, 10s-1h, default 5m.
	JobTimeout time.Duration

	// CleanupInterval is how often terminal jobs are swept.
	// DELIVERY_CLEANUP_INTERVAL, 1m-24h, default 1h.
	CleanupInterval time.Duration

	// CleanupSchedule replaces CleanupInterval when set.
	// DELIVERY_CLEANUP_SCHEDULE, cron expression or descriptor, default empty.
	CleanupSchedule string

	// CleanupMaxAge is how long terminal jobs are kept.
	// DELIVERY_CLEANUP_MAX_AGE, 1h-720h, default 24h.
	CleanupMaxAge time.Duration

	// Truncate shortens over-length messages at a word boundary instead of
	// rejecting them. DELIVERY_TRUNCATE, default false.
	Truncate bool

	// Store selects the job store backend.
	// DELIVERY_STORE, memory or postgres, default memory.
	Store string

	// HealthPort serves /health and /health/ready.
	// WORKER_HEALTH_PORT, 1024-65535, default 9091.
	HealthPort int

	// APIPort serves the job API.
	// API_PORT, 1024-65535, default 8080.
	APIPort int

	// MetricsPort serves /metrics.
	// METRICS_PORT, 1024-65535, default 9090.
	MetricsPort int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:       3,
		TickInterval:      1 * time.Second,
		RetryDelay:        2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          5 * time.Minute,
		MaxAttempts:       3,
		JobTimeout:        5 * time.Minute,
		CleanupInterval:   1 * time.Hour,
		CleanupMaxAge:     24 * time.Hour,
		Store:             StoreMemory,
		HealthPort:        9091,
		APIPort:           8080,
		MetricsPort:       9090,
	}
}

var (
	validateConcurrency = config.Between(1, 50)
	validateMaxAttempts = config.Between(1, 20)
	validatePort        = config.Between(1024, 65535)
	validateMultiplier  = config.Between(1.0, 10.0)
)

func validateCleanupSchedule(s string) error {
	if s == "" {
		return nil
	}
	return config.ValidateCronSchedule(s)
}

func validateStore(s string) error {
	switch s {
	case StoreMemory, StorePostgres, StoreSQLite:
		return nil
	}
	return fmt.Errorf("unknown store %q, expected %s, %s or %s", s, StoreMemory, StorePostgres, StoreSQLite)
}

var (
	tickRange          = config.Between(100*time.Millisecond, time.Minute)
	retryDelayRange    = config.Between(100*time.Millisecond, time.Hour)
	maxDelayRange      = config.Between(time.Second, 24*time.Hour)
	jobTimeoutRange    = config.Between(10*time.Second, time.Hour)
	cleanupRange       = config.Between(time.Minute, 24*time.Hour)
	cleanupMaxAgeRange = config.Between(time.Hour, 30*24*time.Hour)
)

// Validate checks every field and reports all violations together.
func (c *WorkerConfig) Validate() error {
	errs := []error{
		field("concurrency", validateConcurrency(c.Concurrency)),
		field("tick interval", tickRange(c.TickInterval)),
		field("retry delay", retryDelayRange(c.RetryDelay)),
		field("backoff multiplier", validateMultiplier(c.BackoffMultiplier)),
		field("max delay", maxDelayRange(c.MaxDelay)),
		field("max attempts", validateMaxAttempts(c.MaxAttempts)),
		field("job timeout", jobTimeoutRange(c.JobTimeout)),
		field("cleanup interval", cleanupRange(c.CleanupInterval)),
		field("cleanup schedule", validateCleanupSchedule(c.CleanupSchedule)),
		field("cleanup max age", cleanupMaxAgeRange(c.CleanupMaxAge)),
		field("store", validateStore(c.Store)),
		field("health port", validatePort(c.HealthPort)),
		field("api port", validatePort(c.APIPort)),
		field("metrics port", validatePort(c.MetricsPort)),
	}
	if c.RetryDelay > c.MaxDelay {
		errs = append(errs, fmt.Errorf("retry delay %v exceeds max delay %v", c.RetryDelay, c.MaxDelay))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

func field(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// QueueConfig converts the settings into the delivery queue configuration.
func (c *WorkerConfig) QueueConfig() delivery.Config {
	backoff := retry.DefaultPolicy()
	backoff.RetryDelay = c.RetryDelay
	backoff.Multiplier = c.BackoffMultiplier
	backoff.MaxDelay = c.MaxDelay

	qc := delivery.Config{
		Concurrency:     c.Concurrency,
		TickInterval:    c.TickInterval,
		MaxAttempts:     c.MaxAttempts,
		Backoff:         backoff,
		JobTimeout:      c.JobTimeout,
		CleanupInterval: c.CleanupInterval,
		CleanupSchedule: c.CleanupSchedule,
		CleanupMaxAge:   c.CleanupMaxAge,
	}
	if c.Truncate {
		qc.Truncator = text.WordBoundaryTruncator{}
	}
	return qc
}

// envLoader applies one loaded value, recording any fallback.
type envLoader struct {
	logger   *slog.Logger
	metrics  *WorkerMetrics
	fallback bool
}

func track[T any](l *envLoader, name string, r config.Result[T]) T {
	if r.FallbackApplied {
		l.fallback = true
		l.metrics.RecordFallback(name)
		for _, w := range r.Warnings {
			l.logger.Warn("configuration fallback applied",
				slog.String("field", name),
				slog.String("warning", w))
		}
	}
	return r.Value
}

// LoadConfigFromEnv loads WorkerConfig from the environment. It never
// returns an invalid configuration; the error is reserved for a
// combination of individually valid values that cannot work together.
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()
	l := &envLoader{logger: logger, metrics: metrics}

	cfg.Concurrency = track(l, "concurrency",
		config.LoadEnvInt("DELIVERY_CONCURRENCY", cfg.Concurrency, validateConcurrency))
	cfg.TickInterval = track(l, "tick_interval",
		config.LoadEnvDuration("DELIVERY_TICK_INTERVAL", cfg.TickInterval, tickRange))
	cfg.RetryDelay = track(l, "retry_delay",
		config.LoadEnvDuration("DELIVERY_RETRY_DELAY", cfg.RetryDelay, retryDelayRange))
	cfg.BackoffMultiplier = track(l, "backoff_multiplier",
		config.LoadEnvFloat("DELIVERY_BACKOFF_MULTIPLIER", cfg.BackoffMultiplier, validateMultiplier))
	cfg.MaxDelay = track(l, "max_delay",
		config.LoadEnvDuration("DELIVERY_MAX_DELAY", cfg.MaxDelay, maxDelayRange))
	cfg.MaxAttempts = track(l, "max_attempts",
		config.LoadEnvInt("DELIVERY_MAX_ATTEMPTS", cfg.MaxAttempts, validateMaxAttempts))
	cfg.JobTimeout = track(l, "job_timeout",
		config.LoadEnvDuration("DELIVERY_JOB_TIMEOUT", cfg.JobTimeout, jobTimeoutRange))
	cfg.CleanupInterval = track(l, "cleanup_interval",
		config.LoadEnvDuration("DELIVERY_CLEANUP_INTERVAL", cfg.CleanupInterval, cleanupRange))
	cfg.CleanupSchedule = track(l, "cleanup_schedule",
		config.LoadEnvWithFallback("DELIVERY_CLEANUP_SCHEDULE", cfg.CleanupSchedule, validateCleanupSchedule))
	cfg.CleanupMaxAge = track(l, "cleanup_max_age",
		config.LoadEnvDuration("DELIVERY_CLEANUP_MAX_AGE", cfg.CleanupMaxAge, cleanupMaxAgeRange))
	cfg.Truncate = track(l, "truncate",
		config.LoadEnvBool("DELIVERY_TRUNCATE", cfg.Truncate))
	cfg.Store = track(l, "store",
		config.LoadEnvWithFallback("DELIVERY_STORE", cfg.Store, validateStore))
	cfg.HealthPort = track(l, "health_port",
		config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, validatePort))
	cfg.APIPort = track(l, "api_port",
		config.LoadEnvInt("API_PORT", cfg.APIPort, validatePort))
	cfg.MetricsPort = track(l, "metrics_port",
		config.LoadEnvInt("METRICS_PORT", cfg.MetricsPort, validatePort))

	metrics.RecordLoaded(l.fallback)

	if err := cfg.Validate(); err != nil {
		return &cfg, err
	}

	logger.Info("worker configuration loaded",
		slog.Int("concurrency", cfg.Concurrency),
		slog.Duration("tick_interval", cfg.TickInterval),
		slog.Duration("retry_delay", cfg.RetryDelay),
		slog.Float64("backoff_multiplier", cfg.BackoffMultiplier),
		slog.Duration("max_delay", cfg.MaxDelay),
		slog.Int("max_attempts", cfg.MaxAttempts),
		slog.String("store", cfg.Store),
		slog.Bool("fallback_applied", l.fallback))
	return &cfg, nil
}
