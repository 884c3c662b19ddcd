package delivery

import (
	"time"

	"social-relay/internal/resilience/retry"
	"social-relay/internal/utils/text"
)

// defaultMaxAttempts applies when a job spec leaves MaxAttempts at zero.
const defaultMaxAttempts = 3

// Config controls dispatch, backoff and cleanup.
type Config struct {
	// Concurrency is the number of jobs published at the same time
	Concurrency int

	// TickInterval is how often eligible jobs are scanned
	TickInterval time.Duration

	// MaxAttempts is the default attempt bound for new jobs
	MaxAttempts int

	// Backoff sizes the delay before a failed job becomes eligible again
	Backoff retry.Policy

	// JobTimeout bounds one publish attempt, media uploads included
	JobTimeout time.Duration

	// CleanupInterval is how often terminal jobs are swept
	CleanupInterval time.Duration

	// CleanupSchedule is a cron expression that replaces CleanupInterval when set
	CleanupSchedule string

	// CleanupMaxAge is how long terminal jobs are kept
	CleanupMaxAge time.Duration

	// Truncator shortens over-length messages on AddJob. Nil rejects them.
	Truncator text.Truncator
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     3,
		TickInterval:    1 * time.Second,
		MaxAttempts:     defaultMaxAttempts,
		Backoff:         retry.DefaultPolicy(),
		JobTimeout:      5 * time.Minute,
		CleanupInterval: 1 * time.Hour,
		CleanupMaxAge:   24 * time.Hour,
	}
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.Backoff.RetryDelay <= 0 {
		c.Backoff = d.Backoff
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = d.JobTimeout
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.CleanupMaxAge <= 0 {
		c.CleanupMaxAge = d.CleanupMaxAge
	}
	return c
}

// cleanupSpec returns the cron spec for the cleanup sweep.
func (c Config) cleanupSpec() string {
	if c.CleanupSchedule != "" {
		return c.CleanupSchedule
	}
	return "@every " + c.CleanupInterval.String()
}
