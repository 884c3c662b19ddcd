// Package circuitbreaker guards calls to a publishing platform with a
// github.com/sony/gobreaker breaker. While a platform keeps failing, calls
// are rejected locally so queued retries do not pile onto the outage.
package circuitbreaker

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// Config describes when a breaker opens and how it probes for recovery.
type Config struct {
	// Name labels log lines and the state gauge.
	Name string

	// Probes is how many calls may pass while half-open.
	Probes uint32

	// Window resets the closed-state counts; zero never resets them.
	Window time.Duration

	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration

	// TripRatio opens the breaker once this share of calls in the window failed.
	TripRatio float64

	// MinSamples is how many calls the window needs before TripRatio applies.
	MinSamples uint32

	// IsSuccessful reports whether err leaves the breaker's failure count
	// untouched. Nil treats every error as a failure.
	IsSuccessful func(err error) bool
}

// PlatformConfig is the breaker used in front of a platform API. Outages on
// the platforms last minutes, so the breaker stays open for two.
func PlatformConfig(platform string) Config {
	return Config{
		Name:       platform + "-api",
		Probes:     2,
		Window:     time.Minute,
		Cooldown:   2 * time.Minute,
		TripRatio:  0.6,
		MinSamples: 5,
	}
}

// CircuitBreaker is a named gobreaker breaker that reports state changes.
type CircuitBreaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// New builds a breaker from cfg.
func New(cfg Config) *CircuitBreaker {
	return &CircuitBreaker{
		name: cfg.Name,
		cb:   gobreaker.NewCircuitBreaker(cfg.settings()),
	}
}

func (cfg Config) settings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.Probes,
		Interval:      cfg.Window,
		Timeout:       cfg.Cooldown,
		ReadyToTrip:   cfg.shouldTrip,
		OnStateChange: onStateChange,
		IsSuccessful:  cfg.IsSuccessful,
	}
}

func (cfg Config) shouldTrip(c gobreaker.Counts) bool {
	if c.Requests == 0 || c.Requests < cfg.MinSamples {
		return false
	}
	return float64(c.TotalFailures)/float64(c.Requests) >= cfg.TripRatio
}

func onStateChange(name string, from, to gobreaker.State) {
	slog.Warn("circuit breaker state changed",
		slog.String("circuit", name),
		slog.String("from", from.String()),
		slog.String("to", to.String()))
	RecordStateChange(name, to)
}

// Execute runs fn unless the breaker is open or out of half-open probes, in
// which case it fails fast with an error IsRejection recognises.
func (b *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return b.cb.Execute(fn)
}

// Name is the breaker name given in Config.
func (b *CircuitBreaker) Name() string { return b.name }

// State is the breaker's current state.
func (b *CircuitBreaker) State() gobreaker.State { return b.cb.State() }

// IsRejection reports whether err came from the breaker instead of the
// guarded call.
func IsRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
