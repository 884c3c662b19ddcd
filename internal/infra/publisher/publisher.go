// Package publisher adapts delivery jobs to the publishing APIs of each
// supported platform.
//
// Each adapter owns a transport.Client configured with the platform's
// rate-limit headers and error classifier, so every error returned from
// Publish or VerifyCredentials is a *entity.ServiceError.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"social-relay/internal/domain/entity"
	"social-relay/internal/resilience/circuitbreaker"
	"social-relay/internal/resilience/retry"
)

// Publisher publishes a job to one platform.
type Publisher interface {
	Platform() entity.Platform
	Publish(ctx context.Context, job *entity.Job) (*entity.PublishResult, error)
	VerifyCredentials(ctx context.Context) error
}

// ErrNotConfigured is returned when no publisher is registered for a platform.
var ErrNotConfigured = errors.New("publisher not configured")

// Registry resolves the publisher for a job's platform. Its publishers can
// be swapped at runtime with Replace; calls already in progress finish on
// the publisher they started with.
type Registry struct {
	set atomic.Pointer[publisherSet]
}

type publisherSet struct {
	twitter  Publisher
	linkedin Publisher
}

// NewRegistry creates a registry from the given publishers. A later
// publisher for the same platform replaces an earlier one.
func NewRegistry(publishers ...Publisher) *Registry {
	r := &Registry{}
	r.Replace(publishers...)
	return r
}

// Replace installs a new set of publishers. Platforms missing from
// publishers become unconfigured.
func (r *Registry) Replace(publishers ...Publisher) {
	set := &publisherSet{}
	for _, p := range publishers {
		if p == nil {
			continue
		}
		switch p.Platform() {
		case entity.PlatformTwitter:
			set.twitter = p
		case entity.PlatformLinkedIn:
			set.linkedin = p
		default:
			slog.Warn("ignoring publisher for unsupported platform",
				slog.String("platform", string(p.Platform())))
		}
	}
	r.set.Store(set)
}

// Get returns the publisher for platform.
func (r *Registry) Get(platform entity.Platform) (Publisher, error) {
	set := r.set.Load()
	var p Publisher
	switch platform {
	case entity.PlatformTwitter:
		p = set.twitter
	case entity.PlatformLinkedIn:
		p = set.linkedin
	default:
		return nil, entity.NewServiceError(string(platform), entity.CodeValidationError,
			fmt.Sprintf("unsupported platform %q", platform))
	}
	if p == nil {
		return nil, entity.NewServiceError(string(platform), entity.CodeValidationError,
			fmt.Sprintf("no credentials configured for platform %q", platform),
			entity.WithCause(ErrNotConfigured))
	}
	return p, nil
}

// Configured returns the platforms that have a publisher.
func (r *Registry) Configured() []entity.Platform {
	var out []entity.Platform
	for _, platform := range entity.Platforms() {
		if _, err := r.Get(platform); err == nil {
			out = append(out, platform)
		}
	}
	return out
}

// Publish routes job to its platform's publisher.
func (r *Registry) Publish(ctx context.Context, job *entity.Job) (*entity.PublishResult, error) {
	p, err := r.Get(job.Platform)
	if err != nil {
		return nil, err
	}
	return p.Publish(ctx, job)
}

// VerifyCredentials checks the credentials of platform's publisher.
func (r *Registry) VerifyCredentials(ctx context.Context, platform entity.Platform) error {
	p, err := r.Get(platform)
	if err != nil {
		return err
	}
	return p.VerifyCredentials(ctx)
}

// Option customizes a publisher's transport.
type Option func(*options)

type options struct {
	httpClient *http.Client
	breaker    bool
	policy     retry.Policy
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

func defaultOptions() options {
	return options{
		breaker: true,
		policy:  retry.TransportPolicy(),
		logger:  slog.Default(),
		sleep:   retry.Sleep,
	}
}

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithoutCircuitBreaker disables the per-platform circuit breaker.
func WithoutCircuitBreaker() Option {
	return func(o *options) { o.breaker = false }
}

// WithRetryPolicy overrides the in-call retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSleep overrides how the publisher waits between media status polls.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = sleep }
}

func (o options) newBreaker(platform entity.Platform, isSuccessful func(error) bool) *circuitbreaker.CircuitBreaker {
	if !o.breaker {
		return nil
	}
	cfg := circuitbreaker.PlatformConfig(string(platform))
	cfg.IsSuccessful = isSuccessful
	return circuitbreaker.New(cfg)
}
