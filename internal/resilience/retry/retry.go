// Package retry provides error-aware backoff with exponential growth and jitter.
// It is shared by the transport client (per-call retries) and the delivery
// queue (per-job re-queue delays), so both layers size delays the same way.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"social-relay/internal/domain/entity"
)

// DetailRateLimitReset is the ServiceError detail key carrying the epoch
// second at which a platform's rate-limit window resets.
const DetailRateLimitReset = "rate_limit_reset"

// Policy holds the configuration for backoff computation.
type Policy struct {
	// RetryDelay is the delay before the first retry
	RetryDelay time.Duration

	// Multiplier is the multiplier for exponential backoff
	Multiplier float64

	// MaxDelay caps every computed delay, jitter included
	MaxDelay time.Duration

	// Jitter is the upper bound of the uniform random delay added to each retry
	Jitter time.Duration

	// RateLimitFloor is the minimum delay after a rate-limited response
	// whose reset time is unknown
	RateLimitFloor time.Duration

	// UnavailableFloor is the minimum delay after a service-unavailable response
	UnavailableFloor time.Duration

	// Clock returns the current time. Nil means time.Now.
	Clock func() time.Time
}

// DefaultPolicy returns the queue-level policy: 2s doubling, 5m cap.
func DefaultPolicy() Policy {
	return Policy{
		RetryDelay:       2 * time.Second,
		Multiplier:       2.0,
		MaxDelay:         5 * time.Minute,
		Jitter:           1 * time.Second,
		RateLimitFloor:   60 * time.Second,
		UnavailableFloor: 30 * time.Second,
	}
}

// TransportPolicy returns the policy used for in-call retries by the transport client.
// In-call retries are short; long waits are left to the queue.
func TransportPolicy() Policy {
	return Policy{
		RetryDelay:       500 * time.Millisecond,
		Multiplier:       2.0,
		MaxDelay:         30 * time.Second,
		Jitter:           250 * time.Millisecond,
		RateLimitFloor:   15 * time.Second,
		UnavailableFloor: 5 * time.Second,
	}
}

func (p Policy) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now()
}

// Base returns the exponential component for attempt (1-indexed) without
// floors, jitter or cap.
func (p Policy) Base(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.RetryDelay) * math.Pow(mult, float64(attempt-1))
	if d > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Delay computes how long to wait before retrying after attempt failed with err.
//
//   - base = RetryDelay * Multiplier^(attempt-1)
//   - rate limited: wait until the reported reset if it lies ahead, otherwise at least RateLimitFloor
//   - service unavailable: at least UnavailableFloor
//   - plus uniform jitter in [0, Jitter)
//   - capped at MaxDelay
func (p Policy) Delay(attempt int, err error) time.Duration {
	delay := p.Base(attempt)

	var se *entity.ServiceError
	if errors.As(err, &se) {
		switch se.Code {
		case entity.CodeRateLimited:
			// A reset already in the past says nothing about when the
			// platform will accept requests again.
			floor := p.RateLimitFloor
			if reset, ok := ResetTime(se); ok {
				if wait := reset.Sub(p.now()); wait > 0 {
					floor = wait
				}
			}
			if delay < floor {
				delay = floor
			}
		case entity.CodeServiceUnavailable:
			if delay < p.UnavailableFloor {
				delay = p.UnavailableFloor
			}
		}
	}

	delay = addJitter(delay, p.Jitter)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// ResetTime extracts the rate-limit reset time recorded on a ServiceError.
func ResetTime(se *entity.ServiceError) (time.Time, bool) {
	if se == nil || se.Details == nil {
		return time.Time{}, false
	}
	switch v := se.Details[DetailRateLimitReset].(type) {
	case int64:
		if v > 0 {
			return time.Unix(v, 0), true
		}
	case int:
		if v > 0 {
			return time.Unix(int64(v), 0), true
		}
	case float64:
		if v > 0 {
			return time.Unix(int64(v), 0), true
		}
	case time.Time:
		if !v.IsZero() {
			return v, true
		}
	}
	return time.Time{}, false
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("retry aborted: %w", ctx.Err())
	}
}

// WithBackoff executes fn until it succeeds, returns a non-retryable error,
// or maxAttempts is reached. Only *entity.ServiceError values that report
// Retryable() are retried.
func WithBackoff(ctx context.Context, p Policy, maxAttempts int, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				slog.Info("operation succeeded after retry",
					slog.Int("attempt", attempt))
			}
			return nil
		}

		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		delay := p.Delay(attempt, lastErr)
		slog.Warn("operation failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.Duration("delay", delay),
			slog.Any("error", lastErr))

		if err := Sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("max retry attempts (%d) exceeded: %w", maxAttempts, lastErr)
}

// IsRetryable reports whether err is a retryable ServiceError.
func IsRetryable(err error) bool {
	var se *entity.ServiceError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return false
}

// addJitter adds uniform random jitter in [0, maxJitter).
func addJitter(d, maxJitter time.Duration) time.Duration {
	if maxJitter <= 0 {
		return d
	}
	return d + time.Duration(rand.Int64N(int64(maxJitter))) //nolint:gosec // jitter does not need crypto rand
}
