package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-relay/internal/domain/entity"
)

func noJitterPolicy() Policy {
	p := DefaultPolicy()
	p.Jitter = 0
	return p
}

func TestPolicy_Base(t *testing.T) {
	p := noJitterPolicy()

	assert.Equal(t, 2*time.Second, p.Base(1))
	assert.Equal(t, 4*time.Second, p.Base(2))
	assert.Equal(t, 8*time.Second, p.Base(3))
	assert.Equal(t, 2*time.Second, p.Base(0), "attempt below 1 treated as first attempt")
}

func TestPolicy_Delay_Exponential(t *testing.T) {
	p := noJitterPolicy()
	err := entity.NewServiceError("twitter", entity.CodeServerError, "boom")

	assert.Equal(t, 2*time.Second, p.Delay(1, err))
	assert.Equal(t, 4*time.Second, p.Delay(2, err))
	assert.Equal(t, 5*time.Minute, p.Delay(20, err), "delay must be capped at MaxDelay")
}

func TestPolicy_Delay_RateLimitFloor(t *testing.T) {
	p := noJitterPolicy()
	err := entity.NewServiceError("twitter", entity.CodeRateLimited, "slow down", entity.WithStatus(429))

	assert.Equal(t, 60*time.Second, p.Delay(1, err))
	assert.Equal(t, 64*time.Second, p.Delay(6, err), "base above the floor wins")
}

func TestPolicy_Delay_RateLimitResetAware(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	p := noJitterPolicy()
	p.Clock = func() time.Time { return now }

	err := entity.NewServiceError("twitter", entity.CodeRateLimited, "slow down",
		entity.WithDetail(DetailRateLimitReset, now.Add(10*time.Second).Unix()))

	assert.Equal(t, 10*time.Second, p.Delay(1, err))

	far := entity.NewServiceError("twitter", entity.CodeRateLimited, "slow down",
		entity.WithDetail(DetailRateLimitReset, now.Add(time.Hour).Unix()))
	assert.Equal(t, 5*time.Minute, p.Delay(1, far), "reset wait is still capped")
}

func TestPolicy_Delay_RateLimitPastResetUsesFloor(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	p := noJitterPolicy()
	p.Clock = func() time.Time { return now }

	err := entity.NewServiceError("twitter", entity.CodeRateLimited, "slow down",
		entity.WithDetail(DetailRateLimitReset, now.Add(-time.Hour).Unix()))

	assert.Equal(t, 60*time.Second, p.Delay(1, err))
}

func TestPolicy_Delay_ServiceUnavailableFloor(t *testing.T) {
	p := noJitterPolicy()
	err := entity.NewServiceError("linkedin", entity.CodeServiceUnavailable, "maintenance", entity.WithStatus(503))

	assert.Equal(t, 30*time.Second, p.Delay(1, err))
}

func TestPolicy_Delay_JitterBounds(t *testing.T) {
	p := DefaultPolicy()
	err := entity.NewServiceError("twitter", entity.CodeTimeout, "slow")

	for i := 0; i < 200; i++ {
		d := p.Delay(1, err)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 3*time.Second)
	}
}

func TestPolicy_Delay_Monotonic(t *testing.T) {
	p := DefaultPolicy()
	err := entity.NewServiceError("twitter", entity.CodeNetworkError, "reset by peer")

	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		d := p.Delay(attempt, err)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, d, p.MaxDelay)
		prev = d
	}
}

func TestResetTime(t *testing.T) {
	_, ok := ResetTime(nil)
	assert.False(t, ok)

	at := time.Unix(1_700_000_000, 0)
	for _, v := range []any{at.Unix(), int(at.Unix()), float64(at.Unix()), at} {
		se := entity.NewServiceError("x", entity.CodeRateLimited, "m", entity.WithDetail(DetailRateLimitReset, v))
		got, ok := ResetTime(se)
		require.True(t, ok)
		assert.True(t, got.Equal(at))
	}
}

func TestWithBackoff_SuccessAfterRetry(t *testing.T) {
	p := Policy{RetryDelay: time.Millisecond, Multiplier: 2, MaxDelay: 10 * time.Millisecond}

	attempts := 0
	err := WithBackoff(context.Background(), p, 3, func() error {
		attempts++
		if attempts < 3 {
			return entity.NewServiceError("db", entity.CodeConnectionFailed, "refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithBackoff_NonRetryableStopsImmediately(t *testing.T) {
	p := Policy{RetryDelay: time.Millisecond, Multiplier: 2, MaxDelay: 10 * time.Millisecond}
	terminal := entity.NewServiceError("twitter", entity.CodeAuthenticationFailed, "bad creds")

	attempts := 0
	err := WithBackoff(context.Background(), p, 5, func() error {
		attempts++
		return terminal
	})

	assert.Same(t, terminal, err)
	assert.Equal(t, 1, attempts)
}

func TestWithBackoff_PlainErrorsAreNotRetried(t *testing.T) {
	p := Policy{RetryDelay: time.Millisecond}
	attempts := 0
	err := WithBackoff(context.Background(), p, 3, func() error {
		attempts++
		return errors.New("plain")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithBackoff_MaxAttemptsExceeded(t *testing.T) {
	p := Policy{RetryDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond}
	transient := entity.NewServiceError("db", entity.CodeTimeout, "slow")

	attempts := 0
	err := WithBackoff(context.Background(), p, 3, func() error {
		attempts++
		return transient
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, attempts)
}

func TestWithBackoff_ContextCanceled(t *testing.T) {
	p := Policy{RetryDelay: time.Second, Multiplier: 2, MaxDelay: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithBackoff(ctx, p, 3, func() error {
		return entity.NewServiceError("db", entity.CodeTimeout, "slow")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleep_ZeroDuration(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), 0))
}
