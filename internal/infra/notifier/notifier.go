// Package notifier sends operator alerts when a delivery job fails
// permanently. Slack and Discord incoming webhooks are supported; each
// notifier applies its own rate limit and retries transient webhook errors.
package notifier

import (
	"context"
	"errors"
	"time"

	"social-relay/internal/domain/entity"
)

// Notifier delivers failure alerts to one channel.
type Notifier interface {
	// Name identifies the channel in logs and metrics.
	Name() string

	// NotifyFailure sends the alert. It returns an error only after the
	// channel's retries are exhausted.
	NotifyFailure(ctx context.Context, alert Alert) error
}

// Alert describes one job that reached the failed status.
type Alert struct {
	JobID     string
	Platform  string
	ContentID string
	Attempts  int
	Code      entity.ErrorCode
	Message   string
	Hint      string
	FailedAt  time.Time
}

// NewAlert builds the alert for job failing with err.
func NewAlert(job *entity.Job, err *entity.ServiceError) Alert {
	a := Alert{
		JobID:     job.ID,
		Platform:  string(job.Platform),
		ContentID: job.ContentID,
		Attempts:  job.Attempt,
		FailedAt:  time.Now().UTC(),
	}
	if err != nil {
		a.Code = err.Code
		a.Message = err.Message
		a.Hint = err.Code.Hint()
		if !err.Timestamp.IsZero() {
			a.FailedAt = err.Timestamp.UTC()
		}
	}
	return a
}

// Multi sends each alert to every notifier in order and joins the errors.
type Multi []Notifier

// Name implements Notifier.
func (m Multi) Name() string { return "multi" }

// NotifyFailure implements Notifier.
func (m Multi) NotifyFailure(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyFailure(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoOp discards alerts. It is used when no webhook is configured.
type NoOp struct{}

// Name implements Notifier.
func (NoOp) Name() string { return "noop" }

// NotifyFailure implements Notifier.
func (NoOp) NotifyFailure(context.Context, Alert) error { return nil }
