package delivery

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"social-relay/internal/domain/entity"
)

// OutcomeKind is the single transition applied after a publish attempt.
type OutcomeKind int

const (
	OutcomePublished OutcomeKind = iota
	OutcomeRetry
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePublished:
		return "published"
	case OutcomeRetry:
		return "retry"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the result of one publish attempt.
type Outcome struct {
	Kind   OutcomeKind
	Result *entity.PublishResult
	Err    *entity.ServiceError
	// Delay is set for OutcomeRetry.
	Delay time.Duration
}

// Hooks are invoked after a job's outcome has been stored. A panicking hook
// is recovered and logged; it never affects the job.
type Hooks struct {
	OnSuccess func(ctx context.Context, job *entity.Job, result *entity.PublishResult)
	OnFailure func(ctx context.Context, job *entity.Job, err *entity.ServiceError)
	OnRetry   func(ctx context.Context, job *entity.Job, err *entity.ServiceError, delay time.Duration)
}

// invoke calls the hook matching outcome. job is a copy owned by the hook.
func (h Hooks) invoke(ctx context.Context, logger *slog.Logger, job *entity.Job, outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			RecordHookPanic(outcome.Kind.String())
			logger.Error("panic in delivery hook",
				slog.String("job_id", job.ID),
				slog.String("outcome", outcome.Kind.String()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	switch outcome.Kind {
	case OutcomePublished:
		if h.OnSuccess != nil {
			h.OnSuccess(ctx, job, outcome.Result)
		}
	case OutcomeFailed:
		if h.OnFailure != nil {
			h.OnFailure(ctx, job, outcome.Err)
		}
	case OutcomeRetry:
		if h.OnRetry != nil {
			h.OnRetry(ctx, job, outcome.Err, outcome.Delay)
		}
	}
}
