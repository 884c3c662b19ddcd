// Package delivery implements the asynchronous delivery queue.
//
// AddJob validates and stores a job without blocking on the network. A
// ticker claims eligible jobs from the store and publishes each one in its
// own dispatch unit, bounded by Config.Concurrency. Every attempt ends in
// exactly one Outcome: published, queued again after a backoff, or failed.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"social-relay/internal/domain/entity"
	"social-relay/internal/observability/tracing"
	"social-relay/internal/repository"
	"social-relay/internal/utils/text"
)

// Publisher publishes a job to its platform. *publisher.Registry satisfies it.
type Publisher interface {
	Publish(ctx context.Context, job *entity.Job) (*entity.PublishResult, error)
}

// Stats counts jobs per status.
type Stats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Published  int `json:"published"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}

// Option customizes a Queue.
type Option func(*Queue)

// WithHooks sets the completion hooks.
func WithHooks(h Hooks) Option {
	return func(q *Queue) { q.hooks = h }
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithClock replaces time.Now for scheduling decisions.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// Queue owns job state transitions between AddJob and a terminal status.
type Queue struct {
	store     repository.JobStore
	publisher Publisher
	cfg       Config
	hooks     Hooks
	logger    *slog.Logger
	now       func() time.Time
	slots     *semaphore.Weighted
	units     sync.WaitGroup

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	cron   *cron.Cron
}

// NewQueue creates a stopped queue. Call Start to begin dispatching.
func NewQueue(store repository.JobStore, pub Publisher, cfg Config, opts ...Option) *Queue {
	q := &Queue{
		store:     store,
		publisher: pub,
		cfg:       cfg.withDefaults(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.cfg.Backoff.Clock == nil {
		q.cfg.Backoff.Clock = q.now
	}
	q.slots = semaphore.NewWeighted(int64(q.cfg.Concurrency))
	return q
}

// AddJob validates spec and queues a new job. Validation failures are
// returned as *entity.ValidationError and nothing is stored.
func (q *Queue) AddJob(ctx context.Context, spec entity.JobSpec) (string, error) {
	now := q.now()

	if q.cfg.Truncator != nil && spec.Platform.Valid() {
		if limit := spec.Platform.Limits().MaxCharacters; text.CountRunes(spec.Message) > limit {
			spec.Message = q.cfg.Truncator.Truncate(spec.Message, limit)
		}
	}
	if err := entity.ValidateJobSpec(spec, now); err != nil {
		return "", err
	}

	maxAttempts := spec.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = q.cfg.MaxAttempts
	}

	job := &entity.Job{
		ID:           uuid.NewString(),
		Platform:     spec.Platform,
		ContentID:    spec.ContentID,
		CollectionID: spec.CollectionID,
		Message:      spec.Message,
		MediaURLs:    spec.MediaURLs,
		ReplyToID:    spec.ReplyToID,
		QuoteID:      spec.QuoteID,
		ScheduledAt:  spec.ScheduledAt,
		Status:       entity.StatusQueued,
		MaxAttempts:  maxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := q.store.Put(ctx, job); err != nil {
		return "", fmt.Errorf("add job: %w", err)
	}

	RecordEnqueued(job.Platform)
	q.logger.Info("job queued",
		slog.String("job_id", job.ID),
		slog.String("platform", string(job.Platform)),
		slog.Int("media", len(job.MediaURLs)),
		slog.Int("max_attempts", job.MaxAttempts))
	return job.ID, nil
}

// GetJob returns a copy of the job.
func (q *Queue) GetJob(ctx context.Context, id string) (*entity.Job, error) {
	job, err := q.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// ListJobs returns jobs in status, oldest first. An empty status lists all jobs.
func (q *Queue) ListJobs(ctx context.Context, status entity.JobStatus) ([]*entity.Job, error) {
	if status != "" && !status.Valid() {
		return nil, &entity.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	jobs, err := q.store.List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// CancelJob cancels a queued job. It reports false when the job does not
// exist, is being processed, or has already reached a terminal status.
func (q *Queue) CancelJob(ctx context.Context, id string) (bool, error) {
	cancelled := false
	_, err := q.store.Update(ctx, id, func(job *entity.Job) bool {
		if job.Status != entity.StatusQueued {
			return false
		}
		job.Status = entity.StatusCancelled
		job.UpdatedAt = q.now()
		job.NextRetryAt = nil
		cancelled = true
		return true
	})
	if err != nil {
		return false, fmt.Errorf("cancel job: %w", err)
	}
	if cancelled {
		RecordCancelled()
		q.logger.Info("job cancelled", slog.String("job_id", id))
	}
	return cancelled, nil
}

// RetryJob re-queues a failed job with a fresh attempt budget. It reports
// false for jobs in any other status.
func (q *Queue) RetryJob(ctx context.Context, id string) (bool, error) {
	requeued := false
	job, err := q.store.Update(ctx, id, func(job *entity.Job) bool {
		if job.Status != entity.StatusFailed {
			return false
		}
		job.Status = entity.StatusQueued
		job.Attempt = 0
		job.LastError = nil
		job.NextRetryAt = nil
		job.UpdatedAt = q.now()
		requeued = true
		return true
	})
	if err != nil {
		return false, fmt.Errorf("retry job: %w", err)
	}
	if requeued {
		RecordEnqueued(job.Platform)
		q.logger.Info("failed job re-queued", slog.String("job_id", id))
	}
	return requeued, nil
}

// Stats returns job counts per status.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	counts, err := q.store.CountByStatus(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	s := Stats{
		Queued:     counts[entity.StatusQueued],
		Processing: counts[entity.StatusProcessing],
		Published:  counts[entity.StatusPublished],
		Failed:     counts[entity.StatusFailed],
		Cancelled:  counts[entity.StatusCancelled],
	}
	s.Total = s.Queued + s.Processing + s.Published + s.Failed + s.Cancelled
	return s, nil
}

// Start launches the dispatch ticker and the cleanup schedule. It returns
// immediately; the loop runs until Stop is called or ctx is cancelled.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		return ErrQueueRunning
	}

	if err := q.requeueStale(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New()
	if _, err := c.AddFunc(q.cfg.cleanupSpec(), func() {
		_, _ = q.cleanup(runCtx)
	}); err != nil {
		cancel()
		return fmt.Errorf("schedule cleanup: %w", err)
	}
	c.Start()

	q.cancel = cancel
	q.cron = c
	q.done = make(chan struct{})
	go q.run(runCtx, q.done)

	q.logger.Info("delivery queue started",
		slog.Int("concurrency", q.cfg.Concurrency),
		slog.Duration("tick_interval", q.cfg.TickInterval),
		slog.String("cleanup_schedule", q.cfg.cleanupSpec()))
	return nil
}

// Stop halts dispatching and waits for in-flight units until ctx expires.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	cancel, done, c := q.cancel, q.done, q.cron
	q.cancel, q.done, q.cron = nil, nil, nil
	q.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	<-done
	cronDone := c.Stop()

	finished := make(chan struct{})
	go func() {
		q.units.Wait()
		<-cronDone.Done()
		close(finished)
	}()

	select {
	case <-finished:
		q.logger.Info("delivery queue stopped")
		return nil
	case <-ctx.Done():
		q.logger.Warn("delivery queue stop timed out with units in flight")
		return ctx.Err()
	}
}

// Running reports whether the dispatch loop is active.
func (q *Queue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancel != nil
}

func (q *Queue) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(q.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.dispatch(ctx)
		}
	}
}

// requeueStale returns jobs left in processing by a previous process to the queue.
func (q *Queue) requeueStale(ctx context.Context) error {
	stale, err := q.store.List(ctx, entity.StatusProcessing)
	if err != nil {
		return fmt.Errorf("list stale jobs: %w", err)
	}
	for _, job := range stale {
		if _, err := q.store.Update(ctx, job.ID, func(j *entity.Job) bool {
			if j.Status != entity.StatusProcessing {
				return false
			}
			j.Status = entity.StatusQueued
			j.UpdatedAt = q.now()
			return true
		}); err != nil {
			return fmt.Errorf("requeue stale job %s: %w", job.ID, err)
		}
		q.logger.Warn("stale processing job re-queued", slog.String("job_id", job.ID))
	}
	return nil
}

// dispatch claims as many eligible jobs as there are free slots and starts
// one unit per job. It returns the number of units started.
func (q *Queue) dispatch(ctx context.Context) int {
	free := 0
	for free < q.cfg.Concurrency && q.slots.TryAcquire(1) {
		free++
	}
	if free == 0 {
		return 0
	}

	jobs, err := q.store.ClaimEligible(ctx, q.now(), free)
	if err != nil {
		q.slots.Release(int64(free))
		q.logger.Error("claim eligible jobs failed", slog.Any("error", err))
		return 0
	}
	if unused := free - len(jobs); unused > 0 {
		q.slots.Release(int64(unused))
	}

	unitCtx := context.WithoutCancel(ctx)
	for _, job := range jobs {
		q.units.Add(1)
		go q.runUnit(unitCtx, job)
	}

	if stats, err := q.Stats(ctx); err == nil {
		RecordStats(stats)
	}
	return len(jobs)
}

// runUnit performs one attempt of a claimed job.
func (q *Queue) runUnit(ctx context.Context, job *entity.Job) {
	defer q.units.Done()
	defer q.slots.Release(1)

	ctx, cancel := context.WithTimeout(ctx, q.cfg.JobTimeout)
	defer cancel()

	ctx, span := tracing.GetTracer().Start(ctx, "delivery.process",
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("job.platform", string(job.Platform)),
		))
	defer span.End()

	job.Attempt++
	job.UpdatedAt = q.now()
	if err := q.store.Put(ctx, job); err != nil {
		q.logger.Error("record attempt failed",
			slog.String("job_id", job.ID),
			slog.Any("error", err))
	}

	start := time.Now()
	outcome := q.processJob(ctx, job)
	RecordOutcome(job.Platform, outcome, time.Since(start))

	span.SetAttributes(
		attribute.Int("job.attempt", job.Attempt),
		attribute.String("job.outcome", outcome.Kind.String()))
	tracing.FailSpan(span, outcome.Err)

	q.apply(context.WithoutCancel(ctx), job, outcome)
	q.hooks.invoke(ctx, q.logger, job.Clone(), outcome)
}

// processJob publishes job and decides its outcome.
func (q *Queue) processJob(ctx context.Context, job *entity.Job) Outcome {
	res, err := q.publish(ctx, job)
	if err == nil {
		if res == nil {
			res = &entity.PublishResult{}
		}
		return Outcome{Kind: OutcomePublished, Result: res}
	}

	se := entity.AsServiceError(string(job.Platform), err)
	if !se.Retryable() || job.AttemptsExhausted() {
		return Outcome{Kind: OutcomeFailed, Err: se}
	}
	return Outcome{
		Kind:  OutcomeRetry,
		Err:   se,
		Delay: q.cfg.Backoff.Delay(job.Attempt, se),
	}
}

// publish calls the publisher, converting a panic into a terminal error.
func (q *Queue) publish(ctx context.Context, job *entity.Job) (res *entity.PublishResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("panic in publisher",
				slog.String("job_id", job.ID),
				slog.String("platform", string(job.Platform)),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			res = nil
			err = entity.NewServiceError(string(job.Platform), entity.CodeUnknown,
				fmt.Sprintf("publisher panicked: %v", r))
		}
	}()
	return q.publisher.Publish(ctx, job.Clone())
}

// apply stores the transition described by outcome.
func (q *Queue) apply(ctx context.Context, job *entity.Job, outcome Outcome) {
	now := q.now()
	job.UpdatedAt = now

	logAttrs := []any{
		slog.String("job_id", job.ID),
		slog.String("platform", string(job.Platform)),
		slog.Int("attempt", job.Attempt),
		slog.Int("max_attempts", job.MaxAttempts),
	}

	switch outcome.Kind {
	case OutcomePublished:
		job.Status = entity.StatusPublished
		job.Result = outcome.Result
		job.LastError = nil
		job.NextRetryAt = nil
		job.ProcessedAt = &now
		q.logger.Info("job published", append(logAttrs, slog.String("post_id", outcome.Result.PostID))...)
	case OutcomeRetry:
		job.Status = entity.StatusQueued
		job.LastError = outcome.Err
		next := now.Add(outcome.Delay)
		job.NextRetryAt = &next
		q.logger.Warn("job attempt failed, retrying", append(logAttrs,
			slog.String("code", string(outcome.Err.Code)),
			slog.Duration("delay", outcome.Delay),
			slog.String("error", outcome.Err.Message))...)
	case OutcomeFailed:
		job.Status = entity.StatusFailed
		job.LastError = outcome.Err
		job.NextRetryAt = nil
		job.ProcessedAt = &now
		q.logger.Error("job failed", append(logAttrs,
			slog.String("code", string(outcome.Err.Code)),
			slog.Bool("retryable", outcome.Err.Retryable()),
			slog.String("error", outcome.Err.Message))...)
	}

	if err := q.store.Put(ctx, job); err != nil {
		q.logger.Error("store job outcome failed",
			slog.String("job_id", job.ID),
			slog.String("outcome", outcome.Kind.String()),
			slog.Any("error", err))
	}
}

// cleanup deletes terminal jobs older than CleanupMaxAge.
func (q *Queue) cleanup(ctx context.Context) (int, error) {
	cutoff := q.now().Add(-q.cfg.CleanupMaxAge)
	n, err := q.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		q.logger.Error("job cleanup failed", slog.Any("error", err))
		return 0, err
	}
	if n > 0 {
		RecordCleaned(n)
		q.logger.Info("terminal jobs cleaned up",
			slog.Int("removed", n),
			slog.Time("cutoff", cutoff))
	}
	return n, nil
}
