package repository

import (
	"context"
	"time"

	"social-relay/internal/domain/entity"
)

// JobStore persists delivery jobs. Implementations return copies so callers
// never share mutable state with the store.
//
// Get and Update return a nil job when id is unknown.
type JobStore interface {
	Get(ctx context.Context, id string) (*entity.Job, error)
	Put(ctx context.Context, job *entity.Job) error

	// List returns jobs ordered by CreatedAt. An empty status lists every job.
	List(ctx context.Context, status entity.JobStatus) ([]*entity.Job, error)

	// Update applies fn to the stored job atomically. The change is
	// persisted only when fn returns true.
	Update(ctx context.Context, id string, fn func(job *entity.Job) bool) (*entity.Job, error)

	// ClaimEligible moves up to limit queued jobs that are eligible at now
	// to processing and returns them, oldest first.
	ClaimEligible(ctx context.Context, now time.Time, limit int) ([]*entity.Job, error)

	// CountByStatus returns the number of jobs in each status.
	CountByStatus(ctx context.Context) (map[entity.JobStatus]int, error)

	// DeleteTerminalBefore removes terminal jobs last updated before cutoff.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}
