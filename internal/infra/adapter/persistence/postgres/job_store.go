// Package postgres provides a job store backed by PostgreSQL through the pgx
// stdlib driver. Jobs survive restarts, but delivery stays at-least-once.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"social-relay/internal/domain/entity"
	"social-relay/internal/infra/adapter/persistence/jobcodec"
	"social-relay/internal/repository"
)

const jobColumns = `id, platform, content_id, collection_id, message, media_urls, reply_to_id, quote_id,
scheduled_at, status, attempt, max_attempts, last_error, result,
created_at, updated_at, processed_at, next_retry_at`

const upsertJob = `
INSERT INTO delivery_jobs (` + jobColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
ON CONFLICT (id) DO UPDATE SET
       platform      = EXCLUDED.platform,
       content_id    = EXCLUDED.content_id,
       collection_id = EXCLUDED.collection_id,
       message       = EXCLUDED.message,
       media_urls    = EXCLUDED.media_urls,
       reply_to_id   = EXCLUDED.reply_to_id,
       quote_id      = EXCLUDED.quote_id,
       scheduled_at  = EXCLUDED.scheduled_at,
       status        = EXCLUDED.status,
       attempt       = EXCLUDED.attempt,
       max_attempts  = EXCLUDED.max_attempts,
       last_error    = EXCLUDED.last_error,
       result        = EXCLUDED.result,
       updated_at    = EXCLUDED.updated_at,
       processed_at  = EXCLUDED.processed_at,
       next_retry_at = EXCLUDED.next_retry_at`

type JobStore struct{ db *sql.DB }

func NewJobStore(db *sql.DB) repository.JobStore {
	return &JobStore{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

// scanJob scans one row selected with jobColumns.
func scanJob(row scanner) (*entity.Job, error) {
	var (
		job              entity.Job
		cols             jobcodec.Columns
		platform, status string
	)
	if err := row.Scan(
		&job.ID, &platform, &job.ContentID, &job.CollectionID, &job.Message, &cols.MediaURLs,
		&job.ReplyToID, &job.QuoteID, &job.ScheduledAt, &status, &job.Attempt, &job.MaxAttempts,
		&cols.LastError, &cols.Result, &job.CreatedAt, &job.UpdatedAt, &job.ProcessedAt, &job.NextRetryAt,
	); err != nil {
		return nil, err
	}
	job.Platform = entity.Platform(platform)
	job.Status = entity.JobStatus(status)
	if err := jobcodec.Decode(&job, cols); err != nil {
		return nil, err
	}
	return &job, nil
}

func jobArgs(job *entity.Job) ([]any, error) {
	cols, err := jobcodec.Encode(job)
	if err != nil {
		return nil, err
	}
	return []any{
		job.ID, string(job.Platform), job.ContentID, job.CollectionID, job.Message, cols.MediaURLs,
		job.ReplyToID, job.QuoteID, job.ScheduledAt, string(job.Status), job.Attempt, job.MaxAttempts,
		jobcodec.Nullable(cols.LastError), jobcodec.Nullable(cols.Result),
		job.CreatedAt, job.UpdatedAt, job.ProcessedAt, job.NextRetryAt,
	}, nil
}

func (repo *JobStore) Get(ctx context.Context, id string) (*entity.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM delivery_jobs WHERE id = $1 LIMIT 1`
	job, err := scanJob(repo.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return job, nil
}

func (repo *JobStore) Put(ctx context.Context, job *entity.Job) error {
	args, err := jobArgs(job)
	if err != nil {
		return fmt.Errorf("Put: %w", err)
	}
	if _, err := repo.db.ExecContext(ctx, upsertJob, args...); err != nil {
		return fmt.Errorf("Put: %w", err)
	}
	return nil
}

func (repo *JobStore) List(ctx context.Context, status entity.JobStatus) ([]*entity.Job, error) {
	query := `SELECT ` + jobColumns + `
FROM delivery_jobs
WHERE ($1 = '' OR status = $1)
ORDER BY created_at ASC, id ASC`
	rows, err := repo.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]*entity.Job, 0, 50)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (repo *JobStore) Update(ctx context.Context, id string, fn func(job *entity.Job) bool) (*entity.Job, error) {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + jobColumns + ` FROM delivery_jobs WHERE id = $1 FOR UPDATE`
	job, err := scanJob(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}

	if !fn(job) {
		return job, nil
	}
	args, err := jobArgs(job)
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsertJob, args...); err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Update: commit: %w", err)
	}
	return job, nil
}

// ClaimEligible flips eligible jobs to processing in one statement. SKIP
// LOCKED keeps concurrent workers from claiming the same row.
func (repo *JobStore) ClaimEligible(ctx context.Context, now time.Time, limit int) ([]*entity.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `
UPDATE delivery_jobs SET status = 'processing', updated_at = $1
WHERE id IN (
    SELECT id FROM delivery_jobs
    WHERE status = 'queued'
      AND (scheduled_at IS NULL OR scheduled_at <= $1)
      AND (next_retry_at IS NULL OR next_retry_at <= $1)
    ORDER BY created_at ASC, id ASC
    LIMIT $2
    FOR UPDATE SKIP LOCKED)
RETURNING ` + jobColumns
	rows, err := repo.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("ClaimEligible: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*entity.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("ClaimEligible: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ClaimEligible: %w", err)
	}

	// RETURNING does not preserve the subquery order.
	slices.SortFunc(jobs, func(a, b *entity.Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return jobs, nil
}

func (repo *JobStore) CountByStatus(ctx context.Context) (map[entity.JobStatus]int, error) {
	const query = `SELECT status, COUNT(*) FROM delivery_jobs GROUP BY status`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("CountByStatus: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[entity.JobStatus]int, 5)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("CountByStatus: %w", err)
		}
		counts[entity.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

func (repo *JobStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	const query = `
DELETE FROM delivery_jobs
WHERE status IN ('published', 'failed', 'cancelled')
  AND updated_at < $1`
	res, err := repo.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("DeleteTerminalBefore: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteTerminalBefore: %w", err)
	}
	return int(n), nil
}
