// Package sqlite provides a single-file job store for deployments without
// PostgreSQL. Timestamps are stored as UTC unix nanoseconds.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
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
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
       platform      = excluded.platform,
       content_id    = excluded.content_id,
       collection_id = excluded.collection_id,
       message       = excluded.message,
       media_urls    = excluded.media_urls,
       reply_to_id   = excluded.reply_to_id,
       quote_id      = excluded.quote_id,
       scheduled_at  = excluded.scheduled_at,
       status        = excluded.status,
       attempt       = excluded.attempt,
       max_attempts  = excluded.max_attempts,
       last_error    = excluded.last_error,
       result        = excluded.result,
       updated_at    = excluded.updated_at,
       processed_at  = excluded.processed_at,
       next_retry_at = excluded.next_retry_at`

type JobStore struct{ db *sql.DB }

// NewJobStore expects a handle from db.OpenSQLite with the schema applied.
func NewJobStore(db *sql.DB) repository.JobStore {
	return &JobStore{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func unixNano(t time.Time) int64 { return t.UTC().UnixNano() }

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return unixNano(*t)
}

func fromUnixNano(n int64) time.Time { return time.Unix(0, n).UTC() }

func fromNullable(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromUnixNano(n.Int64)
	return &t
}

func scanJob(row scanner) (*entity.Job, error) {
	var (
		job                             entity.Job
		cols                            jobcodec.Columns
		platform, status                string
		created, updated                int64
		scheduled, processed, nextRetry sql.NullInt64
	)
	if err := row.Scan(
		&job.ID, &platform, &job.ContentID, &job.CollectionID, &job.Message, &cols.MediaURLs,
		&job.ReplyToID, &job.QuoteID, &scheduled, &status, &job.Attempt, &job.MaxAttempts,
		&cols.LastError, &cols.Result, &created, &updated, &processed, &nextRetry,
	); err != nil {
		return nil, err
	}
	job.Platform = entity.Platform(platform)
	job.Status = entity.JobStatus(status)
	job.ScheduledAt = fromNullable(scheduled)
	job.CreatedAt = fromUnixNano(created)
	job.UpdatedAt = fromUnixNano(updated)
	job.ProcessedAt = fromNullable(processed)
	job.NextRetryAt = fromNullable(nextRetry)
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
		job.ReplyToID, job.QuoteID, nullableTime(job.ScheduledAt), string(job.Status), job.Attempt, job.MaxAttempts,
		jobcodec.Nullable(cols.LastError), jobcodec.Nullable(cols.Result),
		unixNano(job.CreatedAt), unixNano(job.UpdatedAt), nullableTime(job.ProcessedAt), nullableTime(job.NextRetryAt),
	}, nil
}

func collect(rows *sql.Rows) ([]*entity.Job, error) {
	defer func() { _ = rows.Close() }()

	var jobs []*entity.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (repo *JobStore) Get(ctx context.Context, id string) (*entity.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM delivery_jobs WHERE id = ? LIMIT 1`
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
WHERE (? = '' OR status = ?)
ORDER BY created_at ASC, id ASC`
	rows, err := repo.db.QueryContext(ctx, query, string(status), string(status))
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	jobs, err := collect(rows)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	if jobs == nil {
		jobs = []*entity.Job{}
	}
	return jobs, nil
}

// Update runs fn inside a transaction. The pool has a single connection, so
// the read and the write cannot interleave with another Update.
func (repo *JobStore) Update(ctx context.Context, id string, fn func(job *entity.Job) bool) (*entity.Job, error) {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + jobColumns + ` FROM delivery_jobs WHERE id = ?`
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

func (repo *JobStore) ClaimEligible(ctx context.Context, now time.Time, limit int) ([]*entity.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `
UPDATE delivery_jobs SET status = 'processing', updated_at = ?
WHERE id IN (
    SELECT id FROM delivery_jobs
    WHERE status = 'queued'
      AND (scheduled_at IS NULL OR scheduled_at <= ?)
      AND (next_retry_at IS NULL OR next_retry_at <= ?)
    ORDER BY created_at ASC, id ASC
    LIMIT ?)
RETURNING ` + jobColumns
	at := unixNano(now)
	rows, err := repo.db.QueryContext(ctx, query, at, at, at, limit)
	if err != nil {
		return nil, fmt.Errorf("ClaimEligible: %w", err)
	}
	jobs, err := collect(rows)
	if err != nil {
		return nil, fmt.Errorf("ClaimEligible: %w", err)
	}

	slices.SortFunc(jobs, func(a, b *entity.Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
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
  AND updated_at < ?`
	res, err := repo.db.ExecContext(ctx, query, unixNano(cutoff))
	if err != nil {
		return 0, fmt.Errorf("DeleteTerminalBefore: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteTerminalBefore: %w", err)
	}
	return int(n), nil
}
