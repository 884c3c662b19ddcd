package postgres_test

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-relay/internal/domain/entity"
	"social-relay/internal/infra/adapter/persistence/postgres"
)

var columns = []string{
	"id", "platform", "content_id", "collection_id", "message", "media_urls", "reply_to_id", "quote_id",
	"scheduled_at", "status", "attempt", "max_attempts", "last_error", "result",
	"created_at", "updated_at", "processed_at", "next_retry_at",
}

var created = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func jobRow(rows *sqlmock.Rows, id, status string, createdAt time.Time, lastErr, result []byte) *sqlmock.Rows {
	var le, res driver.Value
	if lastErr != nil {
		le = lastErr
	}
	if result != nil {
		res = result
	}
	return rows.AddRow(
		id, "twitter", "doc-1", "posts", "hello", []byte(`["https://cdn.example.com/a.png"]`), "", "",
		nil, status, int64(1), int64(3), le, res,
		createdAt, createdAt, nil, nil,
	)
}

func TestJobStore_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	lastErr := []byte(`{"code":"RATE_LIMITED","message":"Too Many Requests","status_code":429,` +
		`"details":{"rate_limit_reset":1772357460},"service":"twitter","timestamp":"2026-03-01T09:30:05Z"}`)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM delivery_jobs WHERE id = $1`)).
		WithArgs("job-1").
		WillReturnRows(jobRow(sqlmock.NewRows(columns), "job-1", "queued", created, lastErr, nil))

	store := postgres.NewJobStore(db)
	got, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)

	wantErr := entity.NewServiceError("twitter", entity.CodeRateLimited, "Too Many Requests",
		entity.WithStatus(429), entity.WithDetail("rate_limit_reset", float64(1772357460)))
	wantErr.Timestamp = time.Date(2026, 3, 1, 9, 30, 5, 0, time.UTC)
	want := &entity.Job{
		ID:           "job-1",
		Platform:     entity.PlatformTwitter,
		ContentID:    "doc-1",
		CollectionID: "posts",
		Message:      "hello",
		MediaURLs:    []string{"https://cdn.example.com/a.png"},
		Status:       entity.StatusQueued,
		Attempt:      1,
		MaxAttempts:  3,
		LastError:    wantErr,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(entity.ServiceError{})); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, got.LastError.Retryable(), "retry flag is derived from the stored code")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_GetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`FROM delivery_jobs`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(columns))

	got, err := postgres.NewJobStore(db).Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_Put(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	next := created.Add(time.Minute)
	job := &entity.Job{
		ID:          "job-2",
		Platform:    entity.PlatformLinkedIn,
		Message:     "hi",
		Status:      entity.StatusQueued,
		Attempt:     1,
		MaxAttempts: 3,
		Result:      &entity.PublishResult{PostID: "urn:li:share:1"},
		CreatedAt:   created,
		UpdatedAt:   created,
		NextRetryAt: &next,
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO delivery_jobs`)).
		WithArgs(
			"job-2", "linkedin", "", "", "hi", []byte("[]"), "", "",
			nil, "queued", 1, 3, nil, []byte(`{"post_id":"urn:li:share:1"}`),
			created, created, nil, next,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, postgres.NewJobStore(db).Put(context.Background(), job))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows(columns)
	jobRow(rows, "a", "failed", created, nil, nil)
	jobRow(rows, "b", "failed", created.Add(time.Second), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE ($1 = '' OR status = $1)`)).
		WithArgs("failed").
		WillReturnRows(rows)

	got, err := postgres.NewJobStore(db).List(context.Background(), entity.StatusFailed)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, entity.StatusFailed, got[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_UpdateCommitsAcceptedChange(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs("job-1").
		WillReturnRows(jobRow(sqlmock.NewRows(columns), "job-1", "queued", created, nil, nil))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO delivery_jobs`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := postgres.NewJobStore(db).Update(context.Background(), "job-1", func(j *entity.Job) bool {
		j.Status = entity.StatusCancelled
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_UpdateRollsBackRejectedChange(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs("job-1").
		WillReturnRows(jobRow(sqlmock.NewRows(columns), "job-1", "processing", created, nil, nil))
	mock.ExpectRollback()

	got, err := postgres.NewJobStore(db).Update(context.Background(), "job-1", func(j *entity.Job) bool {
		return j.Status == entity.StatusQueued
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusProcessing, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_ClaimEligibleSortsByCreation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	now := created.Add(time.Hour)
	rows := sqlmock.NewRows(columns)
	jobRow(rows, "newer", "processing", created.Add(time.Second), nil, nil)
	jobRow(rows, "older", "processing", created, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE SKIP LOCKED`)).
		WithArgs(now, 5).
		WillReturnRows(rows)

	got, err := postgres.NewJobStore(db).ClaimEligible(context.Background(), now, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "older", got[0].ID)
	assert.Equal(t, "newer", got[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_CountByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(`GROUP BY status`)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("queued", int64(4)).
			AddRow("failed", int64(1)))

	got, err := postgres.NewJobStore(db).CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[entity.JobStatus]int{entity.StatusQueued: 4, entity.StatusFailed: 1}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_DeleteTerminalBefore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	cutoff := created.Add(-24 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM delivery_jobs`)).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := postgres.NewJobStore(db).DeleteTerminalBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
