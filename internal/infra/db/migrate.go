package db

import (
	"context"
	"database/sql"
	"fmt"
)

type step struct {
	name string
	stmt string
}

// postgresSchema is applied in order by Migrate. Every statement is idempotent.
var postgresSchema = []step{
	{"delivery_jobs", `
CREATE TABLE IF NOT EXISTS delivery_jobs (
    id             TEXT PRIMARY KEY,
    platform       VARCHAR(20) NOT NULL,
    content_id     TEXT NOT NULL DEFAULT '',
    collection_id  TEXT NOT NULL DEFAULT '',
    message        TEXT NOT NULL,
    media_urls     JSONB NOT NULL DEFAULT '[]',
    reply_to_id    TEXT NOT NULL DEFAULT '',
    quote_id       TEXT NOT NULL DEFAULT '',
    scheduled_at   TIMESTAMPTZ,
    status         VARCHAR(20) NOT NULL
                   CHECK (status IN ('queued', 'processing', 'published', 'failed', 'cancelled')),
    attempt        INT NOT NULL DEFAULT 0,
    max_attempts   INT NOT NULL,
    last_error     JSONB,
    result         JSONB,
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL,
    processed_at   TIMESTAMPTZ,
    next_retry_at  TIMESTAMPTZ
)`},
	// ClaimEligible scans queued jobs oldest first.
	{"idx_delivery_jobs_queued", `
CREATE INDEX IF NOT EXISTS idx_delivery_jobs_queued
    ON delivery_jobs (created_at) WHERE status = 'queued'`},
	// ListJobs filters by status; Cleanup sweeps terminal jobs by age.
	{"idx_delivery_jobs_status_updated", `
CREATE INDEX IF NOT EXISTS idx_delivery_jobs_status_updated
    ON delivery_jobs (status, updated_at)`},
}

// sqliteSchema mirrors postgresSchema. Timestamps are unix nanoseconds so
// eligibility comparisons are numeric.
var sqliteSchema = []step{
	{"delivery_jobs", `
CREATE TABLE IF NOT EXISTS delivery_jobs (
    id             TEXT PRIMARY KEY,
    platform       TEXT NOT NULL,
    content_id     TEXT NOT NULL DEFAULT '',
    collection_id  TEXT NOT NULL DEFAULT '',
    message        TEXT NOT NULL,
    media_urls     BLOB NOT NULL DEFAULT '[]',
    reply_to_id    TEXT NOT NULL DEFAULT '',
    quote_id       TEXT NOT NULL DEFAULT '',
    scheduled_at   INTEGER,
    status         TEXT NOT NULL
                   CHECK (status IN ('queued', 'processing', 'published', 'failed', 'cancelled')),
    attempt        INTEGER NOT NULL DEFAULT 0,
    max_attempts   INTEGER NOT NULL,
    last_error     BLOB,
    result         BLOB,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL,
    processed_at   INTEGER,
    next_retry_at  INTEGER
)`},
	{"idx_delivery_jobs_queued", `
CREATE INDEX IF NOT EXISTS idx_delivery_jobs_queued
    ON delivery_jobs (created_at) WHERE status = 'queued'`},
	{"idx_delivery_jobs_status_updated", `
CREATE INDEX IF NOT EXISTS idx_delivery_jobs_status_updated
    ON delivery_jobs (status, updated_at)`},
}

// Migrate creates the postgres delivery_jobs table and its indexes in one
// transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	return apply(ctx, db, postgresSchema)
}

// MigrateSQLite creates the sqlite delivery_jobs table and its indexes.
func MigrateSQLite(ctx context.Context, db *sql.DB) error {
	return apply(ctx, db, sqliteSchema)
}

func apply(ctx context.Context, db *sql.DB, steps []step) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, s := range steps {
		if _, err := tx.ExecContext(ctx, s.stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.name, err)
		}
	}
	return tx.Commit()
}
