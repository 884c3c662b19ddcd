// Package db opens the SQL job stores, postgres or sqlite, and manages
// their schema.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"social-relay/pkg/config"
)

// ErrMissingDSN is returned when DATABASE_URL is not set.
var ErrMissingDSN = errors.New("DATABASE_URL not set")

const pingTimeout = 5 * time.Second

// Pool sizes the database/sql connection pool. The queue holds at most one
// connection per worker plus the dispatcher and the API, so the defaults
// stay small.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// DefaultPool is used for every DB_* variable that is unset or not positive.
var DefaultPool = Pool{
	MaxOpen:     10,
	MaxIdle:     5,
	MaxLifetime: time.Hour,
	MaxIdleTime: 30 * time.Minute,
}

// PoolFromEnv reads DB_MAX_OPEN_CONNS, DB_MAX_IDLE_CONNS,
// DB_CONN_MAX_LIFETIME and DB_CONN_MAX_IDLE_TIME.
func PoolFromEnv() Pool {
	return Pool{
		MaxOpen:     positive(config.GetEnvInt("DB_MAX_OPEN_CONNS", DefaultPool.MaxOpen), DefaultPool.MaxOpen),
		MaxIdle:     positive(config.GetEnvInt("DB_MAX_IDLE_CONNS", DefaultPool.MaxIdle), DefaultPool.MaxIdle),
		MaxLifetime: positive(config.GetEnvDuration("DB_CONN_MAX_LIFETIME", DefaultPool.MaxLifetime), DefaultPool.MaxLifetime),
		MaxIdleTime: positive(config.GetEnvDuration("DB_CONN_MAX_IDLE_TIME", DefaultPool.MaxIdleTime), DefaultPool.MaxIdleTime),
	}
}

func positive[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

func (p Pool) apply(db *sql.DB) {
	db.SetMaxOpenConns(p.MaxOpen)
	db.SetMaxIdleConns(p.MaxIdle)
	db.SetConnMaxLifetime(p.MaxLifetime)
	db.SetConnMaxIdleTime(p.MaxIdleTime)
}

// Open connects to dsn with the pgx stdlib driver and pings it. The pool is
// sized from the environment.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, ErrMissingDSN
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pool := PoolFromEnv()
	pool.apply(db)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("database connected",
		slog.Int("max_open_conns", pool.MaxOpen),
		slog.Int("max_idle_conns", pool.MaxIdle),
		slog.Duration("conn_max_lifetime", pool.MaxLifetime))
	return db, nil
}
