// Package postgres records per-URL download results in Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/site-downloader/internal/download"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "download_results"

// Config controls the Postgres connection pool used for result rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ResultStore writes one row per finalized URL.
type ResultStore struct {
	pool      execCloser
	table     string
	sessionID string
}

// NewResultStore connects to Postgres and returns a store tagging rows with sessionID.
func NewResultStore(ctx context.Context, cfg Config, sessionID string) (*ResultStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("results.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ResultStore{pool: pool, table: table, sessionID: sessionID}, nil
}

// NewResultStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewResultStoreWithPool(pool execCloser, table, sessionID string) (*ResultStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ResultStore{pool: pool, table: name, sessionID: sessionID}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// EnsureSchema creates the results table when it does not exist.
func (s *ResultStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	session_id TEXT NOT NULL,
	url TEXT NOT NULL,
	final_status_code INTEGER,
	succeeded BOOLEAN NOT NULL,
	total_attempts INTEGER NOT NULL,
	total_elapsed_ms BIGINT NOT NULL,
	content_size BIGINT NOT NULL,
	content_hash TEXT,
	saved_path TEXT,
	reason TEXT NOT NULL,
	error_kind TEXT,
	completed_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create results table: %w", err)
	}
	return nil
}

// Consume inserts a result row. A zero status code is stored as NULL.
func (s *ResultStore) Consume(ctx context.Context, result download.Result) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("result store is not configured")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	session_id,
	url,
	final_status_code,
	succeeded,
	total_attempts,
	total_elapsed_ms,
	content_size,
	content_hash,
	saved_path,
	reason,
	error_kind,
	completed_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)`, s.table)

	var code *int
	if result.FinalStatusCode != 0 {
		c := result.FinalStatusCode
		code = &c
	}
	args := []any{
		s.sessionID,
		result.URL,
		code,
		result.Succeeded,
		result.TotalAttempts,
		result.TotalElapsed.Milliseconds(),
		result.ContentSize,
		result.ContentHash,
		result.SavedPath,
		result.Reason,
		string(result.ErrorKind),
		result.CompletedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *ResultStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
