// Package postgres provides the Postgres-backed job store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snapvault/snapvault/internal/jobstore"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool behind the job store.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// querier is the slice of pgxpool.Pool the store needs; pgxmock implements
// it for tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists job records in Postgres.
type Store struct {
	pool  querier
	table string
}

// New creates a Postgres-backed job store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "jobs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing).
func NewWithPool(pool querier, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "jobs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Create inserts a new job record.
func (s *Store) Create(ctx context.Context, rec jobstore.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("job id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, status, urls_count, completed, archive_key, processed_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, s.table)

	args := []any{
		rec.ID,
		rec.Status,
		rec.URLsCount,
		rec.Completed,
		rec.ArchiveKey,
		rec.ProcessedAt,
		rec.CreatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Update applies the non-nil fields of patch to the job row. Patch fields
// are rendered in a fixed order so the generated SQL stays deterministic.
func (s *Store) Update(ctx context.Context, jobID string, patch jobstore.Update) error {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	idx := 1

	appendSet := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}
	if patch.Status != nil {
		appendSet("status", *patch.Status)
	}
	if patch.URLsCount != nil {
		appendSet("urls_count", *patch.URLsCount)
	}
	if patch.Completed != nil {
		appendSet("completed", *patch.Completed)
	}
	if patch.ArchiveKey != nil {
		appendSet("archive_key", *patch.ArchiveKey)
	}
	if patch.ProcessedAt != nil {
		appendSet("processed_at", *patch.ProcessedAt)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, jobID)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", s.table, strings.Join(sets, ", "), idx)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobstore.ErrNotFound
	}
	return nil
}

// Get fetches a job record by ID.
func (s *Store) Get(ctx context.Context, jobID string) (jobstore.Record, error) {
	query := fmt.Sprintf(`
SELECT id, status, urls_count, completed, archive_key, processed_at, created_at
FROM %s
WHERE id = $1`, s.table)

	var rec jobstore.Record
	err := s.pool.QueryRow(ctx, query, jobID).Scan(
		&rec.ID,
		&rec.Status,
		&rec.URLsCount,
		&rec.Completed,
		&rec.ArchiveKey,
		&rec.ProcessedAt,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return jobstore.Record{}, jobstore.ErrNotFound
		}
		return jobstore.Record{}, fmt.Errorf("get job: %w", err)
	}
	return rec, nil
}

// List returns job records newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]jobstore.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`
SELECT id, status, urls_count, completed, archive_key, processed_at, created_at
FROM %s
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`, s.table)

	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var recs []jobstore.Record
	for rows.Next() {
		var rec jobstore.Record
		err := rows.Scan(
			&rec.ID,
			&rec.Status,
			&rec.URLsCount,
			&rec.Completed,
			&rec.ArchiveKey,
			&rec.ProcessedAt,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return recs, nil
}
