// Package db provides PostgreSQL storage for normalized job-market loads and
// the SQL shared with the embedded SQLite store.
package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/job-insights/internal/types"
)

// replaceLockKey serializes concurrent ReplaceAll calls across processes.
const replaceLockKey int64 = 0x6a6f6273

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
	*Reader
}

// Connect establishes a connection pool to the database and applies migrations
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{pool: pool, Reader: NewReader(Postgres, pgQuerier{pool: pool})}
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the connection pool
func (db *DB) Close() error {
	if db.pool != nil {
		db.pool.Close()
	}
	return nil
}

// Migrate creates the tables and indexes if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// ReplaceAll swaps every persisted record for batch and records run, all in
// one transaction. On error nothing changes.
func (db *DB) ReplaceAll(ctx context.Context, batch *types.Batch, run types.LoadRun) error {
	if batch == nil {
		batch = &types.Batch{}
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, replaceLockKey); err != nil {
		return fmt.Errorf("failed to acquire replace lock: %w", err)
	}

	for _, table := range []string{"job_postings", "jobs", "companies"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	d := Postgres
	copies := []struct {
		table   string
		columns []string
		n       int
		row     func(i int) []any
	}{
		{"companies", CompanyColumns, len(batch.Companies), func(i int) []any { return d.CompanyValues(batch.Companies[i]) }},
		{"jobs", JobColumns, len(batch.Jobs), func(i int) []any { return d.JobValues(batch.Jobs[i]) }},
		{"job_postings", PostingColumns, len(batch.Postings), func(i int) []any { return d.PostingValues(batch.Postings[i]) }},
	}
	for _, c := range copies {
		if c.n == 0 {
			continue
		}
		row := c.row
		copied, err := tx.CopyFrom(ctx, pgx.Identifier{c.table}, c.columns,
			pgx.CopyFromSlice(c.n, func(i int) ([]any, error) { return row(i), nil }))
		if err != nil {
			return fmt.Errorf("failed to copy %s: %w", c.table, err)
		}
		if copied != int64(c.n) {
			return fmt.Errorf("failed to copy %s: wrote %d of %d rows", c.table, copied, c.n)
		}
	}

	values, err := d.LoadRunValues(run)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, d.InsertSQL("load_runs", LoadRunColumns), values...); err != nil {
		return fmt.Errorf("failed to record load run: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit load: %w", err)
	}
	return nil
}

// pgQuerier adapts a pool to Querier.
type pgQuerier struct {
	pool *pgxpool.Pool
}

func (q pgQuerier) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := q.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgRows{rows}, nil
}

// BeginRead opens a read-only REPEATABLE READ transaction, so every statement
// in it reads the same snapshot.
func (q pgQuerier) BeginRead(ctx context.Context) (ReadTx, error) {
	tx, err := q.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	return pgReadTx{tx: tx}, nil
}

type pgReadTx struct {
	tx pgx.Tx
}

func (t pgReadTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgRows{rows}, nil
}

func (t pgReadTx) Close(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

type pgRows struct {
	pgx.Rows
}

func (r pgRows) Close() error {
	r.Rows.Close()
	return nil
}

// IsPostgresURL reports whether url selects this backend.
func IsPostgresURL(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS companies (
	company_id              BIGINT PRIMARY KEY,
	company_name            TEXT NOT NULL,
	company_name_normalized TEXT NOT NULL,
	company_url             TEXT,
	location                TEXT,
	sector                  TEXT,
	state                   TEXT
);

CREATE TABLE IF NOT EXISTS jobs (
	job_id           BIGINT PRIMARY KEY,
	company_id       BIGINT REFERENCES companies (company_id),
	contract_type    TEXT NOT NULL,
	experience_level TEXT NOT NULL,
	salary_rating    DOUBLE PRECISION CHECK (salary_rating IS NULL OR salary_rating >= 0)
);

CREATE TABLE IF NOT EXISTS job_postings (
	job_id             BIGINT PRIMARY KEY REFERENCES jobs (job_id),
	job_url            TEXT NOT NULL,
	apply_url          TEXT,
	apply_type         TEXT,
	posted_time        TEXT NOT NULL,
	posted_date        TIMESTAMPTZ,
	views_count        BIGINT CHECK (views_count IS NULL OR views_count >= 0),
	applications_raw   TEXT NOT NULL,
	applications_count BIGINT CHECK (applications_count IS NULL OR applications_count >= 0),
	sector             TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_company_id ON jobs (company_id);
CREATE INDEX IF NOT EXISTS idx_job_postings_posted_date ON job_postings (posted_date);
CREATE INDEX IF NOT EXISTS idx_job_postings_sector ON job_postings (sector);

CREATE TABLE IF NOT EXISTS load_runs (
	seq            BIGSERIAL PRIMARY KEY,
	id             UUID NOT NULL UNIQUE,
	loaded_at      TIMESTAMPTZ NOT NULL,
	companies_path TEXT NOT NULL,
	postings_path  TEXT NOT NULL,
	jobs_path      TEXT NOT NULL DEFAULT '',
	companies      INTEGER NOT NULL,
	jobs           INTEGER NOT NULL,
	postings       INTEGER NOT NULL,
	warnings       JSONB NOT NULL DEFAULT '{}'
);
`
