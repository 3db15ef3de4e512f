// Package sqlite is the embedded single-file store. It persists the same
// tables as the PostgreSQL store and shares its read queries.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jonathan/job-insights/internal/db"
	"github.com/jonathan/job-insights/internal/types"
)

// schemaVersion is stored in PRAGMA user_version once migrations ran.
const schemaVersion = 1

// Store is a SQLite-backed store.
type Store struct {
	conn *sql.DB
	*db.Reader
}

// IsURL reports whether url selects this backend.
func IsURL(url string) bool {
	return strings.HasPrefix(url, "sqlite://") || strings.HasPrefix(url, "file:")
}

// PathFromURL returns the database file named by a sqlite:// or file: URL.
func PathFromURL(url string) string {
	switch {
	case strings.HasPrefix(url, "sqlite://"):
		url = strings.TrimPrefix(url, "sqlite://")
	case strings.HasPrefix(url, "file:"):
		url = strings.TrimPrefix(url, "file:")
	}
	if i := strings.IndexByte(url, '?'); i >= 0 {
		url = url[:i]
	}
	return url
}

// Open opens (creating if needed) the database file at path and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is empty")
	}
	// modernc sqlite uses DSN like: file:foo.db?_pragma=busy_timeout(5000)
	// _txlock=immediate takes the write lock at BEGIN so concurrent writers
	// queue on busy_timeout; read-only transactions still begin deferred.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate", path)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// one writer at a time; WAL lets readers keep their snapshot meanwhile
	conn.SetMaxOpenConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s := &Store{conn: conn, Reader: db.NewReader(db.SQLite, querier{conn: conn})}
	if err := s.Migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Migrate creates the schema unless user_version says it exists.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&v); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if v >= schemaVersion {
		return tx.Commit()
	}

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate sqlite database: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d;`, schemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return tx.Commit()
}

// ReplaceAll swaps every persisted record for batch and records run in one
// transaction. On error nothing changes.
func (s *Store) ReplaceAll(ctx context.Context, batch *types.Batch, run types.LoadRun) error {
	if batch == nil {
		batch = &types.Batch{}
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"job_postings", "jobs", "companies"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	d := db.SQLite
	inserts := []struct {
		table   string
		columns []string
		n       int
		row     func(i int) []any
	}{
		{"companies", db.CompanyColumns, len(batch.Companies), func(i int) []any { return d.CompanyValues(batch.Companies[i]) }},
		{"jobs", db.JobColumns, len(batch.Jobs), func(i int) []any { return d.JobValues(batch.Jobs[i]) }},
		{"job_postings", db.PostingColumns, len(batch.Postings), func(i int) []any { return d.PostingValues(batch.Postings[i]) }},
	}
	for _, ins := range inserts {
		if err := insertRows(ctx, tx, d.InsertSQL(ins.table, ins.columns), ins.n, ins.row); err != nil {
			return fmt.Errorf("failed to insert %s: %w", ins.table, err)
		}
	}

	values, err := d.LoadRunValues(run)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, d.InsertSQL("load_runs", db.LoadRunColumns), values...); err != nil {
		return fmt.Errorf("failed to record load run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit load: %w", err)
	}
	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, stmtText string, n int, row func(i int) []any) error {
	if n == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, stmtText)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	return nil
}

// querier adapts *sql.DB to db.Source.
type querier struct {
	conn *sql.DB
}

func (q querier) Query(ctx context.Context, query string, args ...any) (db.Rows, error) {
	rows, err := q.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// BeginRead opens a deferred read transaction. Under WAL its snapshot is fixed
// by the first SELECT and writers on other connections do not disturb it.
func (q querier) BeginRead(ctx context.Context) (db.ReadTx, error) {
	tx, err := q.conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	return readTx{tx: tx}, nil
}

type readTx struct {
	tx *sql.Tx
}

func (t readTx) Query(ctx context.Context, query string, args ...any) (db.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t readTx) Close(context.Context) error {
	return t.tx.Rollback()
}

var schema = []string{`
CREATE TABLE IF NOT EXISTS companies (
  company_id INTEGER PRIMARY KEY,
  company_name TEXT NOT NULL,
  company_name_normalized TEXT NOT NULL,
  company_url TEXT,
  location TEXT,
  sector TEXT,
  state TEXT
);`, `
CREATE TABLE IF NOT EXISTS jobs (
  job_id INTEGER PRIMARY KEY,
  company_id INTEGER REFERENCES companies(company_id),
  contract_type TEXT NOT NULL,
  experience_level TEXT NOT NULL,
  salary_rating REAL CHECK (salary_rating IS NULL OR salary_rating >= 0)
);`, `
CREATE TABLE IF NOT EXISTS job_postings (
  job_id INTEGER PRIMARY KEY REFERENCES jobs(job_id),
  job_url TEXT NOT NULL,
  apply_url TEXT,
  apply_type TEXT,
  posted_time TEXT NOT NULL,
  posted_date TEXT,
  views_count INTEGER CHECK (views_count IS NULL OR views_count >= 0),
  applications_raw TEXT NOT NULL,
  applications_count INTEGER CHECK (applications_count IS NULL OR applications_count >= 0),
  sector TEXT NOT NULL
);`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_company_id ON jobs(company_id);`,
	`CREATE INDEX IF NOT EXISTS idx_job_postings_posted_date ON job_postings(posted_date);`,
	`CREATE INDEX IF NOT EXISTS idx_job_postings_sector ON job_postings(sector);`, `
CREATE TABLE IF NOT EXISTS load_runs (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  loaded_at TEXT NOT NULL,
  companies_path TEXT NOT NULL,
  postings_path TEXT NOT NULL,
  jobs_path TEXT NOT NULL DEFAULT '',
  companies INTEGER NOT NULL,
  jobs INTEGER NOT NULL,
  postings INTEGER NOT NULL,
  warnings TEXT NOT NULL DEFAULT '{}'
);`,
}
