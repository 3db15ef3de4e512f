// Package storage opens the store selected by a database URL.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonathan/job-insights/internal/db"
	"github.com/jonathan/job-insights/internal/db/sqlite"
	"github.com/jonathan/job-insights/internal/pipeline"
	"github.com/jonathan/job-insights/internal/query"
	"github.com/jonathan/job-insights/internal/types"
)

// Store is the full contract shared by the PostgreSQL and SQLite backends.
type Store interface {
	query.Store
	pipeline.Writer
	ReadBatch(ctx context.Context, limit int) (*types.Batch, error)
	TableCounts(ctx context.Context) (map[string]int64, error)
	Close() error
}

var (
	_ Store = (*db.DB)(nil)
	_ Store = (*sqlite.Store)(nil)
)

// Open connects to databaseURL: postgres:// and postgresql:// select
// PostgreSQL, sqlite:// and file: select an embedded SQLite file.
func Open(ctx context.Context, databaseURL string) (Store, error) {
	switch {
	case db.IsPostgresURL(databaseURL):
		pg, err := db.Connect(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case sqlite.IsURL(databaseURL):
		path := sqlite.PathFromURL(databaseURL)
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
		lite, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return lite, nil
	case databaseURL == "":
		return nil, fmt.Errorf("database URL is empty")
	default:
		return nil, fmt.Errorf("unsupported database URL %q: expected postgres://, postgresql://, sqlite:// or file:", databaseURL)
	}
}

// Backend names the backend databaseURL selects, for logs.
func Backend(databaseURL string) string {
	switch {
	case db.IsPostgresURL(databaseURL):
		return db.Postgres.Name
	case sqlite.IsURL(databaseURL):
		return db.SQLite.Name
	}
	return "unknown"
}
