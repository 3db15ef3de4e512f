// Package cache stores query results keyed by load generation.
package cache

import (
	"context"
	"fmt"
	"strings"
)

// KeyPrefix namespaces every cache key.
const KeyPrefix = "job_insights"

// Cache stores JSON-encodable query results.
type Cache interface {
	// Get decodes the value stored under key into dst and reports whether it was found.
	Get(ctx context.Context, key string, dst any) (bool, error)
	// Set stores value under key.
	Set(ctx context.Context, key string, value any) error
	Close() error
}

// Key builds "job_insights:<load id>:<op>:<args...>". Results of an older load
// are never addressed again once a new load id is current.
func Key(loadID, op string, args ...any) string {
	parts := make([]string, 0, 3+len(args))
	parts = append(parts, KeyPrefix, loadID, op)
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	return strings.Join(parts, ":")
}

// Noop never stores anything.
type Noop struct{}

// Get always misses.
func (Noop) Get(context.Context, string, any) (bool, error) { return false, nil }

// Set discards the value.
func (Noop) Set(context.Context, string, any) error { return nil }

// Close is a no-op.
func (Noop) Close() error { return nil }
