// Package kv defines the KV capability from spec.md §4.C: a shared
// key/value store offering atomic increment with TTL, key scan, and
// delete. Grounded on jsndz-signalbus/pkg/database/redisClient.go.
package kv

import (
	"context"
	"time"
)

// KV is the volatile shared counter store the RateLimiter is backed by.
type KV interface {
	// IncrWithTTL atomically increments key and returns the new value. If
	// the increment transitions the key from absent/0 to 1, ttl is applied
	// (spec.md §4.E: hour + 60s overlap).
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Get returns the current value of key, or (0, false) if absent.
	Get(ctx context.Context, key string) (int64, bool, error)
	// Delete removes key.
	Delete(ctx context.Context, key string) error
	// Scan returns all keys matching prefix. Used by operational tooling
	// and tests; the core never scans on the hot path.
	Scan(ctx context.Context, prefix string) ([]string, error)
}
