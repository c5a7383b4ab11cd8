// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package cache holds short-lived copies of computed reports, such as the
// link-health dashboard, in memory or in Redis.
package cache

import (
	"context"
	"sync/atomic"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry expiry.
// Implementations are safe for concurrent use.
type Cache interface {
	// Get returns ErrCacheMiss when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl uses the cache default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error
	Close() error
}

// StatsProvider is implemented by caches that count their traffic.
type StatsProvider interface {
	Stats() Stats
}

// Stats counts the traffic seen by this process.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	Items   int     `json:"items,omitempty"` // memory backend only
	HitRate float64 `json:"hit_rate"`
}

// counters is embedded by both backends.
type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

func (c *counters) snapshot(items int) Stats {
	s := Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Sets: c.sets.Load(), Items: items}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total) * 100
	}
	return s
}

// Error represents an error type for cache operations.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	// ErrCacheMiss indicates the key was not found in cache or has expired.
	ErrCacheMiss Error = "cache miss"

	// ErrCacheClosed indicates the cache has been closed.
	ErrCacheClosed Error = "cache closed"
)
