// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/olegiv/pillar-engine/internal/model"
)

// HealthReportKey is where the latest link-health report is kept.
const HealthReportKey = "linkhealth:report"

// TypedCache stores JSON-encoded values of one type on top of a Cache.
type TypedCache[T any] struct {
	cache      Cache
	defaultTTL time.Duration
}

// NewTypedCache creates a new TypedCache wrapping the given cache implementation.
func NewTypedCache[T any](cache Cache, defaultTTL time.Duration) *TypedCache[T] {
	return &TypedCache[T]{cache: cache, defaultTTL: defaultTTL}
}

// NewHealthReportCache wraps c for link-health reports.
func NewHealthReportCache(c Cache, ttl time.Duration) *TypedCache[model.HealthReport] {
	return NewTypedCache[model.HealthReport](c, ttl)
}

// Get returns the value and true if found and decodable.
func (c *TypedCache[T]) Get(ctx context.Context, key string) (*T, bool) {
	data, err := c.cache.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, false
	}
	return &value, true
}

// Set stores value under key with the cache's default TTL.
func (c *TypedCache[T]) Set(ctx context.Context, key string, value *T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.cache.Set(ctx, key, data, c.defaultTTL)
}

// Delete removes a key from the cache.
func (c *TypedCache[T]) Delete(ctx context.Context, key string) error {
	return c.cache.Delete(ctx, key)
}

// GetOrSet returns the cached value or computes, stores and returns it.
// A failed store still returns the computed value.
func (c *TypedCache[T]) GetOrSet(ctx context.Context, key string, fn func(context.Context) (*T, error)) (*T, error) {
	if value, ok := c.Get(ctx, key); ok {
		return value, nil
	}
	value, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	_ = c.Set(ctx, key, value)
	return value, nil
}

// Stats returns the counters of the underlying cache, if it keeps any.
func (c *TypedCache[T]) Stats() (Stats, bool) {
	sp, ok := c.cache.(StatsProvider)
	if !ok {
		return Stats{}, false
	}
	return sp.Stats(), true
}
