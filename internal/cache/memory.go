// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryCache is the in-process Cache used when no Redis URL is configured.
type MemoryCache struct {
	counters

	mu         sync.RWMutex
	entries    map[string]memoryEntry
	defaultTTL time.Duration
	maxSize    int
	now        func() time.Time
	stopCh     chan struct{}
	closed     atomic.Bool
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) liveAt(t time.Time) bool {
	return t.Before(e.expiresAt)
}

// MemoryCacheOptions configures the memory cache.
type MemoryCacheOptions struct {
	DefaultTTL      time.Duration
	MaxSize         int           // 0 = unlimited
	CleanupInterval time.Duration // 0 = expire lazily only
}

// NewMemoryCache creates a memory cache. With a cleanup interval it runs a
// sweeper goroutine until Close.
func NewMemoryCache(opts MemoryCacheOptions) *MemoryCache {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = time.Hour
	}
	c := &MemoryCache{
		entries:    make(map[string]memoryEntry),
		defaultTTL: opts.DefaultTTL,
		maxSize:    opts.MaxSize,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
	if opts.CleanupInterval > 0 {
		go c.sweepEvery(opts.CleanupInterval)
	}
	return c
}

// Get returns a copy of the stored value. An expired entry is dropped on
// the way out.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrCacheClosed
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && e.liveAt(c.now()) {
		c.hits.Add(1)
		return append([]byte(nil), e.value...), nil
	}
	if ok {
		c.mu.Lock()
		if cur, still := c.entries[key]; still && !cur.liveAt(c.now()) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
	}
	c.misses.Add(1)
	return nil, ErrCacheMiss
}

// Set stores a copy of value. A full cache drops expired entries first and
// then the live entry that would expire soonest.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	entry := memoryEntry{value: append([]byte(nil), value...)}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry.expiresAt = now.Add(ttl)
	if _, replacing := c.entries[key]; !replacing && c.full() {
		c.sweepLocked(now)
		if c.full() {
			c.evictSoonestLocked()
		}
	}
	c.entries[key] = entry
	c.sets.Add(1)
	return nil
}

// Delete removes a key from the cache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Close stops the sweeper. Further calls return ErrCacheClosed.
func (c *MemoryCache) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		close(c.stopCh)
	}
	return nil
}

// Stats reports traffic counters and the number of stored entries.
func (c *MemoryCache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return c.snapshot(n)
}

func (c *MemoryCache) full() bool {
	return c.maxSize > 0 && len(c.entries) >= c.maxSize
}

func (c *MemoryCache) sweepLocked(now time.Time) {
	for k, e := range c.entries {
		if !e.liveAt(now) {
			delete(c.entries, k)
		}
	}
}

func (c *MemoryCache) evictSoonestLocked() {
	var (
		victim  string
		soonest time.Time
		found   bool
	)
	for k, e := range c.entries {
		if !found || e.expiresAt.Before(soonest) {
			victim, soonest, found = k, e.expiresAt, true
		}
	}
	if found {
		delete(c.entries, victim)
	}
}

func (c *MemoryCache) sweepEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.sweepLocked(c.now())
			c.mu.Unlock()
		}
	}
}

var (
	_ Cache         = (*MemoryCache)(nil)
	_ StatsProvider = (*MemoryCache)(nil)
)
