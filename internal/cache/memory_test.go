// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// newTestMemoryCache returns a cache with a controllable clock.
func newTestMemoryCache(t *testing.T, opts MemoryCacheOptions) (*MemoryCache, *time.Time) {
	t.Helper()
	c := NewMemoryCache(opts)
	t.Cleanup(func() { _ = c.Close() })
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func cached(c *MemoryCache, key string) bool {
	_, err := c.Get(context.Background(), key)
	return err == nil
}

func TestMemoryCache_BasicOperations(t *testing.T) {
	c, _ := newTestMemoryCache(t, MemoryCacheOptions{DefaultTTL: time.Hour})
	ctx := context.Background()

	if err := c.Set(ctx, "key1", []byte("value1"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, err := c.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != "value1" {
		t.Errorf("expected value1, got %s", string(val))
	}

	if err := c.Delete(ctx, "key1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := c.Get(ctx, "key1"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
}

func TestMemoryCache_Expiration(t *testing.T) {
	c, now := newTestMemoryCache(t, MemoryCacheOptions{DefaultTTL: time.Minute})
	ctx := context.Background()

	_ = c.Set(ctx, "default", []byte("a"), 0)
	_ = c.Set(ctx, "long", []byte("b"), time.Hour)

	*now = now.Add(2 * time.Minute)

	if _, err := c.Get(ctx, "default"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expired Get error = %v, want ErrCacheMiss", err)
	}
	if _, err := c.Get(ctx, "long"); err != nil {
		t.Errorf("Get(long) error = %v", err)
	}
	if got := c.Stats().Items; got != 1 {
		t.Errorf("Items = %d, want 1 after lazy expiry", got)
	}
}

func TestMemoryCache_MaxSizeEvictsSoonestExpiry(t *testing.T) {
	c, now := newTestMemoryCache(t, MemoryCacheOptions{DefaultTTL: time.Hour, MaxSize: 2})
	ctx := context.Background()

	_ = c.Set(ctx, "short", []byte("1"), time.Minute)
	_ = c.Set(ctx, "long", []byte("2"), time.Hour)
	_ = c.Set(ctx, "new", []byte("3"), time.Hour)

	if cached(c, "short") {
		t.Error("entry closest to expiry should have been evicted")
	}
	for _, k := range []string{"long", "new"} {
		if !cached(c, k) {
			t.Errorf("%s should still exist", k)
		}
	}

	// Overwriting an existing key never evicts.
	_ = c.Set(ctx, "long", []byte("2b"), time.Hour)
	if got := c.Stats().Items; got != 2 {
		t.Errorf("Items = %d, want 2", got)
	}

	// Expired entries are swept before anything live is evicted.
	*now = now.Add(2 * time.Hour)
	_ = c.Set(ctx, "fresh", []byte("4"), time.Hour)
	if got := c.Stats().Items; got != 1 {
		t.Errorf("Items = %d, want 1 after sweep", got)
	}
}

func TestMemoryCache_Stats(t *testing.T) {
	c, _ := newTestMemoryCache(t, MemoryCacheOptions{})
	ctx := context.Background()

	if s := c.Stats(); s.HitRate != 0 {
		t.Errorf("HitRate on an unused cache = %f, want 0", s.HitRate)
	}

	_ = c.Set(ctx, "k", []byte("v"), 0)
	_, _ = c.Get(ctx, "k")
	_, _ = c.Get(ctx, "k")
	_, _ = c.Get(ctx, "missing")

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 || s.Sets != 1 || s.Items != 1 {
		t.Errorf("Stats = %+v, want 2 hits, 1 miss, 1 set, 1 item", s)
	}
	if s.HitRate < 66 || s.HitRate > 67 {
		t.Errorf("HitRate = %f, want ~66.7", s.HitRate)
	}
}

func TestMemoryCache_ValueCopy(t *testing.T) {
	c, _ := newTestMemoryCache(t, MemoryCacheOptions{})
	ctx := context.Background()

	in := []byte("original")
	_ = c.Set(ctx, "k", in, 0)
	in[0] = 'X'

	out, _ := c.Get(ctx, "k")
	if string(out) != "original" {
		t.Errorf("stored value mutated through input: %s", out)
	}
	out[0] = 'Y'
	again, _ := c.Get(ctx, "k")
	if string(again) != "original" {
		t.Errorf("stored value mutated through output: %s", again)
	}
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	c := NewMemoryCache(MemoryCacheOptions{MaxSize: 50, CleanupInterval: time.Millisecond})
	defer func() { _ = c.Close() }()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := range 100 {
				key := fmt.Sprintf("key-%d-%d", id, j%20)
				_ = c.Set(ctx, key, []byte("v"), 0)
				_, _ = c.Get(ctx, key)
				if j%10 == 0 {
					_ = c.Delete(ctx, key)
				}
			}
		}(i)
	}
	wg.Wait()

	if got := c.Stats().Items; got > 50 {
		t.Errorf("Items = %d, exceeds MaxSize", got)
	}
}

func TestMemoryCache_Close(t *testing.T) {
	c := NewMemoryCache(MemoryCacheOptions{CleanupInterval: time.Millisecond})
	ctx := context.Background()

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("Get after Close = %v, want ErrCacheClosed", err)
	}
	if err := c.Set(ctx, "k", nil, 0); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("Set after Close = %v, want ErrCacheClosed", err)
	}
	if err := c.Delete(ctx, "k"); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("Delete after Close = %v, want ErrCacheClosed", err)
	}
}
