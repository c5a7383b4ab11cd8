// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Cache shared by every process pointing at the same Redis.
type RedisCache struct {
	counters

	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
	closed     atomic.Bool
}

// dialTimeout bounds the connection check made by DialRedis.
const dialTimeout = 5 * time.Second

// DialRedis opens the cache described by rawURL and checks the connection
// before returning. Pool size and timeouts can be tuned through the URL
// query, e.g. redis://host:6379/0?pool_size=5&read_timeout=2s.
func DialRedis(rawURL, prefix string, defaultTTL time.Duration) (*RedisCache, error) {
	if rawURL == "" {
		return nil, errors.New("redis URL is required")
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	if opts.DialTimeout <= 0 || opts.DialTimeout > dialTimeout {
		opts.DialTimeout = dialTimeout
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", RedactURL(rawURL), err)
	}
	return &RedisCache{client: client, prefix: prefix, defaultTTL: defaultTTL}, nil
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

// Get returns ErrCacheMiss for an absent key and the client error when
// Redis cannot be reached.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrCacheClosed
	}

	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	c.hits.Add(1)
	return val, nil
}

// Set writes value with SET ... EX ttl.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return err
	}
	c.sets.Add(1)
	return nil
}

// Delete removes a key from the cache.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}
	return c.client.Del(ctx, c.key(key)).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		return c.client.Close()
	}
	return nil
}

// Stats reports this process's traffic. Keys written by other processes
// are not counted.
func (c *RedisCache) Stats() Stats {
	return c.snapshot(0)
}

var (
	_ Cache         = (*RedisCache)(nil)
	_ StatsProvider = (*RedisCache)(nil)
)
