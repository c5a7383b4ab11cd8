// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"log/slog"
	"net/url"
	"time"
)

// Backend names the implementation chosen by Open.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

// Config holds configuration for cache creation.
type Config struct {
	// RedisURL selects the Redis backend when set.
	RedisURL string

	// Prefix is the Redis key prefix.
	Prefix string

	DefaultTTL      time.Duration
	MaxSize         int
	CleanupInterval time.Duration
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		Prefix:          "pillar:",
		DefaultTTL:      time.Hour,
		MaxSize:         1000,
		CleanupInterval: time.Minute,
	}
}

// Open creates the configured cache. An unreachable Redis falls back to the
// memory backend with a warning so the dashboard keeps working.
func Open(cfg Config, logger *slog.Logger) (Cache, Backend) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.RedisURL != "" {
		rc, err := DialRedis(cfg.RedisURL, cfg.Prefix, cfg.DefaultTTL)
		if err == nil {
			logger.Info("cache backend ready", "backend", BackendRedis, "url", RedactURL(cfg.RedisURL))
			return rc, BackendRedis
		}
		logger.Warn("redis unavailable, using memory cache",
			"url", RedactURL(cfg.RedisURL), "error", err, "category", "system")
	}

	return NewMemoryCache(MemoryCacheOptions{
		DefaultTTL:      cfg.DefaultTTL,
		MaxSize:         cfg.MaxSize,
		CleanupInterval: cfg.CleanupInterval,
	}), BackendMemory
}

// RedactURL hides the password of a Redis URL for logging.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[invalid URL]"
	}
	return u.Redacted()
}
