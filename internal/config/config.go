// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/olegiv/pillar-engine/internal/cache"
	"github.com/olegiv/pillar-engine/internal/engine"
	"github.com/olegiv/pillar-engine/internal/llm"
	"github.com/olegiv/pillar-engine/internal/scheduler"
	"github.com/olegiv/pillar-engine/internal/store"
)

// defaultOpenAIModel is used when PILLAR_LLM_MODEL is unset and the provider
// is OpenAI. Other providers default to their first listed model.
const defaultOpenAIModel = "gpt-4o-mini"

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBDriver   string `env:"PILLAR_DB_DRIVER" envDefault:"sqlite"`
	DBPath     string `env:"PILLAR_DB_PATH" envDefault:"./data/pillar.db"`
	ServerHost string `env:"PILLAR_SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"PILLAR_SERVER_PORT" envDefault:"8080"`
	Env        string `env:"PILLAR_ENV" envDefault:"development"`
	LogLevel   string `env:"PILLAR_LOG_LEVEL" envDefault:"info"`

	// Text generation
	LLMProvider   string        `env:"PILLAR_LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey  string        `env:"PILLAR_OPENAI_API_KEY"`
	LLMBaseURL    string        `env:"PILLAR_LLM_BASE_URL"`
	LLMModel      string        `env:"PILLAR_LLM_MODEL"`
	LLMTimeout    time.Duration `env:"PILLAR_LLM_TIMEOUT" envDefault:"120s"`
	LLMStaticFile string        `env:"PILLAR_LLM_STATIC_FILE"` // canned responses for the static provider

	// Cache configuration
	RedisURL     string `env:"PILLAR_REDIS_URL"`
	CachePrefix  string `env:"PILLAR_CACHE_PREFIX" envDefault:"pillar:"`
	CacheTTL     int    `env:"PILLAR_CACHE_TTL" envDefault:"3600"` // seconds
	CacheMaxSize int    `env:"PILLAR_CACHE_MAX_SIZE" envDefault:"1000"`

	// Scheduled jobs
	LinkCheckSchedule  string `env:"PILLAR_LINKCHECK_SCHEDULE" envDefault:"*/30 * * * *"` // "off" disables
	EventRetentionDays int    `env:"PILLAR_EVENT_RETENTION_DAYS" envDefault:"30"`

	// Engine behavior
	AllowDirectBuild  bool    `env:"PILLAR_ALLOW_DIRECT_BUILD" envDefault:"true"`
	ProductBacklinks  bool    `env:"PILLAR_PRODUCT_BACKLINKS" envDefault:"false"`
	ProductURLPrefix  string  `env:"PILLAR_PRODUCT_URL_PREFIX" envDefault:"/productos/"`
	PostURLPrefix     string  `env:"PILLAR_POST_URL_PREFIX" envDefault:"/blog/"`
	PillarURLPrefix   string  `env:"PILLAR_PILLAR_URL_PREFIX" envDefault:"/guias/"`
	ConflictThreshold float64 `env:"PILLAR_CONFLICT_THRESHOLD" envDefault:"0.4"`

	// HTTP limits
	RequestTimeout time.Duration `env:"PILLAR_REQUEST_TIMEOUT" envDefault:"180s"`
	GenerateRPS    float64       `env:"PILLAR_GENERATE_RPS" envDefault:"0.2"`
	GenerateBurst  int           `env:"PILLAR_GENERATE_BURST" envDefault:"3"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DBConfig returns the connection settings for store.NewDBWithConfig.
func (c Config) DBConfig() store.DBConfig {
	cfg := store.DefaultDBConfig()
	cfg.Driver = c.DBDriver
	return cfg
}

// LLM returns the text-generation client configuration.
func (c Config) LLM() llm.Config {
	model := c.LLMModel
	if model == "" && c.LLMProvider == llm.ProviderOpenAI {
		model = defaultOpenAIModel
	}
	return llm.Config{
		Provider: c.LLMProvider,
		Model:    model,
		APIKey:   c.OpenAIAPIKey,
		BaseURL:  c.LLMBaseURL,
		Timeout:  c.LLMTimeout,
	}
}

// Cache returns the dashboard cache configuration.
func (c Config) Cache() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.RedisURL = c.RedisURL
	cfg.Prefix = c.CachePrefix
	cfg.DefaultTTL = time.Duration(c.CacheTTL) * time.Second
	cfg.MaxSize = c.CacheMaxSize
	return cfg
}

// Scheduler returns the background job configuration.
func (c Config) Scheduler() scheduler.Config {
	return scheduler.Config{
		LinkCheckSchedule: c.linkCheckSchedule(),
		RetentionSchedule: scheduler.DefaultRetentionSchedule,
		EventRetention:    time.Duration(c.EventRetentionDays) * 24 * time.Hour,
	}
}

// linkCheckSchedule maps "off" to the empty schedule. An empty variable
// cannot be used because env falls back to the default for it.
func (c Config) linkCheckSchedule() string {
	if strings.EqualFold(c.LinkCheckSchedule, "off") {
		return ""
	}
	return c.LinkCheckSchedule
}

// Engine returns the engine options.
func (c Config) Engine() engine.Options {
	opts := engine.DefaultOptions()
	opts.AllowDirectBuild = c.AllowDirectBuild
	opts.ProductBacklinks = c.ProductBacklinks
	opts.ProductURLPrefix = c.ProductURLPrefix
	opts.PostURLPrefix = c.PostURLPrefix
	opts.PillarURLPrefix = c.PillarURLPrefix
	opts.ConflictThreshold = c.ConflictThreshold
	return opts
}

// Load parses environment variables and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field rules. Every problem is
// reported, not just the first.
func (c Config) Validate() error {
	var errs []error

	switch c.DBDriver {
	case store.DriverModernc, store.DriverMattn:
	default:
		errs = append(errs, fmt.Errorf("PILLAR_DB_DRIVER must be %q or %q, got %q",
			store.DriverModernc, store.DriverMattn, c.DBDriver))
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("PILLAR_SERVER_PORT out of range: %d", c.ServerPort))
	}
	if c.Env != "development" && c.Env != "production" {
		errs = append(errs, fmt.Errorf("PILLAR_ENV must be development or production, got %q", c.Env))
	}

	if c.LLMTimeout <= 0 {
		errs = append(errs, errors.New("PILLAR_LLM_TIMEOUT must be positive"))
	}

	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("PILLAR_CACHE_TTL must be positive, got %d", c.CacheTTL))
	}
	if err := scheduler.ValidateSchedule(c.linkCheckSchedule()); err != nil {
		errs = append(errs, fmt.Errorf("PILLAR_LINKCHECK_SCHEDULE: %w", err))
	}
	if c.EventRetentionDays < 0 {
		errs = append(errs, errors.New("PILLAR_EVENT_RETENTION_DAYS must not be negative"))
	}

	if c.ConflictThreshold <= 0 || c.ConflictThreshold > 1 {
		errs = append(errs, fmt.Errorf("PILLAR_CONFLICT_THRESHOLD must be in (0, 1], got %g", c.ConflictThreshold))
	}
	for name, prefix := range map[string]string{
		"PILLAR_PRODUCT_URL_PREFIX": c.ProductURLPrefix,
		"PILLAR_POST_URL_PREFIX":    c.PostURLPrefix,
		"PILLAR_PILLAR_URL_PREFIX":  c.PillarURLPrefix,
	} {
		if !strings.HasPrefix(prefix, "/") || !strings.HasSuffix(prefix, "/") {
			errs = append(errs, fmt.Errorf("%s must start and end with '/', got %q", name, prefix))
		}
	}

	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("PILLAR_REQUEST_TIMEOUT must be positive"))
	} else if c.RequestTimeout < c.LLMTimeout {
		slog.Warn("PILLAR_REQUEST_TIMEOUT is shorter than PILLAR_LLM_TIMEOUT; generation requests may time out first")
	}
	if c.GenerateRPS < 0 {
		errs = append(errs, errors.New("PILLAR_GENERATE_RPS must not be negative"))
	}

	return errors.Join(errs...)
}

// ValidateLLM checks the text-generation settings. Only commands that
// generate text need them, so Load does not call it.
func (c Config) ValidateLLM() error {
	if c.LLMProvider == llm.ProviderStatic {
		if c.LLMStaticFile == "" {
			return errors.New("PILLAR_LLM_STATIC_FILE is required with the static provider")
		}
		return nil
	}
	info, err := llm.GetProviderInfo(c.LLMProvider)
	if err != nil {
		return fmt.Errorf("PILLAR_LLM_PROVIDER: %w", err)
	}
	if info.NeedsAPIKey && c.OpenAIAPIKey == "" {
		return fmt.Errorf("PILLAR_OPENAI_API_KEY is required for provider %s", info.ID)
	}
	return nil
}
