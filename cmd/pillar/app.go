// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/olegiv/pillar-engine/internal/config"
	"github.com/olegiv/pillar-engine/internal/engine"
	"github.com/olegiv/pillar-engine/internal/llm"
	"github.com/olegiv/pillar-engine/internal/logging"
	"github.com/olegiv/pillar-engine/internal/store"
)

// app holds what every command needs: configuration, a migrated database
// and a logger that also feeds the event log.
type app struct {
	cfg    *config.Config
	db     *sql.DB
	logger *slog.Logger
}

func bootstrap() (*app, error) {
	// Load .env file if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	logger := slog.New(textHandler)
	slog.SetDefault(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	logger.Info("initializing database", "path", cfg.DBPath, "driver", cfg.DBDriver)
	db, err := store.NewDBWithConfig(cfg.DBPath, cfg.DBConfig())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := store.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	// Warnings and errors are also written to the event log.
	logger = slog.New(logging.NewEventLogHandler(textHandler, db))
	slog.SetDefault(logger)

	return &app{cfg: cfg, db: db, logger: logger}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.logger.Error("error closing database connection", "error", err)
	}
}

// generator returns the configured text generator.
func (a *app) generator() (engine.TextGenerator, error) {
	if err := a.cfg.ValidateLLM(); err != nil {
		return nil, err
	}
	if a.cfg.LLMProvider == llm.ProviderStatic {
		gen, err := llm.LoadStatic(a.cfg.LLMStaticFile)
		if err != nil {
			return nil, err
		}
		a.logger.Warn("using static text generator", "file", a.cfg.LLMStaticFile)
		return gen, nil
	}

	client, err := llm.NewOpenAIClient(a.cfg.LLM(), store.NewUsageRecorder(a.db), a.logger)
	if err != nil {
		return nil, fmt.Errorf("creating text generator: %w", err)
	}
	a.logger.Info("text generator ready", "provider", a.cfg.LLMProvider, "model", client.Model())
	return client, nil
}

func (a *app) engine(gen engine.TextGenerator) *engine.Engine {
	return engine.New(
		store.NewContentRepository(a.db),
		store.NewWorkflowStore(a.db),
		gen,
		a.logger,
		a.cfg.Engine(),
	)
}
