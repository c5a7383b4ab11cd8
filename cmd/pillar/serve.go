// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/olegiv/pillar-engine/internal/cache"
	"github.com/olegiv/pillar-engine/internal/handler/api"
	"github.com/olegiv/pillar-engine/internal/scheduler"
	"github.com/olegiv/pillar-engine/internal/store"
	"github.com/olegiv/pillar-engine/internal/version"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scheduled jobs",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	logger := a.logger
	cfg := a.cfg
	logger.Info("starting pillar", "version", version.Get().Version, "env", cfg.Env)

	gen, err := a.generator()
	if err != nil {
		return err
	}
	eng := a.engine(gen)

	c, backend := cache.Open(cfg.Cache(), logger)
	defer func() { _ = c.Close() }()
	reports := cache.NewHealthReportCache(c, cfg.Cache().DefaultTTL)
	logger.Info("cache initialized", "backend", backend)

	sched := scheduler.New(a.db, eng, reports, cfg.Scheduler(), logger)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	h := api.NewHandler(eng, store.New(a.db), reports, logger)
	router := api.NewRouter(h, api.RouterConfig{
		IsDevelopment:  cfg.IsDevelopment(),
		RequestTimeout: cfg.RequestTimeout,
		GenerateRPS:    cfg.GenerateRPS,
		GenerateBurst:  cfg.GenerateBurst,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// Generation requests run for minutes; the timeout middleware bounds them.
		WriteTimeout:   cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
