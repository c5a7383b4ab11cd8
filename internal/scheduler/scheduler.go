// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler runs the periodic link-health refresh and event log
// retention jobs.
package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/olegiv/pillar-engine/internal/cache"
	"github.com/olegiv/pillar-engine/internal/model"
	"github.com/olegiv/pillar-engine/internal/store"
)

// DefaultRetentionSchedule prunes the event log nightly.
const DefaultRetentionSchedule = "15 3 * * *"

// jobTimeout bounds a single scheduled run.
const jobTimeout = 5 * time.Minute

// LinkChecker produces link-health reports.
type LinkChecker interface {
	CheckLinkHealth(ctx context.Context) (*model.HealthReport, error)
}

// Config selects which jobs run and when. Empty schedules disable a job.
type Config struct {
	LinkCheckSchedule string
	RetentionSchedule string
	EventRetention    time.Duration
}

// Scheduler handles the background jobs of the engine.
type Scheduler struct {
	db      *sql.DB
	checker LinkChecker
	reports *cache.TypedCache[model.HealthReport]
	cron    *cron.Cron
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a new scheduler instance.
func New(db *sql.DB, checker LinkChecker, reports *cache.TypedCache[model.HealthReport], cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		db:      db,
		checker: checker,
		reports: reports,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// ValidateSchedule reports whether spec is a standard five-field cron
// expression. The empty string is accepted and means disabled.
func ValidateSchedule(spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	return nil
}

// Start registers the configured jobs and starts the cron runner.
func (s *Scheduler) Start() error {
	if s.cfg.LinkCheckSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.LinkCheckSchedule, s.runLinkCheck); err != nil {
			return fmt.Errorf("scheduling link check: %w", err)
		}
	}
	if s.cfg.RetentionSchedule != "" && s.cfg.EventRetention > 0 {
		if _, err := s.cron.AddFunc(s.cfg.RetentionSchedule, s.runRetention); err != nil {
			return fmt.Errorf("scheduling event retention: %w", err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
	return nil
}

// Stop gracefully stops the scheduler, waiting for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runLinkCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := s.RefreshLinkHealth(ctx); err != nil {
		s.logger.Error("scheduled link check failed", "error", err, "category", model.EventCategoryLinkHealth)
	}
}

func (s *Scheduler) runRetention() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := s.PruneEvents(ctx); err != nil {
		s.logger.Error("event retention failed", "error", err, "category", model.EventCategorySystem)
	}
}

// RefreshLinkHealth computes a fresh report, stores it as the dashboard copy
// and records the run in the event log.
func (s *Scheduler) RefreshLinkHealth(ctx context.Context) (*model.HealthReport, error) {
	report, err := s.checker.CheckLinkHealth(ctx)
	if err != nil {
		return nil, err
	}

	if s.reports != nil {
		if err := s.reports.Set(ctx, cache.HealthReportKey, report); err != nil {
			s.logger.Warn("failed to cache link health report", "error", err)
		}
	}

	s.logger.Info("link health refreshed",
		"status", report.Status,
		"issues", len(report.Issues),
		"pillars", report.PillarsTotal,
	)

	if s.db != nil {
		metadata, _ := json.Marshal(map[string]any{
			"status":        report.Status,
			"issues":        len(report.Issues),
			"pillars_total": report.PillarsTotal,
			"links_checked": report.LinksChecked,
		})
		_, err = store.New(s.db).CreateEvent(ctx, store.CreateEventParams{
			Level:     model.EventLevelInfo,
			Category:  model.EventCategoryLinkHealth,
			Message:   fmt.Sprintf("Scheduled link check: %s, %d broken links", report.Status, len(report.Issues)),
			Metadata:  string(metadata),
			CreatedAt: s.now().UTC(),
		})
		if err != nil {
			s.logger.Warn("failed to log link check event", "error", err)
		}
	}

	return report, nil
}

// PruneEvents deletes event log entries older than the retention window.
func (s *Scheduler) PruneEvents(ctx context.Context) (int64, error) {
	if s.db == nil || s.cfg.EventRetention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.cfg.EventRetention).UTC()
	n, err := store.New(s.db).DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("pruned event log", "deleted", n, "before", cutoff)
	}
	return n, nil
}
