// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/olegiv/pillar-engine/internal/cache"
	"github.com/olegiv/pillar-engine/internal/model"
	"github.com/olegiv/pillar-engine/internal/store"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 200
	defaultUsageSince = 24 * time.Hour
)

// LinkHealth handles GET /health/links. With ?cached=1 the last stored
// report is served and computed only when none is cached. Otherwise a
// fresh report is computed and replaces the cached one.
func (h *Handler) LinkHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cached, _ := strconv.ParseBool(r.URL.Query().Get("cached"))

	if cached && h.reports != nil {
		report, err := h.reports.GetOrSet(ctx, cache.HealthReportKey, h.engine.CheckLinkHealth)
		if err != nil {
			h.writeEngineError(w, r, "link health", err)
			return
		}
		WriteSuccess(w, report, nil)
		return
	}

	report, err := h.engine.CheckLinkHealth(ctx)
	if err != nil {
		h.writeEngineError(w, r, "link health", err)
		return
	}
	h.storeReport(ctx, report)
	WriteSuccess(w, report, nil)
}

func (h *Handler) storeReport(ctx context.Context, report *model.HealthReport) {
	if h.reports == nil {
		return
	}
	if err := h.reports.Set(ctx, cache.HealthReportKey, report); err != nil {
		h.logger.Warn("failed to cache link health report", "error", err)
	}
}

// dropReport forgets the cached report so the next cached read sees a
// newly published pillar.
func (h *Handler) dropReport(ctx context.Context) {
	if h.reports == nil {
		return
	}
	if err := h.reports.Delete(ctx, cache.HealthReportKey); err != nil {
		h.logger.Warn("failed to drop cached link health report", "error", err)
	}
}

// ListEvents handles GET /events with optional level, category, limit and
// offset query parameters.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, ok := intParam(w, q.Get("limit"), "limit", defaultEventLimit)
	if !ok {
		return
	}
	offset, ok := intParam(w, q.Get("offset"), "offset", 0)
	if !ok {
		return
	}
	limit = min(max(limit, 1), maxEventLimit)

	events, err := h.events.ListEvents(r.Context(), store.ListEventsParams{
		Level:    q.Get("level"),
		Category: q.Get("category"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		h.logger.Error("failed to list events", "error", err)
		WriteInternalError(w, "Failed to list events")
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	WriteSuccess(w, events, &Meta{Page: offset/limit + 1, PerPage: limit})
}

// intParam parses a non-negative integer query parameter.
func intParam(w http.ResponseWriter, raw, name string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		WriteBadRequest(w, "Invalid "+name, map[string]string{name: "must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

// UsageResponse is the body of GET /usage.
type UsageResponse struct {
	Since time.Time          `json:"since"`
	Usage store.UsageSummary `json:"usage"`
}

// Usage handles GET /usage. ?since= takes a duration such as 24h or 168h.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	window := defaultUsageSince
	if raw := r.URL.Query().Get("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			WriteBadRequest(w, "Invalid since", map[string]string{"since": "must be a positive duration"})
			return
		}
		window = d
	}

	since := time.Now().UTC().Add(-window)
	summary, err := h.events.SummarizeUsage(r.Context(), since)
	if err != nil {
		h.logger.Error("failed to summarize generation usage", "error", err)
		WriteInternalError(w, "Failed to summarize usage")
		return
	}
	WriteSuccess(w, UsageResponse{Since: since, Usage: summary}, nil)
}
