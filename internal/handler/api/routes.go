// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/olegiv/pillar-engine/internal/middleware"
)

// RouterConfig configures the middleware stack around the API.
type RouterConfig struct {
	IsDevelopment  bool
	RequestTimeout time.Duration
	// GenerateRPS and GenerateBurst limit the endpoints that call the
	// text generator, per client IP. A non-positive rate disables limiting.
	GenerateRPS   float64
	GenerateBurst int
}

// NewRouter mounts the API under /api/v1.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(h.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(chimw.StripSlashes)
	r.Use(middleware.SecurityHeaders(cfg.IsDevelopment))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteNotFound(w, "Endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", nil)
	})

	generationLimit := middleware.NewRateLimiter(cfg.GenerateRPS, cfg.GenerateBurst).Middleware()

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}

		r.Get("/status", h.Status)

		r.Route("/strategies", func(r chi.Router) {
			r.Get("/", h.ListStrategies)
			r.With(generationLimit).Post("/generate", h.GenerateStrategies)
			r.Get("/{id}", h.GetStrategy)
			r.Post("/{id}/approve", h.ApproveStrategy)
			r.Post("/{id}/reject", h.RejectStrategy)
			r.Get("/{id}/suggestions", h.SuggestCluster)
			r.With(generationLimit).Post("/{id}/builds", h.BuildCluster)
		})

		r.Post("/cannibalization", h.CheckCannibalization)
		r.Delete("/builds/{id}", h.RejectBuild)
		r.Get("/reviews/{id}", h.GetReview)
		r.Post("/approvals", h.ApproveChanges)
		r.Get("/health/links", h.LinkHealth)
		r.Get("/events", h.ListEvents)
		r.Get("/usage", h.Usage)
	})

	return r
}
