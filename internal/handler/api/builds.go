// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/pillar-engine/internal/engine"
	"github.com/olegiv/pillar-engine/internal/model"
)

// SuggestCluster handles GET /strategies/{id}/suggestions.
func (h *Handler) SuggestCluster(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.SuggestCluster(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, "suggest cluster", err)
		return
	}
	WriteSuccess(w, s, nil)
}

// BuildRequest is the body of POST /strategies/{id}/builds.
type BuildRequest struct {
	SelectedPosts    []string `json:"selected_posts"`
	SelectedProducts []string `json:"selected_products"`
	Replace          bool     `json:"replace"`
}

// BuildCluster handles POST /strategies/{id}/builds.
func (h *Handler) BuildCluster(w http.ResponseWriter, r *http.Request) {
	var req BuildRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.engine.BuildCluster(r.Context(), engine.BuildInput{
		StrategyID:       chi.URLParam(r, "id"),
		SelectedPosts:    req.SelectedPosts,
		SelectedProducts: req.SelectedProducts,
		Replace:          req.Replace,
	})
	if err != nil {
		h.writeEngineError(w, r, "build cluster", err)
		return
	}
	WriteCreated(w, res)
}

// RejectBuild handles DELETE /builds/{id}.
func (h *Handler) RejectBuild(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RejectBuild(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeEngineError(w, r, "reject build", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetReview handles GET /reviews/{id}. The id may name a strategy or a build.
func (h *Handler) GetReview(w http.ResponseWriter, r *http.Request) {
	items, err := h.engine.GetReviewData(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, "get review", err)
		return
	}
	if items == nil {
		items = []model.ReviewItem{}
	}
	WriteSuccess(w, items, &Meta{Total: int64(len(items))})
}

// ApprovalRequest is the body of POST /approvals.
type ApprovalRequest struct {
	Documents []model.DocumentRef `json:"documents"`
}

// ApproveChanges handles POST /approvals.
func (h *Handler) ApproveChanges(w http.ResponseWriter, r *http.Request) {
	var req ApprovalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.engine.ApproveChanges(r.Context(), req.Documents)
	if err != nil {
		h.writeEngineError(w, r, "approve changes", err)
		return
	}
	if res.PillarSlug != "" {
		h.dropReport(r.Context())
	}
	WriteSuccess(w, res, nil)
}
