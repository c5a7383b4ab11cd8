// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/pillar-engine/internal/engine"
	"github.com/olegiv/pillar-engine/internal/model"
)

// GenerateStrategies handles POST /strategies/generate.
func (h *Handler) GenerateStrategies(w http.ResponseWriter, r *http.Request) {
	var in engine.GenerateInput
	if !decodeJSON(w, r, &in) {
		return
	}

	res, err := h.engine.GenerateStrategies(r.Context(), in)
	if err != nil {
		h.writeEngineError(w, r, "generate strategies", err)
		return
	}
	h.logger.Info("strategies generated", "topic", in.Topic, "count", len(res.Strategies))
	WriteCreated(w, res)
}

// ListStrategies handles GET /strategies, optionally filtered by ?status=.
func (h *Handler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	status := model.StrategyStatus(r.URL.Query().Get("status"))

	list, err := h.engine.ListStrategies(r.Context(), status)
	if err != nil {
		h.writeEngineError(w, r, "list strategies", err)
		return
	}
	if list == nil {
		list = []model.SeoStrategy{}
	}
	WriteSuccess(w, list, &Meta{Total: int64(len(list))})
}

// GetStrategy handles GET /strategies/{id}.
func (h *Handler) GetStrategy(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.GetStrategy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, "get strategy", err)
		return
	}
	WriteSuccess(w, s, nil)
}

// ApproveStrategy handles POST /strategies/{id}/approve.
func (h *Handler) ApproveStrategy(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.ApproveStrategy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, "approve strategy", err)
		return
	}
	WriteSuccess(w, s, nil)
}

// RejectStrategy handles POST /strategies/{id}/reject.
func (h *Handler) RejectStrategy(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.RejectStrategy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, "reject strategy", err)
		return
	}
	WriteSuccess(w, s, nil)
}

// CannibalizationRequest is the body of POST /cannibalization.
type CannibalizationRequest struct {
	Topic string `json:"topic"`
}

// CheckCannibalization handles POST /cannibalization. A repository failure
// still answers 200 with an unverified report so the caller can decide to
// proceed with an explicit acknowledgment.
func (h *Handler) CheckCannibalization(w http.ResponseWriter, r *http.Request) {
	var req CannibalizationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	report, err := h.engine.CheckCannibalization(r.Context(), req.Topic)
	if err != nil {
		if report != nil && errors.Is(err, engine.ErrRepositoryUnavailable) {
			h.logger.Warn("cannibalization check unverified", "topic", req.Topic, "error", err)
			WriteSuccess(w, report, nil)
			return
		}
		h.writeEngineError(w, r, "check cannibalization", err)
		return
	}
	WriteSuccess(w, report, nil)
}
