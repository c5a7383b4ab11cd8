// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/olegiv/pillar-engine/internal/engine"
)

// writeEngineError maps an engine error class to a status code and body.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var (
		partial *engine.PartialCommitError
		stale   *engine.StaleContentError
		state   *engine.StateError
		parse   *engine.GenerationParseError
	)

	switch {
	case errors.As(err, &partial):
		h.logger.Error("approval left documents written", "op", op, "written", len(partial.Written), "error", err)
		writeErrorDetail(w, http.StatusInternalServerError, ErrorDetail{
			Code:    "partial_commit",
			Message: "Approval failed after some documents were written and could not be reverted",
			Written: partial.Written,
		})
	case errors.As(err, &stale):
		writeErrorDetail(w, http.StatusConflict, ErrorDetail{
			Code:      "stale_content",
			Message:   "Live content changed since the build was created",
			Conflicts: stale.Conflicts,
		})
	case errors.As(err, &state):
		writeErrorDetail(w, http.StatusConflict, ErrorDetail{
			Code:    "invalid_strategy_state",
			Message: err.Error(),
			Details: map[string]string{
				"status":    string(state.Status),
				"operation": state.Operation,
			},
		})
	case errors.Is(err, engine.ErrBuildAlreadyInProgress):
		WriteError(w, http.StatusConflict, "build_in_progress", err.Error(), nil)
	case errors.As(err, &parse):
		h.logger.Warn("generation output rejected", "op", op, "stage", parse.Stage, "error", err)
		writeErrorDetail(w, http.StatusBadGateway, ErrorDetail{
			Code:      "generation_parse_error",
			Message:   "Generated output could not be parsed",
			Details:   map[string]string{"stage": parse.Stage},
			Retryable: parse.Retryable(),
		})
	case errors.Is(err, engine.ErrValidation):
		WriteValidationError(w, validationMessage(err), nil)
	case errors.Is(err, engine.ErrNotFound):
		WriteNotFound(w, err.Error())
	case errors.Is(err, engine.ErrGenerationFailed):
		h.logger.Error("generation failed", "op", op, "error", err)
		writeErrorDetail(w, http.StatusBadGateway, ErrorDetail{
			Code:      "generation_failed",
			Message:   "Text generation failed",
			Retryable: true,
		})
	case errors.Is(err, engine.ErrRepositoryUnavailable):
		h.logger.Error("repository unavailable", "op", op, "error", err)
		writeErrorDetail(w, http.StatusServiceUnavailable, ErrorDetail{
			Code:      "repository_unavailable",
			Message:   "Content repository unavailable",
			Retryable: true,
		})
	case errors.Is(err, context.DeadlineExceeded):
		WriteError(w, http.StatusGatewayTimeout, "timeout", "Operation timed out", nil)
	case errors.Is(err, context.Canceled):
		h.logger.Debug("request canceled", "op", op, "path", r.URL.Path)
		WriteError(w, http.StatusServiceUnavailable, "canceled", "Request canceled", nil)
	default:
		h.logger.Error("unclassified engine error", "op", op, "error", err)
		WriteInternalError(w, "Internal error")
	}
}

// validationMessage strips the class prefix from a validation error.
func validationMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, engine.ErrValidation.Error()+": "); i >= 0 {
		return msg[i+len(engine.ErrValidation.Error())+2:]
	}
	return msg
}
