// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package api provides the JSON API of the pillar engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/olegiv/pillar-engine/internal/cache"
	"github.com/olegiv/pillar-engine/internal/engine"
	"github.com/olegiv/pillar-engine/internal/model"
	"github.com/olegiv/pillar-engine/internal/store"
	"github.com/olegiv/pillar-engine/internal/version"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Engine is the set of engine operations served over HTTP.
type Engine interface {
	GenerateStrategies(ctx context.Context, in engine.GenerateInput) (*engine.GenerateResult, error)
	ListStrategies(ctx context.Context, status model.StrategyStatus) ([]model.SeoStrategy, error)
	GetStrategy(ctx context.Context, id string) (*model.SeoStrategy, error)
	ApproveStrategy(ctx context.Context, id string) (*model.SeoStrategy, error)
	RejectStrategy(ctx context.Context, id string) (*model.SeoStrategy, error)
	CheckCannibalization(ctx context.Context, topic string) (*engine.CannibalizationReport, error)
	SuggestCluster(ctx context.Context, strategyID string) (*engine.Suggestion, error)
	BuildCluster(ctx context.Context, in engine.BuildInput) (*engine.BuildResult, error)
	RejectBuild(ctx context.Context, buildID string) error
	GetReviewData(ctx context.Context, id string) ([]model.ReviewItem, error)
	ApproveChanges(ctx context.Context, refs []model.DocumentRef) (*engine.ApprovalResult, error)
	CheckLinkHealth(ctx context.Context) (*model.HealthReport, error)
}

// EventStore reads the event log and generation usage.
type EventStore interface {
	ListEvents(ctx context.Context, arg store.ListEventsParams) ([]model.Event, error)
	SummarizeUsage(ctx context.Context, since time.Time) (store.UsageSummary, error)
}

// Handler holds shared dependencies for all API handlers.
type Handler struct {
	engine  Engine
	events  EventStore
	reports *cache.TypedCache[model.HealthReport]
	logger  *slog.Logger
}

// NewHandler creates a new API handler. reports may be nil, in which case
// link health is always computed on request.
func NewHandler(e Engine, events EventStore, reports *cache.TypedCache[model.HealthReport], logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine:  e,
		events:  events,
		reports: reports,
		logger:  logger,
	}
}

// Response is the standard API response wrapper.
type Response struct {
	Data any   `json:"data,omitempty"`
	Meta *Meta `json:"meta,omitempty"`
}

// Meta contains pagination and other metadata.
type Meta struct {
	Total   int64 `json:"total,omitempty"`
	Page    int   `json:"page,omitempty"`
	PerPage int   `json:"per_page,omitempty"`
	Pages   int   `json:"pages,omitempty"`
}

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code      string              `json:"code"`
	Message   string              `json:"message"`
	Details   map[string]string   `json:"details,omitempty"`
	Retryable bool                `json:"retryable,omitempty"`
	Conflicts []engine.Conflict   `json:"conflicts,omitempty"`
	Written   []model.DocumentRef `json:"written,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful JSON response.
func WriteSuccess(w http.ResponseWriter, data any, meta *Meta) {
	WriteJSON(w, http.StatusOK, Response{Data: data, Meta: meta})
}

// WriteCreated writes a 201 Created JSON response.
func WriteCreated(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusCreated, Response{Data: data})
}

// WriteError writes an error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, code, message string, details map[string]string) {
	writeErrorDetail(w, statusCode, ErrorDetail{Code: code, Message: message, Details: details})
}

func writeErrorDetail(w http.ResponseWriter, statusCode int, detail ErrorDetail) {
	WriteJSON(w, statusCode, ErrorResponse{Error: detail})
}

// WriteBadRequest writes a 400 Bad Request response.
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message, details)
}

// WriteNotFound writes a 404 Not Found response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message, nil)
}

// WriteInternalError writes a 500 Internal Server Error response.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message, nil)
}

// WriteValidationError writes a 422 Unprocessable Entity response with field errors.
func WriteValidationError(w http.ResponseWriter, message string, fieldErrors map[string]string) {
	if message == "" {
		message = "Validation failed"
	}
	WriteError(w, http.StatusUnprocessableEntity, "validation_error", message, fieldErrors)
}

// decodeJSON reads a JSON request body into v. It writes a 400 response
// and returns false when the body is missing or malformed.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "Request body too large", nil)
		case errors.Is(err, io.EOF):
			WriteBadRequest(w, "Request body is required", nil)
		default:
			WriteBadRequest(w, "Invalid JSON body", map[string]string{"body": err.Error()})
		}
		return false
	}
	return true
}

// StatusResponse contains API status information.
type StatusResponse struct {
	Status  string       `json:"status"`
	API     string       `json:"api"`
	Version version.Info `json:"version"`
	Cache   *cache.Stats `json:"cache,omitempty"`
}

// Status returns the API status and, when reports are cached, the
// traffic counters of the report cache.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Status:  "ok",
		API:     "v1",
		Version: version.Get(),
	}
	if h.reports != nil {
		if s, ok := h.reports.Stats(); ok {
			resp.Cache = &s
		}
	}
	WriteSuccess(w, resp, nil)
}
