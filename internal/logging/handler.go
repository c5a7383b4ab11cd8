// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging provides a slog handler that mirrors WARN and above into the
// database-backed event log.
package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/olegiv/pillar-engine/internal/model"
	"github.com/olegiv/pillar-engine/internal/store"
)

// categoryKey is the attribute that names an event category explicitly.
const categoryKey = "category"

// EventLogHandler is a slog.Handler that wraps another handler and also writes
// records at or above its level to the event log.
type EventLogHandler struct {
	inner   slog.Handler
	queries *store.Queries
	level   slog.Level
	attrs   []slog.Attr
	group   string
}

// NewEventLogHandler creates a handler forwarding WARN and above.
func NewEventLogHandler(inner slog.Handler, db *sql.DB) *EventLogHandler {
	return NewEventLogHandlerWithLevel(inner, db, slog.LevelWarn)
}

// NewEventLogHandlerWithLevel creates a new EventLogHandler with a custom minimum level.
func NewEventLogHandlerWithLevel(inner slog.Handler, db *sql.DB, level slog.Level) *EventLogHandler {
	return &EventLogHandler{
		inner:   inner,
		queries: store.New(db),
		level:   level,
	}
}

// Enabled implements slog.Handler.
func (h *EventLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level || h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *EventLogHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.inner.Enabled(ctx, r.Level) {
		err = h.inner.Handle(ctx, r)
	}
	if r.Level >= h.level {
		h.writeToEventLog(r)
	}
	return err
}

// WithAttrs implements slog.Handler.
func (h *EventLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.inner = h.inner.WithAttrs(attrs)
	c.attrs = append(h.attrs[:len(h.attrs):len(h.attrs)], h.qualify(attrs)...)
	return &c
}

// WithGroup implements slog.Handler.
func (h *EventLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.inner = h.inner.WithGroup(name)
	c.group = h.prefixed(name)
	return &c
}

func (h *EventLogHandler) prefixed(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

func (h *EventLogHandler) qualify(attrs []slog.Attr) []slog.Attr {
	if h.group == "" {
		return attrs
	}
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = slog.Attr{Key: h.prefixed(a.Key), Value: a.Value}
	}
	return out
}

// writeToEventLog stores the record. The request context is not used so a
// canceled request still leaves its trace.
func (h *EventLogHandler) writeToEventLog(r slog.Record) {
	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, slog.Attr{Key: h.prefixed(a.Key), Value: a.Value})
		return true
	})

	_, _ = h.queries.CreateEvent(context.Background(), store.CreateEventParams{
		Level:     slogLevelToEventLevel(r.Level),
		Category:  extractCategory(r.Message, attrs),
		Message:   r.Message,
		Metadata:  extractMetadata(attrs),
		CreatedAt: r.Time,
	})
}

func slogLevelToEventLevel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return model.EventLevelError
	case level >= slog.LevelWarn:
		return model.EventLevelWarning
	default:
		return model.EventLevelInfo
	}
}

// extractCategory prefers an explicit category attribute (the last one wins)
// and otherwise infers one from the message.
func extractCategory(msg string, attrs []slog.Attr) string {
	category := ""
	for _, a := range attrs {
		if a.Key == categoryKey {
			category = a.Value.String()
		}
	}
	if category != "" {
		return category
	}

	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "strateg"):
		return model.EventCategoryStrategy
	case strings.Contains(msg, "build") || strings.Contains(msg, "cluster"):
		return model.EventCategoryBuild
	case strings.Contains(msg, "approv") || strings.Contains(msg, "rollback") || strings.Contains(msg, "stale"):
		return model.EventCategoryApproval
	case strings.Contains(msg, "link"):
		return model.EventCategoryLinkHealth
	case strings.Contains(msg, "generat") || strings.Contains(msg, "llm"):
		return model.EventCategoryGeneration
	default:
		return model.EventCategorySystem
	}
}

// extractMetadata renders the attributes other than the category as a JSON
// object of strings.
func extractMetadata(attrs []slog.Attr) string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		if a.Key == categoryKey {
			continue
		}
		m[a.Key] = a.Value.Resolve().String()
	}
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}
