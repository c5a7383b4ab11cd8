// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"time"

	"github.com/olegiv/pillar-engine/internal/llm"
	"github.com/olegiv/pillar-engine/internal/model"
)

// CreateEventParams holds the fields of a new event log entry.
type CreateEventParams struct {
	Level     string
	Category  string
	Message   string
	Metadata  string
	CreatedAt time.Time
}

// CreateEvent appends an entry to the event log.
func (q *Queries) CreateEvent(ctx context.Context, arg CreateEventParams) (model.Event, error) {
	if arg.Metadata == "" {
		arg.Metadata = "{}"
	}
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO events (level, category, message, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		arg.Level, arg.Category, arg.Message, arg.Metadata, formatTime(arg.CreatedAt))
	if err != nil {
		return model.Event{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Event{}, err
	}
	return model.Event{
		ID:        id,
		Level:     arg.Level,
		Category:  arg.Category,
		Message:   arg.Message,
		Metadata:  arg.Metadata,
		CreatedAt: arg.CreatedAt,
	}, nil
}

// ListEventsParams filters the event log.
type ListEventsParams struct {
	Level    string
	Category string
	Limit    int
	Offset   int
}

// ListEvents returns event log entries newest first.
func (q *Queries) ListEvents(ctx context.Context, arg ListEventsParams) ([]model.Event, error) {
	if arg.Limit <= 0 {
		arg.Limit = 50
	}
	query := `SELECT id, level, category, message, metadata, created_at FROM events WHERE 1 = 1`
	var args []any
	if arg.Level != "" {
		query += ` AND level = ?`
		args = append(args, arg.Level)
	}
	if arg.Category != "" {
		query += ` AND category = ?`
		args = append(args, arg.Category)
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, arg.Limit, arg.Offset)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []model.Event
	for rows.Next() {
		var e model.Event
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Level, &e.Category, &e.Message, &e.Metadata, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(createdAt)
		items = append(items, e)
	}
	return items, rows.Err()
}

// DeleteEventsBefore removes event log entries older than t.
func (q *Queries) DeleteEventsBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM events WHERE created_at < ?`, formatTime(t))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateUsage records one text-generation call.
func (q *Queries) CreateUsage(ctx context.Context, u llm.Usage) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO generation_usage (provider, model, operation, prompt_tokens, completion_tokens, total_tokens, cost_usd, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Provider, u.Model, u.Operation, u.PromptTokens, u.CompletionTokens, u.TotalTokens, u.CostUSD,
		u.Duration.Milliseconds(), formatTime(u.CreatedAt))
	return err
}

// UsageSummary aggregates generation usage since a point in time.
type UsageSummary struct {
	Calls            int64   `json:"calls"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// SummarizeUsage totals generation usage recorded at or after since.
func (q *Queries) SummarizeUsage(ctx context.Context, since time.Time) (UsageSummary, error) {
	var s UsageSummary
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0), COALESCE(SUM(cost_usd), 0)
		 FROM generation_usage WHERE created_at >= ?`, formatTime(since)).
		Scan(&s.Calls, &s.PromptTokens, &s.CompletionTokens, &s.CostUSD)
	return s, err
}

// UsageRecorder adapts Queries to llm.UsageRecorder.
type UsageRecorder struct {
	q *Queries
}

// NewUsageRecorder creates a recorder writing to db.
func NewUsageRecorder(db DBTX) *UsageRecorder {
	return &UsageRecorder{q: New(db)}
}

// RecordUsage implements llm.UsageRecorder.
func (r *UsageRecorder) RecordUsage(ctx context.Context, u llm.Usage) error {
	return r.q.CreateUsage(ctx, u)
}
