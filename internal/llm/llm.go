// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package llm provides the text-generation capability consumed by the engine:
// an OpenAI-compatible client built on the official SDK, a static generator
// for offline use, model pricing, and token usage recording.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Prompt is a single text-generation request.
type Prompt struct {
	// Operation labels the call for usage accounting ("strategies", "pillar").
	Operation string
	System    string
	User      string
}

// Generator produces text for a prompt, grounded in reference material.
// Implementations must honor ctx cancellation and must not retry.
type Generator interface {
	GenerateText(ctx context.Context, prompt Prompt, grounding string) (string, error)
}

// Usage describes the token consumption of one generation call.
type Usage struct {
	Provider         string
	Model            string
	Operation        string
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	CostUSD          float64
	Duration         time.Duration
	CreatedAt        time.Time
}

// UsageRecorder persists usage records. Recording failures never fail generation.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, u Usage) error
}

// ErrEmptyResponse is returned when the provider answers without content.
var ErrEmptyResponse = errors.New("llm: empty response")

// ExtractJSON returns the JSON document embedded in a model response.
// Markdown code fences are removed; if the response still does not parse,
// the outermost object or array is extracted.
func ExtractJSON(response string) ([]byte, error) {
	cleaned := strings.TrimSpace(response)

	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```JSON")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
		cleaned = strings.TrimSpace(cleaned)
	}

	if json.Valid([]byte(cleaned)) {
		return []byte(cleaned), nil
	}

	start := strings.IndexAny(cleaned, "{[")
	if start < 0 {
		return nil, errors.New("no JSON found in response")
	}
	closer := "}"
	if cleaned[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(cleaned, closer)
	if end <= start {
		return nil, errors.New("unterminated JSON in response")
	}
	candidate := cleaned[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil, fmt.Errorf("invalid JSON in response")
	}
	return []byte(candidate), nil
}
