// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/olegiv/pillar-engine/internal/llm"
	"github.com/olegiv/pillar-engine/internal/util"
)

// StrategyCandidate is one well-formed strategy read from generated text.
// Related items are the raw references produced by the model.
type StrategyCandidate struct {
	Topic           string
	TargetKeywords  []string
	SuggestedTitle  string
	Rationale       string
	RelatedProducts []string
	RelatedPosts    []string
}

// ParseOutcome is the result of reading generated strategies: either
// ParsedStrategies or ParseFailure.
type ParseOutcome interface {
	parseOutcome()
}

// ParsedStrategies holds zero or more valid candidates.
type ParsedStrategies struct {
	Candidates []StrategyCandidate
}

// ParseFailure explains why generated text was rejected.
type ParseFailure struct {
	Reason  string
	Excerpt string
}

func (ParsedStrategies) parseOutcome() {}
func (ParseFailure) parseOutcome()     {}

// rawStrategy accepts snake_case and camelCase keys.
type rawStrategy struct {
	Topic              string   `json:"topic"`
	TargetKeywords     []string `json:"target_keywords"`
	TargetKeywordsAlt  []string `json:"targetKeywords"`
	SuggestedTitle     string   `json:"suggested_title"`
	SuggestedTitleAlt  string   `json:"suggestedTitle"`
	Rationale          string   `json:"rationale"`
	RelatedProducts    []string `json:"related_products"`
	RelatedProductsAlt []string `json:"relatedProducts"`
	RelatedPosts       []string `json:"related_posts"`
	RelatedPostsAlt    []string `json:"relatedPosts"`
}

func firstNonEmpty[T any](a, b []T) []T {
	if len(a) > 0 {
		return a
	}
	return b
}

func cleanStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		s = strings.Trim(s, "[]")
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func excerpt(s string) string {
	return util.Truncate(strings.TrimSpace(s), 200)
}

// ParseStrategies reads generated text into strategy candidates. It accepts
// {"strategies": [...]} or a bare array. Any malformed candidate rejects the
// whole response.
func ParseStrategies(text string) ParseOutcome {
	data, err := llm.ExtractJSON(text)
	if err != nil {
		return ParseFailure{Reason: err.Error(), Excerpt: excerpt(text)}
	}

	var raws []rawStrategy
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return ParseFailure{Reason: fmt.Sprintf("decoding strategy list: %v", err), Excerpt: excerpt(text)}
		}
	} else {
		var envelope struct {
			Strategies *[]rawStrategy `json:"strategies"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return ParseFailure{Reason: fmt.Sprintf("decoding strategies: %v", err), Excerpt: excerpt(text)}
		}
		if envelope.Strategies == nil {
			return ParseFailure{Reason: `missing "strategies" field`, Excerpt: excerpt(text)}
		}
		raws = *envelope.Strategies
	}

	candidates := make([]StrategyCandidate, 0, len(raws))
	for i, r := range raws {
		c := StrategyCandidate{
			Topic:           strings.TrimSpace(r.Topic),
			TargetKeywords:  cleanStrings(firstNonEmpty(r.TargetKeywords, r.TargetKeywordsAlt)),
			SuggestedTitle:  strings.TrimSpace(r.SuggestedTitle),
			Rationale:       strings.TrimSpace(r.Rationale),
			RelatedProducts: cleanStrings(firstNonEmpty(r.RelatedProducts, r.RelatedProductsAlt)),
			RelatedPosts:    cleanStrings(firstNonEmpty(r.RelatedPosts, r.RelatedPostsAlt)),
		}
		if c.SuggestedTitle == "" {
			c.SuggestedTitle = strings.TrimSpace(r.SuggestedTitleAlt)
		}
		switch {
		case c.Topic == "":
			return ParseFailure{Reason: fmt.Sprintf("strategy %d: missing topic", i), Excerpt: excerpt(text)}
		case c.SuggestedTitle == "":
			return ParseFailure{Reason: fmt.Sprintf("strategy %d: missing suggested_title", i), Excerpt: excerpt(text)}
		case len(c.TargetKeywords) == 0:
			return ParseFailure{Reason: fmt.Sprintf("strategy %d: missing target_keywords", i), Excerpt: excerpt(text)}
		}
		candidates = append(candidates, c)
	}
	return ParsedStrategies{Candidates: candidates}
}

// pillarOutput is the generated pillar draft.
type pillarOutput struct {
	Title          string `json:"title"`
	SEODescription string `json:"seo_description"`
	SEOAlt         string `json:"seoDescription"`
	Slug           string `json:"slug"`
	Body           string `json:"body"`
}

func parsePillar(text string) (*pillarOutput, error) {
	data, err := llm.ExtractJSON(text)
	if err != nil {
		return nil, &GenerationParseError{Stage: opPillar, Excerpt: excerpt(text), Err: err}
	}
	var out pillarOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &GenerationParseError{Stage: opPillar, Excerpt: excerpt(text), Err: err}
	}
	out.Title = strings.TrimSpace(out.Title)
	out.Body = strings.TrimSpace(out.Body)
	if out.SEODescription == "" {
		out.SEODescription = out.SEOAlt
	}
	out.SEODescription = strings.TrimSpace(out.SEODescription)
	if out.Title == "" {
		return nil, &GenerationParseError{Stage: opPillar, Excerpt: excerpt(text), Err: fmt.Errorf("missing title")}
	}
	if out.Body == "" {
		return nil, &GenerationParseError{Stage: opPillar, Excerpt: excerpt(text), Err: fmt.Errorf("missing body")}
	}
	return &out, nil
}
