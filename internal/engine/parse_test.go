// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseStrategies(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantFail   string
		wantTopics []string
	}{
		{
			name:       "envelope in code fence",
			text:       strategyResponse,
			wantTopics: []string{"Regalos Empresariales"},
		},
		{
			name:       "bare array with camelCase keys",
			text:       `[{"topic": "Agendas", "targetKeywords": ["agenda 2026"], "suggestedTitle": "Agendas 2026"}]`,
			wantTopics: []string{"Agendas"},
		},
		{
			name:       "empty list",
			text:       `{"strategies": []}`,
			wantTopics: []string{},
		},
		{
			name:     "not json",
			text:     "Lo siento, no puedo ayudar con eso.",
			wantFail: "no JSON",
		},
		{
			name:     "missing envelope field",
			text:     `{"ideas": []}`,
			wantFail: `missing "strategies"`,
		},
		{
			name:     "candidate without title",
			text:     `{"strategies": [{"topic": "Agendas", "target_keywords": ["agenda"]}]}`,
			wantFail: "missing suggested_title",
		},
		{
			name: "one malformed candidate rejects all",
			text: `{"strategies": [
				{"topic": "Agendas", "target_keywords": ["agenda"], "suggested_title": "Agendas"},
				{"topic": "", "target_keywords": ["x"], "suggested_title": "X"}]}`,
			wantFail: "strategy 1: missing topic",
		},
		{
			name:     "wrong field type",
			text:     `{"strategies": [{"topic": 7}]}`,
			wantFail: "decoding strategies",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			switch got := ParseStrategies(tt.text).(type) {
			case ParsedStrategies:
				if tt.wantFail != "" {
					t.Fatalf("ParseStrategies() parsed %d candidates, want failure %q", len(got.Candidates), tt.wantFail)
				}
				topics := []string{}
				for _, c := range got.Candidates {
					topics = append(topics, c.Topic)
				}
				if diff := cmp.Diff(tt.wantTopics, topics); diff != "" {
					t.Errorf("topics mismatch (-want +got):\n%s", diff)
				}
			case ParseFailure:
				if tt.wantFail == "" {
					t.Fatalf("ParseStrategies() failed: %s", got.Reason)
				}
				if !strings.Contains(got.Reason, tt.wantFail) {
					t.Errorf("Reason = %q, want it to contain %q", got.Reason, tt.wantFail)
				}
				if got.Excerpt == "" {
					t.Error("expected an excerpt of the rejected text")
				}
			default:
				t.Fatalf("unexpected outcome %T", got)
			}
		})
	}
}

func TestParseStrategiesCleansReferences(t *testing.T) {
	outcome, ok := ParseStrategies(strategyResponse).(ParsedStrategies)
	if !ok {
		t.Fatal("expected ParsedStrategies")
	}
	c := outcome.Candidates[0]

	want := StrategyCandidate{
		Topic:           "Regalos Empresariales",
		TargetKeywords:  []string{"regalos empresa", "regalos corporativos"},
		SuggestedTitle:  "Regalos Empresariales: Guía Completa",
		Rationale:       "Alta demanda antes de Navidad",
		RelatedProducts: []string{"boligrafo-grabado", "cuaderno-corporativo", "no-existe"},
		RelatedPosts:    []string{"ideas-regalos-navidad-empresa"},
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("candidate mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePillar(t *testing.T) {
	out, err := parsePillar(pillarResponse)
	if err != nil {
		t.Fatalf("parsePillar() error = %v", err)
	}
	if out.Title != "Regalos Empresariales: Guía Completa" {
		t.Errorf("Title = %q", out.Title)
	}
	if out.Slug != "regalos-empresariales" {
		t.Errorf("Slug = %q", out.Slug)
	}
	if !strings.HasPrefix(out.Body, "## Por qué regalar") {
		t.Errorf("Body = %q", out.Body)
	}
}

func TestParsePillarErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no json", "sin contenido"},
		{"missing title", `{"body": "texto"}`},
		{"missing body", `{"title": "Titulo"}`},
		{"broken json", `{"title": "Titulo", "body": }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parsePillar(tt.text)
			if !errors.Is(err, ErrGenerationParse) {
				t.Fatalf("parsePillar() error = %v, want ErrGenerationParse", err)
			}
			var pe *GenerationParseError
			if !errors.As(err, &pe) || pe.Stage != opPillar || !pe.Retryable() {
				t.Errorf("expected retryable pillar parse error, got %#v", err)
			}
		})
	}
}
