// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"cmp"
	"slices"
	"strings"

	"github.com/olegiv/pillar-engine/internal/model"
	"github.com/olegiv/pillar-engine/internal/util"
)

// Field weights for relevance scoring.
const (
	weightTitle       = 3.0
	weightKeywords    = 2.0
	weightDescription = 1.0
)

// Scored is a catalog or blog item ranked against a topic.
type Scored struct {
	Ref   model.DocumentRef `json:"ref"`
	Slug  string            `json:"slug"`
	Title string            `json:"title"`
	Score float64           `json:"score"`
}

// overlap returns |topic ∩ tokens(text)| / |topic|.
func overlap(topic map[string]struct{}, text ...string) float64 {
	if len(topic) == 0 {
		return 0
	}
	doc := util.TokenSet(text...)
	hits := 0
	for tok := range topic {
		if _, ok := doc[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(topic))
}

// RankRelevant scores products and published posts against topic and returns
// the best matches, highest first. Items with no overlap are omitted.
// A limit of zero or less returns every match.
func RankRelevant(corpus *Corpus, topic string, limit int) []Scored {
	t := util.TokenSet(topic)
	if len(t) == 0 || corpus == nil {
		return nil
	}

	var out []Scored
	for _, p := range corpus.Products {
		score := weightTitle*overlap(t, p.Name) + weightDescription*overlap(t, util.PlainText(p.Description))
		if score > 0 {
			out = append(out, Scored{
				Ref:   model.DocumentRef{ID: p.ID, Type: model.DocumentProduct},
				Slug:  p.Slug,
				Title: p.Name,
				Score: score,
			})
		}
	}
	for _, p := range corpus.PublishedPosts() {
		score := weightTitle*overlap(t, p.Title) +
			weightKeywords*overlap(t, strings.Join(p.Keywords, " ")) +
			weightDescription*overlap(t, p.SEODescription)
		if score > 0 {
			out = append(out, Scored{
				Ref:   model.DocumentRef{ID: p.ID, Type: model.DocumentPost},
				Slug:  p.Slug,
				Title: p.Title,
				Score: score,
			})
		}
	}

	slices.SortStableFunc(out, func(a, b Scored) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Title, b.Title)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
