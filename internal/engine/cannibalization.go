// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/olegiv/pillar-engine/internal/model"
	"github.com/olegiv/pillar-engine/internal/util"
)

// titleBoilerplate holds words common to pillar page titles ("Guía
// completa", "Ultimate guide") that say nothing about the topic. They are
// dropped from the topic before scoring.
var titleBoilerplate = []string{
	"guia", "completa", "completo", "definitiva", "definitivo", "todo",
	"guide", "complete", "ultimate", "best",
}

// topicTokens returns the scoring tokens of topic without title boilerplate.
func topicTokens(topic string) map[string]struct{} {
	t := util.TokenSet(topic)
	for _, w := range titleBoilerplate {
		delete(t, w)
	}
	return t
}

// CannibalizationMatch is an existing page competing with a topic.
type CannibalizationMatch struct {
	Ref   model.DocumentRef `json:"ref"`
	Slug  string            `json:"slug"`
	Title string            `json:"title"`
	Score float64           `json:"score"`
}

// CannibalizationReport is advisory. Verified is false when the corpus could
// not be read; the caller then proceeds with an explicit acknowledgment.
type CannibalizationReport struct {
	HasConflict bool                   `json:"has_conflict"`
	Conflicts   []string               `json:"conflicts"`
	Matches     []CannibalizationMatch `json:"matches"`
	Verified    bool                   `json:"verified"`
}

// CheckCannibalization compares topic with every published pillar page and
// post. On repository failure it returns an unverified report together with
// an error matching ErrRepositoryUnavailable.
func (e *Engine) CheckCannibalization(ctx context.Context, topic string) (*CannibalizationReport, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, validationError("topic is required")
	}

	corpus, err := LoadCorpus(ctx, e.content)
	if err != nil {
		e.logger.Warn("cannibalization check could not verify", "error", err, "category", model.EventCategoryStrategy)
		return &CannibalizationReport{Conflicts: []string{}, Matches: []CannibalizationMatch{}}, err
	}
	return CheckCannibalizationIn(corpus, topic, e.opts.ConflictThreshold), nil
}

// CheckCannibalizationIn scores topic against the published pages of corpus.
// Pages whose overlap ratio exceeds threshold are conflicts.
func CheckCannibalizationIn(corpus *Corpus, topic string, threshold float64) *CannibalizationReport {
	report := &CannibalizationReport{
		Conflicts: []string{},
		Matches:   []CannibalizationMatch{},
		Verified:  true,
	}
	t := topicTokens(topic)
	if len(t) == 0 {
		return report
	}

	for _, p := range corpus.PublishedPillars() {
		score := overlap(t, p.Title, p.SEODescription, strings.Join(p.TargetKeywords, " "))
		if score > threshold {
			report.Matches = append(report.Matches, CannibalizationMatch{
				Ref:   model.DocumentRef{ID: p.ID, Type: model.DocumentPillarPage},
				Slug:  p.Slug,
				Title: p.Title,
				Score: score,
			})
		}
	}
	for _, p := range corpus.PublishedPosts() {
		score := overlap(t, p.Title, p.SEODescription, strings.Join(p.Keywords, " "))
		if score > threshold {
			report.Matches = append(report.Matches, CannibalizationMatch{
				Ref:   model.DocumentRef{ID: p.ID, Type: model.DocumentPost},
				Slug:  p.Slug,
				Title: p.Title,
				Score: score,
			})
		}
	}

	slices.SortStableFunc(report.Matches, func(a, b CannibalizationMatch) int {
		return cmp.Compare(b.Score, a.Score)
	})
	for _, m := range report.Matches {
		kind := "post"
		if m.Ref.Type == model.DocumentPillarPage {
			kind = "pillar page"
		}
		report.Conflicts = append(report.Conflicts, fmt.Sprintf(
			"%d%% keyword overlap with published %s %q (slug %q)",
			int(math.Round(m.Score*100)), kind, m.Title, m.Slug))
	}
	report.HasConflict = len(report.Matches) > 0
	return report
}
