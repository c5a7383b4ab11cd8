// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"context"

	"github.com/olegiv/pillar-engine/internal/model"
)

// CheckLinkHealth reports product links on published pillar pages that no
// longer resolve to a live product. Both the recorded linked products and
// product links found in the body are checked. Each broken (pillar, product)
// pair is reported once. It never writes.
func (e *Engine) CheckLinkHealth(ctx context.Context) (*model.HealthReport, error) {
	pillars, err := e.content.PillarPages(ctx, model.PillarStatusPublished)
	if err != nil {
		return nil, repoError("loading pillar pages", err)
	}
	products, err := e.content.ProductSummaries(ctx)
	if err != nil {
		return nil, repoError("loading products", err)
	}

	live := make(map[string]struct{}, len(products))
	for _, p := range products {
		live[p.Slug] = struct{}{}
	}

	report := &model.HealthReport{
		Status:    model.HealthStatusHealthy,
		Issues:    []model.LinkIssue{},
		CheckedAt: e.now(),
	}
	for _, page := range pillars {
		if !page.IsPublished() {
			continue
		}
		report.PillarsTotal++

		seen := make(map[string]struct{})
		slugs := append(append([]string{}, page.LinkedProductSlugs...), linkedSlugs(page.Body, e.opts.ProductURLPrefix)...)
		for _, slug := range slugs {
			if slug == "" {
				continue
			}
			if _, dup := seen[slug]; dup {
				continue
			}
			seen[slug] = struct{}{}
			report.LinksChecked++
			if _, ok := live[slug]; ok {
				continue
			}
			report.Issues = append(report.Issues, model.LinkIssue{
				PillarTitle:       page.Title,
				PillarSlug:        page.Slug,
				BrokenProductSlug: slug,
			})
		}
	}

	if len(report.Issues) > 0 {
		report.Status = model.HealthStatusWarning
		e.logger.Warn("broken product links found",
			"issues", len(report.Issues), "pillars", report.PillarsTotal,
			"category", model.EventCategoryLinkHealth)
	}
	return report, nil
}
