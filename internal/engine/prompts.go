// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"fmt"
	"strings"

	"github.com/olegiv/pillar-engine/internal/llm"
	"github.com/olegiv/pillar-engine/internal/model"
	"github.com/olegiv/pillar-engine/internal/util"
)

// Generation operations, used for usage accounting.
const (
	opStrategies = "strategies"
	opPillar     = "pillar"
)

const strategySystemPrompt = `You are an SEO content strategist for an online stationery store.
You design topic clusters: one comprehensive pillar page per broad topic, supported by existing blog posts and products.
Only reference products and posts that appear in the reference material, by their slug in square brackets.
Write in the same language as the topic.
Respond with a single JSON object and nothing else.`

const pillarSystemPrompt = `You are a senior SEO copywriter for an online stationery store.
You write comprehensive, helpful pillar pages that link to the products and articles provided.
Write in the same language as the page title.
Respond with a single JSON object and nothing else.`

func strategyPrompt(topic, description string) llm.Prompt {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\n", topic)
	fmt.Fprintf(&sb, "Description: %s\n\n", description)
	sb.WriteString(`Propose between one and three pillar page strategies for this topic.
For each strategy give the topic, three to eight target keywords, a suggested page title (max 70 characters),
a short rationale, the slugs of the most related products and, optionally, the slugs of related posts.

Return JSON in exactly this shape:
{"strategies": [{"topic": "", "target_keywords": [""], "suggested_title": "", "rationale": "", "related_products": [""], "related_posts": [""]}]}`)

	return llm.Prompt{Operation: opStrategies, System: strategySystemPrompt, User: sb.String()}
}

type pillarContext struct {
	strategy *model.SeoStrategy
	products []model.Document
	posts    []model.Document
}

func (e *Engine) pillarPrompt(pc pillarContext) (llm.Prompt, string) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\n", pc.strategy.Topic)
	fmt.Fprintf(&sb, "Suggested title: %s\n", pc.strategy.SuggestedTitle)
	if len(pc.strategy.TargetKeywords) > 0 {
		fmt.Fprintf(&sb, "Target keywords: %s\n", strings.Join(pc.strategy.TargetKeywords, ", "))
	}
	if pc.strategy.Rationale != "" {
		fmt.Fprintf(&sb, "Rationale: %s\n", pc.strategy.Rationale)
	}
	sb.WriteString(`
Write the pillar page. The body is Markdown with H2 sections, 800 to 1500 words,
and must link every listed product and article at least once using the URL given for it.

Return JSON in exactly this shape:
{"title": "", "seo_description": "", "slug": "", "body": ""}`)

	var g strings.Builder
	g.WriteString("PRODUCTS\n")
	for _, p := range pc.products {
		fmt.Fprintf(&g, "- %s (URL: %s): %s\n", p.Title, e.productURL(p.Slug), util.Truncate(util.PlainText(p.Content), 300))
	}
	g.WriteString("\nARTICLES\n")
	if len(pc.posts) == 0 {
		g.WriteString("- none\n")
	}
	for _, p := range pc.posts {
		fmt.Fprintf(&g, "- %s (URL: %s): %s\n", p.Title, e.postURL(p.Slug), util.Truncate(util.PlainText(p.Content), 300))
	}

	return llm.Prompt{Operation: opPillar, System: pillarSystemPrompt, User: sb.String()}, g.String()
}
