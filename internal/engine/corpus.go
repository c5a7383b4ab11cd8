// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/olegiv/pillar-engine/internal/model"
	"github.com/olegiv/pillar-engine/internal/util"
)

// Corpus is a point-in-time snapshot of the catalog and content summaries.
// Operations that read the catalog take it as an explicit parameter.
type Corpus struct {
	Products []model.ProductSummary
	Posts    []model.PostSummary
	Pillars  []model.PillarPage
	LoadedAt time.Time
}

// LoadCorpus reads products, posts and pillar pages concurrently.
func LoadCorpus(ctx context.Context, repo ContentRepository) (*Corpus, error) {
	c := &Corpus{LoadedAt: time.Now().UTC()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		products, err := repo.ProductSummaries(gctx)
		if err != nil {
			return repoError("loading products", err)
		}
		c.Products = products
		return nil
	})
	g.Go(func() error {
		posts, err := repo.PostSummaries(gctx)
		if err != nil {
			return repoError("loading posts", err)
		}
		c.Posts = posts
		return nil
	})
	g.Go(func() error {
		pillars, err := repo.PillarPages(gctx, "")
		if err != nil {
			return repoError("loading pillar pages", err)
		}
		c.Pillars = pillars
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return c, nil
}

// PublishedPosts returns the published posts.
func (c *Corpus) PublishedPosts() []model.PostSummary {
	var out []model.PostSummary
	for _, p := range c.Posts {
		if p.Status == model.PostStatusPublished {
			out = append(out, p)
		}
	}
	return out
}

// PublishedPillars returns the published pillar pages.
func (c *Corpus) PublishedPillars() []model.PillarPage {
	var out []model.PillarPage
	for _, p := range c.Pillars {
		if p.IsPublished() {
			out = append(out, p)
		}
	}
	return out
}

// ResolveProduct finds a product by ID, slug or name.
func (c *Corpus) ResolveProduct(key string) (model.ProductSummary, bool) {
	key = strings.TrimSpace(key)
	folded := util.Fold(key)
	for _, p := range c.Products {
		if p.ID == key || p.Slug == key {
			return p, true
		}
	}
	for _, p := range c.Products {
		if util.Fold(p.Name) == folded {
			return p, true
		}
	}
	return model.ProductSummary{}, false
}

// ResolvePost finds a post by ID, slug or title.
func (c *Corpus) ResolvePost(key string) (model.PostSummary, bool) {
	key = strings.TrimSpace(key)
	folded := util.Fold(key)
	for _, p := range c.Posts {
		if p.ID == key || p.Slug == key {
			return p, true
		}
	}
	for _, p := range c.Posts {
		if util.Fold(p.Title) == folded {
			return p, true
		}
	}
	return model.PostSummary{}, false
}

// Grounding renders the catalog summary supplied to text generation.
// Products and posts relevant to topic come first, ranked by RankRelevant,
// followed by the rest in repository order. Each section holds at most
// limit entries.
func (c *Corpus) Grounding(topic string, limit int) string {
	products, posts := c.byRelevance(topic)
	var sb strings.Builder

	sb.WriteString("PRODUCTS\n")
	for i, p := range products {
		if i >= limit {
			fmt.Fprintf(&sb, "- ... %d more\n", len(products)-limit)
			break
		}
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", p.Slug, p.Name, util.Truncate(util.PlainText(p.Description), 160))
	}

	sb.WriteString("\nPOSTS\n")
	for i, p := range posts {
		if i >= limit {
			fmt.Fprintf(&sb, "- ... %d more\n", len(posts)-limit)
			break
		}
		fmt.Fprintf(&sb, "- [%s] %s", p.Slug, p.Title)
		if p.SEODescription != "" {
			fmt.Fprintf(&sb, ": %s", util.Truncate(p.SEODescription, 160))
		}
		if len(p.Keywords) > 0 {
			fmt.Fprintf(&sb, " (keywords: %s)", strings.Join(p.Keywords, ", "))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\nEXISTING PILLAR PAGES\n")
	pillars := c.PublishedPillars()
	if len(pillars) == 0 {
		sb.WriteString("- none\n")
	}
	for i, p := range pillars {
		if i >= limit {
			fmt.Fprintf(&sb, "- ... %d more\n", len(pillars)-limit)
			break
		}
		fmt.Fprintf(&sb, "- [%s] %s\n", p.Slug, p.Title)
	}

	return sb.String()
}

// byRelevance returns the products and published posts with the items
// ranked against topic moved to the front.
func (c *Corpus) byRelevance(topic string) ([]model.ProductSummary, []model.PostSummary) {
	ranked := RankRelevant(c, topic, 0)
	first := make(map[string]int, len(ranked))
	for i, r := range ranked {
		first[r.Ref.String()] = i
	}

	products := slices.Clone(c.Products)
	slices.SortStableFunc(products, func(a, b model.ProductSummary) int {
		return compareRank(first, model.DocumentRef{ID: a.ID, Type: model.DocumentProduct},
			model.DocumentRef{ID: b.ID, Type: model.DocumentProduct})
	})
	posts := c.PublishedPosts()
	slices.SortStableFunc(posts, func(a, b model.PostSummary) int {
		return compareRank(first, model.DocumentRef{ID: a.ID, Type: model.DocumentPost},
			model.DocumentRef{ID: b.ID, Type: model.DocumentPost})
	})
	return products, posts
}

// compareRank orders ranked refs by rank and keeps unranked ones after them.
func compareRank(rank map[string]int, a, b model.DocumentRef) int {
	ra, oka := rank[a.String()]
	rb, okb := rank[b.String()]
	switch {
	case oka && okb:
		return cmp.Compare(ra, rb)
	case oka:
		return -1
	case okb:
		return 1
	}
	return 0
}
