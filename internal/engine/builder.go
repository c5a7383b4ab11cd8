// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"fmt"
	stdhtml "html"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/olegiv/pillar-engine/internal/model"
	"github.com/olegiv/pillar-engine/internal/util"
)

const maxSlugAttempts = 50

// BuildInput selects the documents a cluster is built from. The strategy's
// related items are defaults for the selection, not requirements.
type BuildInput struct {
	StrategyID       string   `json:"strategy_id"`
	SelectedPosts    []string `json:"selected_posts"`
	SelectedProducts []string `json:"selected_products"`
	// Replace discards an existing build of the strategy instead of failing.
	Replace bool `json:"replace"`
}

// BuildResult summarizes a persisted cluster build.
type BuildResult struct {
	BuildID       string               `json:"build_id"`
	StrategyID    string               `json:"strategy_id"`
	PillarID      string               `json:"pillar_id"`
	PillarSlug    string               `json:"pillar_slug"`
	ProposedEdits []model.ProposedEdit `json:"proposed_edits"`
	Replaced      bool                 `json:"replaced"`
}

// BuildCluster drafts a pillar page and the link edits for the selected
// posts, then persists them as an unpublished build. Live content is not
// touched. A generation failure persists nothing.
func (e *Engine) BuildCluster(ctx context.Context, in BuildInput) (*BuildResult, error) {
	if strings.TrimSpace(in.StrategyID) == "" {
		return nil, validationError("strategy id is required")
	}
	postIDs := dedupe(in.SelectedPosts)
	productIDs := dedupe(in.SelectedProducts)
	if len(postIDs) == 0 && len(productIDs) == 0 {
		return nil, validationError("select at least one post or product")
	}

	strategy, err := e.GetStrategy(ctx, in.StrategyID)
	if err != nil {
		return nil, err
	}
	switch {
	case strategy.Status == model.StrategyApproved:
	case strategy.Status == model.StrategyProposed && e.opts.AllowDirectBuild:
	default:
		return nil, &StateError{StrategyID: strategy.ID, Status: strategy.Status, Operation: "build"}
	}

	if !e.beginBuild(strategy.ID) {
		return nil, fmt.Errorf("strategy %s: %w", strategy.ID, ErrBuildAlreadyInProgress)
	}
	defer e.endBuild(strategy.ID)

	existing, err := e.workflow.GetBuildByStrategy(ctx, strategy.ID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		existing = nil
	case err != nil:
		return nil, repoError("checking active build", err)
	case !in.Replace:
		return nil, fmt.Errorf("strategy %s has build %s: %w", strategy.ID, existing.ID, ErrBuildAlreadyInProgress)
	}

	products, err := e.fetchDocuments(ctx, model.DocumentProduct, productIDs)
	if err != nil {
		return nil, err
	}
	posts, err := e.fetchDocuments(ctx, model.DocumentPost, postIDs)
	if err != nil {
		return nil, err
	}

	pillar, err := e.draftPillar(ctx, pillarContext{strategy: strategy, products: products, posts: posts})
	if err != nil {
		return nil, err
	}
	pillarHref := e.pillarURL(pillar.Slug)

	build := &model.ClusterBuild{
		ID:            uuid.NewString(),
		StrategyID:    strategy.ID,
		Pillar:        *pillar,
		ProposedEdits: []model.ProposedEdit{},
		CreatedAt:     e.now(),
	}

	for _, post := range posts {
		proposed, linksPillar := e.linkPost(post.Content, products, pillarHref, pillar.Title)
		if proposed == post.Content {
			e.logger.Debug("no anchor found, post omitted", "post_id", post.Ref.ID)
			continue
		}
		build.ProposedEdits = append(build.ProposedEdits, model.ProposedEdit{
			Position:        len(build.ProposedEdits),
			TargetID:        post.Ref.ID,
			TargetType:      model.DocumentPost,
			Title:           post.Title,
			OriginalContent: post.Content,
			ProposedContent: proposed,
			LinksPillar:     linksPillar,
		})
	}

	if e.opts.ProductBacklinks {
		for _, product := range products {
			if hasLink(product.Content, pillarHref) {
				continue
			}
			build.ProposedEdits = append(build.ProposedEdits, model.ProposedEdit{
				Position:        len(build.ProposedEdits),
				TargetID:        product.Ref.ID,
				TargetType:      model.DocumentProduct,
				Title:           product.Title,
				OriginalContent: product.Content,
				ProposedContent: e.backlinkProduct(product.Content, pillarHref, pillar.Title),
				LinksPillar:     true,
			})
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	replaced := false
	if existing != nil {
		if _, err := e.workflow.DeleteBuild(ctx, existing.ID); err != nil {
			return nil, repoError("replacing build", err)
		}
		replaced = true
		e.logger.Info("build replaced", "strategy_id", strategy.ID, "build_id", existing.ID)
	}
	if err := e.workflow.SaveBuild(ctx, build); err != nil {
		switch {
		case errors.Is(err, model.ErrConflict):
			return nil, fmt.Errorf("strategy %s: %w", strategy.ID, ErrBuildAlreadyInProgress)
		case errors.Is(err, model.ErrStateChanged):
			return nil, e.staleStateError(ctx, strategy.ID, "build")
		}
		return nil, repoError("saving build", err)
	}

	e.logger.Info("cluster built",
		"strategy_id", strategy.ID,
		"build_id", build.ID,
		"pillar_slug", pillar.Slug,
		"edits", len(build.ProposedEdits),
		"category", model.EventCategoryBuild,
	)

	return &BuildResult{
		BuildID:       build.ID,
		StrategyID:    strategy.ID,
		PillarID:      pillar.ID,
		PillarSlug:    pillar.Slug,
		ProposedEdits: build.ProposedEdits,
		Replaced:      replaced,
	}, nil
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// fetchDocuments reads the selected documents in selection order.
func (e *Engine) fetchDocuments(ctx context.Context, typ model.DocumentType, ids []string) ([]model.Document, error) {
	docs := make([]model.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := e.content.GetDocument(ctx, model.DocumentRef{ID: id, Type: typ})
		if errors.Is(err, model.ErrNotFound) {
			return nil, validationError("unknown %s %q", typ, id)
		}
		if err != nil {
			return nil, repoError("reading selection", err)
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

// draftPillar generates, renders and links the pillar page draft.
func (e *Engine) draftPillar(ctx context.Context, pc pillarContext) (*model.PillarDraft, error) {
	prompt, grounding := e.pillarPrompt(pc)
	text, err := e.gen.GenerateText(ctx, prompt, grounding)
	if err != nil {
		e.logger.Warn("pillar generation failed", "strategy_id", pc.strategy.ID, "error", err,
			"category", model.EventCategoryGeneration)
		return nil, generationError("generating pillar page", err)
	}
	out, err := parsePillar(text)
	if err != nil {
		e.logger.Warn("pillar output rejected", "strategy_id", pc.strategy.ID, "error", err,
			"category", model.EventCategoryGeneration)
		return nil, err
	}

	body, err := util.RenderBody(out.Body)
	if err != nil {
		return nil, &GenerationParseError{Stage: opPillar, Excerpt: excerpt(out.Body), Err: err}
	}
	body = e.ensureProductLinks(body, pc.products)

	base := util.Slugify(out.Slug)
	if !util.IsValidSlug(base) {
		base = util.Slugify(out.Title)
	}
	if !util.IsValidSlug(base) {
		base = util.Slugify(pc.strategy.Topic)
	}
	slug, ok, err := util.UniqueSlug(base, maxSlugAttempts, func(s string) (bool, error) {
		return e.content.PillarSlugExists(ctx, s)
	})
	if err != nil {
		return nil, repoError("checking pillar slug", err)
	}
	if !ok {
		slug = base + "-" + uuid.NewString()[:8]
	}

	seo := out.SEODescription
	if seo == "" {
		seo = util.Truncate(util.PlainText(body), 155)
	}

	linked := make([]string, 0, len(pc.products))
	for _, p := range pc.products {
		linked = append(linked, p.Slug)
	}

	return &model.PillarDraft{
		ID:                 uuid.NewString(),
		Slug:               slug,
		Title:              out.Title,
		SEODescription:     seo,
		Body:               body,
		TargetKeywords:     pc.strategy.TargetKeywords,
		LinkedProductSlugs: linked,
	}, nil
}

// ensureProductLinks links every product from the pillar body: at its first
// mention, or in a related-products list appended to the body.
func (e *Engine) ensureProductLinks(body string, products []model.Document) string {
	var missing []model.Document
	for _, p := range products {
		href := e.productURL(p.Slug)
		if hasLink(body, href) {
			continue
		}
		if linked, ok := linkFirstMention(body, p.Title, href); ok {
			body = linked
			continue
		}
		missing = append(missing, p)
	}
	if len(missing) == 0 {
		return body
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimRight(body, " \t\r\n"))
	sb.WriteString("\n<h2>" + stdhtml.EscapeString(e.opts.RelatedProductsHeading) + "</h2>\n<ul>\n")
	for _, p := range missing {
		sb.WriteString("<li>" + anchor(e.productURL(p.Slug), stdhtml.EscapeString(p.Title)) + "</li>\n")
	}
	sb.WriteString("</ul>")
	return sb.String()
}

// linkPost links the first mention of each selected product and adds a
// backlink to the pillar page at the end of the first section. It reports
// whether the result links to the pillar.
func (e *Engine) linkPost(body string, products []model.Document, pillarHref, pillarTitle string) (string, bool) {
	if strings.TrimSpace(body) == "" {
		return body, false
	}
	out := body
	for _, p := range products {
		href := e.productURL(p.Slug)
		if hasLink(out, href) {
			continue
		}
		if linked, ok := linkFirstMention(out, p.Title, href); ok {
			out = linked
		}
	}

	if hasLink(out, pillarHref) {
		return out, true
	}
	if linked, ok := linkFirstMention(out, pillarTitle, pillarHref); ok {
		return linked, true
	}
	snippet := "<p>" + stdhtml.EscapeString(e.opts.BacklinkLabel) + " " +
		anchor(pillarHref, stdhtml.EscapeString(pillarTitle)) + "</p>"
	return insertAtSectionEnd(out, snippet), true
}

func (e *Engine) backlinkProduct(description, pillarHref, pillarTitle string) string {
	snippet := "<p>" + stdhtml.EscapeString(e.opts.BacklinkLabel) + " " +
		anchor(pillarHref, stdhtml.EscapeString(pillarTitle)) + "</p>"
	trimmed := strings.TrimRight(description, " \t\r\n")
	if trimmed == "" {
		return snippet
	}
	if !util.LooksLikeHTML(trimmed) {
		trimmed = "<p>" + stdhtml.EscapeString(trimmed) + "</p>"
	}
	return trimmed + "\n" + snippet
}

// RejectBuild hard-deletes a build and all of its proposed edits.
func (e *Engine) RejectBuild(ctx context.Context, buildID string) error {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	deleted, err := e.workflow.DeleteBuild(ctx, buildID)
	if err != nil {
		return repoError("deleting build", err)
	}
	if !deleted {
		return fmt.Errorf("build %s: %w", buildID, ErrNotFound)
	}
	e.logger.Info("build rejected", "build_id", buildID, "category", model.EventCategoryBuild)
	return nil
}

// Suggestion is the default selection offered for a strategy's build.
type Suggestion struct {
	StrategyID string                 `json:"strategy_id"`
	Products   []model.ProductSummary `json:"products"`
	Posts      []model.PostSummary    `json:"posts"`
}

// SuggestCluster returns the strategy's related items followed by the
// products and posts ranked most relevant to its topic and keywords.
func (e *Engine) SuggestCluster(ctx context.Context, strategyID string) (*Suggestion, error) {
	strategy, err := e.GetStrategy(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	corpus, err := LoadCorpus(ctx, e.content)
	if err != nil {
		return nil, err
	}

	s := &Suggestion{StrategyID: strategy.ID, Products: []model.ProductSummary{}, Posts: []model.PostSummary{}}
	seen := make(map[string]struct{})
	for _, id := range strategy.RelatedProducts {
		if p, ok := corpus.ResolveProduct(id); ok {
			s.Products = append(s.Products, p)
			seen[p.ID] = struct{}{}
		}
	}
	for _, id := range strategy.RelatedPosts {
		if p, ok := corpus.ResolvePost(id); ok && p.Status == model.PostStatusPublished {
			s.Posts = append(s.Posts, p)
			seen[p.ID] = struct{}{}
		}
	}

	query := strategy.Topic + " " + strings.Join(strategy.TargetKeywords, " ")
	addedProducts, addedPosts := 0, 0
	for _, r := range RankRelevant(corpus, query, 0) {
		if _, dup := seen[r.Ref.ID]; dup {
			continue
		}
		switch r.Ref.Type {
		case model.DocumentProduct:
			if addedProducts >= e.opts.MaxSuggestions {
				continue
			}
			if p, ok := corpus.ResolveProduct(r.Ref.ID); ok {
				s.Products = append(s.Products, p)
				addedProducts++
			}
		case model.DocumentPost:
			if addedPosts >= e.opts.MaxSuggestions {
				continue
			}
			if p, ok := corpus.ResolvePost(r.Ref.ID); ok {
				s.Posts = append(s.Posts, p)
				addedPosts++
			}
		}
		seen[r.Ref.ID] = struct{}{}
	}
	return s, nil
}
