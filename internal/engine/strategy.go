// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/olegiv/pillar-engine/internal/model"
)

// GenerateInput is the request for new strategies.
type GenerateInput struct {
	Topic       string `json:"topic"`
	Description string `json:"description"`
}

// GenerateResult holds the persisted strategies and non-fatal warnings.
type GenerateResult struct {
	Strategies []model.SeoStrategy `json:"strategies"`
	Warnings   []string            `json:"warnings,omitempty"`
}

// GenerateStrategies loads the current corpus and proposes strategies for the topic.
func (e *Engine) GenerateStrategies(ctx context.Context, in GenerateInput) (*GenerateResult, error) {
	if err := e.validateGenerateInput(in); err != nil {
		return nil, err
	}
	corpus, err := LoadCorpus(ctx, e.content)
	if err != nil {
		return nil, err
	}
	return e.GenerateStrategiesFrom(ctx, corpus, in)
}

func (e *Engine) validateGenerateInput(in GenerateInput) error {
	if strings.TrimSpace(in.Topic) == "" {
		return validationError("topic is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		return validationError("description is required")
	}
	return nil
}

// GenerateStrategiesFrom proposes strategies grounded in corpus and persists
// them as proposed. Nothing is persisted when generation or parsing fails.
func (e *Engine) GenerateStrategiesFrom(ctx context.Context, corpus *Corpus, in GenerateInput) (*GenerateResult, error) {
	if err := e.validateGenerateInput(in); err != nil {
		return nil, err
	}
	topic := strings.TrimSpace(in.Topic)
	description := strings.TrimSpace(in.Description)

	result := &GenerateResult{Strategies: []model.SeoStrategy{}}
	if n := utf8.RuneCountInString(topic); n > e.opts.TopicWarnLength {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("topic is %d characters long; short phrases give better strategies", n))
	}

	text, err := e.gen.GenerateText(ctx, strategyPrompt(topic, description), corpus.Grounding(topic+" "+description, e.opts.MaxGroundingItems))
	if err != nil {
		e.logger.Warn("strategy generation failed", "error", err, "category", model.EventCategoryGeneration)
		return nil, generationError("generating strategies", err)
	}

	var candidates []StrategyCandidate
	switch outcome := ParseStrategies(text).(type) {
	case ParsedStrategies:
		candidates = outcome.Candidates
	case ParseFailure:
		e.logger.Warn("strategy output rejected", "reason", outcome.Reason, "category", model.EventCategoryGeneration)
		return nil, &GenerationParseError{Stage: opStrategies, Excerpt: outcome.Excerpt, Err: errors.New(outcome.Reason)}
	}

	now := e.now()
	for _, c := range candidates {
		s := model.SeoStrategy{
			ID:              uuid.NewString(),
			Topic:           c.Topic,
			Description:     description,
			TargetKeywords:  c.TargetKeywords,
			SuggestedTitle:  c.SuggestedTitle,
			Rationale:       c.Rationale,
			RelatedProducts: []string{},
			RelatedPosts:    []string{},
			Status:          model.StrategyProposed,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		for _, key := range c.RelatedProducts {
			if p, ok := corpus.ResolveProduct(key); ok && !slices.Contains(s.RelatedProducts, p.ID) {
				s.RelatedProducts = append(s.RelatedProducts, p.ID)
			}
		}
		for _, key := range c.RelatedPosts {
			if p, ok := corpus.ResolvePost(key); ok && !slices.Contains(s.RelatedPosts, p.ID) {
				s.RelatedPosts = append(s.RelatedPosts, p.ID)
			}
		}
		result.Strategies = append(result.Strategies, s)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(result.Strategies) > 0 {
		if err := e.workflow.CreateStrategies(ctx, result.Strategies); err != nil {
			return nil, repoError("saving strategies", err)
		}
	}

	e.logger.Info("strategies generated", "topic", topic, "count", len(result.Strategies))
	return result, nil
}

// GetStrategy returns a strategy by ID.
func (e *Engine) GetStrategy(ctx context.Context, id string) (*model.SeoStrategy, error) {
	s, err := e.workflow.GetStrategy(ctx, id)
	if err != nil {
		return nil, repoError("getting strategy", err)
	}
	return s, nil
}

// ListStrategies returns strategies, filtered by status when not empty.
func (e *Engine) ListStrategies(ctx context.Context, status model.StrategyStatus) ([]model.SeoStrategy, error) {
	if status != "" && !status.Valid() {
		return nil, validationError("unknown status %q", status)
	}
	list, err := e.workflow.ListStrategies(ctx, status)
	if err != nil {
		return nil, repoError("listing strategies", err)
	}
	if list == nil {
		list = []model.SeoStrategy{}
	}
	return list, nil
}

// ApproveStrategy moves a proposed strategy to approved. Approving an
// approved strategy is a no-op.
func (e *Engine) ApproveStrategy(ctx context.Context, id string) (*model.SeoStrategy, error) {
	s, err := e.GetStrategy(ctx, id)
	if err != nil {
		return nil, err
	}
	switch s.Status {
	case model.StrategyApproved:
		return s, nil
	case model.StrategyProposed:
	default:
		return nil, &StateError{StrategyID: id, Status: s.Status, Operation: "approve"}
	}

	ok, err := e.workflow.TransitionStrategy(ctx, id, model.StrategyProposed, model.StrategyApproved)
	if err != nil {
		return nil, repoError("approving strategy", err)
	}
	if !ok {
		return nil, e.staleStateError(ctx, id, "approve")
	}
	e.logger.Info("strategy approved", "strategy_id", id)
	return e.GetStrategy(ctx, id)
}

// RejectStrategy moves a strategy to rejected and hard-deletes its build.
func (e *Engine) RejectStrategy(ctx context.Context, id string) (*model.SeoStrategy, error) {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	s, err := e.GetStrategy(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.IsTerminal() {
		return nil, &StateError{StrategyID: id, Status: s.Status, Operation: "reject"}
	}

	if s.Status != model.StrategyRejected {
		ok, err := e.workflow.TransitionStrategy(ctx, id, s.Status, model.StrategyRejected)
		if err != nil {
			return nil, repoError("rejecting strategy", err)
		}
		if !ok {
			return nil, e.staleStateError(ctx, id, "reject")
		}
	}

	if err := e.discardStrategyBuild(ctx, id); err != nil {
		return nil, err
	}
	e.logger.Info("strategy rejected", "strategy_id", id)
	return e.GetStrategy(ctx, id)
}

func (e *Engine) discardStrategyBuild(ctx context.Context, strategyID string) error {
	b, err := e.workflow.GetBuildByStrategy(ctx, strategyID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return repoError("getting build", err)
	}
	if _, err := e.workflow.DeleteBuild(ctx, b.ID); err != nil {
		return repoError("deleting build", err)
	}
	e.logger.Info("build discarded", "strategy_id", strategyID, "build_id", b.ID)
	return nil
}

// staleStateError re-reads a strategy whose status changed underneath a transition.
func (e *Engine) staleStateError(ctx context.Context, id, op string) error {
	s, err := e.GetStrategy(ctx, id)
	if err != nil {
		return err
	}
	return &StateError{StrategyID: id, Status: s.Status, Operation: op}
}
