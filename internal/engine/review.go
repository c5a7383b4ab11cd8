// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"iter"

	"github.com/olegiv/pillar-engine/internal/model"
)

// ReviewItems returns the review sequence of a build, addressed by build ID
// or by the ID of the strategy it came from. The pillar draft comes first
// with an empty original, followed by the proposed edits in build order.
// Without a build the sequence is empty. The sequence can be ranged over
// any number of times.
func (e *Engine) ReviewItems(ctx context.Context, id string) (iter.Seq[model.ReviewItem], error) {
	if id == "" {
		return nil, validationError("id is required")
	}
	b, err := e.lookupBuild(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return func(func(model.ReviewItem) bool) {}, nil
	}

	return func(yield func(model.ReviewItem) bool) {
		pillar := model.ReviewItem{
			ID:              b.Pillar.ID,
			Type:            model.DocumentPillarPage,
			Title:           b.Pillar.Title,
			OriginalContent: "",
			ProposedContent: b.Pillar.Body,
		}
		if !yield(pillar) {
			return
		}
		for _, edit := range b.ProposedEdits {
			item := model.ReviewItem{
				ID:              edit.TargetID,
				Type:            edit.TargetType,
				Title:           edit.Title,
				OriginalContent: edit.OriginalContent,
				ProposedContent: edit.ProposedContent,
			}
			if !yield(item) {
				return
			}
		}
	}, nil
}

// GetReviewData collects ReviewItems into a slice.
func (e *Engine) GetReviewData(ctx context.Context, id string) ([]model.ReviewItem, error) {
	seq, err := e.ReviewItems(ctx, id)
	if err != nil {
		return nil, err
	}
	items := []model.ReviewItem{}
	for item := range seq {
		items = append(items, item)
	}
	return items, nil
}

// lookupBuild resolves id as a build ID, then as a strategy ID. It returns
// nil without error when neither has a build.
func (e *Engine) lookupBuild(ctx context.Context, id string) (*model.ClusterBuild, error) {
	b, err := e.workflow.GetBuild(ctx, id)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, repoError("getting build", err)
	}
	b, err = e.workflow.GetBuildByStrategy(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, repoError("getting build", err)
	}
	return b, nil
}
