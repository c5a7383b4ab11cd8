// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/olegiv/pillar-engine/internal/model"
)

// ApprovalResult reports a committed batch.
type ApprovalResult struct {
	PublishedCount int                  `json:"published_count"`
	Published      []model.DocumentRef  `json:"published"`
	Reconfirmed    []model.DocumentRef  `json:"reconfirmed"`
	StrategyID     string               `json:"strategy_id,omitempty"`
	StrategyStatus model.StrategyStatus `json:"strategy_status,omitempty"`
	PillarSlug     string               `json:"pillar_slug,omitempty"`
}

// commitItem is one document of a batch: what the build saw and what it writes.
type commitItem struct {
	ref      model.DocumentRef
	title    string
	original string
	proposed string
	pillar   *model.PillarDraft
}

// ApproveChanges publishes the selected documents of one build,
// all-or-nothing. Every document is re-read first and compared with the
// content captured at build time; any difference aborts the batch with a
// StaleContentError listing every conflict, and nothing is written.
//
// Documents already published by an earlier approval are re-confirmed
// against the approval ledger instead of being written again. Edits of the
// build that are not selected are discarded with it.
func (e *Engine) ApproveChanges(ctx context.Context, refs []model.DocumentRef) (*ApprovalResult, error) {
	refs, err := normalizeRefs(refs)
	if err != nil {
		return nil, err
	}

	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	pending, settled, err := e.partitionRefs(ctx, refs)
	if err != nil {
		return nil, err
	}

	var b *model.ClusterBuild
	if len(pending) > 0 {
		b, err = e.resolveBuild(ctx, pending)
		if err != nil {
			return nil, err
		}
		if b == nil {
			// Finalized by another process since the lookup.
			for _, ref := range refs {
				if _, ok := pending[ref]; ok {
					settled = append(settled, ref)
				}
			}
		}
	}

	var items []commitItem
	if b != nil {
		items, err = e.selectItems(b, pending)
		if err != nil {
			return nil, err
		}
	}

	reconfirmed, conflicts, err := e.verify(ctx, items, settled)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		e.logger.Warn("approval aborted, content changed since build",
			"conflicts", len(conflicts), "category", model.EventCategoryApproval)
		return nil, &StaleContentError{Conflicts: conflicts}
	}

	result := &ApprovalResult{
		Published:   []model.DocumentRef{},
		Reconfirmed: reconfirmed,
	}
	if b == nil {
		return e.reconfirmResult(ctx, result, settled)
	}

	if err := e.apply(ctx, b, items); err != nil {
		return nil, err
	}

	now := e.now()
	records := make([]model.ApprovalRecord, 0, len(items))
	for _, it := range items {
		records = append(records, model.ApprovalRecord{
			StrategyID:      b.StrategyID,
			BuildID:         b.ID,
			Ref:             it.ref,
			ProposedContent: it.proposed,
			ApprovedAt:      now,
		})
	}
	// Live content is already written; finish even if the caller went away.
	if err := e.workflow.FinalizeBuild(context.WithoutCancel(ctx), b, records); err != nil {
		cause := e.finalizeError(ctx, b, err)
		all := make([]int, len(items))
		for i := range all {
			all[i] = i
		}
		if left, rbErr := e.rollback(ctx, items, all); rbErr != nil {
			return nil, &PartialCommitError{Written: left, Err: errors.Join(cause, rbErr)}
		}
		return nil, cause
	}

	result.PublishedCount = len(items)
	for _, it := range items {
		result.Published = append(result.Published, it.ref)
	}
	result.StrategyID = b.StrategyID
	result.StrategyStatus = model.StrategyGenerated
	for _, it := range items {
		if it.pillar != nil {
			result.PillarSlug = it.pillar.Slug
		}
	}

	e.logger.Info("changes approved",
		"strategy_id", b.StrategyID,
		"build_id", b.ID,
		"published", result.PublishedCount,
		"reconfirmed", len(result.Reconfirmed),
		"category", model.EventCategoryApproval,
	)
	return result, nil
}

// finalizeError classifies a failed finalize. A strategy or build rejected
// while the documents were being written is reported as such, so the
// caller sees why the batch was reverted.
func (e *Engine) finalizeError(ctx context.Context, b *model.ClusterBuild, err error) error {
	switch {
	case errors.Is(err, model.ErrStateChanged):
		e.logger.Warn("strategy changed during approval, reverting",
			"strategy_id", b.StrategyID, "build_id", b.ID, "category", model.EventCategoryApproval)
		return e.staleStateError(context.WithoutCancel(ctx), b.StrategyID, "approve changes of")
	case errors.Is(err, model.ErrNotFound):
		e.logger.Warn("build discarded during approval, reverting",
			"strategy_id", b.StrategyID, "build_id", b.ID, "category", model.EventCategoryApproval)
		return fmt.Errorf("build %s was rejected during approval: %w", b.ID, ErrNotFound)
	}
	return repoError("finalizing build", err)
}

func normalizeRefs(refs []model.DocumentRef) ([]model.DocumentRef, error) {
	if len(refs) == 0 {
		return nil, validationError("no documents selected")
	}
	out := make([]model.DocumentRef, 0, len(refs))
	for _, r := range refs {
		if r.ID == "" {
			return nil, validationError("document id is required")
		}
		if !r.Type.Valid() {
			return nil, validationError("unknown document type %q", r.Type)
		}
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// partitionRefs splits refs into those with a pending build and those
// without one, which can only be re-confirmations.
func (e *Engine) partitionRefs(ctx context.Context, refs []model.DocumentRef) (pending map[model.DocumentRef][]string, settled []model.DocumentRef, err error) {
	pending = make(map[model.DocumentRef][]string)
	for _, ref := range refs {
		ids, err := e.workflow.BuildsForDocument(ctx, ref)
		if err != nil {
			return nil, nil, repoError("looking up builds", err)
		}
		if len(ids) == 0 {
			settled = append(settled, ref)
			continue
		}
		pending[ref] = ids
	}
	return pending, settled, nil
}

// resolveBuild finds the build every pending ref belongs to. When several
// qualify the newest wins. It returns nil when the build disappeared.
func (e *Engine) resolveBuild(ctx context.Context, pending map[model.DocumentRef][]string) (*model.ClusterBuild, error) {
	var common []string
	first := true
	for _, ids := range pending {
		if first {
			common = slices.Clone(ids)
			first = false
			continue
		}
		common = slices.DeleteFunc(common, func(id string) bool { return !slices.Contains(ids, id) })
	}
	if len(common) == 0 {
		return nil, validationError("selected documents belong to different builds")
	}

	var newest *model.ClusterBuild
	for _, id := range common {
		b, err := e.workflow.GetBuild(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, repoError("getting build", err)
		}
		if newest == nil || b.CreatedAt.After(newest.CreatedAt) {
			newest = b
		}
	}
	return newest, nil
}

// selectItems returns the build's documents named in pending, pillar first.
func (e *Engine) selectItems(b *model.ClusterBuild, pending map[model.DocumentRef][]string) ([]commitItem, error) {
	var items []commitItem
	pillarRef := b.Pillar.Ref()
	_, pillarSelected := pending[pillarRef]
	if pillarSelected {
		items = append(items, commitItem{
			ref:      pillarRef,
			title:    b.Pillar.Title,
			original: "",
			proposed: b.Pillar.Body,
			pillar:   &b.Pillar,
		})
	}
	for _, edit := range b.ProposedEdits {
		if _, ok := pending[edit.Ref()]; !ok {
			continue
		}
		if edit.LinksPillar && !pillarSelected {
			return nil, validationError("%s links to the new pillar page %q; approve the pillar page too",
				edit.Ref(), b.Pillar.Slug)
		}
		items = append(items, commitItem{
			ref:      edit.Ref(),
			title:    edit.Title,
			original: edit.OriginalContent,
			proposed: edit.ProposedContent,
		})
	}
	return items, nil
}

// verify re-reads every document concurrently. Build items must still match
// their snapshot; settled refs must match their latest ledger entry.
func (e *Engine) verify(ctx context.Context, items []commitItem, settled []model.DocumentRef) ([]model.DocumentRef, []Conflict, error) {
	itemConflicts := make([]*Conflict, len(items))
	settledConflicts := make([]*Conflict, len(settled))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, it := range items {
		g.Go(func() error {
			c, err := e.checkItem(gctx, it)
			itemConflicts[i] = c
			return err
		})
	}
	for i, ref := range settled {
		g.Go(func() error {
			c, err := e.checkSettled(gctx, ref)
			settledConflicts[i] = c
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var conflicts []Conflict
	for _, c := range itemConflicts {
		if c != nil {
			conflicts = append(conflicts, *c)
		}
	}
	reconfirmed := []model.DocumentRef{}
	for i, c := range settledConflicts {
		if c != nil {
			conflicts = append(conflicts, *c)
			continue
		}
		reconfirmed = append(reconfirmed, settled[i])
	}
	return reconfirmed, conflicts, nil
}

func (e *Engine) checkItem(ctx context.Context, it commitItem) (*Conflict, error) {
	live := ""
	doc, err := e.content.GetDocument(ctx, it.ref)
	switch {
	case errors.Is(err, model.ErrNotFound):
		if it.pillar == nil {
			return &Conflict{Ref: it.ref, Title: it.title, Reason: "document no longer exists"}, nil
		}
	case err != nil:
		return nil, repoError("re-reading "+it.ref.String(), err)
	default:
		live = doc.Content
	}

	if it.pillar != nil {
		if doc != nil {
			return &Conflict{Ref: it.ref, Title: it.title, Reason: "pillar page already exists"}, nil
		}
		taken, err := e.content.PillarSlugExists(ctx, it.pillar.Slug)
		if err != nil {
			return nil, repoError("checking pillar slug", err)
		}
		if taken {
			return &Conflict{Ref: it.ref, Title: it.title,
				Reason: fmt.Sprintf("slug %q is now used by another pillar page", it.pillar.Slug)}, nil
		}
		return nil, nil
	}

	if live != it.original {
		return &Conflict{Ref: it.ref, Title: it.title, Reason: "content changed since the build was created"}, nil
	}
	return nil, nil
}

func (e *Engine) checkSettled(ctx context.Context, ref model.DocumentRef) (*Conflict, error) {
	rec, err := e.workflow.LatestApproval(ctx, ref)
	if errors.Is(err, model.ErrNotFound) {
		return nil, validationError("%s has no pending change", ref)
	}
	if err != nil {
		return nil, repoError("reading approval ledger", err)
	}
	doc, err := e.content.GetDocument(ctx, ref)
	if errors.Is(err, model.ErrNotFound) {
		return &Conflict{Ref: ref, Reason: "document no longer exists"}, nil
	}
	if err != nil {
		return nil, repoError("re-reading "+ref.String(), err)
	}
	if doc.Content != rec.ProposedContent {
		return &Conflict{Ref: ref, Title: doc.Title, Reason: "content changed since it was approved"}, nil
	}
	return nil, nil
}

func (e *Engine) reconfirmResult(ctx context.Context, result *ApprovalResult, settled []model.DocumentRef) (*ApprovalResult, error) {
	if len(settled) > 0 {
		rec, err := e.workflow.LatestApproval(ctx, settled[0])
		if err != nil {
			return nil, repoError("reading approval ledger", err)
		}
		result.StrategyID = rec.StrategyID
		if s, err := e.workflow.GetStrategy(ctx, rec.StrategyID); err == nil {
			result.StrategyStatus = s.Status
		}
	}
	e.logger.Info("approval re-confirmed", "documents", len(result.Reconfirmed), "category", model.EventCategoryApproval)
	return result, nil
}

// apply writes the pillar page, then each edit with compare-and-swap. On any
// failure the documents already written are reverted.
func (e *Engine) apply(ctx context.Context, b *model.ClusterBuild, items []commitItem) error {
	var written []int
	for i, it := range items {
		cause := e.write(ctx, b, it)
		if cause == nil {
			written = append(written, i)
			continue
		}
		e.logger.Warn("approval write failed, reverting",
			"build_id", b.ID, "document_type", it.ref.Type, "document_id", it.ref.ID,
			"error", cause, "category", model.EventCategoryApproval)
		if left, rbErr := e.rollback(ctx, items, written); rbErr != nil {
			return &PartialCommitError{Written: left, Err: errors.Join(cause, rbErr)}
		}
		return cause
	}
	return nil
}

func (e *Engine) write(ctx context.Context, b *model.ClusterBuild, it commitItem) error {
	if it.pillar != nil {
		now := e.now()
		page := model.PillarPage{
			ID:                 it.pillar.ID,
			Slug:               it.pillar.Slug,
			Title:              it.pillar.Title,
			SEODescription:     it.pillar.SEODescription,
			Body:               it.pillar.Body,
			TargetKeywords:     it.pillar.TargetKeywords,
			LinkedProductSlugs: it.pillar.LinkedProductSlugs,
			Status:             model.PillarStatusPublished,
			StrategyID:         b.StrategyID,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		err := e.content.CreatePillarPage(ctx, page)
		if errors.Is(err, model.ErrConflict) {
			return &StaleContentError{Conflicts: []Conflict{{Ref: it.ref, Title: it.title,
				Reason: fmt.Sprintf("slug %q is now used by another pillar page", it.pillar.Slug)}}}
		}
		if err != nil {
			return repoError("creating pillar page", err)
		}
		return nil
	}

	ok, err := e.content.ReplaceContent(ctx, it.ref, it.original, it.proposed)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return &StaleContentError{Conflicts: []Conflict{{Ref: it.ref, Title: it.title, Reason: "document no longer exists"}}}
	case err != nil:
		return repoError("writing "+it.ref.String(), err)
	case !ok:
		return &StaleContentError{Conflicts: []Conflict{{Ref: it.ref, Title: it.title,
			Reason: "content changed while the batch was being written"}}}
	}
	return nil
}

// rollback reverts the written items in reverse order and returns the
// documents it could not revert.
func (e *Engine) rollback(ctx context.Context, items []commitItem, written []int) ([]model.DocumentRef, error) {
	ctx = context.WithoutCancel(ctx)
	var left []model.DocumentRef
	var errs []error
	for i := len(written) - 1; i >= 0; i-- {
		it := items[written[i]]
		if err := e.revert(ctx, it); err != nil {
			left = append(left, it.ref)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		e.logger.Error("approval rollback incomplete", "documents", len(left),
			"error", errors.Join(errs...), "category", model.EventCategoryApproval)
	}
	return left, errors.Join(errs...)
}

func (e *Engine) revert(ctx context.Context, it commitItem) error {
	if it.pillar != nil {
		if err := e.content.DeletePillarPage(ctx, it.ref.ID); err != nil {
			return fmt.Errorf("reverting %s: %w", it.ref, err)
		}
		return nil
	}
	ok, err := e.content.ReplaceContent(ctx, it.ref, it.proposed, it.original)
	if err != nil {
		return fmt.Errorf("reverting %s: %w", it.ref, err)
	}
	if !ok {
		return fmt.Errorf("reverting %s: content changed after it was written", it.ref)
	}
	return nil
}
