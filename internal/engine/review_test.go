// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/olegiv/pillar-engine/internal/model"
)

func TestReviewItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, s := f.build(t, []string{f.post1.ID, f.post2.ID}, []string{f.pen.ID, f.notebook.ID})

	b, err := f.workflow.GetBuild(ctx, res.BuildID)
	if err != nil {
		t.Fatalf("GetBuild() error = %v", err)
	}
	want := []model.ReviewItem{
		{
			ID:              b.Pillar.ID,
			Type:            model.DocumentPillarPage,
			Title:           "Regalos Empresariales: Guía Completa",
			OriginalContent: "",
			ProposedContent: b.Pillar.Body,
		},
		{
			ID:              f.post1.ID,
			Type:            model.DocumentPost,
			Title:           f.post1.Title,
			OriginalContent: post1Body,
			ProposedContent: b.ProposedEdits[0].ProposedContent,
		},
		{
			ID:              f.post2.ID,
			Type:            model.DocumentPost,
			Title:           f.post2.Title,
			OriginalContent: post2Body,
			ProposedContent: b.ProposedEdits[1].ProposedContent,
		},
	}

	// Addressable by strategy or build, and restartable.
	for _, id := range []string{s.ID, res.BuildID} {
		seq, err := f.engine.ReviewItems(ctx, id)
		if err != nil {
			t.Fatalf("ReviewItems(%s) error = %v", id, err)
		}
		for pass := range 2 {
			var got []model.ReviewItem
			for item := range seq {
				got = append(got, item)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("ReviewItems(%s) pass %d mismatch (-want +got):\n%s", id, pass, diff)
			}
		}
	}
}

func TestReviewItemsEarlyStop(t *testing.T) {
	f := newFixture(t)
	res, _ := f.build(t, []string{f.post1.ID, f.post2.ID}, []string{f.pen.ID})

	seq, err := f.engine.ReviewItems(context.Background(), res.BuildID)
	if err != nil {
		t.Fatalf("ReviewItems() error = %v", err)
	}
	n := 0
	for range seq {
		n++
		break
	}
	if n != 1 {
		t.Errorf("consumed %d items, want 1", n)
	}
}

func TestGetReviewDataWithoutBuild(t *testing.T) {
	f := newFixture(t)
	s := f.strategy(t, model.StrategyApproved)

	for _, id := range []string{s.ID, "unknown"} {
		items, err := f.engine.GetReviewData(context.Background(), id)
		if err != nil {
			t.Fatalf("GetReviewData(%s) error = %v", id, err)
		}
		if items == nil || len(items) != 0 {
			t.Errorf("GetReviewData(%s) = %#v, want empty slice", id, items)
		}
	}

	if _, err := f.engine.GetReviewData(context.Background(), ""); !errors.Is(err, ErrValidation) {
		t.Errorf("empty id error = %v, want ErrValidation", err)
	}
}

func TestNoReviewLeakageAfterRejection(t *testing.T) {
	ctx := context.Background()

	t.Run("strategy rejected", func(t *testing.T) {
		f := newFixture(t)
		res, s := f.build(t, []string{f.post1.ID}, []string{f.pen.ID})

		got, err := f.engine.RejectStrategy(ctx, s.ID)
		if err != nil {
			t.Fatalf("RejectStrategy() error = %v", err)
		}
		if got.Status != model.StrategyRejected {
			t.Errorf("Status = %s, want rejected", got.Status)
		}
		for _, id := range []string{s.ID, res.BuildID} {
			items, err := f.engine.GetReviewData(ctx, id)
			if err != nil || len(items) != 0 {
				t.Errorf("GetReviewData(%s) = %d items, %v; want none", id, len(items), err)
			}
		}
		ids, err := f.workflow.BuildsForDocument(ctx, postRef(f.post1.ID))
		if err != nil || len(ids) != 0 {
			t.Errorf("BuildsForDocument() = %v, %v; edits should be gone", ids, err)
		}
	})

	t.Run("build rejected", func(t *testing.T) {
		f := newFixture(t)
		res, s := f.build(t, []string{f.post1.ID}, []string{f.pen.ID})

		if err := f.engine.RejectBuild(ctx, res.BuildID); err != nil {
			t.Fatalf("RejectBuild() error = %v", err)
		}
		items, err := f.engine.GetReviewData(ctx, s.ID)
		if err != nil || len(items) != 0 {
			t.Errorf("GetReviewData() = %d items, %v; want none", len(items), err)
		}
	})
}
