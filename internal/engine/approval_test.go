// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/pillar-engine/internal/model"
)

// buildRefs returns every document of a build, pillar first.
func buildRefs(t *testing.T, f *fixture, buildID string) []model.DocumentRef {
	t.Helper()
	items, err := f.engine.GetReviewData(context.Background(), buildID)
	require.NoError(t, err)
	refs := make([]model.DocumentRef, 0, len(items))
	for _, it := range items {
		refs = append(refs, it.Ref())
	}
	return refs
}

func (f *fixture) editLive(t *testing.T, ref model.DocumentRef, from, to string) {
	t.Helper()
	ok, err := f.content.ReplaceContent(context.Background(), ref, from, to)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRegalosEmpresarialesScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.strategy(t, model.StrategyApproved)
	require.Equal(t, []string{f.pen.ID, f.notebook.ID}, s.RelatedProducts)

	build, err := f.engine.BuildCluster(ctx, BuildInput{
		StrategyID:       s.ID,
		SelectedProducts: s.RelatedProducts,
		SelectedPosts:    []string{},
	})
	require.NoError(t, err)

	items, err := f.engine.GetReviewData(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, items, 1, "only the pillar draft is reviewed")
	assert.Equal(t, model.DocumentPillarPage, items[0].Type)
	assert.Empty(t, items[0].OriginalContent)

	res, err := f.engine.ApproveChanges(ctx, []model.DocumentRef{items[0].Ref()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.PublishedCount)
	assert.Equal(t, model.StrategyGenerated, res.StrategyStatus)
	assert.Equal(t, build.PillarSlug, res.PillarSlug)

	got, err := f.engine.GetStrategy(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StrategyGenerated, got.Status)

	pages, err := f.content.PillarPages(ctx, model.PillarStatusPublished)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	page := pages[0]
	assert.Equal(t, build.PillarSlug, page.Slug)
	assert.Equal(t, s.ID, page.StrategyID)
	assert.NotEmpty(t, page.Body)
	assert.Contains(t, page.Body, f.pen.Slug)
	assert.Contains(t, page.Body, f.notebook.Slug)
	assert.ElementsMatch(t, []string{f.pen.Slug, f.notebook.Slug}, page.LinkedProductSlugs)

	after, err := f.engine.GetReviewData(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, after, "the build is discarded after approval")

	report, err := f.engine.CheckLinkHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.HealthStatusHealthy, report.Status)
}

func TestApproveChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	build, s := f.build(t, []string{f.post1.ID, f.post2.ID}, []string{f.pen.ID, f.notebook.ID})
	refs := buildRefs(t, f, build.BuildID)
	require.Len(t, refs, 3)

	res, err := f.engine.ApproveChanges(ctx, refs)
	require.NoError(t, err)
	assert.Equal(t, 3, res.PublishedCount)
	assert.Equal(t, refs, res.Published)
	assert.Empty(t, res.Reconfirmed)
	assert.Equal(t, s.ID, res.StrategyID)

	// Round trip: live content is exactly the proposed content.
	for i, edit := range build.ProposedEdits {
		assert.Equal(t, edit.ProposedContent, f.liveContent(t, edit.Ref()), "edit %d", i)
	}
	pillar := f.liveContent(t, pillarRef(build.PillarID))
	assert.Contains(t, pillar, "/productos/boligrafo-grabado")

	ledger, err := f.workflow.LatestApproval(ctx, postRef(f.post1.ID))
	require.NoError(t, err)
	assert.Equal(t, build.BuildID, ledger.BuildID)
}

func TestApproveChangesSubsetDiscardsRest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	build, _ := f.build(t, []string{f.post1.ID, f.post2.ID}, []string{f.pen.ID})
	refs := buildRefs(t, f, build.BuildID)

	res, err := f.engine.ApproveChanges(ctx, refs[:2])
	require.NoError(t, err)
	assert.Equal(t, 2, res.PublishedCount)

	assert.Equal(t, post2Body, f.liveContent(t, postRef(f.post2.ID)), "unselected edit is not applied")
	ids, err := f.workflow.BuildsForDocument(ctx, postRef(f.post2.ID))
	require.NoError(t, err)
	assert.Empty(t, ids, "unselected edit is discarded with the build")
}

func TestApproveChangesStaleContentAbortsBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	build, s := f.build(t, []string{f.post1.ID, f.post2.ID}, []string{f.pen.ID, f.notebook.ID})
	refs := buildRefs(t, f, build.BuildID)

	f.editLive(t, postRef(f.post1.ID), post1Body, "<p>Editado a mano.</p>")
	f.editLive(t, postRef(f.post2.ID), post2Body, "<p>También editado.</p>")

	_, err := f.engine.ApproveChanges(ctx, refs)
	require.ErrorIs(t, err, ErrStaleContent)

	var stale *StaleContentError
	require.ErrorAs(t, err, &stale)
	conflicted := []model.DocumentRef{}
	for _, c := range stale.Conflicts {
		conflicted = append(conflicted, c.Ref)
		assert.NotEmpty(t, c.Reason)
	}
	assert.Equal(t, []model.DocumentRef{postRef(f.post1.ID), postRef(f.post2.ID)}, conflicted,
		"every conflicting document is reported")

	// Nothing was written and nothing changed state.
	exists, err := f.content.PillarSlugExists(ctx, build.PillarSlug)
	require.NoError(t, err)
	assert.False(t, exists)
	got, err := f.engine.GetStrategy(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StrategyApproved, got.Status)
	items, err := f.engine.GetReviewData(ctx, build.BuildID)
	require.NoError(t, err)
	assert.Len(t, items, 3, "the build survives for another attempt")
}

func TestApproveChangesIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	build, _ := f.build(t, []string{f.post1.ID}, []string{f.pen.ID})
	refs := buildRefs(t, f, build.BuildID)

	_, err := f.engine.ApproveChanges(ctx, refs)
	require.NoError(t, err)
	published := f.liveContent(t, postRef(f.post1.ID))

	again, err := f.engine.ApproveChanges(ctx, refs)
	require.NoError(t, err)
	assert.Zero(t, again.PublishedCount)
	assert.Equal(t, refs, again.Reconfirmed)
	assert.Equal(t, model.StrategyGenerated, again.StrategyStatus)
	assert.Equal(t, published, f.liveContent(t, postRef(f.post1.ID)), "nothing is applied twice")

	pages, err := f.content.PillarPages(ctx, "")
	require.NoError(t, err)
	assert.Len(t, pages, 1)

	// Once the document changes again, re-approval reports it.
	f.editLive(t, postRef(f.post1.ID), published, "<p>Nuevo texto.</p>")
	_, err = f.engine.ApproveChanges(ctx, refs)
	assert.ErrorIs(t, err, ErrStaleContent)
}

func TestApproveChangesConcurrentCallers(t *testing.T) {
	f := newFixture(t)
	build, _ := f.build(t, []string{f.post1.ID, f.post2.ID}, []string{f.pen.ID})
	refs := buildRefs(t, f, build.BuildID)

	var wg sync.WaitGroup
	results := make([]*ApprovalResult, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.engine.ApproveChanges(context.Background(), refs)
		}()
	}
	wg.Wait()

	published := 0
	for i := range 2 {
		require.NoError(t, errs[i])
		published += results[i].PublishedCount
	}
	assert.Equal(t, len(refs), published, "exactly one caller publishes")
}

func TestApproveChangesValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("bad input", func(t *testing.T) {
		f := newFixture(t)
		for _, refs := range [][]model.DocumentRef{
			nil,
			{{ID: "", Type: model.DocumentPost}},
			{{ID: "x", Type: "page"}},
		} {
			_, err := f.engine.ApproveChanges(ctx, refs)
			assert.ErrorIs(t, err, ErrValidation)
		}
	})

	t.Run("nothing pending", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.ApproveChanges(ctx, []model.DocumentRef{postRef(f.post3.ID)})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("edit without its pillar", func(t *testing.T) {
		f := newFixture(t)
		build, _ := f.build(t, []string{f.post1.ID}, []string{f.pen.ID})

		_, err := f.engine.ApproveChanges(ctx, []model.DocumentRef{postRef(f.post1.ID)})
		assert.ErrorIs(t, err, ErrValidation)
		assert.Equal(t, post1Body, f.liveContent(t, postRef(f.post1.ID)))
		items, err := f.engine.GetReviewData(ctx, build.BuildID)
		require.NoError(t, err)
		assert.Len(t, items, 2)
	})

	t.Run("documents of different builds", func(t *testing.T) {
		f := newFixture(t)
		f.build(t, []string{f.post1.ID}, []string{f.pen.ID})
		f.build(t, []string{f.post2.ID}, []string{f.notebook.ID})

		_, err := f.engine.ApproveChanges(ctx, []model.DocumentRef{postRef(f.post1.ID), postRef(f.post2.ID)})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestApproveChangesRollsBackOnWriteFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	build, s := f.build(t, []string{f.post1.ID, f.post2.ID}, []string{f.pen.ID, f.notebook.ID})
	refs := buildRefs(t, f, build.BuildID)

	faulty := &faultyContent{ContentRepository: f.content, failWriteAt: 2}
	e := f.withEngine(faulty, DefaultOptions())

	_, err := e.ApproveChanges(ctx, refs)
	require.ErrorIs(t, err, ErrRepositoryUnavailable)
	assert.NotErrorIs(t, err, ErrPartialCommit)

	assert.Equal(t, post1Body, f.liveContent(t, postRef(f.post1.ID)), "first write is reverted")
	assert.Equal(t, post2Body, f.liveContent(t, postRef(f.post2.ID)))
	exists, err := f.content.PillarSlugExists(ctx, build.PillarSlug)
	require.NoError(t, err)
	assert.False(t, exists, "pillar page is removed")

	got, err := f.engine.GetStrategy(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StrategyApproved, got.Status)

	// The untouched build can be approved once storage recovers.
	res, err := f.engine.ApproveChanges(ctx, refs)
	require.NoError(t, err)
	assert.Equal(t, 3, res.PublishedCount)
}

func TestApproveChangesReportsPartialCommit(t *testing.T) {
	f := newFixture(t)
	build, _ := f.build(t, []string{f.post1.ID, f.post2.ID}, []string{f.pen.ID, f.notebook.ID})
	refs := buildRefs(t, f, build.BuildID)

	faulty := &faultyContent{ContentRepository: f.content, failWriteAt: 2, failReverts: true}
	e := f.withEngine(faulty, DefaultOptions())

	_, err := e.ApproveChanges(context.Background(), refs)
	require.ErrorIs(t, err, ErrPartialCommit)

	var pc *PartialCommitError
	require.ErrorAs(t, err, &pc)
	assert.Equal(t, []model.DocumentRef{postRef(f.post1.ID)}, pc.Written)
	assert.NotEqual(t, post1Body, f.liveContent(t, postRef(f.post1.ID)), "the reported document stays written")
}

func TestApproveChangesRaceInsideWriteWindow(t *testing.T) {
	f := newFixture(t)
	build, _ := f.build(t, []string{f.post1.ID, f.post2.ID}, []string{f.pen.ID, f.notebook.ID})
	refs := buildRefs(t, f, build.BuildID)

	faulty := &faultyContent{ContentRepository: f.content}
	faulty.beforeWrite = func(n int) {
		if n == 2 {
			f.editLive(t, postRef(f.post2.ID), post2Body, "<p>Cambio concurrente.</p>")
		}
	}
	e := f.withEngine(faulty, DefaultOptions())

	_, err := e.ApproveChanges(context.Background(), refs)
	require.ErrorIs(t, err, ErrStaleContent)

	var stale *StaleContentError
	require.ErrorAs(t, err, &stale)
	require.Len(t, stale.Conflicts, 1)
	assert.Equal(t, postRef(f.post2.ID), stale.Conflicts[0].Ref)
	assert.Equal(t, post1Body, f.liveContent(t, postRef(f.post1.ID)))
	assert.Equal(t, "<p>Cambio concurrente.</p>", f.liveContent(t, postRef(f.post2.ID)))
}

func TestApproveChangesStrategyRejectedInsideWriteWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	build, s := f.build(t, []string{f.post1.ID, f.post2.ID}, []string{f.pen.ID, f.notebook.ID})
	refs := buildRefs(t, f, build.BuildID)

	// f.engine stands in for a second process sharing the database.
	faulty := &faultyContent{ContentRepository: f.content}
	faulty.beforeWrite = func(n int) {
		if n == 1 {
			_, err := f.engine.RejectStrategy(ctx, s.ID)
			require.NoError(t, err)
		}
	}
	e := f.withEngine(faulty, DefaultOptions())

	_, err := e.ApproveChanges(ctx, refs)
	require.ErrorIs(t, err, ErrInvalidStrategyState)
	var state *StateError
	require.ErrorAs(t, err, &state)
	assert.Equal(t, model.StrategyRejected, state.Status)

	assert.Equal(t, post1Body, f.liveContent(t, postRef(f.post1.ID)))
	assert.Equal(t, post2Body, f.liveContent(t, postRef(f.post2.ID)))
	exists, err := f.content.PillarSlugExists(ctx, build.PillarSlug)
	require.NoError(t, err)
	assert.False(t, exists, "pillar page is removed")

	got, err := f.engine.GetStrategy(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StrategyRejected, got.Status)

	items, err := f.engine.GetReviewData(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestApproveChangesBuildRejectedInsideWriteWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	build, s := f.build(t, []string{f.post1.ID}, []string{f.pen.ID})
	refs := buildRefs(t, f, build.BuildID)

	faulty := &faultyContent{ContentRepository: f.content}
	faulty.beforeWrite = func(n int) {
		if n == 1 {
			require.NoError(t, f.engine.RejectBuild(ctx, build.BuildID))
		}
	}
	e := f.withEngine(faulty, DefaultOptions())

	_, err := e.ApproveChanges(ctx, refs)
	require.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, post1Body, f.liveContent(t, postRef(f.post1.ID)))
	exists, err := f.content.PillarSlugExists(ctx, build.PillarSlug)
	require.NoError(t, err)
	assert.False(t, exists)

	got, err := f.engine.GetStrategy(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StrategyApproved, got.Status, "strategy stays open for a new build")
}
