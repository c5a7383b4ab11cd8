// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/olegiv/pillar-engine/internal/model"
)

// ContentRepository exposes live catalog, blog and pillar content with
// single-document atomic writes only.
type ContentRepository struct {
	q *Queries
}

// NewContentRepository creates a content repository over db.
func NewContentRepository(db *sql.DB) *ContentRepository {
	return &ContentRepository{q: New(db)}
}

// ProductSummaries returns every product.
func (r *ContentRepository) ProductSummaries(ctx context.Context) ([]model.ProductSummary, error) {
	products, err := r.q.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	out := make([]model.ProductSummary, 0, len(products))
	for _, p := range products {
		out = append(out, model.ProductSummary{ID: p.ID, Slug: p.Slug, Name: p.Name, Description: p.Description})
	}
	return out, nil
}

// PostSummaries returns every post regardless of status.
func (r *ContentRepository) PostSummaries(ctx context.Context) ([]model.PostSummary, error) {
	posts, err := r.q.ListPosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	out := make([]model.PostSummary, 0, len(posts))
	for _, p := range posts {
		out = append(out, model.PostSummary{
			ID:             p.ID,
			Slug:           p.Slug,
			Title:          p.Title,
			SEODescription: p.SEODescription,
			Keywords:       p.Keywords,
			Status:         p.Status,
		})
	}
	return out, nil
}

// PillarPages returns pillar pages with the given status, or all when status is empty.
func (r *ContentRepository) PillarPages(ctx context.Context, status string) ([]model.PillarPage, error) {
	pages, err := r.q.ListPillarPages(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("listing pillar pages: %w", err)
	}
	return pages, nil
}

// GetDocument returns the editable field of a live document.
func (r *ContentRepository) GetDocument(ctx context.Context, ref model.DocumentRef) (*model.Document, error) {
	switch ref.Type {
	case model.DocumentPost:
		p, err := r.q.GetPost(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		return &model.Document{Ref: ref, Slug: p.Slug, Title: p.Title, Content: p.Body}, nil
	case model.DocumentProduct:
		p, err := r.q.GetProduct(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		return &model.Document{Ref: ref, Slug: p.Slug, Title: p.Name, Content: p.Description}, nil
	case model.DocumentPillarPage:
		p, err := r.q.GetPillarPage(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		return &model.Document{Ref: ref, Slug: p.Slug, Title: p.Title, Content: p.Body}, nil
	default:
		return nil, fmt.Errorf("unknown document type %q", ref.Type)
	}
}

// PillarSlugExists reports whether a pillar page already uses slug.
func (r *ContentRepository) PillarSlugExists(ctx context.Context, slug string) (bool, error) {
	return r.q.PillarSlugExists(ctx, slug)
}

// CreatePillarPage inserts a new pillar page.
func (r *ContentRepository) CreatePillarPage(ctx context.Context, p model.PillarPage) error {
	return r.q.CreatePillarPage(ctx, p)
}

// DeletePillarPage removes a pillar page.
func (r *ContentRepository) DeletePillarPage(ctx context.Context, id string) error {
	return r.q.DeletePillarPage(ctx, id)
}

// ReplaceContent atomically swaps a document's content from expected to
// proposed. It reports false, without writing, when the live content no longer
// equals expected. A missing document yields model.ErrNotFound.
func (r *ContentRepository) ReplaceContent(ctx context.Context, ref model.DocumentRef, expected, proposed string) (bool, error) {
	now := formatTime(time.Now())

	var n int64
	var err error
	switch ref.Type {
	case model.DocumentPost:
		n, err = r.q.UpdatePostBodyIf(ctx, ref.ID, expected, proposed, now)
	case model.DocumentProduct:
		n, err = r.q.UpdateProductDescriptionIf(ctx, ref.ID, expected, proposed, now)
	case model.DocumentPillarPage:
		n, err = r.q.UpdatePillarBodyIf(ctx, ref.ID, expected, proposed, now)
	default:
		return false, fmt.Errorf("unknown document type %q", ref.Type)
	}
	if err != nil {
		return false, fmt.Errorf("replacing %s: %w", ref, err)
	}
	if n == 1 {
		return true, nil
	}

	if _, err := r.GetDocument(ctx, ref); err != nil {
		return false, err
	}
	return false, nil
}

// WorkflowStore persists strategies, cluster builds and the approval ledger.
type WorkflowStore struct {
	db *sql.DB
	q  *Queries
}

// NewWorkflowStore creates a workflow store over db.
func NewWorkflowStore(db *sql.DB) *WorkflowStore {
	return &WorkflowStore{db: db, q: New(db)}
}

// CreateStrategies inserts all strategies or none.
func (s *WorkflowStore) CreateStrategies(ctx context.Context, strategies []model.SeoStrategy) error {
	return inTx(ctx, s.db, func(q *Queries) error {
		for _, st := range strategies {
			if err := q.CreateStrategy(ctx, st); err != nil {
				return fmt.Errorf("creating strategy %q: %w", st.Topic, err)
			}
		}
		return nil
	})
}

// GetStrategy returns a strategy by ID.
func (s *WorkflowStore) GetStrategy(ctx context.Context, id string) (*model.SeoStrategy, error) {
	st, err := s.q.GetStrategy(ctx, id)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListStrategies returns strategies, optionally filtered by status.
func (s *WorkflowStore) ListStrategies(ctx context.Context, status model.StrategyStatus) ([]model.SeoStrategy, error) {
	return s.q.ListStrategies(ctx, status)
}

// TransitionStrategy moves a strategy from one status to another, reporting
// false when the strategy is no longer in from.
func (s *WorkflowStore) TransitionStrategy(ctx context.Context, id string, from, to model.StrategyStatus) (bool, error) {
	n, err := s.q.UpdateStrategyStatusIf(ctx, id, from, to, formatTime(time.Now()))
	if err != nil {
		return false, fmt.Errorf("updating strategy status: %w", err)
	}
	return n == 1, nil
}

// SaveBuild persists a build with all of its edits. A strategy that already
// has a build yields model.ErrConflict; one that was rejected or generated
// meanwhile yields model.ErrStateChanged.
func (s *WorkflowStore) SaveBuild(ctx context.Context, b *model.ClusterBuild) error {
	return inTx(ctx, s.db, func(q *Queries) error {
		n, err := q.GuardLiveStrategy(ctx, b.StrategyID)
		if err != nil {
			return fmt.Errorf("checking strategy %s: %w", b.StrategyID, err)
		}
		if n != 1 {
			return fmt.Errorf("strategy %s is no longer open: %w", b.StrategyID, model.ErrStateChanged)
		}
		if err := q.CreateBuild(ctx, *b); err != nil {
			return err
		}
		for _, e := range b.ProposedEdits {
			if err := q.CreateProposedEdit(ctx, b.ID, e); err != nil {
				return fmt.Errorf("creating proposed edit %d: %w", e.Position, err)
			}
		}
		return nil
	})
}

func (s *WorkflowStore) withEdits(ctx context.Context, b model.ClusterBuild) (*model.ClusterBuild, error) {
	edits, err := s.q.ListProposedEdits(ctx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("listing proposed edits: %w", err)
	}
	b.ProposedEdits = edits
	return &b, nil
}

// GetBuild returns a build with its edits.
func (s *WorkflowStore) GetBuild(ctx context.Context, id string) (*model.ClusterBuild, error) {
	b, err := s.q.GetBuildRow(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withEdits(ctx, b)
}

// GetBuildByStrategy returns the active build of a strategy with its edits.
func (s *WorkflowStore) GetBuildByStrategy(ctx context.Context, strategyID string) (*model.ClusterBuild, error) {
	b, err := s.q.GetBuildRowByStrategy(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	return s.withEdits(ctx, b)
}

// DeleteBuild hard-deletes a build and its edits, reporting whether it existed.
func (s *WorkflowStore) DeleteBuild(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := inTx(ctx, s.db, func(q *Queries) error {
		if err := q.DeleteProposedEdits(ctx, id); err != nil {
			return fmt.Errorf("deleting proposed edits: %w", err)
		}
		n, err := q.DeleteBuildRow(ctx, id)
		if err != nil {
			return fmt.Errorf("deleting build: %w", err)
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}

// BuildsForDocument returns the IDs of pending builds proposing content for ref.
func (s *WorkflowStore) BuildsForDocument(ctx context.Context, ref model.DocumentRef) ([]string, error) {
	return s.q.ListBuildIDsForDocument(ctx, ref)
}

// LatestApproval returns the newest ledger entry for ref.
func (s *WorkflowStore) LatestApproval(ctx context.Context, ref model.DocumentRef) (*model.ApprovalRecord, error) {
	rec, err := s.q.GetLatestApprovalRecord(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FinalizeBuild records the committed documents in the ledger, marks the
// strategy generated and discards the build, in one transaction. It fails
// with model.ErrStateChanged when the strategy is no longer approved or
// proposed, and with model.ErrNotFound when the build was discarded; in
// both cases nothing is recorded.
func (s *WorkflowStore) FinalizeBuild(ctx context.Context, b *model.ClusterBuild, records []model.ApprovalRecord) error {
	now := formatTime(time.Now())
	return inTx(ctx, s.db, func(q *Queries) error {
		n, err := q.MarkStrategyGenerated(ctx, b.StrategyID, now)
		if err != nil {
			return fmt.Errorf("marking strategy generated: %w", err)
		}
		if n != 1 {
			return fmt.Errorf("strategy %s is no longer open: %w", b.StrategyID, model.ErrStateChanged)
		}
		if err := q.DeleteProposedEdits(ctx, b.ID); err != nil {
			return fmt.Errorf("deleting proposed edits: %w", err)
		}
		n, err = q.DeleteBuildRow(ctx, b.ID)
		if err != nil {
			return fmt.Errorf("deleting build: %w", err)
		}
		if n != 1 {
			return fmt.Errorf("build %s was discarded: %w", b.ID, model.ErrNotFound)
		}
		for _, rec := range records {
			if err := q.CreateApprovalRecord(ctx, rec); err != nil {
				return fmt.Errorf("recording approval of %s: %w", rec.Ref, err)
			}
		}
		return nil
	})
}

// IsNotFound reports whether err means a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
