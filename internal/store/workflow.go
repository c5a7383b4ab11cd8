// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/olegiv/pillar-engine/internal/model"
)

const strategyColumns = `id, topic, description, target_keywords, suggested_title, rationale, related_products, related_posts, status, created_at, updated_at`

func scanStrategy(row rowScanner) (model.SeoStrategy, error) {
	var s model.SeoStrategy
	var keywords, products, posts, status, createdAt, updatedAt string
	err := row.Scan(&s.ID, &s.Topic, &s.Description, &keywords, &s.SuggestedTitle, &s.Rationale,
		&products, &posts, &status, &createdAt, &updatedAt)
	s.TargetKeywords = decodeStrings(keywords)
	s.RelatedProducts = decodeStrings(products)
	s.RelatedPosts = decodeStrings(posts)
	s.Status = model.StrategyStatus(status)
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return s, err
}

// CreateStrategy inserts a strategy.
func (q *Queries) CreateStrategy(ctx context.Context, s model.SeoStrategy) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO seo_strategies (`+strategyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Topic, s.Description, encodeStrings(s.TargetKeywords), s.SuggestedTitle, s.Rationale,
		encodeStrings(s.RelatedProducts), encodeStrings(s.RelatedPosts), string(s.Status),
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	return err
}

// GetStrategy returns a strategy by ID.
func (q *Queries) GetStrategy(ctx context.Context, id string) (model.SeoStrategy, error) {
	s, err := scanStrategy(q.db.QueryRowContext(ctx,
		`SELECT `+strategyColumns+` FROM seo_strategies WHERE id = ?`, id))
	if err != nil {
		return s, notFound(err, "getting strategy")
	}
	return s, nil
}

// ListStrategies returns strategies newest first, filtered by status when not empty.
func (q *Queries) ListStrategies(ctx context.Context, status model.StrategyStatus) ([]model.SeoStrategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM seo_strategies`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []model.SeoStrategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

// UpdateStrategyStatusIf moves a strategy from one status to another.
// It returns the number of rows changed: 0 when the current status is not from.
func (q *Queries) UpdateStrategyStatusIf(ctx context.Context, id string, from, to model.StrategyStatus, updatedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE seo_strategies SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), updatedAt, id, string(from))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const buildColumns = `id, strategy_id, pillar_id, pillar_slug, pillar_title, pillar_seo_description, pillar_body, pillar_target_keywords, pillar_linked_product_slugs, created_at`

func scanBuild(row rowScanner) (model.ClusterBuild, error) {
	var b model.ClusterBuild
	var keywords, linked, createdAt string
	err := row.Scan(&b.ID, &b.StrategyID, &b.Pillar.ID, &b.Pillar.Slug, &b.Pillar.Title,
		&b.Pillar.SEODescription, &b.Pillar.Body, &keywords, &linked, &createdAt)
	b.Pillar.TargetKeywords = decodeStrings(keywords)
	b.Pillar.LinkedProductSlugs = decodeStrings(linked)
	b.CreatedAt = parseTime(createdAt)
	return b, err
}

// CreateBuild inserts the build row. A second build for the same strategy
// fails with model.ErrConflict.
func (q *Queries) CreateBuild(ctx context.Context, b model.ClusterBuild) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO cluster_builds (`+buildColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.StrategyID, b.Pillar.ID, b.Pillar.Slug, b.Pillar.Title, b.Pillar.SEODescription,
		b.Pillar.Body, encodeStrings(b.Pillar.TargetKeywords), encodeStrings(b.Pillar.LinkedProductSlugs),
		formatTime(b.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("creating build for strategy %s: %w", b.StrategyID, model.ErrConflict)
	}
	return err
}

// CreateProposedEdit inserts one edit of a build.
func (q *Queries) CreateProposedEdit(ctx context.Context, buildID string, e model.ProposedEdit) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO proposed_edits (build_id, position, target_type, target_id, title, original_content, proposed_content, links_pillar)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		buildID, e.Position, string(e.TargetType), e.TargetID, e.Title, e.OriginalContent, e.ProposedContent,
		boolToInt(e.LinksPillar))
	return err
}

// GetBuildRow returns a build without its edits.
func (q *Queries) GetBuildRow(ctx context.Context, id string) (model.ClusterBuild, error) {
	b, err := scanBuild(q.db.QueryRowContext(ctx, `SELECT `+buildColumns+` FROM cluster_builds WHERE id = ?`, id))
	if err != nil {
		return b, notFound(err, "getting build")
	}
	return b, nil
}

// GetBuildRowByStrategy returns a strategy's build without its edits.
func (q *Queries) GetBuildRowByStrategy(ctx context.Context, strategyID string) (model.ClusterBuild, error) {
	b, err := scanBuild(q.db.QueryRowContext(ctx,
		`SELECT `+buildColumns+` FROM cluster_builds WHERE strategy_id = ?`, strategyID))
	if err != nil {
		return b, notFound(err, "getting build by strategy")
	}
	return b, nil
}

// ListProposedEdits returns a build's edits in position order.
func (q *Queries) ListProposedEdits(ctx context.Context, buildID string) ([]model.ProposedEdit, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT position, target_type, target_id, title, original_content, proposed_content, links_pillar
		 FROM proposed_edits WHERE build_id = ? ORDER BY position`, buildID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []model.ProposedEdit
	for rows.Next() {
		var e model.ProposedEdit
		var targetType string
		var linksPillar int
		if err := rows.Scan(&e.Position, &targetType, &e.TargetID, &e.Title, &e.OriginalContent,
			&e.ProposedContent, &linksPillar); err != nil {
			return nil, err
		}
		e.TargetType = model.DocumentType(targetType)
		e.LinksPillar = linksPillar != 0
		items = append(items, e)
	}
	return items, rows.Err()
}

// ListBuildIDsForDocument returns the IDs of builds that propose content for ref.
func (q *Queries) ListBuildIDsForDocument(ctx context.Context, ref model.DocumentRef) ([]string, error) {
	var rows *sql.Rows
	var err error
	if ref.Type == model.DocumentPillarPage {
		rows, err = q.db.QueryContext(ctx,
			`SELECT id FROM cluster_builds WHERE pillar_id = ?
			 UNION
			 SELECT build_id FROM proposed_edits WHERE target_type = ? AND target_id = ?`,
			ref.ID, string(ref.Type), ref.ID)
	} else {
		rows, err = q.db.QueryContext(ctx,
			`SELECT DISTINCT build_id FROM proposed_edits WHERE target_type = ? AND target_id = ?`,
			string(ref.Type), ref.ID)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteProposedEdits removes every edit of a build.
func (q *Queries) DeleteProposedEdits(ctx context.Context, buildID string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM proposed_edits WHERE build_id = ?`, buildID)
	return err
}

// DeleteBuildRow removes the build row.
func (q *Queries) DeleteBuildRow(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM cluster_builds WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateApprovalRecord appends an entry to the approval ledger.
func (q *Queries) CreateApprovalRecord(ctx context.Context, r model.ApprovalRecord) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO approval_log (strategy_id, build_id, document_type, document_id, proposed_content, approved_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.StrategyID, r.BuildID, string(r.Ref.Type), r.Ref.ID, r.ProposedContent, formatTime(r.ApprovedAt))
	return err
}

// GetLatestApprovalRecord returns the most recent ledger entry for ref.
func (q *Queries) GetLatestApprovalRecord(ctx context.Context, ref model.DocumentRef) (model.ApprovalRecord, error) {
	var r model.ApprovalRecord
	var docType, approvedAt string
	err := q.db.QueryRowContext(ctx,
		`SELECT strategy_id, build_id, document_type, document_id, proposed_content, approved_at
		 FROM approval_log WHERE document_type = ? AND document_id = ?
		 ORDER BY id DESC LIMIT 1`,
		string(ref.Type), ref.ID).Scan(&r.StrategyID, &r.BuildID, &docType, &r.Ref.ID, &r.ProposedContent, &approvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, fmt.Errorf("getting approval record: %w", model.ErrNotFound)
		}
		return r, fmt.Errorf("getting approval record: %w", err)
	}
	r.Ref.Type = model.DocumentType(docType)
	r.ApprovedAt = parseTime(approvedAt)
	return r, nil
}

// MarkStrategyGenerated moves a live strategy to the terminal generated
// status. Rejected or already generated strategies are left alone and the
// affected row count is 0.
func (q *Queries) MarkStrategyGenerated(ctx context.Context, id, updatedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE seo_strategies SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		string(model.StrategyGenerated), updatedAt, id,
		string(model.StrategyApproved), string(model.StrategyProposed))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GuardLiveStrategy takes the write lock on a strategy row if it is still
// approved or proposed. It returns 0 when the strategy is gone or terminal.
func (q *Queries) GuardLiveStrategy(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE seo_strategies SET updated_at = updated_at
		 WHERE id = ? AND status IN (?, ?)`,
		id, string(model.StrategyApproved), string(model.StrategyProposed))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
