// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"fmt"

	"github.com/olegiv/pillar-engine/internal/model"
)

const productColumns = `id, slug, name, description, price_cents, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (model.Product, error) {
	var p model.Product
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.PriceCents, &createdAt, &updatedAt)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, err
}

// CreateProduct inserts a product.
func (q *Queries) CreateProduct(ctx context.Context, p model.Product) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO products (`+productColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Slug, p.Name, p.Description, p.PriceCents, formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("creating product %q: %w", p.Slug, model.ErrConflict)
	}
	return err
}

// GetProduct returns a product by ID.
func (q *Queries) GetProduct(ctx context.Context, id string) (model.Product, error) {
	p, err := scanProduct(q.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if err != nil {
		return p, notFound(err, "getting product")
	}
	return p, nil
}

// GetProductBySlug returns a product by slug.
func (q *Queries) GetProductBySlug(ctx context.Context, slug string) (model.Product, error) {
	p, err := scanProduct(q.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE slug = ?`, slug))
	if err != nil {
		return p, notFound(err, "getting product by slug")
	}
	return p, nil
}

// ListProducts returns all products ordered by name.
func (q *Queries) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// DeleteProduct removes a product.
func (q *Queries) DeleteProduct(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	return err
}

// UpdateProductDescriptionIf sets the description when it still equals expected.
func (q *Queries) UpdateProductDescriptionIf(ctx context.Context, id, expected, proposed, updatedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE products SET description = ?, updated_at = ? WHERE id = ? AND description = ?`,
		proposed, updatedAt, id, expected)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const postColumns = `id, slug, title, seo_description, body, keywords, status, created_at, updated_at`

func scanPost(row rowScanner) (model.Post, error) {
	var p model.Post
	var keywords, createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Slug, &p.Title, &p.SEODescription, &p.Body, &keywords, &p.Status, &createdAt, &updatedAt)
	p.Keywords = decodeStrings(keywords)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, err
}

// CreatePost inserts a post.
func (q *Queries) CreatePost(ctx context.Context, p model.Post) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO posts (`+postColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Slug, p.Title, p.SEODescription, p.Body, encodeStrings(p.Keywords), p.Status,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("creating post %q: %w", p.Slug, model.ErrConflict)
	}
	return err
}

// GetPost returns a post by ID.
func (q *Queries) GetPost(ctx context.Context, id string) (model.Post, error) {
	p, err := scanPost(q.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id))
	if err != nil {
		return p, notFound(err, "getting post")
	}
	return p, nil
}

// ListPosts returns all posts ordered by title.
func (q *Queries) ListPosts(ctx context.Context) ([]model.Post, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+postColumns+` FROM posts ORDER BY title, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// UpdatePostBodyIf sets the body when it still equals expected.
func (q *Queries) UpdatePostBodyIf(ctx context.Context, id, expected, proposed, updatedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE posts SET body = ?, updated_at = ? WHERE id = ? AND body = ?`,
		proposed, updatedAt, id, expected)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdatePostBody overwrites a post body unconditionally.
func (q *Queries) UpdatePostBody(ctx context.Context, id, body string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE posts SET body = ? WHERE id = ?`, body, id)
	return err
}

const pillarColumns = `id, slug, title, seo_description, body, target_keywords, linked_product_slugs, status, strategy_id, created_at, updated_at`

func scanPillar(row rowScanner) (model.PillarPage, error) {
	var p model.PillarPage
	var keywords, linked, createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Slug, &p.Title, &p.SEODescription, &p.Body, &keywords, &linked,
		&p.Status, &p.StrategyID, &createdAt, &updatedAt)
	p.TargetKeywords = decodeStrings(keywords)
	p.LinkedProductSlugs = decodeStrings(linked)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, err
}

// CreatePillarPage inserts a pillar page.
func (q *Queries) CreatePillarPage(ctx context.Context, p model.PillarPage) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO pillar_pages (`+pillarColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Slug, p.Title, p.SEODescription, p.Body, encodeStrings(p.TargetKeywords),
		encodeStrings(p.LinkedProductSlugs), p.Status, p.StrategyID,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("creating pillar page %q: %w", p.Slug, model.ErrConflict)
	}
	return err
}

// GetPillarPage returns a pillar page by ID.
func (q *Queries) GetPillarPage(ctx context.Context, id string) (model.PillarPage, error) {
	p, err := scanPillar(q.db.QueryRowContext(ctx, `SELECT `+pillarColumns+` FROM pillar_pages WHERE id = ?`, id))
	if err != nil {
		return p, notFound(err, "getting pillar page")
	}
	return p, nil
}

// PillarSlugExists reports whether a pillar page uses slug.
func (q *Queries) PillarSlugExists(ctx context.Context, slug string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pillar_pages WHERE slug = ?`, slug).Scan(&n)
	return n > 0, err
}

// ListPillarPages returns pillar pages, filtered by status when status is not empty.
func (q *Queries) ListPillarPages(ctx context.Context, status string) ([]model.PillarPage, error) {
	query := `SELECT ` + pillarColumns + ` FROM pillar_pages`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []model.PillarPage
	for rows.Next() {
		p, err := scanPillar(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// UpdatePillarBodyIf sets the body when it still equals expected.
func (q *Queries) UpdatePillarBodyIf(ctx context.Context, id, expected, proposed, updatedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE pillar_pages SET body = ?, updated_at = ? WHERE id = ? AND body = ?`,
		proposed, updatedAt, id, expected)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeletePillarPage removes a pillar page.
func (q *Queries) DeletePillarPage(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM pillar_pages WHERE id = ?`, id)
	return err
}
