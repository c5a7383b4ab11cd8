// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package model defines the domain types shared by the engine, the store and
// the API layer.
package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by repositories when a document or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
	// ErrStateChanged is returned when a strategy or build was rejected or
	// finalized between a read and the write that depended on it.
	ErrStateChanged = errors.New("state changed")
)

// DocumentType identifies the kind of live document a proposed edit targets.
type DocumentType string

// Document types.
const (
	DocumentPillarPage DocumentType = "pillar_page"
	DocumentPost       DocumentType = "post"
	DocumentProduct    DocumentType = "product"
)

// Valid reports whether t is one of the known document types.
func (t DocumentType) Valid() bool {
	switch t {
	case DocumentPillarPage, DocumentPost, DocumentProduct:
		return true
	}
	return false
}

// DocumentRef identifies a single live document.
type DocumentRef struct {
	ID   string       `json:"id"`
	Type DocumentType `json:"type"`
}

func (r DocumentRef) String() string {
	return fmt.Sprintf("%s/%s", r.Type, r.ID)
}

// Document is the editable view of a live document: the field the engine
// proposes changes to, plus enough metadata to present it to a reviewer.
// For posts and pillar pages Content is the body; for products it is the
// description.
type Document struct {
	Ref     DocumentRef
	Slug    string
	Title   string
	Content string
}

// Post statuses
const (
	PostStatusDraft     = "draft"
	PostStatusPublished = "published"
)

// Product is a catalog item.
type Product struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"price_cents"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProductSummary is the catalog view used for grounding and ranking.
type ProductSummary struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Post is a blog post.
type Post struct {
	ID             string    `json:"id"`
	Slug           string    `json:"slug"`
	Title          string    `json:"title"`
	SEODescription string    `json:"seo_description"`
	Body           string    `json:"body"`
	Keywords       []string  `json:"keywords"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsPublished returns true if the post is published.
func (p *Post) IsPublished() bool {
	return p.Status == PostStatusPublished
}

// PostSummary is the blog view used for grounding, ranking and overlap checks.
type PostSummary struct {
	ID             string   `json:"id"`
	Slug           string   `json:"slug"`
	Title          string   `json:"title"`
	SEODescription string   `json:"seo_description"`
	Keywords       []string `json:"keywords"`
	Status         string   `json:"status"`
}

// Pillar page statuses
const (
	PillarStatusDraft     = "draft"
	PillarStatusPublished = "published"
)

// PillarPage is a comprehensive landing page for a broad topic.
type PillarPage struct {
	ID                 string    `json:"id"`
	Slug               string    `json:"slug"`
	Title              string    `json:"title"`
	SEODescription     string    `json:"seo_description"`
	Body               string    `json:"body"`
	TargetKeywords     []string  `json:"target_keywords"`
	LinkedProductSlugs []string  `json:"linked_product_slugs"`
	Status             string    `json:"status"`
	StrategyID         string    `json:"strategy_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// IsPublished returns true if the pillar page is published.
func (p *PillarPage) IsPublished() bool {
	return p.Status == PillarStatusPublished
}
