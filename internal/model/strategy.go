// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import "time"

// StrategyStatus is the lifecycle state of an SEO strategy.
type StrategyStatus string

// Strategy statuses
const (
	StrategyProposed  StrategyStatus = "proposed"
	StrategyApproved  StrategyStatus = "approved"
	StrategyRejected  StrategyStatus = "rejected"
	StrategyGenerated StrategyStatus = "generated"
)

// Valid reports whether s is a known status.
func (s StrategyStatus) Valid() bool {
	switch s {
	case StrategyProposed, StrategyApproved, StrategyRejected, StrategyGenerated:
		return true
	}
	return false
}

// SeoStrategy is a proposed pillar-page content strategy.
type SeoStrategy struct {
	ID              string         `json:"id"`
	Topic           string         `json:"topic"`
	Description     string         `json:"description,omitempty"`
	TargetKeywords  []string       `json:"target_keywords"`
	SuggestedTitle  string         `json:"suggested_title"`
	Rationale       string         `json:"rationale"`
	RelatedProducts []string       `json:"related_products"`
	RelatedPosts    []string       `json:"related_posts,omitempty"`
	Status          StrategyStatus `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// IsTerminal returns true once the strategy can no longer change.
func (s *SeoStrategy) IsTerminal() bool {
	return s.Status == StrategyGenerated
}

// PillarDraft is the not-yet-live pillar page carried by a cluster build.
type PillarDraft struct {
	ID                 string   `json:"id"`
	Slug               string   `json:"slug"`
	Title              string   `json:"title"`
	SEODescription     string   `json:"seo_description"`
	Body               string   `json:"body"`
	TargetKeywords     []string `json:"target_keywords"`
	LinkedProductSlugs []string `json:"linked_product_slugs"`
}

// Ref returns the document reference the draft will be published under.
func (d PillarDraft) Ref() DocumentRef {
	return DocumentRef{ID: d.ID, Type: DocumentPillarPage}
}

// ProposedEdit is a candidate replacement for one live document field.
type ProposedEdit struct {
	Position        int          `json:"position"`
	TargetID        string       `json:"target_id"`
	TargetType      DocumentType `json:"target_type"`
	Title           string       `json:"title"`
	OriginalContent string       `json:"original_content"`
	ProposedContent string       `json:"proposed_content"`
	// LinksPillar is set when ProposedContent links to the build's pillar page.
	LinksPillar bool `json:"links_pillar"`
}

// Ref returns the target document reference.
func (e ProposedEdit) Ref() DocumentRef {
	return DocumentRef{ID: e.TargetID, Type: e.TargetType}
}

// ClusterBuild holds the unpublished output of one build attempt.
type ClusterBuild struct {
	ID            string         `json:"id"`
	StrategyID    string         `json:"strategy_id"`
	Pillar        PillarDraft    `json:"pillar"`
	ProposedEdits []ProposedEdit `json:"proposed_edits"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ReviewItem is one diff tuple presented to a human reviewer.
type ReviewItem struct {
	ID              string       `json:"id"`
	Type            DocumentType `json:"type"`
	Title           string       `json:"title"`
	OriginalContent string       `json:"original_content"`
	ProposedContent string       `json:"proposed_content"`
}

// Ref returns the document reference of the item.
func (i ReviewItem) Ref() DocumentRef {
	return DocumentRef{ID: i.ID, Type: i.Type}
}

// ApprovalRecord is a ledger entry for a committed document.
type ApprovalRecord struct {
	StrategyID      string
	BuildID         string
	Ref             DocumentRef
	ProposedContent string
	ApprovedAt      time.Time
}

// Link health statuses
const (
	HealthStatusHealthy = "healthy"
	HealthStatusWarning = "warning"
)

// LinkIssue is a broken product reference on a published pillar page.
type LinkIssue struct {
	PillarTitle       string `json:"pillar_title"`
	PillarSlug        string `json:"pillar_slug"`
	BrokenProductSlug string `json:"broken_product_slug"`
}

// HealthReport is the result of a link health scan.
type HealthReport struct {
	Status       string      `json:"status"`
	Issues       []LinkIssue `json:"issues"`
	PillarsTotal int         `json:"pillars_total"`
	LinksChecked int         `json:"links_checked"`
	CheckedAt    time.Time   `json:"checked_at"`
}
