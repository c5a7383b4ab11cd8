// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package engine orchestrates content clusters: it proposes pillar-page
// strategies from the catalog and blog, drafts a pillar page plus internal
// link edits for existing posts, exposes them for review, and commits an
// approved subset all-or-nothing using compare-then-write against live content.
//
// The engine never mutates live content outside ApproveChanges.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/olegiv/pillar-engine/internal/llm"
	"github.com/olegiv/pillar-engine/internal/model"
)

// ContentRepository is the live content the engine reads and, on approval,
// writes. Writes are single-document atomic; there are no transactions.
type ContentRepository interface {
	ProductSummaries(ctx context.Context) ([]model.ProductSummary, error)
	PostSummaries(ctx context.Context) ([]model.PostSummary, error)
	PillarPages(ctx context.Context, status string) ([]model.PillarPage, error)
	GetDocument(ctx context.Context, ref model.DocumentRef) (*model.Document, error)
	PillarSlugExists(ctx context.Context, slug string) (bool, error)
	CreatePillarPage(ctx context.Context, p model.PillarPage) error
	DeletePillarPage(ctx context.Context, id string) error
	// ReplaceContent swaps a document's content from expected to proposed,
	// reporting false without writing when the live content differs.
	ReplaceContent(ctx context.Context, ref model.DocumentRef, expected, proposed string) (bool, error)
}

// WorkflowStore holds the engine's own state: strategies, unpublished
// builds and the approval ledger.
type WorkflowStore interface {
	CreateStrategies(ctx context.Context, strategies []model.SeoStrategy) error
	GetStrategy(ctx context.Context, id string) (*model.SeoStrategy, error)
	ListStrategies(ctx context.Context, status model.StrategyStatus) ([]model.SeoStrategy, error)
	TransitionStrategy(ctx context.Context, id string, from, to model.StrategyStatus) (bool, error)
	// SaveBuild fails with model.ErrConflict when the strategy already has a
	// build and with model.ErrStateChanged when it is no longer open.
	SaveBuild(ctx context.Context, b *model.ClusterBuild) error
	GetBuild(ctx context.Context, id string) (*model.ClusterBuild, error)
	GetBuildByStrategy(ctx context.Context, strategyID string) (*model.ClusterBuild, error)
	DeleteBuild(ctx context.Context, id string) (bool, error)
	BuildsForDocument(ctx context.Context, ref model.DocumentRef) ([]string, error)
	LatestApproval(ctx context.Context, ref model.DocumentRef) (*model.ApprovalRecord, error)
	// FinalizeBuild records approvals, marks the strategy generated and
	// discards the build atomically. It fails with model.ErrStateChanged or
	// model.ErrNotFound when the strategy or build was rejected meanwhile.
	FinalizeBuild(ctx context.Context, b *model.ClusterBuild, records []model.ApprovalRecord) error
}

// TextGenerator is the text-generation capability. Calls are slow and
// fallible; the engine never retries them.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt llm.Prompt, grounding string) (string, error)
}

// Options tunes engine behavior.
type Options struct {
	// ConflictThreshold is the token-overlap ratio above which an existing
	// page is reported as a cannibalization conflict.
	ConflictThreshold float64
	// AllowDirectBuild permits building from proposed strategies.
	AllowDirectBuild bool
	// ProductBacklinks adds product-description edits linking to the pillar.
	ProductBacklinks bool
	ProductURLPrefix string
	PostURLPrefix    string
	PillarURLPrefix  string
	// RelatedProductsHeading titles the product list appended to a pillar
	// body that does not mention every selected product.
	RelatedProductsHeading string
	// BacklinkLabel introduces the link back to the pillar page.
	BacklinkLabel string
	// MaxGroundingItems caps each section of the catalog grounding text.
	MaxGroundingItems int
	// MaxSuggestions caps ranked additions in SuggestCluster.
	MaxSuggestions int
	// TopicWarnLength is the topic length past which a warning is returned.
	TopicWarnLength int
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		ConflictThreshold: 0.4,
		AllowDirectBuild:  true,
		ProductURLPrefix:  "/productos/",
		PostURLPrefix:     "/blog/",
		PillarURLPrefix:   "/guias/",
		MaxGroundingItems: 200,
		MaxSuggestions:    5,
		TopicWarnLength:   120,

		RelatedProductsHeading: "Productos relacionados",
		BacklinkLabel:          "Más información en nuestra guía:",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ConflictThreshold <= 0 {
		o.ConflictThreshold = d.ConflictThreshold
	}
	if o.ProductURLPrefix == "" {
		o.ProductURLPrefix = d.ProductURLPrefix
	}
	if o.PostURLPrefix == "" {
		o.PostURLPrefix = d.PostURLPrefix
	}
	if o.PillarURLPrefix == "" {
		o.PillarURLPrefix = d.PillarURLPrefix
	}
	if o.RelatedProductsHeading == "" {
		o.RelatedProductsHeading = d.RelatedProductsHeading
	}
	if o.BacklinkLabel == "" {
		o.BacklinkLabel = d.BacklinkLabel
	}
	if o.MaxGroundingItems <= 0 {
		o.MaxGroundingItems = d.MaxGroundingItems
	}
	if o.MaxSuggestions <= 0 {
		o.MaxSuggestions = d.MaxSuggestions
	}
	if o.TopicWarnLength <= 0 {
		o.TopicWarnLength = d.TopicWarnLength
	}
	return o
}

// Engine is the content cluster orchestration engine. It is safe for
// concurrent use.
type Engine struct {
	content  ContentRepository
	workflow WorkflowStore
	gen      TextGenerator
	logger   *slog.Logger
	opts     Options
	now      func() time.Time

	mu       sync.Mutex
	building map[string]struct{} // strategy IDs with a build being generated

	// commitMu serializes approvals and rejections within the process.
	// Cross-process safety comes from compare-then-write in the repository
	// and the status checks in SaveBuild and FinalizeBuild.
	commitMu sync.Mutex
}

// New creates an engine.
func New(content ContentRepository, workflow WorkflowStore, gen TextGenerator, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		content:  content,
		workflow: workflow,
		gen:      gen,
		logger:   logger,
		opts:     opts.withDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
		building: make(map[string]struct{}),
	}
}

// Options returns the effective options.
func (e *Engine) Options() Options { return e.opts }

func (e *Engine) productURL(slug string) string { return e.opts.ProductURLPrefix + slug }
func (e *Engine) postURL(slug string) string    { return e.opts.PostURLPrefix + slug }
func (e *Engine) pillarURL(slug string) string  { return e.opts.PillarURLPrefix + slug }

// beginBuild claims the in-process build slot of a strategy.
func (e *Engine) beginBuild(strategyID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.building[strategyID]; busy {
		return false
	}
	e.building[strategyID] = struct{}{}
	return true
}

func (e *Engine) endBuild(strategyID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.building, strategyID)
}
