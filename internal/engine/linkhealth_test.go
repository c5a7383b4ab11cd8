// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/olegiv/pillar-engine/internal/model"
	"github.com/olegiv/pillar-engine/internal/testutil"
)

func TestCheckLinkHealth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	testutil.SeedPillarPage(t, f.db, "regalos", "Regalos", model.PillarStatusPublished,
		f.pen.Slug, "producto-borrado", "producto-borrado")
	testutil.SeedPillarPage(t, f.db, "agendas", "Agendas", model.PillarStatusPublished, f.planner.Slug)
	testutil.SeedPillarPage(t, f.db, "borrador", "Borrador", model.PillarStatusDraft, "otro-borrado")

	report, err := f.engine.CheckLinkHealth(ctx)
	if err != nil {
		t.Fatalf("CheckLinkHealth() error = %v", err)
	}

	want := []model.LinkIssue{
		{PillarTitle: "Regalos", PillarSlug: "regalos", BrokenProductSlug: "producto-borrado"},
	}
	if diff := cmp.Diff(want, report.Issues); diff != "" {
		t.Errorf("Issues mismatch (-want +got):\n%s", diff)
	}
	if report.Status != model.HealthStatusWarning {
		t.Errorf("Status = %q, want warning", report.Status)
	}
	if report.PillarsTotal != 2 {
		t.Errorf("PillarsTotal = %d, want 2 (drafts are skipped)", report.PillarsTotal)
	}
	if report.LinksChecked != 3 {
		t.Errorf("LinksChecked = %d, want 3", report.LinksChecked)
	}
}

func TestCheckLinkHealthScansBodyLinks(t *testing.T) {
	f := newFixture(t)
	page := model.PillarPage{
		ID:     "g1",
		Slug:   "cuadernos",
		Title:  "Cuadernos",
		Status: model.PillarStatusPublished,
		Body: `<p><a href="/productos/cuaderno-corporativo">Cuaderno</a> y <a href="/productos/cuaderno-viejo/">otro</a>` +
			` y <a href="/productos/cuaderno-viejo">repetido</a> y <a href="/blog/como-elegir-cuaderno">post</a></p>`,
		LinkedProductSlugs: []string{"cuaderno-corporativo"},
	}
	if err := f.content.CreatePillarPage(context.Background(), page); err != nil {
		t.Fatalf("CreatePillarPage() error = %v", err)
	}

	report, err := f.engine.CheckLinkHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckLinkHealth() error = %v", err)
	}
	want := []model.LinkIssue{{PillarTitle: "Cuadernos", PillarSlug: "cuadernos", BrokenProductSlug: "cuaderno-viejo"}}
	if diff := cmp.Diff(want, report.Issues); diff != "" {
		t.Errorf("Issues mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckLinkHealthHealthy(t *testing.T) {
	f := newFixture(t)
	testutil.SeedPillarPage(t, f.db, "agendas", "Agendas", model.PillarStatusPublished, f.planner.Slug)

	report, err := f.engine.CheckLinkHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckLinkHealth() error = %v", err)
	}
	want := &model.HealthReport{
		Status:       model.HealthStatusHealthy,
		Issues:       []model.LinkIssue{},
		PillarsTotal: 1,
		LinksChecked: 1,
	}
	if diff := cmp.Diff(want, report, cmpopts.IgnoreFields(model.HealthReport{}, "CheckedAt")); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	if report.CheckedAt.IsZero() {
		t.Error("CheckedAt not set")
	}
}

func TestCheckLinkHealthRepositoryUnavailable(t *testing.T) {
	f := newFixture(t)
	e := f.withEngine(&faultyContent{ContentRepository: f.content, failReads: true}, DefaultOptions())

	if _, err := e.CheckLinkHealth(context.Background()); !errors.Is(err, ErrRepositoryUnavailable) {
		t.Errorf("error = %v, want ErrRepositoryUnavailable", err)
	}
}
