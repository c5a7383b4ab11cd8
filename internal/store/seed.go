// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/pillar-engine/internal/model"
)

type seedProduct struct {
	slug, name, description string
	priceCents              int64
}

type seedPost struct {
	slug, title, seoDescription, body string
	keywords                          []string
}

var demoProducts = []seedProduct{
	{"agenda-2026-tapa-dura", "Agenda 2026 Tapa Dura", "Agenda semanal 2026 con tapa dura, papel de 90 g y cinta marcapáginas.", 1890},
	{"cuaderno-a5-punteado", "Cuaderno A5 Punteado", "Cuaderno A5 con hojas punteadas, ideal para bullet journal.", 1250},
	{"set-boligrafos-gel", "Set de Bolígrafos de Gel", "Set de 12 bolígrafos de gel en colores pastel.", 990},
	{"caja-regalo-corporativa", "Caja Regalo Corporativa", "Caja con agenda, bolígrafo metálico y tarjeta personalizada para empresas.", 3490},
	{"libreta-kraft-personalizada", "Libreta Kraft Personalizada", "Libreta de tapa kraft con el logo de tu empresa grabado.", 790},
}

var demoPosts = []seedPost{
	{
		slug:           "como-organizar-tu-semana",
		title:          "Cómo organizar tu semana con una agenda",
		seoDescription: "Trucos para planificar la semana con una agenda de papel.",
		body: "<h2>Planifica el domingo</h2>\n<p>Dedica diez minutos a revisar la Agenda 2026 Tapa Dura y anotar tus prioridades.</p>\n" +
			"<h2>Revisa cada noche</h2>\n<p>Tacha lo hecho y mueve lo pendiente.</p>",
		keywords: []string{"agenda", "organización", "planificación"},
	},
	{
		slug:           "ideas-regalos-empresa",
		title:          "Ideas de regalos para tu equipo",
		seoDescription: "Regalos de papelería para sorprender a tu equipo.",
		body: "<h2>Detalles que se usan</h2>\n<p>Una libreta kraft personalizada con el logo de la empresa siempre funciona.</p>\n" +
			"<h2>Presentación</h2>\n<p>Envuelve cada regalo con cuidado.</p>",
		keywords: []string{"regalos", "empresa", "equipo"},
	},
	{
		slug:           "bullet-journal-para-principiantes",
		title:          "Bullet journal para principiantes",
		seoDescription: "Empieza tu bullet journal paso a paso.",
		body:           "<p>Solo necesitas un cuaderno punteado y un set de bolígrafos de gel para empezar.</p>",
		keywords:       []string{"bullet journal", "cuaderno", "lettering"},
	},
}

// SeedDemo inserts a small stationery catalog and blog when the database has
// no products yet. It is a no-op otherwise.
func SeedDemo(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	queries := New(db)

	existing, err := queries.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("checking for products: %w", err)
	}
	if len(existing) > 0 {
		logger.Info("catalog already has products, skipping seed", "products", len(existing))
		return nil
	}

	now := time.Now().UTC()
	return inTx(ctx, db, func(q *Queries) error {
		for _, p := range demoProducts {
			if err := q.CreateProduct(ctx, model.Product{
				ID:          uuid.NewString(),
				Slug:        p.slug,
				Name:        p.name,
				Description: p.description,
				PriceCents:  p.priceCents,
				CreatedAt:   now,
				UpdatedAt:   now,
			}); err != nil {
				return fmt.Errorf("seeding product %s: %w", p.slug, err)
			}
		}
		for _, p := range demoPosts {
			if err := q.CreatePost(ctx, model.Post{
				ID:             uuid.NewString(),
				Slug:           p.slug,
				Title:          p.title,
				SEODescription: p.seoDescription,
				Body:           p.body,
				Keywords:       p.keywords,
				Status:         model.PostStatusPublished,
				CreatedAt:      now,
				UpdatedAt:      now,
			}); err != nil {
				return fmt.Errorf("seeding post %s: %w", p.slug, err)
			}
		}
		logger.Info("seeded demo catalog", "products", len(demoProducts), "posts", len(demoPosts))
		return nil
	})
}
