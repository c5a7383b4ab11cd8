// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package testutil provides shared test helpers for the pillar engine.
package testutil

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/pillar-engine/internal/model"
	"github.com/olegiv/pillar-engine/internal/store"
)

// TestLogger creates a silent test logger that only outputs warnings and errors.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// TestLoggerSilent creates a completely silent test logger (error level only).
func TestLoggerSilent() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// TestDB creates a temporary test database with migrations applied.
// Returns the database and a cleanup function that should be deferred.
func TestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "pillar-test-*.db")
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	dbPath := f.Name()
	_ = f.Close()

	cfg := store.DefaultDBConfig()
	cfg.Driver = store.DriverMattn
	db, err := store.NewDBWithConfig(dbPath, cfg)
	if err != nil {
		_ = os.Remove(dbPath)
		t.Fatalf("NewDB: %v", err)
	}

	if err := store.Migrate(db); err != nil {
		_ = db.Close()
		_ = os.Remove(dbPath)
		t.Fatalf("Migrate: %v", err)
	}

	return db, func() {
		_ = db.Close()
		_ = os.Remove(dbPath)
	}
}

// SeedProduct inserts a product and returns it.
func SeedProduct(t *testing.T, db *sql.DB, slug, name, description string) model.Product {
	t.Helper()

	now := time.Now().UTC()
	p := model.Product{
		ID:          uuid.NewString(),
		Slug:        slug,
		Name:        name,
		Description: description,
		PriceCents:  1000,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.New(db).CreateProduct(context.Background(), p); err != nil {
		t.Fatalf("CreateProduct(%s): %v", slug, err)
	}
	return p
}

// SeedPost inserts a published post and returns it.
func SeedPost(t *testing.T, db *sql.DB, slug, title, body string, keywords ...string) model.Post {
	t.Helper()

	now := time.Now().UTC()
	p := model.Post{
		ID:        uuid.NewString(),
		Slug:      slug,
		Title:     title,
		Body:      body,
		Keywords:  keywords,
		Status:    model.PostStatusPublished,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.New(db).CreatePost(context.Background(), p); err != nil {
		t.Fatalf("CreatePost(%s): %v", slug, err)
	}
	return p
}

// SeedPillarPage inserts a pillar page with the given status and returns it.
func SeedPillarPage(t *testing.T, db *sql.DB, slug, title, status string, linkedProductSlugs ...string) model.PillarPage {
	t.Helper()

	now := time.Now().UTC()
	p := model.PillarPage{
		ID:                 uuid.NewString(),
		Slug:               slug,
		Title:              title,
		Body:               "<p>" + title + "</p>",
		LinkedProductSlugs: linkedProductSlugs,
		Status:             status,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := store.New(db).CreatePillarPage(context.Background(), p); err != nil {
		t.Fatalf("CreatePillarPage(%s): %v", slug, err)
	}
	return p
}
