// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/olegiv/pillar-engine/internal/store"
)

var seedDemo bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Applies pending migrations and prints the schema version. With --seed an
empty catalog is filled with demo products and posts.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&seedDemo, "seed", false, "Insert demo catalog data when the database is empty")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	if seedDemo {
		if err := store.SeedDemo(cmd.Context(), a.db, a.logger); err != nil {
			return fmt.Errorf("seeding demo data: %w", err)
		}
	}

	v, err := store.MigrationVersion(a.db)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "database at schema version %d\n", v)
	return nil
}
