// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Command pillar runs the content cluster engine: the HTTP API, database
// migrations, and one-off maintenance jobs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/olegiv/pillar-engine/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "pillar",
	Short: "Content cluster engine for the stationery store",
	Long: `pillar plans SEO pillar pages from the product catalog and blog, drafts
them with a text generator, and publishes reviewed link edits.

Configuration is read from PILLAR_* environment variables and an optional
.env file in the working directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = version.Get().String()
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(linkcheckCmd)
	rootCmd.AddCommand(pruneEventsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
