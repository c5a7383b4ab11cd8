// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/olegiv/pillar-engine/internal/cache"
	"github.com/olegiv/pillar-engine/internal/llm"
	"github.com/olegiv/pillar-engine/internal/model"
	"github.com/olegiv/pillar-engine/internal/scheduler"
)

var (
	linkcheckJSON bool
	failOnIssues  bool
	pruneOlder    time.Duration
)

var errBrokenLinks = errors.New("broken product links found")

var linkcheckCmd = &cobra.Command{
	Use:   "linkcheck",
	Short: "Check published pillar pages for links to missing products",
	Long: `Runs the link health check once, stores the report in the dashboard cache
and records it in the event log.`,
	Args: cobra.NoArgs,
	RunE: runLinkcheck,
}

var pruneEventsCmd = &cobra.Command{
	Use:   "prune-events",
	Short: "Delete event log entries older than the retention period",
	Args:  cobra.NoArgs,
	RunE:  runPruneEvents,
}

func init() {
	linkcheckCmd.Flags().BoolVar(&linkcheckJSON, "json", false, "Print the report as JSON")
	linkcheckCmd.Flags().BoolVar(&failOnIssues, "fail-on-issues", false, "Exit non-zero when broken links are found")
	pruneEventsCmd.Flags().DurationVar(&pruneOlder, "older-than", 0, "Retention period (default: PILLAR_EVENT_RETENTION_DAYS)")
}

// jobScheduler builds a scheduler for one-off runs. Link checks never call
// the text generator, so the engine gets an empty static one.
func (a *app) jobScheduler() (*scheduler.Scheduler, func()) {
	c, _ := cache.Open(a.cfg.Cache(), a.logger)
	reports := cache.NewHealthReportCache(c, a.cfg.Cache().DefaultTTL)
	eng := a.engine(llm.NewStatic(nil))
	return scheduler.New(a.db, eng, reports, a.cfg.Scheduler(), a.logger), func() { _ = c.Close() }
}

func runLinkcheck(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	sched, closeCache := a.jobScheduler()
	defer closeCache()

	report, err := sched.RefreshLinkHealth(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if linkcheckJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(out, report)
	}

	if failOnIssues && len(report.Issues) > 0 {
		return errBrokenLinks
	}
	return nil
}

func printReport(w io.Writer, r *model.HealthReport) {
	_, _ = fmt.Fprintf(w, "status: %s (%d pillar pages, %d links checked)\n", r.Status, r.PillarsTotal, r.LinksChecked)
	for _, issue := range r.Issues {
		_, _ = fmt.Fprintf(w, "  %s (%s): missing product %s\n", issue.PillarTitle, issue.PillarSlug, issue.BrokenProductSlug)
	}
}

func runPruneEvents(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	if pruneOlder > 0 {
		a.cfg.EventRetentionDays = int(pruneOlder.Hours() / 24)
		if a.cfg.EventRetentionDays == 0 {
			return errors.New("--older-than must be at least 24h")
		}
	}

	sched, closeCache := a.jobScheduler()
	defer closeCache()

	n, err := sched.PruneEvents(cmd.Context())
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d event(s)\n", n)
	return nil
}
