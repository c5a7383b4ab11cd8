// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package version provides build-time version information.
package version

import (
	"fmt"
	"runtime"
)

// Set via -ldflags "-X github.com/olegiv/pillar-engine/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

// Info contains build-time version information.
type Info struct {
	Version   string `json:"version"`    // Semantic version from git tags (e.g., "v1.2.3")
	GitCommit string `json:"git_commit"` // Short git commit hash (e.g., "abc1234")
	BuildTime string `json:"build_time"` // Build timestamp in RFC3339 format
	GoVersion string `json:"go_version"`
}

// Get returns the version information of the running binary.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// String renders i on one line.
func (i Info) String() string {
	s := "pillar " + i.Version
	if i.GitCommit != "" {
		s += " (" + i.GitCommit + ")"
	}
	if i.BuildTime != "" {
		s += " built " + i.BuildTime
	}
	return fmt.Sprintf("%s %s", s, i.GoVersion)
}
