// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package version provides build-time version information.
package version

import "fmt"

// Info contains build-time version information injected via ldflags.
type Info struct {
	Version   string `json:"version"`   // Semantic version from git tags (e.g., "v1.2.3")
	GitCommit string `json:"gitCommit"` // Short git commit hash (e.g., "abc1234")
	BuildTime string `json:"buildTime"` // Build timestamp in RFC3339 format
}

// String formats the info for the -version flag. Unset fields print as "unknown".
func (i Info) String() string {
	return fmt.Sprintf("newsletter %s (commit %s, built %s)", orUnknown(i.Version), orUnknown(i.GitCommit), orUnknown(i.BuildTime))
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
