// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package util provides small pure helpers shared by the store backends and
// the HTTP layer: slug generation and e-mail normalization.
package util

import (
	"regexp"
	"strings"
)

// nonAlnumRun matches every maximal run of characters outside [a-z0-9].
var nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts a title to a URL-safe slug.
// The title is lower-cased, each run of characters outside [a-z0-9] becomes a
// single hyphen, and leading/trailing hyphens are trimmed. Non-ASCII letters
// are treated as separators, so slugs stay stable across both store engines.
func Slugify(title string) string {
	s := strings.ToLower(title)
	s = nonAlnumRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// IsValidSlug checks if a string is a valid slug format.
func IsValidSlug(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return false
		}
	}

	if s[0] == '-' || s[len(s)-1] == '-' {
		return false
	}

	return !strings.Contains(s, "--")
}
