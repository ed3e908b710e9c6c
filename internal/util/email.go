// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"net/mail"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MaxEmailLength is the longest address accepted (RFC 5321 path limit).
const MaxEmailLength = 254

// NormalizeEmail trims, NFC-normalizes and lower-cases an address so that
// lookups are case-insensitive on every backend.
func NormalizeEmail(email string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(email)))
}

// IsValidEmail reports whether s is a bare addr-spec such as "a@example.com".
// Display names ("Bob <bob@example.com>") are rejected.
func IsValidEmail(s string) bool {
	if s == "" || len(s) > MaxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}
