// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"errors"
	"fmt"
)

// Errors returned by the adapter regardless of the configured engine.
// Engine-native error types never cross the package boundary.
var (
	// ErrNotFound is returned where a missing record is an error for the caller
	// (reads report absence as a nil result instead).
	ErrNotFound = errors.New("store: not found")
	// ErrConflict reports a unique key violation (duplicate e-mail or slug).
	ErrConflict = errors.New("store: conflict")
	// ErrUnavailable reports that the store cannot be reached.
	ErrUnavailable = errors.New("store: unavailable")
)

// wrapErr maps an engine error onto the store taxonomy. kind is one of the
// sentinels above or nil for a generic failure.
func wrapErr(op string, kind, err error) error {
	if kind != nil {
		return fmt.Errorf("store: %s: %w (%v)", op, kind, err)
	}
	return fmt.Errorf("store: %s: %v", op, err)
}
