// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"errors"
	"sort"
	"strings"
	"unicode/utf8"
)

// ValidationError reports one or more invalid fields of an entity.
// It is never retried and is returned to the caller with field-level detail.
type ValidationError struct {
	Fields map[string]string
}

// Error implements error.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a problem with field. The first message per field wins.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

// OrNil returns e if any field was recorded, otherwise nil.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// AsValidationError unwraps err into a *ValidationError if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// checkLength validates that a trimmed string has between lo and hi runes.
func checkLength(v *ValidationError, field, value string, lo, hi int, label string) {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	switch {
	case n == 0 && lo > 0:
		v.Add(field, label+" is required")
	case n < lo:
		v.Add(field, label+" is too short")
	case hi > 0 && n > hi:
		v.Add(field, label+" is too long")
	}
}
