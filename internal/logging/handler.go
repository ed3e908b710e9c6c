// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging builds the application slog logger and a handler that tags
// records with the request id of the HTTP request being served.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/lmittmann/tint"
)

// Options configures New.
type Options struct {
	// Development selects the colored tint handler; otherwise JSON is used.
	Development bool
	Level       slog.Level
	Writer      io.Writer
}

// New returns a logger writing to opts.Writer, wrapped in a RequestIDHandler.
func New(opts Options) *slog.Logger {
	var inner slog.Handler
	if opts.Development {
		inner = tint.NewHandler(opts.Writer, &tint.Options{
			Level:      opts.Level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(opts.Writer, &slog.HandlerOptions{Level: opts.Level})
	}
	return slog.New(NewRequestIDHandler(inner))
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RequestIDHandler is a slog.Handler that wraps another handler and adds a
// request_id attribute when the context carries one set by chi's RequestID
// middleware.
type RequestIDHandler struct {
	inner slog.Handler
}

// NewRequestIDHandler wraps inner.
func NewRequestIDHandler(inner slog.Handler) *RequestIDHandler {
	return &RequestIDHandler{inner: inner}
}

// Enabled implements slog.Handler.
func (h *RequestIDHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RequestIDHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if id := middleware.GetReqID(ctx); id != "" {
			r = r.Clone()
			r.AddAttrs(slog.String("request_id", id))
		}
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *RequestIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RequestIDHandler{inner: h.inner.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *RequestIDHandler) WithGroup(name string) slog.Handler {
	return &RequestIDHandler{inner: h.inner.WithGroup(name)}
}
