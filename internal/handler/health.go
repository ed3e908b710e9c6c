// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/olegiv/newsletter-go/internal/version"
)

// healthCheckTimeout bounds each dependency probe.
const healthCheckTimeout = 2 * time.Second

// Pinger is a dependency that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	checks    map[string]Pinger
	engine    string
	version   version.Info
	startTime time.Time
}

// NewHealthHandler creates a health handler. db is required; extra checks
// (for example a Redis cache) are optional.
func NewHealthHandler(db Pinger, engine string, info version.Info, extra map[string]Pinger) *HealthHandler {
	checks := map[string]Pinger{"database": db}
	for name, p := range extra {
		if p != nil {
			checks[name] = p
		}
	}
	return &HealthHandler{checks: checks, engine: engine, version: info, startTime: time.Now()}
}

// HealthStatus represents the overall health status.
type HealthStatus struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version,omitempty"`
	Database  string           `json:"database"`
	Checks    map[string]Check `json:"checks"`
}

// Check represents a single health check result.
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Version:   h.version.Version,
		Database:  h.engine,
		Checks:    make(map[string]Check, len(h.checks)),
	}
	for name, p := range h.checks {
		c := probe(r.Context(), p)
		if c.Status != "healthy" {
			status.Status = "degraded"
		}
		status.Checks[name] = c
	}

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, status)
}

// Liveness handles GET /health/live - simple liveness check.
func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Readiness handles GET /health/ready - the database must answer.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if c := probe(r.Context(), h.checks["database"]); c.Status != "healthy" {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func probe(ctx context.Context, p Pinger) Check {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(ctx)
	latency := time.Since(start)
	if err != nil {
		return Check{Status: "unhealthy", Message: "unreachable", Latency: latency.String()}
	}
	return Check{Status: "healthy", Latency: latency.String()}
}
