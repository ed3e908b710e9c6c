package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: slog.LevelInfo, Writer: &buf})

	logger.Debug("hidden")
	logger.Info("broadcast finished", "succeeded", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["msg"] != "broadcast finished" || rec["succeeded"] != float64(3) {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestNewDevelopment(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Development: true, Level: slog.LevelDebug, Writer: &buf})
	logger.Debug("store opened", "engine", "sqlite")

	out := buf.String()
	if !strings.Contains(out, "store opened") || !strings.Contains(out, "sqlite") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestRequestIDHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewRequestIDHandler(slog.NewJSONHandler(&buf, nil))).With("component", "test")

	var ctx context.Context
	h := middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ctx = r.Context()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	logger.InfoContext(ctx, "with id")
	logger.InfoContext(context.Background(), "without id")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}

	var first, second map[string]any
	_ = json.Unmarshal([]byte(lines[0]), &first)
	_ = json.Unmarshal([]byte(lines[1]), &second)

	if id, _ := first["request_id"].(string); id == "" || id != middleware.GetReqID(ctx) {
		t.Errorf("request_id = %v, want %q", first["request_id"], middleware.GetReqID(ctx))
	}
	if first["component"] != "test" {
		t.Errorf("WithAttrs lost: %v", first)
	}
	if _, ok := second["request_id"]; ok {
		t.Errorf("unexpected request_id in %v", second)
	}
}
