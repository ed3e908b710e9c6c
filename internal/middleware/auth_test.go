package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/olegiv/newsletter-go/internal/auth"
	"github.com/olegiv/newsletter-go/internal/model"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestRequireAuth(t *testing.T) {
	issuer := auth.NewTokenIssuer(testSecret, time.Hour)
	good, _, err := issuer.Issue("user-1", model.RoleUser)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var seen auth.Principal
	handler := RequireAuth(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetPrincipal(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid token", header: "Bearer " + good, want: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + good, want: http.StatusOK},
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer ", want: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer not.a.jwt", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want != http.StatusOK {
				var body APIError
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
					t.Fatalf("decoding error body: %v", err)
				}
				if body.Error.Code != "unauthorized" {
					t.Errorf("error code = %q", body.Error.Code)
				}
			}
		})
	}

	if seen.UserID != "user-1" || seen.Role != model.RoleUser {
		t.Errorf("principal in context = %+v", seen)
	}
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name      string
		principal *auth.Principal
		want      int
	}{
		{name: "admin allowed", principal: &auth.Principal{UserID: "1", Role: model.RoleAdmin}, want: http.StatusOK},
		{name: "user forbidden", principal: &auth.Principal{UserID: "2", Role: model.RoleUser}, want: http.StatusForbidden},
		{name: "uppercase role forbidden", principal: &auth.Principal{UserID: "3", Role: "Admin"}, want: http.StatusForbidden},
		{name: "anonymous unauthorized", want: http.StatusUnauthorized},
	}

	handler := RequireAdmin()(okHandler())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/newsletters", nil)
			if tt.principal != nil {
				req = req.WithContext(WithPrincipal(req.Context(), *tt.principal))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
