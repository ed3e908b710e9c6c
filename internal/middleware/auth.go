// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package middleware provides HTTP middleware for bearer-token
// authentication, role checks, rate limiting and security headers.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/olegiv/newsletter-go/internal/auth"
	"github.com/olegiv/newsletter-go/internal/model"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

// ContextKeyPrincipal holds the authenticated caller.
const ContextKeyPrincipal ContextKey = "principal"

// TokenVerifier turns a bearer token into a principal.
type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

// RequireAuth creates middleware that requires a valid bearer token.
// The principal is stored in the request context.
func RequireAuth(tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "Missing or malformed Authorization header", nil)
				return
			}

			p, err := tokens.Verify(raw)
			if err != nil {
				WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token", nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole creates middleware that requires the caller to have role.
// It must run after RequireAuth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := GetPrincipal(r.Context())
			if !ok {
				WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
				return
			}
			if p.Role != role {
				slog.Warn("access denied",
					"status", http.StatusForbidden,
					"method", r.Method,
					"path", r.URL.Path,
					"user_id", p.UserID,
					"user_role", p.Role,
					"required_role", role,
				)
				WriteAPIError(w, http.StatusForbidden, "forbidden", "Insufficient permissions", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin is shorthand for RequireRole(model.RoleAdmin).
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireRole(model.RoleAdmin)
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, p)
}

// GetPrincipal retrieves the authenticated caller from ctx.
func GetPrincipal(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(ContextKeyPrincipal).(auth.Principal)
	return p, ok
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
