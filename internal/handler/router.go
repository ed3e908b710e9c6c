// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/olegiv/newsletter-go/internal/auth"
	"github.com/olegiv/newsletter-go/internal/metrics"
	"github.com/olegiv/newsletter-go/internal/middleware"
)

// requestTimeout bounds ordinary requests. Broadcasts are mounted outside it.
const requestTimeout = 30 * time.Second

// RouterConfig carries the handlers and middleware settings for NewRouter.
type RouterConfig struct {
	Logger      *slog.Logger
	Development bool
	CORSOrigins []string
	// SubscribeRate is the allowed subscribe/unsubscribe requests per minute per IP.
	SubscribeRate int

	Tokens        *auth.TokenIssuer
	Metrics       *metrics.Metrics
	Newsletters   *NewslettersHandler
	Subscriptions *SubscriptionsHandler
	Auth          *AuthHandler
	Health        *HealthHandler
}

// NewRouter assembles the API routes.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestLogger(&chimw.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(cfg.Logger.Handler(), slog.LevelInfo),
		NoColor: !cfg.Development,
	}))
	r.Use(chimw.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig(cfg.Development)))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteNotFound(w, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", nil)
	})

	r.Get("/health", cfg.Health.Health)
	r.Get("/health/live", cfg.Health.Liveness)
	r.Get("/health/ready", cfg.Health.Readiness)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	requireAuth := middleware.RequireAuth(cfg.Tokens)
	requireAdmin := middleware.RequireAdmin()
	limiter := middleware.NewRateLimiter(float64(cfg.SubscribeRate)/60, cfg.SubscribeRate)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(requestTimeout))

			r.Post("/auth/login", cfg.Auth.Login)
			r.With(requireAuth).Get("/auth/me", cfg.Auth.Me)

			r.Get("/newsletters", cfg.Newsletters.List)
			r.Get("/newsletters/{id}", cfg.Newsletters.Get)

			r.Group(func(r chi.Router) {
				r.Use(limiter.Middleware())
				r.Post("/subscriptions/subscribe", cfg.Subscriptions.Subscribe)
				r.Post("/subscriptions/unsubscribe", cfg.Subscriptions.Unsubscribe)
				r.Get("/subscriptions/unsubscribe", cfg.Subscriptions.UnsubscribeLink)
			})
			r.Get("/subscriptions/status/{email}", cfg.Subscriptions.Status)
		})

		// Admin
		r.Group(func(r chi.Router) {
			r.Use(requireAuth, requireAdmin)

			r.With(chimw.Timeout(requestTimeout)).Group(func(r chi.Router) {
				r.Get("/newsletters/admin/all", cfg.Newsletters.AdminList)
				r.Post("/newsletters", cfg.Newsletters.Create)
				r.Put("/newsletters/{id}", cfg.Newsletters.Update)
				r.Delete("/newsletters/{id}", cfg.Newsletters.Delete)
				r.Post("/newsletters/{id}/test", cfg.Newsletters.SendTest)
				r.Post("/newsletters/{id}/send/cancel", cfg.Newsletters.CancelSend)
				r.Get("/subscriptions/admin/all", cfg.Subscriptions.AdminList)
			})
			r.Post("/newsletters/{id}/send", cfg.Newsletters.Send)
		})
	})

	return r
}
