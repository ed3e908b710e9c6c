// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/newsletter-go/internal/captcha"
	"github.com/olegiv/newsletter-go/internal/mail"
	"github.com/olegiv/newsletter-go/internal/middleware"
	"github.com/olegiv/newsletter-go/internal/model"
	"github.com/olegiv/newsletter-go/internal/service"
	"github.com/olegiv/newsletter-go/internal/store"
)

const (
	subscribePath        = "/api/subscriptions/subscribe"
	subscriptionNotFound = "Email not found in subscriptions"
)

// SubscriptionsHandler serves the subscription routes.
type SubscriptionsHandler struct {
	subscriptions *service.SubscriptionService
	captcha       captcha.Verifier
	links         *mail.LinkSigner
	logger        *slog.Logger
}

// NewSubscriptionsHandler creates a SubscriptionsHandler. A nil verifier
// disables the captcha check.
func NewSubscriptionsHandler(ss *service.SubscriptionService, cv captcha.Verifier, links *mail.LinkSigner, logger *slog.Logger) *SubscriptionsHandler {
	if cv == nil {
		cv = captcha.Disabled{}
	}
	return &SubscriptionsHandler{subscriptions: ss, captcha: cv, links: links, logger: logger}
}

type subscribeRequest struct {
	Email        string `json:"email"`
	Source       string `json:"source"`
	CaptchaID    string `json:"captchaId"`
	CaptchaInput string `json:"captchaInput"`
}

type subscribeResponse struct {
	Message      string         `json:"message"`
	Subscription subscriberView `json:"subscription"`
}

type subscriberView struct {
	Email        string    `json:"email"`
	SubscribedAt time.Time `json:"subscribedAt"`
}

type subscriberList struct {
	Count         int                `json:"count"`
	Subscriptions []model.Subscriber `json:"subscriptions"`
}

type emailRequest struct {
	Email string `json:"email"`
}

// Subscribe handles POST /api/subscriptions/subscribe.
func (h *SubscriptionsHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteBadRequest(w, err.Error(), nil)
		return
	}

	ok, err := h.captcha.Verify(r.Context(), h.captchaID(r, req), req.CaptchaInput)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "captcha verification error", "error", err)
		WriteError(w, http.StatusBadGateway, "captcha_unavailable", "Captcha verification failed", nil)
		return
	}
	if !ok {
		h.logger.WarnContext(r.Context(), "captcha verification failed", "remote_ip", middleware.ClientIP(r))
		WriteBadRequest(w, "Invalid captcha", map[string]string{"captcha": "Please complete the captcha"})
		return
	}

	sub, err := h.subscriptions.Subscribe(r.Context(), req.Email, req.Source)
	if err != nil {
		respondError(w, r, h.logger, err, subscriptionNotFound)
		return
	}
	WriteJSON(w, http.StatusCreated, subscribeResponse{
		Message:      "Successfully subscribed to newsletter!",
		Subscription: subscriberView{Email: sub.Email, SubscribedAt: sub.SubscribedAt},
	})
}

// captchaID returns the challenge id. hCaptcha has none and takes the
// client IP in its place.
func (h *SubscriptionsHandler) captchaID(r *http.Request, req subscribeRequest) string {
	if _, ok := h.captcha.(*captcha.HCaptcha); ok {
		return middleware.ClientIP(r)
	}
	return req.CaptchaID
}

// Unsubscribe handles POST /api/subscriptions/unsubscribe.
func (h *SubscriptionsHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteBadRequest(w, err.Error(), nil)
		return
	}

	if _, err := h.subscriptions.Unsubscribe(r.Context(), req.Email); err != nil {
		respondError(w, r, h.logger, err, subscriptionNotFound)
		return
	}
	WriteJSON(w, http.StatusOK, MessageResponse{Message: "Successfully unsubscribed from newsletter"})
}

// UnsubscribeLink handles GET /api/subscriptions/unsubscribe?email=&token=,
// the signed link carried by every newsletter. Repeated clicks succeed.
func (h *SubscriptionsHandler) UnsubscribeLink(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	token := r.URL.Query().Get("token")
	if email == "" || token == "" || h.links == nil || !h.links.Verify(email, token) {
		WriteBadRequest(w, "Invalid unsubscribe link", nil)
		return
	}

	_, err := h.subscriptions.Unsubscribe(r.Context(), email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		respondError(w, r, h.logger, err, subscriptionNotFound)
		return
	}
	WriteJSON(w, http.StatusOK, MessageResponse{Message: "Successfully unsubscribed from newsletter"})
}

// Status handles GET /api/subscriptions/status/{email}.
func (h *SubscriptionsHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.subscriptions.Status(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		respondError(w, r, h.logger, err, subscriptionNotFound)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

// AdminList handles GET /api/subscriptions/admin/all.
func (h *SubscriptionsHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	subs, err := h.subscriptions.ActiveSubscribers(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err, subscriptionNotFound)
		return
	}
	subs = nonNil(subs)
	WriteJSON(w, http.StatusOK, subscriberList{Count: len(subs), Subscriptions: subs})
}
