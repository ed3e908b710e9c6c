// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/newsletter-go/internal/broadcast"
	"github.com/olegiv/newsletter-go/internal/model"
	"github.com/olegiv/newsletter-go/internal/service"
)

const newsletterNotFound = "Newsletter not found"

// NewslettersHandler serves the newsletter routes.
type NewslettersHandler struct {
	newsletters *service.NewsletterService
	dispatcher  *broadcast.Dispatcher
	logger      *slog.Logger
}

// NewNewslettersHandler creates a NewslettersHandler.
func NewNewslettersHandler(ns *service.NewsletterService, d *broadcast.Dispatcher, logger *slog.Logger) *NewslettersHandler {
	return &NewslettersHandler{newsletters: ns, dispatcher: d, logger: logger}
}

// List handles GET /api/newsletters (published only).
func (h *NewslettersHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.newsletters.Published(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err, newsletterNotFound)
		return
	}
	WriteJSON(w, http.StatusOK, nonNil(list))
}

// Get handles GET /api/newsletters/{id}. Drafts are reported as not found.
func (h *NewslettersHandler) Get(w http.ResponseWriter, r *http.Request) {
	n, err := h.newsletters.PublishedByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.logger, err, newsletterNotFound)
		return
	}
	if n == nil {
		WriteNotFound(w, newsletterNotFound)
		return
	}
	WriteJSON(w, http.StatusOK, n)
}

// AdminList handles GET /api/newsletters/admin/all.
func (h *NewslettersHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	list, err := h.newsletters.All(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err, newsletterNotFound)
		return
	}
	WriteJSON(w, http.StatusOK, nonNil(list))
}

// Create handles POST /api/newsletters.
func (h *NewslettersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in model.NewsletterInput
	if err := decodeJSON(w, r, &in); err != nil {
		WriteBadRequest(w, err.Error(), nil)
		return
	}

	n, err := h.newsletters.Create(r.Context(), in)
	if err != nil {
		respondError(w, r, h.logger, err, newsletterNotFound)
		return
	}
	h.logger.InfoContext(r.Context(), "newsletter created", "id", n.ID, "slug", n.Slug, "published", n.Published)
	WriteJSON(w, http.StatusCreated, n)
}

// Update handles PUT /api/newsletters/{id}. Omitted fields are left unchanged.
func (h *NewslettersHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch model.NewsletterPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		WriteBadRequest(w, err.Error(), nil)
		return
	}

	n, err := h.newsletters.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		respondError(w, r, h.logger, err, newsletterNotFound)
		return
	}
	if n == nil {
		WriteNotFound(w, newsletterNotFound)
		return
	}
	WriteJSON(w, http.StatusOK, n)
}

// Delete handles DELETE /api/newsletters/{id}.
func (h *NewslettersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := h.newsletters.Delete(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err, newsletterNotFound)
		return
	}
	if !ok {
		WriteNotFound(w, newsletterNotFound)
		return
	}
	h.logger.InfoContext(r.Context(), "newsletter deleted", "id", id)
	WriteJSON(w, http.StatusOK, MessageResponse{Message: "Newsletter deleted successfully"})
}

// Send handles POST /api/newsletters/{id}/send. A client disconnect does not
// stop the broadcast; CancelSend does, and the partial result is returned.
func (h *NewslettersHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	res, err := h.dispatcher.Broadcast(ctx, chi.URLParam(r, "id"))
	if err != nil && !(res != nil && errors.Is(err, context.Canceled)) {
		respondError(w, r, h.logger, err, newsletterNotFound)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// CancelSend handles POST /api/newsletters/{id}/send/cancel. The running
// broadcast stops and its Send request returns the partial result.
func (h *NewslettersHandler) CancelSend(w http.ResponseWriter, r *http.Request) {
	if !h.dispatcher.Cancel(chi.URLParam(r, "id")) {
		WriteNotFound(w, "No broadcast in progress")
		return
	}
	WriteJSON(w, http.StatusOK, MessageResponse{Message: "Broadcast cancelled"})
}

type testSendRequest struct {
	Email string `json:"email"`
}

// SendTest handles POST /api/newsletters/{id}/test.
func (h *NewslettersHandler) SendTest(w http.ResponseWriter, r *http.Request) {
	var req testSendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteBadRequest(w, err.Error(), nil)
		return
	}

	if err := h.dispatcher.SendTest(r.Context(), chi.URLParam(r, "id"), req.Email); err != nil {
		respondError(w, r, h.logger, err, newsletterNotFound)
		return
	}
	WriteJSON(w, http.StatusOK, MessageResponse{Message: "Test email sent to " + req.Email})
}

// nonNil keeps empty listings encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
