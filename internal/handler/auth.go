// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/olegiv/newsletter-go/internal/auth"
	"github.com/olegiv/newsletter-go/internal/middleware"
	"github.com/olegiv/newsletter-go/internal/model"
)

// UserStore is the part of the database adapter used for sign-in.
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	FindUserByID(ctx context.Context, id string) (*model.User, error)
}

// AuthHandler serves login and the current-user route.
type AuthHandler struct {
	users  UserStore
	tokens *auth.TokenIssuer
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(users UserStore, tokens *auth.TokenIssuer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      *model.User `json:"user"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteBadRequest(w, err.Error(), nil)
		return
	}
	if req.Email == "" || req.Password == "" {
		WriteValidationError(w, map[string]string{"credentials": "Email and password are required"})
		return
	}

	user, err := h.users.FindUserByEmail(r.Context(), req.Email)
	if err != nil {
		respondError(w, r, h.logger, err, "")
		return
	}
	if user == nil || !user.Active {
		h.logger.WarnContext(r.Context(), "login failed", "email", req.Email, "remote_ip", middleware.ClientIP(r))
		WriteUnauthorized(w, "Invalid credentials")
		return
	}

	valid, err := auth.CheckPassword(req.Password, user.PasswordHash)
	if err != nil {
		respondError(w, r, h.logger, err, "")
		return
	}
	if !valid {
		h.logger.WarnContext(r.Context(), "login failed", "email", req.Email, "remote_ip", middleware.ClientIP(r))
		WriteUnauthorized(w, "Invalid credentials")
		return
	}
	if auth.NeedsRehash(user.PasswordHash) {
		h.logger.InfoContext(r.Context(), "password hash uses outdated parameters", "user_id", user.ID)
	}

	token, exp, err := h.tokens.Issue(user.ID, user.Role)
	if err != nil {
		respondError(w, r, h.logger, err, "")
		return
	}

	user.PasswordHash = ""
	h.logger.InfoContext(r.Context(), "user logged in", "user_id", user.ID)
	WriteJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: exp, User: user})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		WriteUnauthorized(w, "Authentication required")
		return
	}

	user, err := h.users.FindUserByID(r.Context(), p.UserID)
	if err != nil {
		respondError(w, r, h.logger, err, "User not found")
		return
	}
	if user == nil {
		WriteNotFound(w, "User not found")
		return
	}
	WriteJSON(w, http.StatusOK, user)
}
