// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package handler provides the JSON HTTP API: newsletters, subscriptions,
// authentication and health checks.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/olegiv/newsletter-go/internal/broadcast"
	"github.com/olegiv/newsletter-go/internal/model"
	"github.com/olegiv/newsletter-go/internal/store"
)

// maxBodyBytes caps JSON request bodies. Newsletter content is HTML, so the
// limit is generous.
const maxBodyBytes = 2 << 20

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, code, message string, details map[string]string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// WriteBadRequest writes a 400 Bad Request response.
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message, details)
}

// WriteNotFound writes a 404 Not Found response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message, nil)
}

// WriteUnauthorized writes a 401 Unauthorized response.
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message, nil)
}

// WriteInternalError writes a 500 Internal Server Error response.
func WriteInternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, "internal_error", "Server error", nil)
}

// WriteValidationError writes a 400 response with field errors.
func WriteValidationError(w http.ResponseWriter, fieldErrors map[string]string) {
	WriteError(w, http.StatusBadRequest, "validation_error", "Validation failed", fieldErrors)
}

// decodeJSON reads a single JSON object from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return fmt.Errorf("malformed JSON: %w", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// respondError maps a domain error onto the API error envelope. notFound is
// the message used for a missing entity. Unexpected errors are logged with
// full detail and reported generically.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, notFound string) {
	if ve, ok := model.AsValidationError(err); ok {
		WriteValidationError(w, ve.Fields)
		return
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteNotFound(w, notFound)
	case errors.Is(err, store.ErrConflict):
		WriteError(w, http.StatusConflict, "conflict", conflictMessage(r), nil)
	case errors.Is(err, broadcast.ErrInProgress):
		WriteError(w, http.StatusConflict, "broadcast_in_progress", "A broadcast of this newsletter is already running", nil)
	case errors.Is(err, broadcast.ErrNoRecipients):
		WriteError(w, http.StatusUnprocessableEntity, "no_recipients", "There are no active subscribers", nil)
	case errors.Is(err, broadcast.ErrTransportUnavailable):
		logger.ErrorContext(r.Context(), "mail transport unavailable", "path", r.URL.Path, "error", err)
		WriteError(w, http.StatusBadGateway, "transport_unavailable", "Mail transport is unavailable", nil)
	default:
		logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		WriteInternalError(w)
	}
}

func conflictMessage(r *http.Request) string {
	if r.URL.Path == subscribePath {
		return "Email already subscribed"
	}
	return "Resource already exists"
}
