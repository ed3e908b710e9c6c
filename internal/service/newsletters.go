// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package service implements the subscription flows and the cached newsletter
// reads used by the HTTP handlers.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/olegiv/newsletter-go/internal/cache"
	"github.com/olegiv/newsletter-go/internal/model"
)

const (
	newsletterKeyPrefix = "newsletters:"
	publishedListKey    = newsletterKeyPrefix + "published"
)

// NewsletterStore is the part of the database adapter used for newsletters.
type NewsletterStore interface {
	FindPublishedNewsletters(ctx context.Context) ([]model.Newsletter, error)
	FindNewsletterByID(ctx context.Context, id string) (*model.Newsletter, error)
	FindAllNewsletters(ctx context.Context) ([]model.Newsletter, error)
	FindNewsletterByIDForUpdate(ctx context.Context, id string) (*model.Newsletter, error)
	CreateNewsletter(ctx context.Context, in model.NewsletterInput) (*model.Newsletter, error)
	UpdateNewsletter(ctx context.Context, id string, patch model.NewsletterPatch) (*model.Newsletter, error)
	DeleteNewsletter(ctx context.Context, id string) (bool, error)
}

// NewsletterService serves newsletters, caching the public reads.
// Every write drops the cached entries.
type NewsletterService struct {
	store  NewsletterStore
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewNewsletterService creates a NewsletterService. If c is nil reads go
// straight to the store.
func NewNewsletterService(st NewsletterStore, c cache.Cache, ttl time.Duration, logger *slog.Logger) *NewsletterService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NewsletterService{store: st, cache: c, ttl: ttl, logger: logger}
}

// Published lists published newsletters, newest publication first.
func (s *NewsletterService) Published(ctx context.Context) ([]model.Newsletter, error) {
	if s.cache != nil {
		if list, ok := cache.GetJSON[[]model.Newsletter](ctx, s.cache, publishedListKey); ok {
			return list, nil
		}
	}

	list, err := s.store.FindPublishedNewsletters(ctx)
	if err != nil {
		return nil, err
	}
	s.put(ctx, publishedListKey, list)
	return list, nil
}

// PublishedByID returns a published newsletter or nil.
func (s *NewsletterService) PublishedByID(ctx context.Context, id string) (*model.Newsletter, error) {
	key := newsletterKeyPrefix + "id:" + id
	if s.cache != nil {
		if n, ok := cache.GetJSON[model.Newsletter](ctx, s.cache, key); ok {
			return &n, nil
		}
	}

	n, err := s.store.FindNewsletterByID(ctx, id)
	if err != nil || n == nil {
		return nil, err
	}
	s.put(ctx, key, n)
	return n, nil
}

// All lists every newsletter for administrators. Not cached.
func (s *NewsletterService) All(ctx context.Context) ([]model.Newsletter, error) {
	return s.store.FindAllNewsletters(ctx)
}

// Get returns a newsletter in any state, or nil.
func (s *NewsletterService) Get(ctx context.Context, id string) (*model.Newsletter, error) {
	return s.store.FindNewsletterByIDForUpdate(ctx, id)
}

// Create stores a new newsletter.
func (s *NewsletterService) Create(ctx context.Context, in model.NewsletterInput) (*model.Newsletter, error) {
	n, err := s.store.CreateNewsletter(ctx, in)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return n, nil
}

// Update applies patch, returning nil if the newsletter does not exist.
func (s *NewsletterService) Update(ctx context.Context, id string, patch model.NewsletterPatch) (*model.Newsletter, error) {
	n, err := s.store.UpdateNewsletter(ctx, id, patch)
	if err != nil || n == nil {
		return nil, err
	}
	s.invalidate(ctx)
	return n, nil
}

// Delete removes a newsletter, reporting false if it did not exist.
func (s *NewsletterService) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := s.store.DeleteNewsletter(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	s.invalidate(ctx)
	return true, nil
}

func (s *NewsletterService) put(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, key, v, s.ttl); err != nil {
		s.logger.Warn("caching newsletters failed", "key", key, "error", err)
	}
}

func (s *NewsletterService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPrefix(ctx, newsletterKeyPrefix); err != nil {
		s.logger.Warn("invalidating newsletter cache failed", "error", err)
	}
}
