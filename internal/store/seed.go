// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/olegiv/newsletter-go/internal/auth"
	"github.com/olegiv/newsletter-go/internal/model"
)

// Default admin credentials
const (
	DefaultAdminEmail    = "admin@example.com"
	DefaultAdminPassword = "password123"
	DefaultAdminName     = "Admin User"
)

// SeedOptions overrides the default admin credentials.
type SeedOptions struct {
	AdminEmail    string
	AdminPassword string
	// Samples also creates the sample newsletters when none exist yet.
	Samples bool
}

// Seed creates the admin user and, optionally, sample newsletters. Existing
// data is left untouched, so Seed is safe to run on every start.
func Seed(ctx context.Context, a *Adapter, opts SeedOptions) error {
	if err := EnsureAdmin(ctx, a, opts.AdminEmail, opts.AdminPassword); err != nil {
		return err
	}
	if !opts.Samples {
		return nil
	}
	return seedNewsletters(ctx, a)
}

// EnsureAdmin creates an admin account unless a user with that e-mail exists.
func EnsureAdmin(ctx context.Context, a *Adapter, email, password string) error {
	if email == "" {
		email = DefaultAdminEmail
	}
	if password == "" {
		password = DefaultAdminPassword
	}

	existing, err := a.FindUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("checking for admin user: %w", err)
	}
	if existing != nil {
		slog.Info("admin user already exists, skipping seed")
		return nil
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	user, err := a.CreateUser(ctx, model.User{
		Name:         DefaultAdminName,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         model.RoleAdmin,
	})
	if err != nil {
		return fmt.Errorf("creating admin user: %w", err)
	}

	slog.Info("created admin user", "id", user.ID, "email", user.Email)
	return nil
}

type sampleNewsletter struct {
	title     string
	excerpt   string
	markdown  string
	published bool
}

var sampleNewsletters = []sampleNewsletter{
	{
		title:   "Welcome to Our Newsletter!",
		excerpt: "Thank you for subscribing to our newsletter. Here's what you can expect from us.",
		markdown: `# Welcome to Our Newsletter!

We're thrilled to have you as part of our community.

## What We'll Cover

- **Industry Insights**: the latest trends and developments
- **Tips & Tricks**: practical advice you can apply right away
- **Community Highlights**: work from our readers

No spam, just quality information every week.`,
		published: true,
	},
	{
		title:   "Building Scalable APIs",
		excerpt: "Learn how to design and implement APIs that can handle growth and scale effectively.",
		markdown: `# Building Scalable APIs

## Key Principles

1. Design for statelessness
2. Cache frequently accessed data
3. Index the queries you run
4. Rate limit public endpoints

| Concern | Tool |
|---|---|
| Caching | Redis |
| Metrics | Prometheus |`,
		published: true,
	},
	{
		title:   "Upcoming Features Preview",
		excerpt: "A sneak peek at what we're working on next.",
		markdown: `# Upcoming Features Preview

We're working on *scheduled sending* and ~~manual~~ automatic digests.
Stay tuned!`,
		published: false,
	},
}

func seedNewsletters(ctx context.Context, a *Adapter) error {
	existing, err := a.FindAllNewsletters(ctx)
	if err != nil {
		return fmt.Errorf("listing newsletters: %w", err)
	}
	if len(existing) > 0 {
		slog.Info("newsletters already exist, skipping sample content", "count", len(existing))
		return nil
	}

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	for _, s := range sampleNewsletters {
		var buf bytes.Buffer
		if err := md.Convert([]byte(s.markdown), &buf); err != nil {
			return fmt.Errorf("rendering %q: %w", s.title, err)
		}

		n, err := a.CreateNewsletter(ctx, model.NewsletterInput{
			Title:     s.title,
			Content:   buf.String(),
			Excerpt:   s.excerpt,
			Published: s.published,
		})
		if err != nil {
			return fmt.Errorf("creating newsletter %q: %w", s.title, err)
		}
		slog.Info("created sample newsletter", "id", n.ID, "slug", n.Slug)
	}
	return nil
}
