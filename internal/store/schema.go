// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"slices"
	"time"

	"github.com/olegiv/newsletter-go/internal/model"
)

// Storage names shared by every engine.
const (
	usersTable         = "users"
	newslettersTable   = "newsletters"
	subscriptionsTable = "subscriptions"
)

// schema describes how one entity maps onto a table or collection. Column
// names equal the bson field names of the entity, so a Query is valid on both
// engines. The identity column is handled separately.
type schema[T any] struct {
	name    string
	columns []string
	// values returns the column values of v in column order.
	values func(v *T) []any
	// targets returns scan destinations for the columns in column order.
	targets func(v *T) []any
	id      func(v *T) *string
}

func (s schema[T]) hasColumn(name string) bool {
	return name == "id" || slices.Contains(s.columns, name)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

var userSchema = schema[model.User]{
	name:    usersTable,
	columns: []string{"name", "email", "password", "role", "is_active", "created_at", "updated_at"},
	values: func(u *model.User) []any {
		return []any{u.Name, u.Email, u.PasswordHash, u.Role, u.Active, u.CreatedAt, u.UpdatedAt}
	},
	targets: func(u *model.User) []any {
		return []any{&u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt}
	},
	id: func(u *model.User) *string { return &u.ID },
}

var newsletterSchema = schema[model.Newsletter]{
	name:    newslettersTable,
	columns: []string{"title", "content", "excerpt", "published", "published_at", "slug", "created_at", "updated_at"},
	values: func(n *model.Newsletter) []any {
		return []any{n.Title, n.Content, n.Excerpt, n.Published, nullTime(n.PublishedAt), n.Slug, n.CreatedAt, n.UpdatedAt}
	},
	targets: func(n *model.Newsletter) []any {
		return []any{&n.Title, &n.Content, &n.Excerpt, &n.Published, &n.PublishedAt, &n.Slug, &n.CreatedAt, &n.UpdatedAt}
	},
	id: func(n *model.Newsletter) *string { return &n.ID },
}

var subscriptionSchema = schema[model.Subscription]{
	name:    subscriptionsTable,
	columns: []string{"email", "is_active", "subscribed_at", "unsubscribed_at", "source", "created_at", "updated_at"},
	values: func(s *model.Subscription) []any {
		return []any{s.Email, s.Active, s.SubscribedAt, nullTime(s.UnsubscribedAt), s.Source, s.CreatedAt, s.UpdatedAt}
	},
	targets: func(s *model.Subscription) []any {
		return []any{&s.Email, &s.Active, &s.SubscribedAt, &s.UnsubscribedAt, &s.Source, &s.CreatedAt, &s.UpdatedAt}
	},
	id: func(s *model.Subscription) *string { return &s.ID },
}
