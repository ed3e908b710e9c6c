// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"strings"
	"time"

	"github.com/olegiv/newsletter-go/internal/model"
	"github.com/olegiv/newsletter-go/internal/util"
)

// Adapter is the database adapter used by handlers and services. Every
// operation behaves the same whichever Backend it wraps.
type Adapter struct {
	backend Backend
	now     func() time.Time
}

// NewAdapter wraps an opened backend.
func NewAdapter(b Backend) *Adapter {
	return &Adapter{backend: b, now: defaultNow}
}

// Times are kept in UTC at millisecond precision, the coarsest resolution of
// the supported engines, so values round-trip unchanged.
func defaultNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// SetClock replaces the time source. Intended for tests.
func (a *Adapter) SetClock(now func() time.Time) {
	a.now = now
}

// Engine returns the name of the underlying engine.
func (a *Adapter) Engine() string { return a.backend.Engine() }

// Ping reports ErrUnavailable when the store cannot be reached.
func (a *Adapter) Ping(ctx context.Context) error { return a.backend.Ping(ctx) }

// Close releases the underlying connection.
func (a *Adapter) Close(ctx context.Context) error { return a.backend.Close(ctx) }

// CreateUser validates and stores a new user. u.PasswordHash must already be
// hashed. The returned user has no password hash.
func (a *Adapter) CreateUser(ctx context.Context, u model.User) (*model.User, error) {
	u.Email = util.NormalizeEmail(u.Email)
	u.Name = strings.TrimSpace(u.Name)
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	u.Active = true
	if err := u.Validate(); err != nil {
		return nil, err
	}

	now := a.now()
	u.CreatedAt, u.UpdatedAt = now, now
	if err := a.backend.Users().Insert(ctx, &u); err != nil {
		return nil, err
	}
	u.PasswordHash = ""
	return &u, nil
}

// FindUserByEmail returns the user including its password hash, for sign-in.
func (a *Adapter) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return a.backend.Users().FindOne(ctx, Query{Where: []Cond{Eq("email", util.NormalizeEmail(email))}})
}

// FindUserByID returns the user without its password hash.
func (a *Adapter) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := a.backend.Users().FindByID(ctx, id)
	if u != nil {
		u.PasswordHash = ""
	}
	return u, err
}

// FindPublishedNewsletters lists published newsletters, newest publication first.
func (a *Adapter) FindPublishedNewsletters(ctx context.Context) ([]model.Newsletter, error) {
	return a.backend.Newsletters().Find(ctx, Query{
		Where: []Cond{Eq("published", true)},
		Sort:  "published_at",
		Desc:  true,
	})
}

// FindNewsletterByID returns the newsletter only if it is published.
func (a *Adapter) FindNewsletterByID(ctx context.Context, id string) (*model.Newsletter, error) {
	n, err := a.backend.Newsletters().FindByID(ctx, id)
	if err != nil || n == nil || !n.Published {
		return nil, err
	}
	return n, nil
}

// FindNewsletterByIDForUpdate returns the newsletter in any state.
func (a *Adapter) FindNewsletterByIDForUpdate(ctx context.Context, id string) (*model.Newsletter, error) {
	return a.backend.Newsletters().FindByID(ctx, id)
}

// FindAllNewsletters lists every newsletter, newest first.
func (a *Adapter) FindAllNewsletters(ctx context.Context) ([]model.Newsletter, error) {
	return a.backend.Newsletters().Find(ctx, Query{Sort: "created_at", Desc: true})
}

// CreateNewsletter validates and stores a newsletter. The slug is derived from
// the title; a duplicate slug is reported as ErrConflict.
func (a *Adapter) CreateNewsletter(ctx context.Context, in model.NewsletterInput) (*model.Newsletter, error) {
	n := model.Newsletter{
		Title:     strings.TrimSpace(in.Title),
		Content:   in.Content,
		Excerpt:   strings.TrimSpace(in.Excerpt),
		Published: in.Published,
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}

	now := a.now()
	n.Slug = util.Slugify(n.Title)
	n.CreatedAt, n.UpdatedAt = now, now
	if n.Published {
		n.PublishedAt = &now
	}
	if err := a.backend.Newsletters().Insert(ctx, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// UpdateNewsletter applies patch and returns the updated record, or nil when
// no newsletter has that id. The slug never changes; PublishedAt is set on the
// first transition to published and kept afterwards.
func (a *Adapter) UpdateNewsletter(ctx context.Context, id string, patch model.NewsletterPatch) (*model.Newsletter, error) {
	repo := a.backend.Newsletters()
	n, err := repo.FindByID(ctx, id)
	if err != nil || n == nil {
		return nil, err
	}

	patch.Apply(n)
	n.Title = strings.TrimSpace(n.Title)
	n.Excerpt = strings.TrimSpace(n.Excerpt)
	if err := n.Validate(); err != nil {
		return nil, err
	}

	now := a.now()
	if n.Published && n.PublishedAt == nil {
		n.PublishedAt = &now
	}
	n.UpdatedAt = now

	ok, err := repo.Update(ctx, n)
	if err != nil || !ok {
		return nil, err
	}
	return n, nil
}

// DeleteNewsletter removes a newsletter, reporting false if it did not exist.
func (a *Adapter) DeleteNewsletter(ctx context.Context, id string) (bool, error) {
	return a.backend.Newsletters().Delete(ctx, id)
}

// FindSubscriptionByEmail returns the subscription for email in any state.
func (a *Adapter) FindSubscriptionByEmail(ctx context.Context, email string) (*model.Subscription, error) {
	return a.backend.Subscriptions().FindOne(ctx, Query{Where: []Cond{Eq("email", util.NormalizeEmail(email))}})
}

// CreateSubscription stores a new active subscription. An existing row for the
// same e-mail is reported as ErrConflict.
func (a *Adapter) CreateSubscription(ctx context.Context, in model.SubscriptionInput) (*model.Subscription, error) {
	now := a.now()
	s := model.Subscription{
		Email:        util.NormalizeEmail(in.Email),
		Active:       true,
		SubscribedAt: now,
		Source:       strings.TrimSpace(in.Source),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if s.Source == "" {
		s.Source = model.DefaultSubscriptionSource
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := a.backend.Subscriptions().Insert(ctx, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSubscription applies patch to an existing subscription and persists it.
// ErrNotFound is returned if the record was removed in the meantime.
func (a *Adapter) UpdateSubscription(ctx context.Context, existing *model.Subscription, patch model.SubscriptionPatch) (*model.Subscription, error) {
	s := *existing
	patch.Apply(&s)
	s.UpdatedAt = a.now()

	ok, err := a.backend.Subscriptions().Update(ctx, &s)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// FindActiveSubscriptions lists active subscribers, most recent first.
func (a *Adapter) FindActiveSubscriptions(ctx context.Context) ([]model.Subscriber, error) {
	subs, err := a.backend.Subscriptions().Find(ctx, Query{
		Where: []Cond{Eq("is_active", true)},
		Sort:  "subscribed_at",
		Desc:  true,
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.Subscriber, len(subs))
	for i, s := range subs {
		out[i] = model.Subscriber{Email: s.Email, SubscribedAt: s.SubscribedAt}
	}
	return out, nil
}
