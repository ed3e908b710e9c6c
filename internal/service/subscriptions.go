// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/olegiv/newsletter-go/internal/mail"
	"github.com/olegiv/newsletter-go/internal/model"
	"github.com/olegiv/newsletter-go/internal/store"
	"github.com/olegiv/newsletter-go/internal/util"
)

// welcomeTimeout bounds the optional welcome e-mail.
const welcomeTimeout = 10 * time.Second

// SubscriptionStore is the part of the database adapter used for subscriptions.
type SubscriptionStore interface {
	FindSubscriptionByEmail(ctx context.Context, email string) (*model.Subscription, error)
	CreateSubscription(ctx context.Context, in model.SubscriptionInput) (*model.Subscription, error)
	UpdateSubscription(ctx context.Context, existing *model.Subscription, patch model.SubscriptionPatch) (*model.Subscription, error)
	FindActiveSubscriptions(ctx context.Context) ([]model.Subscriber, error)
}

// Status is the public subscription state of an address.
type Status struct {
	IsSubscribed bool       `json:"isSubscribed"`
	SubscribedAt *time.Time `json:"subscribedAt,omitempty"`
}

// SubscriptionService implements subscribe, unsubscribe and status.
type SubscriptionService struct {
	store   SubscriptionStore
	sender  mail.Sender
	links   *mail.LinkSigner
	welcome bool
	logger  *slog.Logger
	now     func() time.Time
}

// SubscriptionOptions configures the optional welcome e-mail.
type SubscriptionOptions struct {
	Sender mail.Sender
	Links  *mail.LinkSigner
	// Welcome enables the welcome e-mail after a (re)subscription.
	Welcome bool
}

// NewSubscriptionService creates a SubscriptionService.
func NewSubscriptionService(st SubscriptionStore, opts SubscriptionOptions, logger *slog.Logger) *SubscriptionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionService{
		store:   st,
		sender:  opts.Sender,
		links:   opts.Links,
		welcome: opts.Welcome && opts.Sender != nil && opts.Links != nil,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// Subscribe activates email. An active subscription is reported as
// store.ErrConflict; an inactive one is reactivated in place.
func (s *SubscriptionService) Subscribe(ctx context.Context, email, source string) (*model.Subscription, error) {
	email, err := checkEmail(email)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.FindSubscriptionByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	var sub *model.Subscription
	switch {
	case existing != nil && existing.Active:
		return nil, fmt.Errorf("email already subscribed: %w", store.ErrConflict)
	case existing != nil:
		sub, err = s.store.UpdateSubscription(ctx, existing, model.Reactivation(s.now()))
	default:
		sub, err = s.store.CreateSubscription(ctx, model.SubscriptionInput{Email: email, Source: source})
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscribed", "email", sub.Email, "reactivated", existing != nil)
	s.sendWelcome(ctx, sub.Email)
	return sub, nil
}

// Unsubscribe deactivates email. A missing or already inactive subscription
// is reported as store.ErrNotFound.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, email string) (*model.Subscription, error) {
	email, err := checkEmail(email)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.FindSubscriptionByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing == nil || !existing.Active {
		return nil, store.ErrNotFound
	}

	sub, err := s.store.UpdateSubscription(ctx, existing, model.Deactivation(s.now()))
	if err != nil {
		return nil, err
	}
	s.logger.Info("unsubscribed", "email", sub.Email)
	return sub, nil
}

// Status reports whether email is subscribed.
func (s *SubscriptionService) Status(ctx context.Context, email string) (Status, error) {
	sub, err := s.store.FindSubscriptionByEmail(ctx, util.NormalizeEmail(email))
	if err != nil || sub == nil {
		return Status{}, err
	}
	at := sub.SubscribedAt
	return Status{IsSubscribed: sub.Active, SubscribedAt: &at}, nil
}

// ActiveSubscribers lists active subscribers, most recent first.
func (s *SubscriptionService) ActiveSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	return s.store.FindActiveSubscriptions(ctx)
}

// sendWelcome mails the welcome message. Failures are logged only.
func (s *SubscriptionService) sendWelcome(ctx context.Context, email string) {
	if !s.welcome {
		return
	}

	msg, err := mail.RenderWelcome(mail.WelcomeData{Email: email, UnsubscribeURL: s.links.URL(email)})
	if err != nil {
		s.logger.Error("rendering welcome email", "error", err)
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), welcomeTimeout)
	defer cancel()
	if err := s.sender.Send(sendCtx, msg); err != nil {
		s.logger.Warn("welcome email failed", "email", email, "error", err)
	}
}

func checkEmail(email string) (string, error) {
	email = util.NormalizeEmail(email)
	if !util.IsValidEmail(email) {
		v := &model.ValidationError{}
		v.Add("email", "Please enter a valid email")
		return "", v
	}
	return email, nil
}
