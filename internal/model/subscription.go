// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"time"

	"github.com/olegiv/newsletter-go/internal/util"
)

// DefaultSubscriptionSource tags subscriptions created by the public form.
const DefaultSubscriptionSource = "website"

// Subscription is the single row kept per e-mail address. Subscribing and
// unsubscribing toggle Active on that row; it is never deleted.
type Subscription struct {
	ID             string     `json:"id" bson:"-"`
	Email          string     `json:"email" bson:"email"`
	Active         bool       `json:"isActive" bson:"is_active"`
	SubscribedAt   time.Time  `json:"subscribedAt" bson:"subscribed_at"`
	UnsubscribedAt *time.Time `json:"unsubscribedAt" bson:"unsubscribed_at"`
	Source         string     `json:"source" bson:"source"`
	CreatedAt      time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" bson:"updated_at"`
}

// SubscriptionInput carries the fields of a first-time subscription.
type SubscriptionInput struct {
	Email  string `json:"email"`
	Source string `json:"source,omitempty"`
}

// SubscriptionPatch lists the state changes an update may make.
// ClearUnsubscribedAt resets UnsubscribedAt to null and wins over UnsubscribedAt.
type SubscriptionPatch struct {
	Active              *bool
	SubscribedAt        *time.Time
	UnsubscribedAt      *time.Time
	ClearUnsubscribedAt bool
}

// Reactivation returns the patch that re-subscribes an inactive row at now.
func Reactivation(now time.Time) SubscriptionPatch {
	active := true
	return SubscriptionPatch{
		Active:              &active,
		SubscribedAt:        &now,
		ClearUnsubscribedAt: true,
	}
}

// Deactivation returns the patch that unsubscribes an active row at now.
func Deactivation(now time.Time) SubscriptionPatch {
	active := false
	return SubscriptionPatch{
		Active:         &active,
		UnsubscribedAt: &now,
	}
}

// Apply copies the patch onto s in place.
func (p SubscriptionPatch) Apply(s *Subscription) {
	if p.Active != nil {
		s.Active = *p.Active
	}
	if p.SubscribedAt != nil {
		t := *p.SubscribedAt
		s.SubscribedAt = t
	}
	if p.ClearUnsubscribedAt {
		s.UnsubscribedAt = nil
	} else if p.UnsubscribedAt != nil {
		t := *p.UnsubscribedAt
		s.UnsubscribedAt = &t
	}
}

// Validate checks the e-mail format and source length.
func (s *Subscription) Validate() error {
	v := &ValidationError{}
	if !util.IsValidEmail(s.Email) {
		v.Add("email", "Please enter a valid email")
	}
	if len(s.Source) > 100 {
		v.Add("source", "Source is too long")
	}
	return v.OrNil()
}

// Subscriber is the projection of an active subscription used for listings
// and broadcasts.
type Subscriber struct {
	Email        string    `json:"email"`
	SubscribedAt time.Time `json:"subscribedAt"`
}
