// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package model defines the newsletter domain entities (User, Newsletter,
// Subscription), their patches, and entity validation.
package model

import (
	"time"

	"github.com/olegiv/newsletter-go/internal/util"
)

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User name bounds.
const (
	UserNameMin = 2
	UserNameMax = 100
)

// User represents an account that can sign in to the admin API.
// ID is engine-neutral; it is never persisted under the "id" key by the
// document backend, which maps it from its native identity instead.
type User struct {
	ID           string    `json:"id" bson:"-"`
	Name         string    `json:"name" bson:"name"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"password"` // Never expose in JSON
	Role         string    `json:"role" bson:"role"`
	Active       bool      `json:"isActive" bson:"is_active"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updated_at"`
}

// IsAdmin returns true if the user has admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Validate checks required fields, length bounds, e-mail format and role.
func (u *User) Validate() error {
	v := &ValidationError{}
	checkLength(v, "name", u.Name, UserNameMin, UserNameMax, "Name")
	if !util.IsValidEmail(u.Email) {
		v.Add("email", "Please enter a valid email")
	}
	if u.PasswordHash == "" {
		v.Add("password", "Password is required")
	}
	if u.Role != RoleUser && u.Role != RoleAdmin {
		v.Add("role", "Role must be user or admin")
	}
	return v.OrNil()
}
