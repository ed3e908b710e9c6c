// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"time"

	"github.com/olegiv/newsletter-go/internal/util"
)

// Newsletter field bounds. The excerpt limit is 200 on every backend.
const (
	TitleMaxLength   = 200
	ExcerptMaxLength = 200
)

// Newsletter is an authored issue. Slug is derived from Title on first save and
// PublishedAt is set on the first transition of Published to true.
type Newsletter struct {
	ID          string     `json:"id" bson:"-"`
	Title       string     `json:"title" bson:"title"`
	Content     string     `json:"content" bson:"content"`
	Excerpt     string     `json:"excerpt" bson:"excerpt"`
	Published   bool       `json:"published" bson:"published"`
	PublishedAt *time.Time `json:"publishedAt" bson:"published_at"`
	Slug        string     `json:"slug,omitempty" bson:"slug,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" bson:"updated_at"`
}

// NewsletterInput carries the author-supplied fields of a new newsletter.
type NewsletterInput struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Excerpt   string `json:"excerpt"`
	Published bool   `json:"published"`
}

// NewsletterPatch lists the fields an update may change. Nil means unchanged.
type NewsletterPatch struct {
	Title     *string `json:"title"`
	Content   *string `json:"content"`
	Excerpt   *string `json:"excerpt"`
	Published *bool   `json:"published"`
}

// IsEmpty reports whether the patch changes nothing.
func (p NewsletterPatch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && p.Excerpt == nil && p.Published == nil
}

// Apply copies the patch onto n in place.
func (p NewsletterPatch) Apply(n *Newsletter) {
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Content != nil {
		n.Content = *p.Content
	}
	if p.Excerpt != nil {
		n.Excerpt = *p.Excerpt
	}
	if p.Published != nil {
		n.Published = *p.Published
	}
}

// Validate checks title, content and excerpt bounds. The slug must be
// derivable: a title without any letter or digit is rejected.
func (n *Newsletter) Validate() error {
	v := &ValidationError{}
	checkLength(v, "title", n.Title, 1, TitleMaxLength, "Title")
	checkLength(v, "content", n.Content, 1, 0, "Content")
	checkLength(v, "excerpt", n.Excerpt, 1, ExcerptMaxLength, "Excerpt")
	if _, bad := v.Fields["title"]; !bad && !util.IsValidSlug(util.Slugify(n.Title)) {
		v.Add("title", "Title must contain at least one letter or digit")
	}
	return v.OrNil()
}
