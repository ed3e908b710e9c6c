// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package sanitize cleans author-supplied newsletter HTML against an
// allow-list and derives the plain-text alternative sent with every e-mail.
package sanitize

import (
	"strings"

	"github.com/jaytaylor/html2text"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mitchellh/go-wordwrap"
)

// TextWidth is the column at which the plain-text body is wrapped.
const TextWidth = 100

// Allowed elements, attributes and inline style properties.
var (
	allowedElements = []string{
		"h1", "h2", "h3", "h4", "h5", "h6",
		"p", "blockquote", "a", "ul", "ol", "li",
		"em", "strong", "b", "i", "u",
		"img", "br", "span", "div", "hr", "code", "pre",
		"table", "thead", "tbody", "tfoot", "tr", "th", "td", "caption",
	}
	allowedStyles = []string{
		"color", "background-color", "text-align",
		"font-weight", "font-size", "font-family",
		"width", "height", "border", "margin", "padding", "display",
	}
)

// Content is the sanitized form of a newsletter body.
type Content struct {
	HTML string
	Text string
}

// Sanitizer is safe for concurrent use.
type Sanitizer struct {
	policy *bluemonday.Policy
	strict *bluemonday.Policy
}

// New builds the newsletter allow-list policy.
func New() *Sanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements(allowedElements...)

	p.AllowAttrs("href", "name", "target", "rel").OnElements("a")
	p.AllowAttrs("src", "alt", "width", "height").OnElements("img")
	p.AllowAttrs("style", "class").Globally()
	p.AllowStyles(allowedStyles...).MatchingHandler(anyValue).Globally()

	// data: is accepted only as a base64 image source; data: links are dropped.
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(true)
	p.AllowDataURIImages()

	return &Sanitizer{policy: p, strict: bluemonday.StrictPolicy()}
}

func anyValue(string) bool { return true }

// Sanitize strips everything outside the allow-list and renders the result as
// wrapped plain text. It never fails.
func (s *Sanitizer) Sanitize(raw string) Content {
	safe := s.HTML(raw)
	return Content{HTML: safe, Text: s.PlainText(safe)}
}

// HTML returns raw reduced to the allowed elements, attributes and styles.
func (s *Sanitizer) HTML(raw string) string {
	return s.policy.Sanitize(raw)
}

// PlainText converts sanitized HTML to text wrapped at TextWidth columns.
// Entities are decoded, so escaped markup in the HTML reads as literal text.
// If the conversion fails the tags are stripped instead.
func (s *Sanitizer) PlainText(safeHTML string) string {
	text, err := html2text.FromString(safeHTML, html2text.Options{PrettyTables: true})
	if err != nil {
		text = s.strict.Sanitize(safeHTML)
	}
	return wordwrap.WrapString(strings.TrimSpace(text), TextWidth)
}
