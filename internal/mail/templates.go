// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	texttemplate "text/template"
)

//go:embed templates
var templateFS embed.FS

var (
	htmlTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt"))
)

// NewsletterData is the per-recipient input of the newsletter template.
type NewsletterData struct {
	Title          string
	Excerpt        string
	Email          string
	UnsubscribeURL string
	// HTML is the sanitized newsletter body, inserted unescaped.
	HTML string
	// Text is the plain-text rendering of HTML.
	Text string
}

// Body returns the sanitized HTML for insertion into the template.
func (d NewsletterData) Body() template.HTML {
	return template.HTML(d.HTML) //nolint:gosec // sanitized by the caller
}

// RenderNewsletter builds the e-mail for one recipient.
func RenderNewsletter(d NewsletterData) (Message, error) {
	return render("newsletter", d.Email, d.Title, d)
}

// WelcomeData is the input of the welcome template.
type WelcomeData struct {
	Email          string
	UnsubscribeURL string
}

// WelcomeSubject is the subject line of the welcome e-mail.
const WelcomeSubject = "Welcome to our newsletter"

// RenderWelcome builds the welcome e-mail sent after subscribing.
func RenderWelcome(d WelcomeData) (Message, error) {
	return render("welcome", d.Email, WelcomeSubject, d)
}

func render(name, to, subject string, data any) (Message, error) {
	var htmlBuf, textBuf bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&htmlBuf, name+".html", data); err != nil {
		return Message{}, fmt.Errorf("rendering %s html: %w", name, err)
	}
	if err := textTemplates.ExecuteTemplate(&textBuf, name+".txt", data); err != nil {
		return Message{}, fmt.Errorf("rendering %s text: %w", name, err)
	}
	return Message{
		To:      to,
		Subject: subject,
		HTML:    htmlBuf.String(),
		Text:    textBuf.String(),
	}, nil
}
