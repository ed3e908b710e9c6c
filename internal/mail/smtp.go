// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPConfig holds the SMTP transport settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	// InsecureSkipVerify disables TLS certificate checks, for local relays.
	InsecureSkipVerify bool
}

// SMTPSender delivers messages through an SMTP server. Each Send opens its own
// connection, so concurrent sends do not share state.
type SMTPSender struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
}

// NewSMTPSender creates an SMTP sender. Host and From are required.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("mail: smtp host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("mail: from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.InsecureSkipVerify {
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true, ServerName: cfg.Host} //nolint:gosec // opt-in for local relays
	}
	return &SMTPSender{cfg: cfg, dialer: d}, nil
}

// Send delivers msg. gomail has no context support, so a cancelled ctx
// abandons the wait; the connection attempt finishes in the background.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := s.build(msg)
	return s.run(ctx, func() error { return s.dialer.DialAndSend(m) })
}

// Verify connects and authenticates without sending anything.
func (s *SMTPSender) Verify(ctx context.Context) error {
	return s.run(ctx, func() error {
		c, err := s.dialer.Dial()
		if err != nil {
			return err
		}
		return c.Close()
	})
}

func (s *SMTPSender) build(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.cfg.From, s.cfg.FromName))
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}
	return m
}

func (s *SMTPSender) run(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
