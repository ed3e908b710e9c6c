// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package mail

import (
	"context"
	"log/slog"
)

// LogSender logs messages instead of delivering them. Used when no SMTP host
// is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a sender that writes to logger.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the message envelope.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("email not sent (no smtp configured)",
		"to", msg.To,
		"subject", msg.Subject,
		"text_bytes", len(msg.Text),
		"html_bytes", len(msg.HTML),
	)
	return nil
}
