// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package mail is the outbound e-mail boundary: message type, transports and
// the templates and unsubscribe links used in every newsletter e-mail.
package mail

import "context"

// Message is one e-mail to one recipient. Text and HTML are alternative
// bodies of the same content.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a single message. Implementations must honour ctx
// cancellation and be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Verifier is implemented by senders that can check their configuration
// (reachability, credentials) before a broadcast starts.
type Verifier interface {
	Verify(ctx context.Context) error
}
