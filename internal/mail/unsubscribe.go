// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package mail

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// UnsubscribePath is the API route that handles signed unsubscribe links.
const UnsubscribePath = "/api/subscriptions/unsubscribe"

// LinkSigner creates and checks one-click unsubscribe links. The token is an
// HMAC-SHA256 of the normalized e-mail, so links never expire.
type LinkSigner struct {
	baseURL string
	secret  []byte
}

// NewLinkSigner creates a signer for links under baseURL.
func NewLinkSigner(baseURL, secret string) *LinkSigner {
	return &LinkSigner{baseURL: strings.TrimRight(baseURL, "/"), secret: []byte(secret)}
}

// Token returns the signature for email.
func (s *LinkSigner) Token(email string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte("unsubscribe:" + strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether token was issued for email.
func (s *LinkSigner) Verify(email, token string) bool {
	return hmac.Equal([]byte(token), []byte(s.Token(email)))
}

// URL returns the signed unsubscribe link for email.
func (s *LinkSigner) URL(email string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", s.Token(email))
	return s.baseURL + UnsubscribePath + "?" + q.Encode()
}
