// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package captcha verifies the challenge answer sent with a public
// subscription request.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Provider names accepted by New.
const (
	ProviderNone        = "none"
	ProviderOpenCaptcha = "opencaptcha"
	ProviderHCaptcha    = "hcaptcha"
)

const (
	// hCaptcha verification endpoint
	hcaptchaVerifyURL = "https://api.hcaptcha.com/siteverify"
	verifyTimeout     = 10 * time.Second
)

// Verifier checks a captcha answer. A false result with a nil error means
// the answer was wrong; an error means the check itself could not be made.
type Verifier interface {
	Verify(ctx context.Context, captchaID, input string) (bool, error)
}

// New returns the verifier for provider. An empty provider means none.
func New(provider, hcaptchaSecret string) (Verifier, error) {
	switch strings.ToLower(provider) {
	case "", ProviderNone:
		return Disabled{}, nil
	case ProviderOpenCaptcha:
		return OpenCaptcha{}, nil
	case ProviderHCaptcha:
		if hcaptchaSecret == "" {
			return nil, fmt.Errorf("captcha: hcaptcha requires a secret key")
		}
		return NewHCaptcha(hcaptchaSecret), nil
	default:
		return nil, fmt.Errorf("captcha: unknown provider %q", provider)
	}
}

// Disabled accepts every answer.
type Disabled struct{}

// Verify implements Verifier.
func (Disabled) Verify(context.Context, string, string) (bool, error) { return true, nil }

// OpenCaptcha checks answers to OpenCaptcha image challenges. The image shows
// the challenge id itself, so a correct answer repeats the id exactly.
type OpenCaptcha struct{}

// Verify implements Verifier.
func (OpenCaptcha) Verify(_ context.Context, captchaID, input string) (bool, error) {
	if captchaID == "" || input == "" || len(captchaID) != 8 {
		return false, nil
	}
	for _, c := range captchaID {
		if !isAlphanumeric(c) {
			return false, nil
		}
	}
	return input == captchaID, nil
}

func isAlphanumeric(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// HCaptcha verifies h-captcha-response tokens with the hCaptcha API.
type HCaptcha struct {
	secret   string
	endpoint string
	client   *http.Client
}

// NewHCaptcha creates an hCaptcha verifier using secret.
func NewHCaptcha(secret string) *HCaptcha {
	return &HCaptcha{
		secret:   secret,
		endpoint: hcaptchaVerifyURL,
		client:   &http.Client{Timeout: verifyTimeout},
	}
}

type hcaptchaResponse struct {
	Success    bool     `json:"success"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify implements Verifier. input is the response token; captchaID is
// passed as the client IP when it is set.
func (h *HCaptcha) Verify(ctx context.Context, captchaID, input string) (bool, error) {
	if input == "" {
		return false, nil
	}

	data := url.Values{}
	data.Set("secret", h.secret)
	data.Set("response", input)
	if captchaID != "" {
		data.Set("remoteip", captchaID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return false, fmt.Errorf("captcha: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("captcha: verification request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("captcha: unexpected status %d", resp.StatusCode)
	}

	var result hcaptchaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("captcha: parsing response: %w", err)
	}
	return result.Success, nil
}
