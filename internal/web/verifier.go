// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resetgate Contributors

package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Verifier validates a human-verification widget response. The widget
// itself lives in the presentation layer; the workflow only ever sees
// the resulting boolean.
type Verifier interface {
	Verify(ctx context.Context, response string) bool
}

// StaticVerifier answers every verification with a fixed result. Used
// when no captcha is configured.
type StaticVerifier struct {
	Result bool
}

// Verify implements Verifier.
func (v StaticVerifier) Verify(_ context.Context, _ string) bool {
	return v.Result
}

// HTTPVerifier checks widget responses against a siteverify-style
// endpoint: a form POST with the shared secret and the response,
// answered with {"success": <bool>}.
type HTTPVerifier struct {
	endpoint string
	secret   string
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPVerifier creates an HTTPVerifier.
func NewHTTPVerifier(endpoint, secret string, logger *slog.Logger) (*HTTPVerifier, error) {
	if endpoint == "" {
		return nil, oops.Errorf("verify endpoint is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPVerifier{
		endpoint: endpoint,
		secret:   secret,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}, nil
}

// Verify implements Verifier. Verification failures and endpoint errors
// both count as not verified.
func (v *HTTPVerifier) Verify(ctx context.Context, response string) bool {
	if response == "" {
		return false
	}

	form := url.Values{
		"secret":   {v.secret},
		"response": {response},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		v.logger.Error("building verification request", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Error("verification endpoint unreachable", "error", err)
		return false
	}
	defer resp.Body.Close() //nolint:errcheck // body close failure is harmless here

	var result struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		v.logger.Error("decoding verification response", "error", err)
		return false
	}
	return result.Success
}
