// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httpclient builds the *http.Client and request scaffolding
// shared by every source adapter. It is deliberately thin: unlike the
// teacher's internal/httputil, it does not retry — §4.5 requires
// adapters to issue a single request and let the worker (C2) own retry
// and backoff.
package httpclient

import (
	"context"
	"net/http"
	"time"
)

// Options configures a source's HTTP client.
type Options struct {
	Timeout   time.Duration
	UserAgent string
}

// DefaultTimeout is the per-request timeout used when a source does not
// override it (§5's default of 30s).
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent identifies this module's requests to polite-pool
// aware APIs.
const DefaultUserAgent = "papersearch/1.0 (+https://github.com/litreview/papersearch)"

// New builds an *http.Client with Opts.Timeout (or DefaultTimeout).
func New(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// NewRequest builds a GET request against url carrying the configured
// User-Agent, ready for a single attempt by the caller.
func NewRequest(ctx context.Context, opts Options, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	return req, nil
}
