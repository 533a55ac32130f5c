// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"net/http"
	"strconv"
	"time"
)

// httpclientDoer is the minimal seam each adapter calls through, so
// tests can substitute a recording or failing client without reaching
// into package internals.
type httpclientDoer struct {
	c *http.Client
}

func (d *httpclientDoer) do(req *http.Request) (*http.Response, error) {
	return d.c.Do(req)
}

func timeoutFrom(opts Options) time.Duration {
	if opts.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(opts.TimeoutSeconds) * time.Second
}

// retryAfterOf parses a Retry-After header (seconds form) off resp, or
// zero if absent/unparseable.
func retryAfterOf(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	secs, err := strconv.Atoi(h)
	if err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}
