// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ratelimit implements C1: a token bucket per source that gates
// adapter calls. It wraps golang.org/x/time/rate — the same primitive
// matsen-bipartite's internal/asta/client.go uses for a fixed-rate API
// client — generalized into a per-source Registry with a ResetAfter
// operation the bare rate.Limiter does not expose.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config is a source's token-bucket parameterization.
type Config struct {
	RatePerSecond float64
	Burst         int
}

// Defaults are spec.md §4.1's illustrative per-source settings.
var Defaults = map[string]Config{
	"openalex":          {RatePerSecond: 10, Burst: 15},
	"semantic_scholar":  {RatePerSecond: 1.0, Burst: 3},
	"arxiv":             {RatePerSecond: 0.33, Burst: 1},
	"crossref":          {RatePerSecond: 50, Burst: 100},
}

// Limiter gates calls for a single source. It adds a ResetAfter
// operation on top of rate.Limiter to support the 429 "don't grant any
// token again until the server-given hint has elapsed" contract.
type Limiter struct {
	mu       sync.Mutex
	lim      *rate.Limiter
	resumeAt time.Time
}

// NewLimiter builds a Limiter from a token-bucket Config.
func NewLimiter(cfg Config) *Limiter {
	return &Limiter{lim: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)}
}

// Acquire blocks until one token is available or ctx is done. If a
// prior ResetAfter set a resume point still in the future, Acquire
// waits for it before consulting the token bucket at all — rate.Limiter
// itself has no notion of "blocked regardless of burst," so the resume
// point is tracked here instead of pushed into its Limit/Burst fields.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	resumeAt := l.resumeAt
	lim := l.lim
	l.mu.Unlock()

	if wait := time.Until(resumeAt); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lim.Wait(ctx)
}

// ResetAfter prevents any token from being granted again until
// retryAfter has elapsed, matching the "server told us to back off"
// semantics of a 429 response (§4.1). A later call with a shorter
// retryAfter never shortens an already-scheduled resume point.
func (l *Limiter) ResetAfter(retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	resumeAt := time.Now().Add(retryAfter)
	if resumeAt.After(l.resumeAt) {
		l.resumeAt = resumeAt
	}
}

// Registry maps source name to its Limiter. A Registry is constructed
// per-manager-instance (not a package-level singleton) so tests can
// achieve isolation, per spec.md §9's note on module-level singletons.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	configs  map[string]Config
}

// NewRegistry builds a Registry pre-populated with Defaults, overridden
// by any entries in overrides.
func NewRegistry(overrides map[string]Config) *Registry {
	configs := make(map[string]Config, len(Defaults))
	for k, v := range Defaults {
		configs[k] = v
	}
	for k, v := range overrides {
		configs[k] = v
	}
	return &Registry{
		limiters: make(map[string]*Limiter),
		configs:  configs,
	}
}

// For returns the Limiter for source, constructing one from its
// configured (or a conservative fallback) Config on first use.
func (r *Registry) For(source string) *Limiter {
	r.mu.RLock()
	lim, ok := r.limiters[source]
	r.mu.RUnlock()
	if ok {
		return lim
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if lim, ok := r.limiters[source]; ok {
		return lim
	}
	cfg, ok := r.configs[source]
	if !ok {
		cfg = Config{RatePerSecond: 1, Burst: 1}
	}
	lim = NewLimiter(cfg)
	r.limiters[source] = lim
	return lim
}
