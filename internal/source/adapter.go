// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source implements C5: the contract every concrete literature
// source implements, plus a factory registry external collaborators can
// extend. Adapter is grounded on the teacher's internal/search.Backend
// interface, extended with the page-cursor contract §4.5 requires;
// OpenAlex/arXiv/Semantic Scholar implementations are rewritten from the
// teacher's existing backends, Crossref is new.
package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/litreview/papersearch/pkg/papers"
)

// EndCursor is the sentinel NextCursor value an Adapter returns once a
// query is exhausted.
const EndCursor = "END"

// Query is the source-agnostic search request a worker issues to an
// Adapter. It mirrors §3's QueryIdentity inputs.
type Query struct {
	Text     string
	DateFrom time.Time
	DateTo   time.Time
	Limit    int
}

// Options is the closed, enumerated adapter-configuration map from §6.
// Unknown keys in a caller-supplied map are rejected by ParseOptions
// rather than silently ignored, per spec.md §9's "dynamic option dicts
// → closed enumerated config structs."
type Options struct {
	PageSize       int
	TimeoutSeconds int
	APIKey         string
	PoliteEmail    string
	MaxRetries     int
}

// ParseOptions validates a raw string-keyed config map against the
// recognized option set and returns the typed Options.
func ParseOptions(raw map[string]string) (Options, error) {
	var opts Options
	for k, v := range raw {
		switch k {
		case "page_size":
			n, err := parsePositiveInt(v)
			if err != nil {
				return Options{}, fmt.Errorf("option page_size: %w", err)
			}
			opts.PageSize = n
		case "timeout_seconds":
			n, err := parsePositiveInt(v)
			if err != nil {
				return Options{}, fmt.Errorf("option timeout_seconds: %w", err)
			}
			opts.TimeoutSeconds = n
		case "api_key":
			opts.APIKey = v
		case "polite_email":
			opts.PoliteEmail = v
		case "max_retries":
			n, err := parsePositiveInt(v)
			if err != nil {
				return Options{}, fmt.Errorf("option max_retries: %w", err)
			}
			opts.MaxRetries = n
		default:
			return Options{}, fmt.Errorf("unrecognized adapter option %q", k)
		}
	}
	return opts, nil
}

func parsePositiveInt(v string) (int, error) {
	var n int
	_, err := fmt.Sscanf(v, "%d", &n)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

// Result is one page's worth of adapter output.
type Result struct {
	Papers     []papers.Paper
	NextCursor string
	RawBlob    []byte
}

// Done reports whether this page was the last one, i.e. the adapter has
// nothing further for this query.
func (r Result) Done() bool { return r.NextCursor == "" || r.NextCursor == EndCursor }

// Adapter is the contract every concrete source implements. Per §4.5 an
// Adapter MUST NOT rate-limit or retry internally — C1 and C2 own those
// concerns — and normalizes native fields into the Paper shape (§3)
// before returning.
type Adapter interface {
	Name() string
	Search(ctx context.Context, q Query, cursor string, opts Options) (Result, error)
}

// Factory constructs an Adapter given its configured Options.
type Factory func(Options) Adapter

// Registry maps source name to its Factory. The core ships OpenAlex,
// Semantic Scholar, arXiv, and Crossref (plus PatentsView as a bonus
// fifth source); external collaborators register further sources
// through Register, per §4.5's "new adapters plug in by registering a
// factory keyed by source-name."
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry builds a Registry with the built-in adapters pre-registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("openalex", NewOpenAlex)
	r.Register("semantic_scholar", NewSemanticScholar)
	r.Register("arxiv", NewArxiv)
	r.Register("crossref", NewCrossref)
	r.Register("patentsview", NewPatentsView)
	return r
}

// Register adds or replaces the factory for source.
func (r *Registry) Register(source string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[source] = f
}

// Build constructs the Adapter for source, or an error if no factory is
// registered for it.
func (r *Registry) Build(source string, opts Options) (Adapter, error) {
	r.mu.RLock()
	f, ok := r.factories[source]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("source: no adapter factory registered for %q", source)
	}
	return f(opts), nil
}

// Sources lists every registered source name.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	return out
}
