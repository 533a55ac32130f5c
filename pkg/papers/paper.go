// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package papers defines the bibliographic record types shared by the
// cache, adapters, and deduplicator: Paper, Author, Provenance, Reference,
// and DuplicateCluster.
package papers

import (
	"fmt"
	"time"
)

// Author is one contributor to a Paper.
type Author struct {
	Surname string `json:"surname"`
	Given   string `json:"given"`
	ORCID   string `json:"orcid,omitempty"`
}

// Provenance records where and how a Paper was retrieved.
type Provenance struct {
	Source      string    `json:"source"`
	Query       string    `json:"query"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// Paper is the canonical bibliographic record produced by a source
// adapter and consumed by the cache and deduplicator.
//
// Invariant: at least one of DOI, ArxivID, or (Title, Year) must be set;
// New rejects a record that satisfies none of these.
type Paper struct {
	PaperID    string            `json:"paper_id"`
	DOI        string            `json:"doi,omitempty"`
	ArxivID    string            `json:"arxiv_id,omitempty"`
	Title      string            `json:"title"`
	TitleHash  string            `json:"title_hash,omitempty"`
	Authors    []Author          `json:"authors,omitempty"`
	Year       int               `json:"year,omitempty"`
	Venue      string            `json:"venue,omitempty"`
	Abstract   string            `json:"abstract,omitempty"`
	Keywords   []string          `json:"keywords,omitempty"`
	Fields     []string          `json:"fields,omitempty"`
	Citations  int               `json:"citations,omitempty"`
	OAPdfURL   string            `json:"oa_pdf_url,omitempty"`
	ExternalID map[string]string `json:"external_ids,omitempty"`
	Provenance Provenance        `json:"provenance"`
}

// Valid reports whether p satisfies the "identifiable record" invariant:
// at least one of DOI, ArxivID, or (Title, Year) must be present.
func (p Paper) Valid() bool {
	if p.DOI != "" || p.ArxivID != "" {
		return true
	}
	return p.Title != "" && p.Year != 0
}

// New constructs a Paper after validating it, mirroring the source's
// constructor-time validation for records (see spec's design notes on
// validated record types).
func New(p Paper) (Paper, error) {
	if !p.Valid() {
		return Paper{}, fmt.Errorf("papers: record rejected: needs DOI, arXiv id, or (title, year): %q", p.Title)
	}
	return p, nil
}

// CompletenessScore counts non-empty metadata fields used by the
// deduplicator's canonical-selection tuple.
func (p Paper) CompletenessScore() int {
	score := 0
	if p.Abstract != "" {
		score++
	}
	if p.Venue != "" {
		score++
	}
	if len(p.Authors) > 0 {
		score++
	}
	if p.Year != 0 {
		score++
	}
	if p.OAPdfURL != "" {
		score++
	}
	if len(p.Fields) > 0 {
		score++
	}
	return score
}

// Reference is a citation relationship used only as deduplicator input
// when citation-based enrichment is active (enrichment logic itself is
// out of scope).
type Reference struct {
	CitedDOI string `json:"cited_doi,omitempty"`
	Year     int    `json:"year,omitempty"`
}

// MatchKind identifies which deduplication pass produced a cluster.
type MatchKind string

const (
	MatchDOI        MatchKind = "doi"
	MatchArxiv      MatchKind = "arxiv"
	MatchFuzzyTitle MatchKind = "fuzzy-title"
)

// DuplicateCluster groups paper IDs judged to be the same work.
//
// Invariant: every cluster contains its canonical member; the union of
// all clusters' members partitions the deduplicator's input set.
type DuplicateCluster struct {
	CanonicalID string    `json:"canonical_id"`
	DuplicateID []string  `json:"duplicate_ids"`
	Kind        MatchKind `json:"match_kind"`
	Confidence  float64   `json:"confidence"`
}

// Members returns the canonical id followed by every duplicate id.
func (c DuplicateCluster) Members() []string {
	out := make([]string, 0, len(c.DuplicateID)+1)
	out = append(out, c.CanonicalID)
	out = append(out, c.DuplicateID...)
	return out
}
