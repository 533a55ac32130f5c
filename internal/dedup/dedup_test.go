// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litreview/papersearch/pkg/papers"
)

func withRetrievedAt(p papers.Paper, t time.Time) papers.Paper {
	p.Provenance.RetrievedAt = t
	return p
}

func TestDeduplicateExactDOIMatch(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	input := []papers.Paper{
		withRetrievedAt(papers.Paper{PaperID: "a1", DOI: "10.1000/xyz123", Title: "Attention", Year: 2017, Citations: 100}, base),
		withRetrievedAt(papers.Paper{PaperID: "a2", DOI: "https://doi.org/10.1000/XYZ123", Title: "Attention Is All You Need", Year: 2017, Citations: 9000}, base.Add(time.Hour)),
	}

	res := Deduplicate(input, Config{})
	require.Len(t, res.Clusters, 1)
	assert.Equal(t, papers.MatchDOI, res.Clusters[0].Kind)
	assert.Equal(t, 1.0, res.Clusters[0].Confidence)
	assert.Len(t, res.Canonical, 1)
	assert.Equal(t, 9000, res.Canonical[0].Citations, "merge must keep the max citation count across the cluster")
	assert.Equal(t, res.PaperToCanonical["a1"], res.PaperToCanonical["a2"])
}

func TestDeduplicateExactArxivMatch(t *testing.T) {
	input := []papers.Paper{
		{PaperID: "b1", ArxivID: "1706.03762", Title: "Attention", Year: 2017},
		{PaperID: "b2", ArxivID: "arXiv:1706.03762v5", Title: "Attention Is All You Need", Year: 2017},
	}
	res := Deduplicate(input, Config{})
	require.Len(t, res.Clusters, 1)
	assert.Equal(t, papers.MatchArxiv, res.Clusters[0].Kind)
}

func TestDeduplicateFuzzyTitleMatch(t *testing.T) {
	input := []papers.Paper{
		{PaperID: "c1", Title: "Deep Residual Learning for Image Recognition", Year: 2016},
		{PaperID: "c2", Title: "Deep Residual Learning for Image Recognition.", Year: 2016},
	}
	res := Deduplicate(input, Config{FuzzyThreshold: 0.90})
	require.Len(t, res.Clusters, 1)
	assert.Equal(t, papers.MatchFuzzyTitle, res.Clusters[0].Kind)
}

func TestDeduplicateFuzzyTitleRequiresSameYear(t *testing.T) {
	input := []papers.Paper{
		{PaperID: "d1", Title: "Deep Residual Learning for Image Recognition", Year: 2016},
		{PaperID: "d2", Title: "Deep Residual Learning for Image Recognition", Year: 2020},
	}
	res := Deduplicate(input, Config{})
	assert.Len(t, res.Clusters, 0)
	assert.Len(t, res.Canonical, 2)
}

func TestDeduplicateFuzzyTitleMatchesWhenBothYearsUnknown(t *testing.T) {
	input := []papers.Paper{
		{PaperID: "d3", Title: "Deep Residual Learning for Image Recognition"},
		{PaperID: "d4", Title: "Deep Residual Learning for Image Recognition."},
	}
	res := Deduplicate(input, Config{FuzzyThreshold: 0.90})
	require.Len(t, res.Clusters, 1, "papers with both years unset must still be compared, not skipped")
	assert.Equal(t, papers.MatchFuzzyTitle, res.Clusters[0].Kind)
}

func TestDeduplicateFuzzyTransitivityViaUnionFind(t *testing.T) {
	// a~b passes threshold, b~c passes threshold, but a~c alone does
	// not — union-find must still merge all three into one cluster.
	input := []papers.Paper{
		{PaperID: "e1", Title: "attention is all you need for nlp", Year: 2017},
		{PaperID: "e2", Title: "attention is all you need for nlp tasks", Year: 2017},
		{PaperID: "e3", Title: "attention is all you need for nlp tasks today", Year: 2017},
	}
	res := Deduplicate(input, Config{FuzzyThreshold: 0.80})
	require.Len(t, res.Clusters, 1)
	assert.Len(t, res.Clusters[0].Members(), 3)
}

func TestDeduplicateNoMatchKeepsDistinctRecords(t *testing.T) {
	input := []papers.Paper{
		{PaperID: "f1", Title: "Quantum Computing Basics", Year: 2019},
		{PaperID: "f2", Title: "Marine Biology Survey", Year: 2019},
	}
	res := Deduplicate(input, Config{})
	assert.Len(t, res.Canonical, 2)
	assert.Len(t, res.Clusters, 0)
	assert.Equal(t, "f1", res.PaperToCanonical["f1"])
	assert.Equal(t, "f2", res.PaperToCanonical["f2"])
}

func TestSelectCanonicalPrefersDOIThenArxivThenCitationsThenCompleteness(t *testing.T) {
	withDOI := papers.Paper{PaperID: "x1", DOI: "10.1/x", Citations: 1}
	withoutDOI := papers.Paper{PaperID: "x2", Citations: 100}
	assert.True(t, isBetterCanonical(withDOI, withoutDOI))

	withArxiv := papers.Paper{PaperID: "x5", ArxivID: "1706.03762", Citations: 1}
	withoutArxiv := papers.Paper{PaperID: "x6", Citations: 100}
	assert.True(t, isBetterCanonical(withArxiv, withoutArxiv))

	moreCitations := papers.Paper{PaperID: "x3", Citations: 50}
	fewerCitations := papers.Paper{PaperID: "x4", Citations: 10}
	assert.True(t, isBetterCanonical(moreCitations, fewerCitations))

	complete := papers.Paper{PaperID: "x7", Citations: 10, Abstract: "a", Venue: "v"}
	sparse := papers.Paper{PaperID: "x8", Citations: 10}
	assert.True(t, isBetterCanonical(complete, sparse))
}

func TestMergeMetadataUnionsExternalIDs(t *testing.T) {
	input := []papers.Paper{
		{PaperID: "g1", DOI: "10.1/g", Title: "G", Year: 2020, ExternalID: map[string]string{"openalex": "W1"}},
		{PaperID: "g2", DOI: "10.1/g", Title: "G", Year: 2020, ExternalID: map[string]string{"semantic_scholar": "S1"}},
	}
	merged := mergeMetadata(input, []int{0, 1}, 0)
	assert.Equal(t, "W1", merged.ExternalID["openalex"])
	assert.Equal(t, "S1", merged.ExternalID["semantic_scholar"])
}

func TestPartitionInvariant(t *testing.T) {
	input := []papers.Paper{
		{PaperID: "h1", DOI: "10.1/h", Title: "H", Year: 2021},
		{PaperID: "h2", DOI: "10.1/h", Title: "H", Year: 2021},
		{PaperID: "h3", Title: "Unrelated", Year: 2021},
	}
	res := Deduplicate(input, Config{})
	seen := make(map[string]bool)
	for _, id := range []string{"h1", "h2", "h3"} {
		canon, ok := res.PaperToCanonical[id]
		require.True(t, ok)
		seen[canon] = true
	}
	assert.Len(t, seen, 2, "the partition must cover every input id exactly once")
}
