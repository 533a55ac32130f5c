// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dedup

import (
	"sort"

	"github.com/litreview/papersearch/pkg/papers"
)

// selectCanonical picks the best member of members by spec.md's
// lexicographic tuple: (has DOI, has arXiv, citation count,
// completeness score), each compared independently and in that
// priority order. Ties are broken by earliest retrieval timestamp,
// then ascending paper_id, so the choice is deterministic regardless
// of input order.
func selectCanonical(input []papers.Paper, members []int) int {
	best := members[0]
	for _, idx := range members[1:] {
		if isBetterCanonical(input[idx], input[best]) {
			best = idx
		}
	}
	return best
}

func isBetterCanonical(a, b papers.Paper) bool {
	at := canonicalTuple(a)
	bt := canonicalTuple(b)
	for i := range at {
		if at[i] != bt[i] {
			return at[i] > bt[i]
		}
	}
	if !a.Provenance.RetrievedAt.Equal(b.Provenance.RetrievedAt) {
		return a.Provenance.RetrievedAt.Before(b.Provenance.RetrievedAt)
	}
	return a.PaperID < b.PaperID
}

func canonicalTuple(p papers.Paper) [4]int {
	hasDOI := 0
	if p.DOI != "" {
		hasDOI = 1
	}
	hasArxiv := 0
	if p.ArxivID != "" {
		hasArxiv = 1
	}
	return [4]int{hasDOI, hasArxiv, p.Citations, p.CompletenessScore()}
}

// mergeMetadata builds the canonical record for a cluster: it starts
// from the selected canonical member and fills in any field the
// canonical lacks from the other members (first-non-empty-wins, in
// member order), unions external ids and fields of study, and takes
// the maximum citation count across the cluster — mirroring the
// original's _merge_paper_data.
func mergeMetadata(input []papers.Paper, members []int, canonicalIdx int) papers.Paper {
	result := input[canonicalIdx]
	result.ExternalID = cloneStringMap(result.ExternalID)
	if result.ExternalID == nil {
		result.ExternalID = make(map[string]string)
	}

	fieldSet := make(map[string]bool)
	for _, f := range result.Fields {
		fieldSet[f] = true
	}

	for _, idx := range members {
		m := input[idx]
		if result.DOI == "" && m.DOI != "" {
			result.DOI = m.DOI
		}
		if result.ArxivID == "" && m.ArxivID != "" {
			result.ArxivID = m.ArxivID
		}
		if result.Abstract == "" && m.Abstract != "" {
			result.Abstract = m.Abstract
		}
		if result.Venue == "" && m.Venue != "" {
			result.Venue = m.Venue
		}
		if result.Year == 0 && m.Year != 0 {
			result.Year = m.Year
		}
		if result.OAPdfURL == "" && m.OAPdfURL != "" {
			result.OAPdfURL = m.OAPdfURL
		}
		if len(result.Authors) == 0 && len(m.Authors) > 0 {
			result.Authors = m.Authors
		}
		if m.Citations > result.Citations {
			result.Citations = m.Citations
		}
		for k, v := range m.ExternalID {
			if _, exists := result.ExternalID[k]; !exists {
				result.ExternalID[k] = v
			}
		}
		for _, f := range m.Fields {
			fieldSet[f] = true
		}
	}

	if len(fieldSet) > 0 {
		fields := make([]string, 0, len(fieldSet))
		for f := range fieldSet {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		result.Fields = fields
	}

	return result
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
