// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSemanticJSON = `{
  "data": [
    {
      "paperId": "abc123",
      "title": "Attention Is All You Need",
      "abstract": "We propose a new architecture.",
      "venue": "NeurIPS",
      "year": 2017,
      "citationCount": 9000,
      "authors": [{"name": "Ashish Vaswani"}],
      "externalIds": {"DOI": "10.5555/3295222.3295349", "ArXiv": "1706.03762"}
    }
  ]
}`

func TestSemanticScholarSearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleSemanticJSON))
	}))
	defer ts.Close()
	old := semanticAPIBase
	semanticAPIBase = ts.URL
	defer func() { semanticAPIBase = old }()

	a := NewSemanticScholar(Options{APIKey: "k"})
	res, err := a.Search(context.Background(), Query{Text: "attention"}, "", Options{PageSize: 25})
	require.NoError(t, err)
	require.Len(t, res.Papers, 1)
	p := res.Papers[0]
	assert.Equal(t, "10.5555/3295222.3295349", p.DOI)
	assert.Equal(t, "1706.03762", p.ArxivID)
	assert.Equal(t, 9000, p.Citations)
	assert.True(t, res.Done())
}

func TestBuildYearRange(t *testing.T) {
	from := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2018-2020", buildYearRange(from, to))
	assert.Equal(t, "2018-", buildYearRange(from, time.Time{}))
	assert.Equal(t, "-2020", buildYearRange(time.Time{}, to))
	assert.Equal(t, "", buildYearRange(time.Time{}, time.Time{}))
}
