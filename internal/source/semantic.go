// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/litreview/papersearch/internal/acqerr"
	"github.com/litreview/papersearch/internal/httpclient"
	"github.com/litreview/papersearch/internal/normalize"
	"github.com/litreview/papersearch/pkg/papers"
)

// semanticAPIBase is the Semantic Scholar paper search endpoint. A var
// so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const semanticFields = "title,abstract,authors,externalIds,year,publicationDate,citationCount,venue"
const semanticDefaultPageSize = 25

// SemanticScholarAdapter queries the Semantic Scholar API, paging by offset.
type SemanticScholarAdapter struct {
	client *httpclientDoer
	opts   Options
}

// NewSemanticScholar builds the Semantic Scholar adapter (registered
// under "semantic_scholar").
func NewSemanticScholar(opts Options) Adapter {
	return &SemanticScholarAdapter{client: &httpclientDoer{c: httpclient.New(httpclient.Options{Timeout: timeoutFrom(opts)})}, opts: opts}
}

func (a *SemanticScholarAdapter) Name() string { return "semantic_scholar" }

func (a *SemanticScholarAdapter) Search(ctx context.Context, q Query, cursor string, opts Options) (Result, error) {
	offset := 0
	if cursor != "" {
		o, err := strconv.Atoi(cursor)
		if err != nil {
			return Result{}, acqerr.New(acqerr.Parse, a.Name(), fmt.Errorf("bad cursor %q: %w", cursor, err))
		}
		offset = o
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = semanticDefaultPageSize
	}

	params := url.Values{
		"query":  {q.Text},
		"offset": {strconv.Itoa(offset)},
		"limit":  {strconv.Itoa(pageSize)},
		"fields": {semanticFields},
	}
	if !q.DateFrom.IsZero() || !q.DateTo.IsZero() {
		if yr := buildYearRange(q.DateFrom, q.DateTo); yr != "" {
			params.Set("year", yr)
		}
	}

	reqURL := semanticAPIBase + "?" + params.Encode()
	req, err := httpclient.NewRequest(ctx, httpclient.Options{}, reqURL)
	if err != nil {
		return Result{}, acqerr.New(acqerr.Internal, a.Name(), err)
	}
	if opts.APIKey != "" {
		req.Header.Set("x-api-key", opts.APIKey)
	}

	resp, err := a.client.do(req)
	if err != nil {
		return Result{}, acqerr.New(acqerr.ClassifyTransport(err), a.Name(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, acqerr.New(acqerr.Network, a.Name(), err)
	}

	if resp.StatusCode != 200 {
		return Result{}, acqerr.New(acqerr.ClassifyHTTPStatus(resp.StatusCode), a.Name(),
			fmt.Errorf("semantic scholar returned HTTP %d", resp.StatusCode)).WithRetryAfter(retryAfterOf(resp))
	}

	var sr semanticResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return Result{}, acqerr.New(acqerr.Parse, a.Name(), err)
	}

	now := time.Now().UTC()
	out := make([]papers.Paper, 0, len(sr.Data))
	for _, paper := range sr.Data {
		p := papers.Paper{
			Title:      paper.Title,
			Abstract:   paper.Abstract,
			Venue:      paper.Venue,
			Citations:  paper.CitationCount,
			Provenance: papers.Provenance{Source: "semantic_scholar", Query: q.Text, RetrievedAt: now},
		}
		for _, author := range paper.Authors {
			p.Authors = append(p.Authors, splitAuthorName(author.Name))
		}
		if paper.PublicationDate != "" {
			if t, ok := normalize.ParseDate(paper.PublicationDate); ok {
				p.Year = t.Year()
			}
		} else if paper.Year > 0 {
			p.Year = paper.Year
		}
		if paper.ExternalIDs.ArXiv != "" {
			if arxivID, ok := normalize.ArxivID(paper.ExternalIDs.ArXiv); ok {
				p.ArxivID = arxivID
			}
		}
		if paper.ExternalIDs.DOI != "" {
			if d, ok := normalize.DOI(paper.ExternalIDs.DOI); ok {
				p.DOI = d
			}
		}
		p.ExternalID = map[string]string{"semantic_scholar": paper.PaperID}
		firstSurname := ""
		if len(p.Authors) > 0 {
			firstSurname = p.Authors[0].Surname
		}
		p.PaperID = normalize.PaperID(p.DOI, p.ArxivID, p.Title, p.Year, firstSurname)
		p.TitleHash = normalize.TitleHash(p.Title)

		if _, err := papers.New(p); err != nil {
			continue
		}
		out = append(out, p)
	}

	next := EndCursor
	if len(sr.Data) >= pageSize {
		next = strconv.Itoa(offset + pageSize)
	}
	if q.Limit > 0 && offset+pageSize >= q.Limit {
		next = EndCursor
	}

	return Result{Papers: out, NextCursor: next, RawBlob: raw}, nil
}

func buildYearRange(from, to time.Time) string {
	switch {
	case !from.IsZero() && !to.IsZero():
		return fmt.Sprintf("%d-%d", from.Year(), to.Year())
	case !from.IsZero():
		return fmt.Sprintf("%d-", from.Year())
	case !to.IsZero():
		return fmt.Sprintf("-%d", to.Year())
	default:
		return ""
	}
}

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Data []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID         string              `json:"paperId"`
	Title           string              `json:"title"`
	Abstract        string              `json:"abstract"`
	Venue           string              `json:"venue"`
	Year            int                 `json:"year"`
	PublicationDate string              `json:"publicationDate"`
	CitationCount   int                 `json:"citationCount"`
	Authors         []semanticAuthor    `json:"authors"`
	ExternalIDs     semanticExternalIDs `json:"externalIds"`
}

type semanticAuthor struct {
	Name string `json:"name"`
}

type semanticExternalIDs struct {
	DOI   string `json:"DOI"`
	ArXiv string `json:"ArXiv"`
}
