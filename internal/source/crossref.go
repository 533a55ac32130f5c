// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Crossref is new relative to the teacher, which only calls Crossref for
// single-DOI metadata lookups (internal/acquire.fetchCrossRefMetadata).
// This adapter is grounded on the original's
// search/adapters/crossref.py: offset pagination, "from-pub-date"/
// "until-pub-date" filters, and the field-selection/parsing shape.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/litreview/papersearch/internal/acqerr"
	"github.com/litreview/papersearch/internal/httpclient"
	"github.com/litreview/papersearch/internal/normalize"
	"github.com/litreview/papersearch/pkg/papers"
)

// crossrefSearchBase is the Crossref works search endpoint. A var so
// tests can substitute an httptest server.
var crossrefSearchBase = "https://api.crossref.org/works"

const crossrefDefaultPageSize = 50
const crossrefSelectFields = "DOI,title,abstract,author,published,container-title,is-referenced-by-count,link"

// CrossrefAdapter queries the Crossref works API, paging by offset.
type CrossrefAdapter struct {
	client *httpclientDoer
}

// NewCrossref builds the Crossref adapter (registered under "crossref").
func NewCrossref(opts Options) Adapter {
	return &CrossrefAdapter{client: &httpclientDoer{c: httpclient.New(httpclient.Options{Timeout: timeoutFrom(opts)})}}
}

func (a *CrossrefAdapter) Name() string { return "crossref" }

func (a *CrossrefAdapter) Search(ctx context.Context, q Query, cursor string, opts Options) (Result, error) {
	offset := 0
	if cursor != "" {
		o, err := strconv.Atoi(cursor)
		if err != nil {
			return Result{}, acqerr.New(acqerr.Parse, a.Name(), fmt.Errorf("bad cursor %q: %w", cursor, err))
		}
		offset = o
	}

	rows := opts.PageSize
	if rows <= 0 {
		rows = crossrefDefaultPageSize
	}
	if rows > 1000 {
		rows = 1000
	}

	params := url.Values{
		"query":  {q.Text},
		"offset": {strconv.Itoa(offset)},
		"rows":   {strconv.Itoa(rows)},
		"select": {crossrefSelectFields},
	}
	var filters []string
	if !q.DateFrom.IsZero() {
		filters = append(filters, "from-pub-date:"+q.DateFrom.Format("2006-01-02"))
	}
	if !q.DateTo.IsZero() {
		filters = append(filters, "until-pub-date:"+q.DateTo.Format("2006-01-02"))
	}
	if len(filters) > 0 {
		params.Set("filter", strings.Join(filters, ","))
	}
	if opts.PoliteEmail != "" {
		params.Set("mailto", opts.PoliteEmail)
	}

	reqURL := crossrefSearchBase + "?" + params.Encode()
	req, err := httpclient.NewRequest(ctx, httpclient.Options{}, reqURL)
	if err != nil {
		return Result{}, acqerr.New(acqerr.Internal, a.Name(), err)
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
			fmt.Errorf("crossref returned HTTP %d", resp.StatusCode)).WithRetryAfter(retryAfterOf(resp))
	}

	var cr crossrefResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return Result{}, acqerr.New(acqerr.Parse, a.Name(), err)
	}

	now := time.Now().UTC()
	items := cr.Message.Items
	out := make([]papers.Paper, 0, len(items))
	for _, work := range items {
		p := papers.Paper{
			Citations:  work.IsReferencedByCount,
			Provenance: papers.Provenance{Source: "crossref", Query: q.Text, RetrievedAt: now},
		}
		if len(work.Title) > 0 {
			p.Title = work.Title[0]
		}
		if work.Abstract != "" {
			p.Abstract = cleanAbstract(work.Abstract)
		}
		if len(work.ContainerTitle) > 0 {
			p.Venue = work.ContainerTitle[0]
		}
		for _, author := range work.Author {
			surname := author.Family
			if surname == "" {
				surname = author.Given
			}
			p.Authors = append(p.Authors, papers.Author{Given: author.Given, Surname: surname, ORCID: author.ORCID})
		}
		if d, ok := normalize.DOI(work.DOI); ok {
			p.DOI = d
		}
		if y := crossrefYear(work.Published); y > 0 {
			p.Year = y
		}
		for _, link := range work.Link {
			if link.ContentType == "application/pdf" {
				p.OAPdfURL = link.URL
				break
			}
		}
		p.ExternalID = map[string]string{"crossref": p.DOI}
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
	newOffset := offset + len(items)
	if len(items) > 0 && newOffset < cr.Message.TotalResults {
		next = strconv.Itoa(newOffset)
	}
	if q.Limit > 0 && newOffset >= q.Limit {
		next = EndCursor
	}

	return Result{Papers: out, NextCursor: next, RawBlob: raw}, nil
}

func cleanAbstract(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func crossrefYear(published crossrefDateParts) int {
	if len(published.DateParts) == 0 || len(published.DateParts[0]) == 0 {
		return 0
	}
	return published.DateParts[0][0]
}

// Crossref API JSON structures.
type crossrefResponse struct {
	Message crossrefMessage `json:"message"`
}

type crossrefMessage struct {
	Items        []crossrefWork `json:"items"`
	TotalResults int            `json:"total-results"`
}

type crossrefWork struct {
	DOI                 string            `json:"DOI"`
	Title                []string          `json:"title"`
	Abstract             string            `json:"abstract"`
	Author               []crossrefAuthor  `json:"author"`
	Published            crossrefDateParts `json:"published"`
	ContainerTitle       []string          `json:"container-title"`
	IsReferencedByCount  int               `json:"is-referenced-by-count"`
	Link                 []crossrefLink    `json:"link"`
}

type crossrefAuthor struct {
	Given  string `json:"given"`
	Family string `json:"family"`
	ORCID  string `json:"ORCID"`
}

type crossrefDateParts struct {
	DateParts [][]int `json:"date-parts"`
}

type crossrefLink struct {
	URL         string `json:"URL"`
	ContentType string `json:"content-type"`
}
