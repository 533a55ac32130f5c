// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// PatentsView is carried forward as a bonus fifth source: patents are
// valid systematic-review literature. Grounded on the teacher's
// internal/search/patentsview.go query-building and response shape,
// rewritten against this package's paging/cursor contract (the teacher's
// backend fetched a single page only).
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

// patentsViewSearchBase is the PatentsView patent search endpoint. A var
// so tests can substitute an httptest server.
var patentsViewSearchBase = "https://search.patentsview.org/api/v1/patent/"

const patentsViewFields = `["patent_id","patent_title","patent_abstract","patent_date","inventors.inventor_name_last"]`
const patentsViewDefaultPageSize = 25

// PatentsViewAdapter queries the PatentsView API, paging by page number.
type PatentsViewAdapter struct {
	client *httpclientDoer
}

// NewPatentsView builds the PatentsView adapter (registered under
// "patentsview").
func NewPatentsView(opts Options) Adapter {
	return &PatentsViewAdapter{client: &httpclientDoer{c: httpclient.New(httpclient.Options{Timeout: timeoutFrom(opts)})}}
}

func (a *PatentsViewAdapter) Name() string { return "patentsview" }

func (a *PatentsViewAdapter) Search(ctx context.Context, q Query, cursor string, opts Options) (Result, error) {
	page := 1
	if cursor != "" {
		p, err := strconv.Atoi(cursor)
		if err != nil {
			return Result{}, acqerr.New(acqerr.Parse, a.Name(), fmt.Errorf("bad cursor %q: %w", cursor, err))
		}
		page = p
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = patentsViewDefaultPageSize
	}
	if pageSize > 1000 {
		pageSize = 1000
	}

	query := buildPatentsViewQuery(q)
	if query == "" {
		return Result{}, acqerr.New(acqerr.Validation, a.Name(), fmt.Errorf("empty PatentsView query"))
	}

	params := url.Values{
		"q": {query},
		"f": {patentsViewFields},
		"o": {fmt.Sprintf(`{"page":%d,"per_page":%d}`, page, pageSize)},
	}

	reqURL := patentsViewSearchBase + "?" + params.Encode()
	req, err := httpclient.NewRequest(ctx, httpclient.Options{}, reqURL)
	if err != nil {
		return Result{}, acqerr.New(acqerr.Internal, a.Name(), err)
	}
	if opts.APIKey != "" {
		req.Header.Set("X-Api-Key", opts.APIKey)
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
			fmt.Errorf("patentsview returned HTTP %d", resp.StatusCode)).WithRetryAfter(retryAfterOf(resp))
	}

	var pvr patentsViewResponse
	if err := json.Unmarshal(raw, &pvr); err != nil {
		return Result{}, acqerr.New(acqerr.Parse, a.Name(), err)
	}

	now := time.Now().UTC()
	out := make([]papers.Paper, 0, len(pvr.Patents))
	for _, patent := range pvr.Patents {
		p := papers.Paper{
			Title:      patent.PatentTitle,
			Abstract:   patent.PatentAbstract,
			Provenance: papers.Provenance{Source: "patentsview", Query: q.Text, RetrievedAt: now},
		}
		for _, inv := range patent.Inventors {
			if inv.InventorNameLast != "" {
				p.Authors = append(p.Authors, papers.Author{Surname: inv.InventorNameLast})
			}
		}
		if patent.PatentDate != "" {
			if t, ok := normalize.ParseDate(patent.PatentDate); ok {
				p.Year = t.Year()
			}
		}
		p.ExternalID = map[string]string{"patentsview": "US" + patent.PatentID}
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
	if len(pvr.Patents) >= pageSize {
		next = strconv.Itoa(page + 1)
	}
	if q.Limit > 0 && page*pageSize >= q.Limit {
		next = EndCursor
	}

	return Result{Papers: out, NextCursor: next, RawBlob: raw}, nil
}

// buildPatentsViewQuery constructs the JSON query parameter, matching
// free-text terms against title and abstract.
func buildPatentsViewQuery(q Query) string {
	if q.Text == "" {
		return ""
	}
	conditions := []string{
		fmt.Sprintf(`{"_or":[{"_text_any":{"patent_title":"%s"}},{"_text_any":{"patent_abstract":"%s"}}]}`,
			escapeJSON(q.Text), escapeJSON(q.Text)),
	}
	if !q.DateFrom.IsZero() {
		conditions = append(conditions, fmt.Sprintf(`{"_gte":{"patent_date":"%s"}}`, q.DateFrom.Format("2006-01-02")))
	}
	if !q.DateTo.IsZero() {
		conditions = append(conditions, fmt.Sprintf(`{"_lte":{"patent_date":"%s"}}`, q.DateTo.Format("2006-01-02")))
	}
	if len(conditions) == 1 {
		return conditions[0]
	}
	return fmt.Sprintf(`{"_and":[%s]}`, strings.Join(conditions, ","))
}

func escapeJSON(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// PatentsView API JSON structures.
type patentsViewResponse struct {
	Patents []patentsViewPatent `json:"patents"`
}

type patentsViewPatent struct {
	PatentID       string                `json:"patent_id"`
	PatentTitle    string                `json:"patent_title"`
	PatentAbstract string                `json:"patent_abstract"`
	PatentDate     string                `json:"patent_date"`
	Inventors      []patentsViewInventor `json:"inventors"`
}

type patentsViewInventor struct {
	InventorNameLast string `json:"inventor_name_last"`
}
