// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/litreview/papersearch/internal/acqerr"
	"github.com/litreview/papersearch/internal/httpclient"
	"github.com/litreview/papersearch/internal/normalize"
	"github.com/litreview/papersearch/pkg/papers"
)

// arxivAPIBase is the arXiv search endpoint. A var so tests can
// substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

const arxivDefaultPageSize = 25

// ArxivAdapter queries the arXiv Atom feed, paging by start offset.
type ArxivAdapter struct {
	client *httpclientDoer
}

// NewArxiv builds the arXiv adapter (registered under "arxiv").
func NewArxiv(opts Options) Adapter {
	return &ArxivAdapter{client: &httpclientDoer{c: httpclient.New(httpclient.Options{Timeout: timeoutFrom(opts)})}}
}

func (a *ArxivAdapter) Name() string { return "arxiv" }

func (a *ArxivAdapter) Search(ctx context.Context, q Query, cursor string, opts Options) (Result, error) {
	start := 0
	if cursor != "" {
		s, err := strconv.Atoi(cursor)
		if err != nil {
			return Result{}, acqerr.New(acqerr.Parse, a.Name(), fmt.Errorf("bad cursor %q: %w", cursor, err))
		}
		start = s
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = arxivDefaultPageSize
	}

	searchQuery := "all:" + strings.Join(strings.Fields(q.Text), "+")
	reqURL := fmt.Sprintf("%s?search_query=%s&start=%d&max_results=%d&sortBy=relevance&sortOrder=descending",
		arxivAPIBase, searchQuery, start, pageSize)

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
			fmt.Errorf("arxiv returned HTTP %d", resp.StatusCode)).WithRetryAfter(retryAfterOf(resp))
	}

	var feed arxivFeed
	if err := xml.Unmarshal(raw, &feed); err != nil {
		return Result{}, acqerr.New(acqerr.Parse, a.Name(), err)
	}

	now := time.Now().UTC()
	out := make([]papers.Paper, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		arxivID, ok := normalize.ArxivID(extractArxivID(entry.ID))
		if !ok {
			continue
		}
		p := papers.Paper{
			ArxivID:  arxivID,
			Title:    strings.TrimSpace(entry.Title),
			Abstract: strings.TrimSpace(entry.Summary),
			Provenance: papers.Provenance{Source: "arxiv", Query: q.Text, RetrievedAt: now},
		}
		for _, author := range entry.Authors {
			p.Authors = append(p.Authors, splitAuthorName(strings.TrimSpace(author.Name)))
		}
		if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			p.Year = t.Year()
		}
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
	if len(feed.Entries) >= pageSize {
		next = strconv.Itoa(start + pageSize)
	}
	if q.Limit > 0 && start+pageSize >= q.Limit {
		next = EndCursor
	}

	return Result{Papers: out, NextCursor: next, RawBlob: raw}, nil
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Published string        `xml:"published"`
	Authors   []arxivAuthor `xml:"author"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" -> "2301.07041v1").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	return idURL[idx+len(prefix):]
}
