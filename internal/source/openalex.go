// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/litreview/papersearch/internal/acqerr"
	"github.com/litreview/papersearch/internal/httpclient"
	"github.com/litreview/papersearch/internal/normalize"
	"github.com/litreview/papersearch/pkg/papers"
)

// openAlexSearchBase is the OpenAlex Works search endpoint. A var so
// tests can substitute an httptest server, per the teacher's convention.
var openAlexSearchBase = "https://api.openalex.org/works"

const openAlexDefaultPageSize = 25

// OpenAlexAdapter queries the OpenAlex Works API, paging by page number.
type OpenAlexAdapter struct {
	client *httpclientDoer
	opts   Options
}

// NewOpenAlex builds the OpenAlex adapter (registered under "openalex").
func NewOpenAlex(opts Options) Adapter {
	return &OpenAlexAdapter{client: &httpclientDoer{c: httpclient.New(httpclient.Options{
		Timeout: timeoutFrom(opts),
	})}, opts: opts}
}

func (a *OpenAlexAdapter) Name() string { return "openalex" }

func (a *OpenAlexAdapter) Search(ctx context.Context, q Query, cursor string, opts Options) (Result, error) {
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
		pageSize = openAlexDefaultPageSize
	}

	params := url.Values{
		"search":   {q.Text},
		"per_page": {strconv.Itoa(pageSize)},
		"page":     {strconv.Itoa(page)},
	}
	var filters []string
	if !q.DateFrom.IsZero() {
		filters = append(filters, "from_publication_date:"+q.DateFrom.Format("2006-01-02"))
	}
	if !q.DateTo.IsZero() {
		filters = append(filters, "to_publication_date:"+q.DateTo.Format("2006-01-02"))
	}
	if len(filters) > 0 {
		params.Set("filter", strings.Join(filters, ","))
	}
	if opts.PoliteEmail != "" {
		params.Set("mailto", opts.PoliteEmail)
	}

	reqURL := openAlexSearchBase + "?" + params.Encode()
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
			fmt.Errorf("openalex returned HTTP %d", resp.StatusCode)).WithRetryAfter(retryAfterOf(resp))
	}

	var oar openAlexResponse
	if err := json.Unmarshal(raw, &oar); err != nil {
		return Result{}, acqerr.New(acqerr.Parse, a.Name(), err)
	}

	out := make([]papers.Paper, 0, len(oar.Results))
	now := time.Now().UTC()
	for _, work := range oar.Results {
		p := papers.Paper{
			Title:    work.Title,
			Abstract: reconstructAbstract(work.AbstractInvertedIndex),
			OAPdfURL: work.OpenAccess.OAURL,
			Provenance: papers.Provenance{Source: "openalex", Query: q.Text, RetrievedAt: now},
		}
		for _, authorship := range work.Authorships {
			if authorship.Author.DisplayName != "" {
				p.Authors = append(p.Authors, splitAuthorName(authorship.Author.DisplayName))
			}
		}
		if work.PublicationDate != "" {
			if t, ok := normalize.ParseDate(work.PublicationDate); ok {
				p.Year = t.Year()
			}
		} else if work.PublicationYear > 0 {
			p.Year = work.PublicationYear
		}
		if work.DOI != "" {
			if d, ok := normalize.DOI(work.DOI); ok {
				p.DOI = d
			}
		}
		p.ExternalID = map[string]string{"openalex": work.ID}
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
	if len(oar.Results) >= pageSize {
		next = strconv.Itoa(page + 1)
	}
	if q.Limit > 0 && page*pageSize >= q.Limit {
		next = EndCursor
	}

	return Result{Papers: out, NextCursor: next, RawBlob: raw}, nil
}

func splitAuthorName(name string) papers.Author {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return papers.Author{}
	}
	if len(parts) == 1 {
		return papers.Author{Surname: parts[0]}
	}
	return papers.Author{Given: strings.Join(parts[:len(parts)-1], " "), Surname: parts[len(parts)-1]}
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to a list of positions
// where that word appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}
	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].pos < pairs[j].pos })
	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                    string               `json:"id"`
	Title                 string               `json:"title"`
	DOI                   string               `json:"doi"`
	PublicationDate       string               `json:"publication_date"`
	PublicationYear       int                  `json:"publication_year"`
	Authorships           []openAlexAuthorship `json:"authorships"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
	OpenAccess            openAlexOpenAccess   `json:"open_access"`
}

type openAlexAuthorship struct {
	Author openAlexAuthor `json:"author"`
}

type openAlexAuthor struct {
	DisplayName string `json:"display_name"`
}

type openAlexOpenAccess struct {
	OAURL string `json:"oa_url"`
}
