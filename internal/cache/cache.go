// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache implements C4: a durable, transactional store of
// query->page->paper state that lets an interrupted task resume without
// re-fetching already-seen pages. Grounded on the teacher's
// internal/knowledge/store.go SQLite setup (mattn/go-sqlite3, WAL
// pragma, schema-create-if-not-exists, prepared statements inside a
// transaction) and on the original's io/cache.py three-table shape
// (queries/pages/papers), which matches spec.md §4.4/§6 exactly.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/litreview/papersearch/pkg/papers"
)

const schemaVersion = 1

// Identity is the deterministic key that indexes a cached search:
// QueryIdentity in spec.md §3. Two tasks with an identical Identity
// share cached pages.
type Identity struct {
	Source     string
	Query      string
	DateFrom   string
	DateTo     string
	Limit      int
	ConfigBlob string
}

// QueryID derives the deterministic query_id for id, matching the
// original's sha256-of-joined-fields scheme (io/cache.py
// _compute_query_id), extended with limit/config so two tasks that
// differ only in page size do not collide.
func (id Identity) QueryID() string {
	key := fmt.Sprintf("%s|%s|%s|%s|%d|%s", id.Source, id.Query, id.DateFrom, id.DateTo, id.Limit, id.ConfigBlob)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

// QueryProgress summarizes a cached query's resumability state, used by
// the worker pool's resume check (§4.7 step 3) and its task-limit check.
type QueryProgress struct {
	QueryID     string
	Source      string
	Query       string
	Completed   bool
	PageCount   int
	PaperCount  int
	HighestPage int
	LastCursor  string
	CreatedAt   time.Time
}

// Cache is a durable key-value store of query->page->records with
// completion markers, backed by SQLite in WAL mode.
type Cache struct {
	db     *sql.DB
	log    zerolog.Logger
}

// Open opens (creating if necessary) the cache database at path and
// ensures its schema exists. WAL mode, synchronous=NORMAL, and
// temp_store=MEMORY mirror the original's io/cache.py tuning and the
// teacher's internal/knowledge/store.go pragmas.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("cache: opening database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA temp_store = MEMORY`); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: setting temp_store: %w", err)
	}

	c := &Cache{db: db, log: log.With().Str("component", "cache").Logger()}
	if err := c.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the underlying database connection.
func (c *Cache) Close() error { return c.db.Close() }

func (c *Cache) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS schema_info (version INTEGER NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS queries (
			query_id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			normalized_query TEXT NOT NULL,
			date_from TEXT,
			date_to TEXT,
			page_limit INTEGER,
			config_blob TEXT,
			completed_flag INTEGER NOT NULL DEFAULT 0,
			last_cursor TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pages (
			query_id TEXT NOT NULL REFERENCES queries(query_id),
			page_index INTEGER NOT NULL,
			raw_blob BLOB,
			fetched_at TEXT NOT NULL,
			UNIQUE(query_id, page_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pages_query ON pages(query_id, page_index)`,
		`CREATE TABLE IF NOT EXISTS papers (
			query_id TEXT NOT NULL REFERENCES queries(query_id),
			page_index INTEGER NOT NULL,
			paper_record_blob TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_query ON papers(query_id)`,
	}
	for _, stmt := range statements {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("cache: creating schema: %w", err)
		}
	}

	var count int
	if err := c.db.QueryRow(`SELECT count(*) FROM schema_info`).Scan(&count); err != nil {
		return fmt.Errorf("cache: checking schema_info: %w", err)
	}
	if count == 0 {
		if _, err := c.db.Exec(`INSERT INTO schema_info (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("cache: recording schema version: %w", err)
		}
	}
	return nil
}

// RegisterQuery idempotently records id and returns its query_id. If
// the query_id already exists, its existing row is left untouched.
func (c *Cache) RegisterQuery(ctx context.Context, id Identity) (string, error) {
	queryID := id.QueryID()
	_, err := c.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO queries (query_id, source, normalized_query, date_from, date_to, page_limit, config_blob, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		queryID, id.Source, id.Query, id.DateFrom, id.DateTo, id.Limit, id.ConfigBlob, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("cache: registering query: %w", err)
	}
	return queryID, nil
}

// NextPageToFetch returns the smallest page index not yet stored for
// queryID, or done=true if the query is already marked completed.
func (c *Cache) NextPageToFetch(ctx context.Context, queryID string) (page int, done bool, err error) {
	var completed int
	err = c.db.QueryRowContext(ctx, `SELECT completed_flag FROM queries WHERE query_id = ?`, queryID).Scan(&completed)
	if err != nil {
		return 0, false, fmt.Errorf("cache: loading query %s: %w", queryID, err)
	}
	if completed != 0 {
		return 0, true, nil
	}

	var maxIdx sql.NullInt64
	err = c.db.QueryRowContext(ctx, `SELECT MAX(page_index) FROM pages WHERE query_id = ?`, queryID).Scan(&maxIdx)
	if err != nil {
		return 0, false, fmt.Errorf("cache: finding next page for %s: %w", queryID, err)
	}
	if !maxIdx.Valid {
		return 0, false, nil
	}
	return int(maxIdx.Int64) + 1, false, nil
}

// StorePage atomically inserts a page and its parsed papers, and
// records nextCursor as the adapter cursor to resume from on the
// following fetch (mirroring the original's cache_page updating
// last_cursor on the query row so a resumed task doesn't need to
// replay cursors from page zero).
//
// Invariant (§4.4): pages are contiguous; storing page n+1 before page
// n has been stored is a programming error and StorePage rejects it
// rather than silently creating a gap.
func (c *Cache) StorePage(ctx context.Context, queryID string, pageIndex int, raw []byte, parsed []papers.Paper, nextCursor string) error {
	next, done, err := c.NextPageToFetch(ctx, queryID)
	if err != nil {
		return err
	}
	if done {
		return fmt.Errorf("cache: query %s is already marked completed", queryID)
	}
	if pageIndex != next {
		return fmt.Errorf("cache: non-contiguous page write for %s: expected page %d, got %d", queryID, next, pageIndex)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO pages (query_id, page_index, raw_blob, fetched_at) VALUES (?, ?, ?, ?)`,
		queryID, pageIndex, raw, now,
	); err != nil {
		return fmt.Errorf("cache: storing page %d for %s: %w", pageIndex, queryID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO papers (query_id, page_index, paper_record_blob) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("cache: preparing paper insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range parsed {
		blob, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("cache: marshaling paper %s: %w", p.PaperID, err)
		}
		if _, err := stmt.ExecContext(ctx, queryID, pageIndex, blob); err != nil {
			return fmt.Errorf("cache: storing paper %s: %w", p.PaperID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE queries SET last_cursor = ? WHERE query_id = ?`, nextCursor, queryID); err != nil {
		return fmt.Errorf("cache: recording cursor for %s: %w", queryID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache: committing page %d for %s: %w", pageIndex, queryID, err)
	}
	c.log.Debug().Str("query_id", queryID).Int("page", pageIndex).Int("papers", len(parsed)).Msg("stored page")
	return nil
}

// Cursor returns the adapter cursor to resume queryID's fetch from:
// the empty string if no page has been stored yet.
func (c *Cache) Cursor(ctx context.Context, queryID string) (string, error) {
	var cursor string
	err := c.db.QueryRowContext(ctx, `SELECT last_cursor FROM queries WHERE query_id = ?`, queryID).Scan(&cursor)
	if err != nil {
		return "", fmt.Errorf("cache: loading cursor for %s: %w", queryID, err)
	}
	return cursor, nil
}

// MarkCompleted sets the completed flag for queryID. Pages beyond the
// highest stored index must not be fetched afterward.
func (c *Cache) MarkCompleted(ctx context.Context, queryID string) error {
	_, err := c.db.ExecContext(ctx, `UPDATE queries SET completed_flag = 1 WHERE query_id = ?`, queryID)
	if err != nil {
		return fmt.Errorf("cache: marking %s completed: %w", queryID, err)
	}
	return nil
}

// PapersFor returns the ordered concatenation of papers cached for
// queryID, ordered by page index then insertion order within a page.
func (c *Cache) PapersFor(ctx context.Context, queryID string) ([]papers.Paper, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT paper_record_blob FROM papers WHERE query_id = ? ORDER BY page_index, rowid`, queryID)
	if err != nil {
		return nil, fmt.Errorf("cache: loading papers for %s: %w", queryID, err)
	}
	defer rows.Close()

	var out []papers.Paper
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("cache: scanning paper row: %w", err)
		}
		var p papers.Paper
		if err := json.Unmarshal([]byte(blob), &p); err != nil {
			return nil, fmt.Errorf("cache: unmarshaling cached paper: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Progress returns queryID's resumability summary.
func (c *Cache) Progress(ctx context.Context, queryID string) (QueryProgress, error) {
	var qp QueryProgress
	var completed int
	var createdAt string
	err := c.db.QueryRowContext(ctx,
		`SELECT query_id, source, normalized_query, completed_flag, last_cursor, created_at FROM queries WHERE query_id = ?`,
		queryID,
	).Scan(&qp.QueryID, &qp.Source, &qp.Query, &completed, &qp.LastCursor, &createdAt)
	if err != nil {
		return QueryProgress{}, fmt.Errorf("cache: loading progress for %s: %w", queryID, err)
	}
	qp.Completed = completed != 0
	qp.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	var pageCount, highest sql.NullInt64
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(page_index) FROM pages WHERE query_id = ?`, queryID,
	).Scan(&pageCount, &highest); err != nil {
		return QueryProgress{}, fmt.Errorf("cache: counting pages for %s: %w", queryID, err)
	}
	qp.PageCount = int(pageCount.Int64)
	qp.HighestPage = int(highest.Int64)

	var paperCount sql.NullInt64
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM papers WHERE query_id = ?`, queryID,
	).Scan(&paperCount); err != nil {
		return QueryProgress{}, fmt.Errorf("cache: counting papers for %s: %w", queryID, err)
	}
	qp.PaperCount = int(paperCount.Int64)
	return qp, nil
}

// ContiguousPageIndices returns the sorted set of page indices stored
// for queryID, exposed for tests that assert the §8 cache-contiguity
// invariant directly.
func (c *Cache) ContiguousPageIndices(ctx context.Context, queryID string) ([]int, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT page_index FROM pages WHERE query_id = ? ORDER BY page_index`, queryID)
	if err != nil {
		return nil, fmt.Errorf("cache: listing pages for %s: %w", queryID, err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("cache: scanning page index: %w", err)
		}
		out = append(out, idx)
	}
	sort.Ints(out)
	return out, rows.Err()
}
