// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package worker

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litreview/papersearch/internal/acqerr"
	"github.com/litreview/papersearch/internal/breaker"
	"github.com/litreview/papersearch/internal/cache"
	"github.com/litreview/papersearch/internal/progress"
	"github.com/litreview/papersearch/internal/queue"
	"github.com/litreview/papersearch/internal/ratelimit"
	"github.com/litreview/papersearch/internal/source"
	"github.com/litreview/papersearch/pkg/papers"
)

// stubAdapter serves one page per call from pages, keyed by cursor
// ("" -> pages[0], pages[0].NextCursor -> pages[1], ...). failFirstN
// calls return a retryable AcqError before any page is served.
type stubAdapter struct {
	name       string
	pages      []source.Result
	failFirstN int32
	calls      atomic.Int32
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Search(ctx context.Context, q source.Query, cursor string, opts source.Options) (source.Result, error) {
	n := s.calls.Add(1)
	if n <= s.failFirstN {
		return source.Result{}, acqerr.New(acqerr.Network, s.name, assertErr("transient"))
	}
	for i, p := range s.pages {
		if (i == 0 && cursor == "") || (i > 0 && s.pages[i-1].NextCursor == cursor) {
			return p, nil
		}
	}
	return source.Result{NextCursor: source.EndCursor}, nil
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(s string) error { return simpleErr(s) }

func newTestPool(t *testing.T, adapters map[string]*stubAdapter, cfg Config) (*Pool, *queue.Queue, *cache.Cache) {
	t.Helper()
	dir := t.TempDir()
	q, err := queue.Open(filepath.Join(dir, "journal.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	c, err := cache.Open(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	limiters := ratelimit.NewRegistry(map[string]ratelimit.Config{
		"test": {RatePerSecond: 1000, Burst: 1000},
	})
	breakers := breaker.NewRegistry(breaker.Config{FailureThreshold: 100, Cooldown: time.Millisecond, SuccessThreshold: 1})

	reg := source.NewRegistry()
	for name, a := range adapters {
		adapter := a
		reg.Register(name, func(source.Options) source.Adapter { return adapter })
	}

	tracker := progress.New(nil)
	p := New(q, c, limiters, breakers, reg, tracker, cfg)
	return p, q, c
}

func samplePage(papersList []papers.Paper, nextCursor string) source.Result {
	return source.Result{Papers: papersList, NextCursor: nextCursor, RawBlob: []byte("raw")}
}

func TestPoolCompletesSinglePageTask(t *testing.T) {
	adapter := &stubAdapter{
		name: "test",
		pages: []source.Result{
			samplePage([]papers.Paper{{PaperID: "p1", Title: "One", Year: 2020}}, source.EndCursor),
		},
	}
	pool, q, _ := newTestPool(t, map[string]*stubAdapter{"test": adapter}, Config{NumWorkers: 1})

	taskID, err := q.Enqueue(&papers.Task{Source: "test", Query: "widgets"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pool.Start(ctx)

	waitForTerminal(t, q, taskID)
	task, _ := q.Task(taskID)
	assert.Equal(t, papers.StatusCompleted, task.Status)
	assert.Len(t, task.Papers, 1)

	require.NoError(t, pool.Stop(time.Second))
}

func TestPoolFollowsCursorAcrossPages(t *testing.T) {
	adapter := &stubAdapter{
		name: "test",
		pages: []source.Result{
			samplePage([]papers.Paper{{PaperID: "p1", Title: "One", Year: 2020}}, "page2"),
			samplePage([]papers.Paper{{PaperID: "p2", Title: "Two", Year: 2021}}, source.EndCursor),
		},
	}
	pool, q, _ := newTestPool(t, map[string]*stubAdapter{"test": adapter}, Config{NumWorkers: 1})

	taskID, err := q.Enqueue(&papers.Task{Source: "test", Query: "widgets"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pool.Start(ctx)

	waitForTerminal(t, q, taskID)
	task, _ := q.Task(taskID)
	assert.Equal(t, papers.StatusCompleted, task.Status)
	assert.Len(t, task.Papers, 2)

	require.NoError(t, pool.Stop(time.Second))
}

func TestPoolRetriesTransientFailureThenSucceeds(t *testing.T) {
	adapter := &stubAdapter{
		name:       "test",
		failFirstN: 2,
		pages: []source.Result{
			samplePage([]papers.Paper{{PaperID: "p1", Title: "One", Year: 2020}}, source.EndCursor),
		},
	}
	pool, q, _ := newTestPool(t, map[string]*stubAdapter{"test": adapter}, Config{NumWorkers: 1, MaxRetries: 5})

	taskID, err := q.Enqueue(&papers.Task{Source: "test", Query: "widgets"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool.Start(ctx)

	waitForTerminal(t, q, taskID)
	task, _ := q.Task(taskID)
	assert.Equal(t, papers.StatusCompleted, task.Status)

	require.NoError(t, pool.Stop(time.Second))
}

func TestPoolRespectsTaskLimit(t *testing.T) {
	adapter := &stubAdapter{
		name: "test",
		pages: []source.Result{
			samplePage([]papers.Paper{{PaperID: "p1", Title: "One", Year: 2020}, {PaperID: "p2", Title: "Two", Year: 2020}}, "page2"),
			samplePage([]papers.Paper{{PaperID: "p3", Title: "Three", Year: 2020}}, source.EndCursor),
		},
	}
	pool, q, _ := newTestPool(t, map[string]*stubAdapter{"test": adapter}, Config{NumWorkers: 1})

	taskID, err := q.Enqueue(&papers.Task{Source: "test", Query: "widgets", Limit: 2})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pool.Start(ctx)

	waitForTerminal(t, q, taskID)
	task, _ := q.Task(taskID)
	assert.Equal(t, papers.StatusCompleted, task.Status)
	assert.Len(t, task.Papers, 2, "worker must stop once the task's Limit is reached")

	require.NoError(t, pool.Stop(time.Second))
}

func waitForTerminal(t *testing.T, q *queue.Queue, taskID string) {
	t.Helper()
	deadline := time.Now().Add(4 * time.Second)
	for time.Now().Before(deadline) {
		task, ok := q.Task(taskID)
		if ok && task.Status.Terminal() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s did not reach a terminal state in time", taskID)
}
