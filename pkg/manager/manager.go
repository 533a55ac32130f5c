// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package manager implements C9: the façade a caller drives instead of
// wiring the queue, cache, worker pool, and rate limiter/breaker
// registries by hand. Grounded on the original's async_queue's
// combination of TaskQueue + WorkerPool + ProgressTracker behind one
// object, restated as a Go constructor-plus-Close lifecycle (Open/
// Close) instead of the original's async context manager, so cache
// flush and worker shutdown happen even if a caller's defer runs after
// a panic.
package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/litreview/papersearch/internal/breaker"
	"github.com/litreview/papersearch/internal/cache"
	"github.com/litreview/papersearch/internal/config"
	"github.com/litreview/papersearch/internal/dedup"
	"github.com/litreview/papersearch/internal/progress"
	"github.com/litreview/papersearch/internal/queue"
	"github.com/litreview/papersearch/internal/ratelimit"
	"github.com/litreview/papersearch/internal/source"
	"github.com/litreview/papersearch/internal/worker"
	"github.com/litreview/papersearch/pkg/papers"
)

// SearchSpec is one caller-supplied search request, the manager's input
// shape for AddSearch/AddMultiple.
type SearchSpec struct {
	Source   string
	Query    string
	DateFrom time.Time
	DateTo   time.Time
	Limit    int
	Priority int
	Config   map[string]string
}

// Manager is the queue-manager façade: it owns a queue, a cache, a
// worker pool, and the rate-limit/circuit-breaker registries those
// workers share, and exposes task lifecycle operations a caller drives
// without touching any of those collaborators directly.
type Manager struct {
	cfg      config.Config
	cache    *cache.Cache
	queue    *queue.Queue
	tracker  *progress.Tracker
	limiters *ratelimit.Registry
	breakers *breaker.Registry
	adapters *source.Registry
	pool     *worker.Pool
	log      zerolog.Logger

	poolCtx    context.Context
	poolCancel context.CancelFunc
}

// Open constructs a Manager from cfg, opening its cache and journal and
// pre-registering the built-in source adapters. The worker pool is
// started immediately so AddSearch's tasks begin executing as soon as
// they're enqueued, matching the original's "queue manager owns a live
// worker pool for its whole lifetime" shape.
func Open(cfg config.Config) (*Manager, error) {
	c, err := cache.Open(cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("manager: opening cache: %w", err)
	}

	q, err := queue.Open(cfg.JournalPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("manager: opening queue: %w", err)
	}

	var metrics *progress.Metrics
	if cfg.EnableMetrics {
		metrics = progress.NewMetrics(cfg.MetricsNamespace)
	}
	tracker := progress.New(metrics)

	limiters := ratelimit.NewRegistry(cfg.RateLimitOverrides())
	breakers := breaker.NewRegistry(cfg.BreakerConfig())
	adapters := source.NewRegistry()

	pool := worker.New(q, c, limiters, breakers, adapters, tracker, cfg.WorkerConfig())
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	m := &Manager{
		cfg:        cfg,
		cache:      c,
		queue:      q,
		tracker:    tracker,
		limiters:   limiters,
		breakers:   breakers,
		adapters:   adapters,
		pool:       pool,
		log:        log.With().Str("component", "manager").Logger(),
		poolCtx:    ctx,
		poolCancel: cancel,
	}
	return m, nil
}

// Close stops the worker pool (waiting up to 30s for in-flight tasks to
// reach a suspension point, mirroring the original's
// WorkerPool.stop(timeout=30.0)) and closes the queue journal and
// cache database. Close is safe to call from a defer even after a
// panic has already begun unwinding.
func (m *Manager) Close() error {
	m.poolCancel()
	if err := m.pool.Stop(30 * time.Second); err != nil {
		m.log.Warn().Err(err).Msg("worker pool did not drain cleanly")
	}
	if err := m.queue.Close(); err != nil {
		m.log.Error().Err(err).Msg("closing queue journal")
	}
	if err := m.cache.Close(); err != nil {
		return fmt.Errorf("manager: closing cache: %w", err)
	}
	return nil
}

// RegisterAdapter lets a caller plug in a source beyond the built-in
// five, per §4.5's "new adapters plug in by registering a factory."
func (m *Manager) RegisterAdapter(name string, f source.Factory) {
	m.adapters.Register(name, f)
}

// AddSearch enqueues one search task and returns its task id.
func (m *Manager) AddSearch(spec SearchSpec) (string, error) {
	task := &papers.Task{
		Source:    spec.Source,
		Query:     spec.Query,
		DateRange: papers.DateRange{From: spec.DateFrom, To: spec.DateTo},
		Limit:     spec.Limit,
		Priority:  spec.Priority,
		Config:    spec.Config,
	}
	id, err := m.queue.Enqueue(task)
	if err != nil {
		return "", fmt.Errorf("manager: enqueuing search: %w", err)
	}
	m.tracker.TaskEnqueued()
	return id, nil
}

// AddMultiple enqueues every spec in specs and returns their task ids
// in the same order.
func (m *Manager) AddMultiple(specs []SearchSpec) ([]string, error) {
	ids := make([]string, 0, len(specs))
	for _, spec := range specs {
		id, err := m.AddSearch(spec)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// RunAll blocks until every currently known task reaches a terminal
// state, polling at pollInterval — the original's
// wait_until_complete(check_interval). A pollInterval <= 0 selects a 1
// second default.
func (m *Manager) RunAll(ctx context.Context, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if m.allTerminal() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) allTerminal() bool {
	for _, t := range m.queue.AllTasks() {
		if !t.Status.Terminal() {
			return false
		}
	}
	return true
}

// Cancel requests cancellation of taskID.
func (m *Manager) Cancel(taskID string) error {
	return m.queue.Cancel(taskID)
}

// QueueSize reports the number of tasks still pending.
func (m *Manager) QueueSize() int { return m.queue.Size() }

// TaskStatus reports taskID's current status.
func (m *Manager) TaskStatus(taskID string) (papers.TaskStatus, bool) {
	t, ok := m.queue.Task(taskID)
	if !ok {
		return "", false
	}
	return t.Status, true
}

// GetResults returns the papers a completed task retrieved.
func (m *Manager) GetResults(taskID string) ([]papers.Paper, error) {
	t, ok := m.queue.Task(taskID)
	if !ok {
		return nil, fmt.Errorf("manager: unknown task %s", taskID)
	}
	if t.Status != papers.StatusCompleted {
		return nil, fmt.Errorf("manager: task %s is %s, not completed", taskID, t.Status)
	}
	return t.Papers, nil
}

// GetAllResults gathers every completed task's papers and deduplicates
// them with internal/dedup, using cfg.FuzzyThreshold.
func (m *Manager) GetAllResults() dedup.Result {
	var all []papers.Paper
	for _, t := range m.queue.TasksByStatus(papers.StatusCompleted) {
		all = append(all, t.Papers...)
	}
	return dedup.Deduplicate(all, dedup.Config{FuzzyThreshold: m.cfg.FuzzyThreshold})
}

// Progress returns a snapshot of aggregate queue/worker activity.
func (m *Manager) Progress() progress.Stats {
	return m.tracker.Snapshot()
}
