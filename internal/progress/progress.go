// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package progress implements C8: an in-memory tally of queue/worker
// activity plus an optional Prometheus export, so a caller can poll
// aggregate stats without walking every task. Grounded on the
// original's async_queue/progress.py QueueStats/ProgressTracker
// (elapsed_time, papers_per_minute, completion_percentage); its
// rich.Table live rendering has no equivalent here and is replaced by
// the promauto metrics idiom from yazdanimehdi-literature_service's
// internal/observability/metrics.go, matching spec.md's "optional
// export hook" note.
package progress

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/litreview/papersearch/pkg/papers"
)

// Stats is a point-in-time snapshot of queue/worker progress, mirroring
// the original's QueueStats dataclass.
type Stats struct {
	TotalTasks     int
	Pending        int
	Running        int
	Completed      int
	Failed         int
	Cancelled      int
	TotalPapers    int
	TotalPages     int
	ErrorsByKind   map[string]int
	StartedAt      time.Time
	now            time.Time
}

// ElapsedTime is how long the tracker has been running.
func (s Stats) ElapsedTime() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return s.now.Sub(s.StartedAt)
}

// PapersPerMinute is the tracked retrieval rate, zero before any time
// has elapsed.
func (s Stats) PapersPerMinute() float64 {
	elapsed := s.ElapsedTime()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.TotalPapers) / elapsed.Minutes()
}

// CompletionPercentage is the fraction of tasks that have reached a
// terminal state, as a percentage.
func (s Stats) CompletionPercentage() float64 {
	if s.TotalTasks == 0 {
		return 0
	}
	done := s.Completed + s.Failed + s.Cancelled
	return 100 * float64(done) / float64(s.TotalTasks)
}

// Metrics is the Prometheus export surface, registered eagerly via
// promauto so scraping works the moment a Tracker is constructed with
// EnableMetrics set.
type Metrics struct {
	PapersFetched   *prometheus.CounterVec
	PagesFetched    *prometheus.CounterVec
	ErrorsByKind    *prometheus.CounterVec
	TasksByStatus   *prometheus.CounterVec
	PageFetchLatency *prometheus.HistogramVec
}

// NewMetrics registers the acquisition engine's Prometheus metrics
// under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		PapersFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_fetched_total",
			Help:      "Total number of papers fetched, by source.",
		}, []string{"source"}),
		PagesFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Total number of pages fetched, by source.",
		}, []string{"source"}),
		ErrorsByKind: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of classified errors, by source and kind.",
		}, []string{"source", "kind"}),
		TasksByStatus: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_transitions_total",
			Help:      "Total number of task status transitions, by resulting status.",
		}, []string{"status"}),
		PageFetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "page_fetch_duration_seconds",
			Help:      "Duration of a single page fetch, by source.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
	}
}

// Tracker accumulates counters as the worker pool reports events. It
// holds no reference to the queue; the manager feeds it events
// directly so it stays decoupled from queue internals.
type Tracker struct {
	mu sync.Mutex

	totalTasks, pending, running, completed, failed, cancelled int
	totalPapers, totalPages                                    int
	errorsByKind                                                map[string]int
	startedAt                                                   time.Time

	metrics *Metrics
}

// New constructs a Tracker. When metrics is non-nil its counters are
// updated alongside the in-memory tally.
func New(metrics *Metrics) *Tracker {
	return &Tracker{
		errorsByKind: make(map[string]int),
		startedAt:    time.Now().UTC(),
		metrics:      metrics,
	}
}

// TaskEnqueued records a newly created task.
func (t *Tracker) TaskEnqueued() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalTasks++
	t.pending++
}

// TaskStarted records a task's PENDING->RUNNING transition.
func (t *Tracker) TaskStarted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending--
	t.running++
}

// TaskFinished records a task reaching a terminal status.
func (t *Tracker) TaskFinished(status papers.TaskStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running--
	switch status {
	case papers.StatusCompleted:
		t.completed++
	case papers.StatusFailed:
		t.failed++
	case papers.StatusCancelled:
		t.cancelled++
	}
	if t.metrics != nil {
		t.metrics.TasksByStatus.WithLabelValues(string(status)).Inc()
	}
}

// TaskRetried records a failed attempt that was requeued rather than
// finished, keeping running/pending counts accurate without double
// counting it as a finished task.
func (t *Tracker) TaskRetried() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running--
	t.pending++
}

// PageFetched records one successful page fetch for source, with its
// paper count and latency.
func (t *Tracker) PageFetched(source string, paperCount int, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalPages++
	t.totalPapers += paperCount
	if t.metrics != nil {
		t.metrics.PagesFetched.WithLabelValues(source).Inc()
		t.metrics.PapersFetched.WithLabelValues(source).Add(float64(paperCount))
		t.metrics.PageFetchLatency.WithLabelValues(source).Observe(latency.Seconds())
	}
}

// ErrorObserved records a classified failure for source.
func (t *Tracker) ErrorObserved(source, kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorsByKind[kind]++
	if t.metrics != nil {
		t.metrics.ErrorsByKind.WithLabelValues(source, kind).Inc()
	}
}

// Snapshot returns the current Stats.
func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	errs := make(map[string]int, len(t.errorsByKind))
	for k, v := range t.errorsByKind {
		errs[k] = v
	}
	return Stats{
		TotalTasks:   t.totalTasks,
		Pending:      t.pending,
		Running:      t.running,
		Completed:    t.completed,
		Failed:       t.failed,
		Cancelled:    t.cancelled,
		TotalPapers:  t.totalPapers,
		TotalPages:   t.totalPages,
		ErrorsByKind: errs,
		StartedAt:    t.startedAt,
		now:          time.Now().UTC(),
	}
}
