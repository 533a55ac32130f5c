// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/litreview/papersearch/pkg/papers"
)

func TestTrackerAccumulatesCounts(t *testing.T) {
	tr := New(nil)
	tr.TaskEnqueued()
	tr.TaskEnqueued()
	tr.TaskStarted()
	tr.PageFetched("openalex", 25, 100*time.Millisecond)
	tr.TaskFinished(papers.StatusCompleted)

	snap := tr.Snapshot()
	assert.Equal(t, 2, snap.TotalTasks)
	assert.Equal(t, 1, snap.Pending)
	assert.Equal(t, 0, snap.Running)
	assert.Equal(t, 1, snap.Completed)
	assert.Equal(t, 25, snap.TotalPapers)
	assert.Equal(t, 1, snap.TotalPages)
}

func TestTaskRetriedKeepsTaskCountStable(t *testing.T) {
	tr := New(nil)
	tr.TaskEnqueued()
	tr.TaskStarted()
	tr.TaskRetried()

	snap := tr.Snapshot()
	assert.Equal(t, 1, snap.TotalTasks)
	assert.Equal(t, 1, snap.Pending)
	assert.Equal(t, 0, snap.Running)
}

func TestPapersPerMinuteZeroBeforeElapsed(t *testing.T) {
	s := Stats{}
	assert.Equal(t, float64(0), s.PapersPerMinute())
}

func TestCompletionPercentage(t *testing.T) {
	s := Stats{TotalTasks: 4, Completed: 2, Failed: 1}
	assert.InDelta(t, 75.0, s.CompletionPercentage(), 0.001)
}

func TestErrorObservedTracksByKind(t *testing.T) {
	tr := New(nil)
	tr.ErrorObserved("arxiv", "NETWORK")
	tr.ErrorObserved("arxiv", "NETWORK")
	tr.ErrorObserved("arxiv", "API")

	snap := tr.Snapshot()
	assert.Equal(t, 2, snap.ErrorsByKind["NETWORK"])
	assert.Equal(t, 1, snap.ErrorsByKind["API"])
}

func TestMetricsRegistersWithoutPanic(t *testing.T) {
	m := NewMetrics("papersearch_test_progress")
	tr := New(m)
	tr.TaskEnqueued()
	tr.TaskStarted()
	tr.PageFetched("crossref", 10, 50*time.Millisecond)
	tr.ErrorObserved("crossref", "API")
	tr.TaskFinished(papers.StatusCompleted)
}
