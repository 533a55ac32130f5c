// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litreview/papersearch/pkg/papers"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	dir := t.TempDir()
	q, err := Open(filepath.Join(dir, "journal.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestEnqueueAssignsIDAndClaimOrdersByPriority(t *testing.T) {
	q := openTestQueue(t)

	// Lower Priority numbers are served first.
	lowPriorityID, err := q.Enqueue(&papers.Task{Source: "openalex", Query: "low-priority", Priority: 10})
	require.NoError(t, err)
	highPriorityID, err := q.Enqueue(&papers.Task{Source: "openalex", Query: "high-priority", Priority: 1})
	require.NoError(t, err)
	require.NotEmpty(t, lowPriorityID)
	require.NotEmpty(t, highPriorityID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	claimed, err := q.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, highPriorityID, claimed.TaskID)
	assert.Equal(t, papers.StatusRunning, claimed.Status)
}

func TestClaimNextBlocksUntilEnqueue(t *testing.T) {
	q := openTestQueue(t)

	resultCh := make(chan *papers.Task, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		task, err := q.ClaimNext(ctx)
		if err == nil {
			resultCh <- task
		} else {
			resultCh <- nil
		}
	}()

	time.Sleep(50 * time.Millisecond)
	_, err := q.Enqueue(&papers.Task{Source: "arxiv", Query: "wait-for-me"})
	require.NoError(t, err)

	select {
	case task := <-resultCh:
		require.NotNil(t, task)
		assert.Equal(t, "wait-for-me", task.Query)
	case <-time.After(2 * time.Second):
		t.Fatal("ClaimNext never returned")
	}
}

func TestClaimNextRespectsContextCancellation(t *testing.T) {
	q := openTestQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := q.ClaimNext(ctx)
	require.Error(t, err)
}

func TestFailRetriesUntilMaxThenFails(t *testing.T) {
	q := openTestQueue(t)
	_, err := q.Enqueue(&papers.Task{Source: "crossref", Query: "flaky", Priority: 5})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < DefaultMaxRetries; i++ {
		task, err := q.ClaimNext(ctx)
		require.NoError(t, err)
		require.NoError(t, q.Fail(task, papers.ErrorDescriptor{Kind: "NETWORK", Message: "boom"}, DefaultMaxRetries))
	}

	task, ok := q.Task(task0ID(q))
	require.True(t, ok)
	assert.Equal(t, papers.StatusFailed, task.Status)
	assert.Equal(t, DefaultMaxRetries, task.Attempt)
}

func task0ID(q *Queue) string {
	for _, t := range q.AllTasks() {
		return t.TaskID
	}
	return ""
}

func TestCancelPendingTaskRemovesFromReady(t *testing.T) {
	q := openTestQueue(t)
	id, err := q.Enqueue(&papers.Task{Source: "openalex", Query: "to-cancel"})
	require.NoError(t, err)
	require.NoError(t, q.Cancel(id))

	task, ok := q.Task(id)
	require.True(t, ok)
	assert.Equal(t, papers.StatusCancelled, task.Status)
	assert.Equal(t, 0, q.Size())
}

func TestCancelRunningTaskSetsFlag(t *testing.T) {
	q := openTestQueue(t)
	id, err := q.Enqueue(&papers.Task{Source: "openalex", Query: "running"})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	task, err := q.ClaimNext(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Cancel(id))
	assert.True(t, task.CancelRequested())
}

func TestReplayResetsRunningTasksToPending(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.jsonl")

	q1, err := Open(path)
	require.NoError(t, err)
	id, err := q1.Enqueue(&papers.Task{Source: "openalex", Query: "crash-me"})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	_, err = q1.ClaimNext(ctx)
	cancel()
	require.NoError(t, err)
	require.NoError(t, q1.Close())

	q2, err := Open(path)
	require.NoError(t, err)
	defer q2.Close()

	task, ok := q2.Task(id)
	require.True(t, ok)
	assert.Equal(t, papers.StatusPending, task.Status, "a task left RUNNING by a crashed process must resume as PENDING")
	assert.Equal(t, 1, q2.Size())
}

func TestTasksByStatus(t *testing.T) {
	q := openTestQueue(t)
	_, err := q.Enqueue(&papers.Task{Source: "openalex", Query: "a"})
	require.NoError(t, err)
	_, err = q.Enqueue(&papers.Task{Source: "openalex", Query: "b"})
	require.NoError(t, err)

	pending := q.TasksByStatus(papers.StatusPending)
	assert.Len(t, pending, 2)
}
