// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package queue implements C6: a priority task queue backed by an
// append-only journal, so that a crashed process can recover its
// in-flight work on restart. This deliberately departs from the
// original's async_queue/task_queue.py, which persisted the whole
// queue as one JSON snapshot on every mutation (_save_state) — a
// snapshot write can be interrupted mid-write and lose the file,
// while appending a line at a time cannot corrupt prior entries.
package queue

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/litreview/papersearch/pkg/papers"
)

// DefaultMaxRetries bounds how many times a failed task is
// automatically re-enqueued before moving to FAILED, matching
// acqerr.DefaultMaxRetries so a task's retry budget lines up with a
// single page fetch's retry budget.
const DefaultMaxRetries = 5

// journalEntry is one line of the append-only journal: a full snapshot
// of a task immediately after its status changed.
type journalEntry struct {
	Event     string       `json:"event"`
	Task      papers.Task  `json:"task"`
	Timestamp time.Time    `json:"timestamp"`
}

// Queue is a priority-ordered task queue with crash-safe persistence.
// Pending tasks are served lowest-Priority-number-first (the highest
// priority), ties broken by earliest CreatedAt (FIFO within a priority
// band).
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  map[string]*papers.Task
	ready  []*papers.Task
	closed bool

	journal     *os.File
	journalPath string
	log         zerolog.Logger
}

// Open opens (creating if necessary) the journal file at journalPath
// and replays it to recover any prior queue state. Tasks left RUNNING
// by a prior process (because it crashed mid-fetch) are reset to
// PENDING so a worker picks them up again.
func Open(journalPath string) (*Queue, error) {
	q := &Queue{
		tasks: make(map[string]*papers.Task),
		log:   log.With().Str("component", "queue").Logger(),
	}
	q.cond = sync.NewCond(&q.mu)

	if err := q.replay(journalPath); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(journalPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("queue: opening journal %s: %w", journalPath, err)
	}
	q.journal = f
	q.journalPath = journalPath

	for _, t := range q.tasks {
		if t.Status == papers.StatusPending {
			q.ready = append(q.ready, t)
		}
	}
	q.sortReady()
	return q, nil
}

// Close flushes and closes the journal file. It does not clear
// in-memory state; Close is for process shutdown only.
func (q *Queue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	if q.journal == nil {
		return nil
	}
	return q.journal.Close()
}

func (q *Queue) replay(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("queue: reading journal %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry journalEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			q.log.Warn().Err(err).Msg("skipping malformed journal line")
			continue
		}
		task := entry.Task
		q.tasks[task.TaskID] = &task
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("queue: scanning journal %s: %w", path, err)
	}

	for _, t := range q.tasks {
		if t.Status == papers.StatusRunning {
			t.Status = papers.StatusPending
			t.StartedAt = time.Time{}
		}
	}
	return nil
}

func (q *Queue) appendLocked(event string, t *papers.Task) error {
	if q.journal == nil {
		return nil
	}
	entry := journalEntry{Event: event, Task: *t, Timestamp: time.Now().UTC()}
	blob, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("queue: marshaling journal entry: %w", err)
	}
	blob = append(blob, '\n')
	if _, err := q.journal.Write(blob); err != nil {
		return fmt.Errorf("queue: writing journal entry: %w", err)
	}
	return q.journal.Sync()
}

func (q *Queue) sortReady() {
	sort.SliceStable(q.ready, func(i, j int) bool {
		if q.ready[i].Priority != q.ready[j].Priority {
			return q.ready[i].Priority < q.ready[j].Priority
		}
		return q.ready[i].CreatedAt.Before(q.ready[j].CreatedAt)
	})
}

// Enqueue adds task to the queue, assigning a TaskID and CreatedAt if
// unset, and returns the task's id.
func (q *Queue) Enqueue(task *papers.Task) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if task.TaskID == "" {
		task.TaskID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	task.Status = papers.StatusPending

	q.tasks[task.TaskID] = task
	q.ready = append(q.ready, task)
	q.sortReady()

	if err := q.appendLocked("enqueue", task); err != nil {
		return "", err
	}
	q.cond.Broadcast()
	return task.TaskID, nil
}

// ErrClosed is returned by ClaimNext once the queue has been closed
// and no further pending tasks remain.
var ErrClosed = fmt.Errorf("queue: closed")

// ClaimNext blocks until a pending task is available, ctx is
// cancelled, or the queue is closed, then removes and returns the
// highest-priority pending task, marking it RUNNING.
func (q *Queue) ClaimNext(ctx context.Context) (*papers.Task, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		case <-done:
		}
	}()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.ready) == 0 {
		if q.closed {
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q.cond.Wait()
	}

	task := q.ready[0]
	q.ready = q.ready[1:]
	task.Status = papers.StatusRunning
	task.StartedAt = time.Now().UTC()
	if err := q.appendLocked("claim", task); err != nil {
		return nil, err
	}
	return task, nil
}

// Complete marks task COMPLETED and persists the final state,
// including whatever papers the caller has set on it.
func (q *Queue) Complete(task *papers.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	task.Status = papers.StatusCompleted
	task.FinishedAt = time.Now().UTC()
	if err := q.appendLocked("complete", task); err != nil {
		return err
	}
	q.cond.Broadcast()
	return nil
}

// Fail records a failure on task. If task's attempt count is still
// under maxRetries, it is bumped in priority and re-enqueued as
// PENDING — mirroring the original's fail_task behavior of favoring
// retried tasks over fresh ones so a flaky source doesn't starve
// everything behind it. Since lower Priority numbers are served first,
// favoring a retried task means lowering its number by 10, floored at
// 0; a retry still ranks behind a fresh task whose number is lower
// than its own after the bump. Otherwise it is marked FAILED.
func (q *Queue) Fail(task *papers.Task, desc papers.ErrorDescriptor, maxRetries int) error {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	task.Error = &desc
	task.Attempt++
	if task.Attempt < maxRetries {
		task.Status = papers.StatusPending
		task.Priority -= 10
		if task.Priority < 0 {
			task.Priority = 0
		}
		q.ready = append(q.ready, task)
		q.sortReady()
		if err := q.appendLocked("retry", task); err != nil {
			return err
		}
		q.cond.Broadcast()
		return nil
	}

	task.Status = papers.StatusFailed
	task.FinishedAt = time.Now().UTC()
	if err := q.appendLocked("fail", task); err != nil {
		return err
	}
	q.cond.Broadcast()
	return nil
}

// FailPermanently marks task FAILED without consulting the retry
// budget, for errors classified as non-retryable (validation,
// permanent, internal) where another attempt would just repeat the
// same outcome.
func (q *Queue) FailPermanently(task *papers.Task, desc papers.ErrorDescriptor) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	task.Error = &desc
	task.Attempt++
	task.Status = papers.StatusFailed
	task.FinishedAt = time.Now().UTC()
	if err := q.appendLocked("fail", task); err != nil {
		return err
	}
	q.cond.Broadcast()
	return nil
}

// FinishCancelled marks a RUNNING task CANCELLED and journals the
// transition. The worker calls this once it observes
// task.CancelRequested() at a page-loop suspension point, rather than
// mutating the task's status itself, so the cancellation is durable
// across a crash the same way every other terminal transition is.
func (q *Queue) FinishCancelled(task *papers.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	task.Status = papers.StatusCancelled
	task.FinishedAt = time.Now().UTC()
	if err := q.appendLocked("cancel", task); err != nil {
		return err
	}
	q.cond.Broadcast()
	return nil
}

// Cancel requests cancellation of taskID. A still-pending task is
// removed from the ready list and marked CANCELLED immediately; a
// running task is flagged for the worker to observe at its next
// suspension point.
func (q *Queue) Cancel(taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok {
		return fmt.Errorf("queue: unknown task %s", taskID)
	}

	switch task.Status {
	case papers.StatusPending:
		for i, t := range q.ready {
			if t.TaskID == taskID {
				q.ready = append(q.ready[:i], q.ready[i+1:]...)
				break
			}
		}
		task.Status = papers.StatusCancelled
		task.FinishedAt = time.Now().UTC()
		return q.appendLocked("cancel", task)
	case papers.StatusRunning:
		task.RequestCancel()
		return nil
	default:
		return nil
	}
}

// Task returns the queue's own *papers.Task for taskID (not a copy), so
// later transitions are visible through it.
func (q *Queue) Task(taskID string) (*papers.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[taskID]
	return t, ok
}

// AllTasks returns every task known to the queue, in no particular
// order.
func (q *Queue) AllTasks() []*papers.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*papers.Task, 0, len(q.tasks))
	for _, t := range q.tasks {
		out = append(out, t)
	}
	return out
}

// TasksByStatus filters AllTasks to a single status.
func (q *Queue) TasksByStatus(status papers.TaskStatus) []*papers.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*papers.Task
	for _, t := range q.tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

// Size returns the number of tasks currently pending.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}
