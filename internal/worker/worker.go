// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package worker implements C7: a fixed-size pool of long-lived
// goroutines that drain the task queue, each owning a task's full
// per-page loop (circuit check, rate-limit acquire, adapter call,
// error classification, retry/backoff, cache write, progress update)
// per §4.7. This departs from the original's async_queue/worker.py,
// which delegates the per-page loop to an orchestrator and leaves the
// Worker itself a thin dequeue-execute-complete shell; spec.md §4.7
// requires the worker to own that loop directly, so only the pool
// shape (N goroutines draining one shared queue, graceful Stop with a
// timeout) is carried over from worker.py's WorkerPool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/litreview/papersearch/internal/acqerr"
	"github.com/litreview/papersearch/internal/breaker"
	"github.com/litreview/papersearch/internal/cache"
	"github.com/litreview/papersearch/internal/progress"
	"github.com/litreview/papersearch/internal/queue"
	"github.com/litreview/papersearch/internal/ratelimit"
	"github.com/litreview/papersearch/internal/source"
	"github.com/litreview/papersearch/pkg/papers"
)

// Config tunes a Pool.
type Config struct {
	NumWorkers    int
	MaxRetries    int
	SourceOptions map[string]source.Options
}

// DefaultNumWorkers matches spec.md §5's illustrative pool size.
const DefaultNumWorkers = 3

// Pool is a fixed-size set of workers draining a shared Queue.
type Pool struct {
	queue     *queue.Queue
	cache     *cache.Cache
	limiters  *ratelimit.Registry
	breakers  *breaker.Registry
	adapters  *source.Registry
	tracker   *progress.Tracker
	cfg       Config
	log       zerolog.Logger

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New builds a Pool. cfg.NumWorkers defaults to DefaultNumWorkers and
// cfg.MaxRetries to acqerr.DefaultMaxRetries when unset.
func New(q *queue.Queue, c *cache.Cache, limiters *ratelimit.Registry, breakers *breaker.Registry, adapters *source.Registry, tracker *progress.Tracker, cfg Config) *Pool {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = DefaultNumWorkers
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = acqerr.DefaultMaxRetries
	}
	return &Pool{
		queue:    q,
		cache:    c,
		limiters: limiters,
		breakers: breakers,
		adapters: adapters,
		tracker:  tracker,
		cfg:      cfg,
		log:      log.With().Str("component", "worker").Logger(),
		stopCh:   make(chan struct{}),
	}
}

// Start spawns cfg.NumWorkers goroutines, each draining the queue until
// ctx is cancelled or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.NumWorkers; i++ {
		p.wg.Add(1)
		id := i
		go p.run(ctx, id)
	}
}

// Stop signals every worker to exit once its current task finishes and
// waits up to timeout for them to drain, mirroring the original's
// WorkerPool.stop(timeout=30.0) contract.
func (p *Pool) Stop(timeout time.Duration) error {
	close(p.stopCh)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("worker: pool did not drain within %s", timeout)
	}
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.log.With().Int("worker_id", id).Logger()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		claimCtx, cancelClaim := context.WithCancel(ctx)
		go func() {
			select {
			case <-p.stopCh:
				cancelClaim()
			case <-claimCtx.Done():
			}
		}()
		task, err := p.queue.ClaimNext(claimCtx)
		stopped := claimCtx.Err() != nil
		cancelClaim()
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || stopped {
				return
			}
			log.Error().Err(err).Msg("claiming next task")
			continue
		}

		if p.tracker != nil {
			p.tracker.TaskStarted()
		}
		p.execute(ctx, task)
	}
}

// execute runs task's full page loop to completion, failure, or
// cancellation, then reports the outcome to the queue and tracker.
func (p *Pool) execute(ctx context.Context, task *papers.Task) {
	log := p.log.With().Str("task_id", task.TaskID).Str("source", task.Source).Logger()

	opts := p.cfg.SourceOptions[task.Source]
	identity := cache.Identity{
		Source:     task.Source,
		Query:      task.Query,
		DateFrom:   task.DateRange.From.Format(time.RFC3339),
		DateTo:     task.DateRange.To.Format(time.RFC3339),
		Limit:      task.Limit,
		ConfigBlob: fmt.Sprintf("%v", task.Config),
	}

	queryID, err := p.cache.RegisterQuery(ctx, identity)
	if err != nil {
		p.finishFailed(task, acqerr.Internal, err)
		return
	}
	task.QueryID = queryID

	qp, err := p.cache.Progress(ctx, queryID)
	if err != nil {
		p.finishFailed(task, acqerr.Internal, err)
		return
	}
	if qp.Completed {
		log.Debug().Msg("resuming from a completed cache entry")
		p.finishCompleted(ctx, task, queryID)
		return
	}

	adapter, err := p.adapters.Build(task.Source, opts)
	if err != nil {
		p.finishFailed(task, acqerr.Internal, err)
		return
	}

	for {
		if task.CancelRequested() {
			p.finishCancelled(task)
			return
		}

		done, retry := p.fetchNextPage(ctx, task, adapter, queryID, opts, log)
		if retry {
			return
		}
		if done {
			break
		}
	}

	p.finishCompleted(ctx, task, queryID)
}

// fetchNextPage fetches and stores exactly one page. It returns
// done=true once the query is exhausted or the task's Limit has been
// reached, and retry=true if the task was handed back to the queue
// (either re-enqueued or terminally failed) and execute must stop
// touching it.
func (p *Pool) fetchNextPage(ctx context.Context, task *papers.Task, adapter source.Adapter, queryID string, opts source.Options, log zerolog.Logger) (done bool, retry bool) {
	br := p.breakers.For(task.Source)
	if !br.Allow() {
		wait := br.CooldownRemaining()
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			p.finishFailed(task, acqerr.Internal, ctx.Err())
			return false, true
		}
		return false, false
	}

	next, cacheDone, err := p.cache.NextPageToFetch(ctx, queryID)
	if err != nil {
		p.finishFailed(task, acqerr.Internal, err)
		return false, true
	}
	if cacheDone {
		return true, false
	}

	lim := p.limiters.For(task.Source)
	if err := lim.Acquire(ctx); err != nil {
		p.finishFailed(task, acqerr.Internal, err)
		return false, true
	}

	cursor, err := p.cache.Cursor(ctx, queryID)
	if err != nil {
		p.finishFailed(task, acqerr.Internal, err)
		return false, true
	}

	q := source.Query{Text: task.Query, DateFrom: task.DateRange.From, DateTo: task.DateRange.To, Limit: task.Limit}
	start := time.Now()
	result, err := adapter.Search(ctx, q, cursor, opts)
	if err != nil {
		return false, p.handleFetchError(task, queryID, err, log)
	}

	br.RecordSuccess()
	if err := p.cache.StorePage(ctx, queryID, next, result.RawBlob, result.Papers, result.NextCursor); err != nil {
		p.finishFailed(task, acqerr.Internal, err)
		return false, true
	}
	if p.tracker != nil {
		p.tracker.PageFetched(task.Source, len(result.Papers), time.Since(start))
	}
	task.Attempt = 0

	queryProgress, err := p.cache.Progress(ctx, queryID)
	if err != nil {
		p.finishFailed(task, acqerr.Internal, err)
		return false, true
	}
	limitReached := task.Limit > 0 && queryProgress.PaperCount >= task.Limit
	if result.Done() || limitReached {
		if err := p.cache.MarkCompleted(ctx, queryID); err != nil {
			p.finishFailed(task, acqerr.Internal, err)
			return false, true
		}
		return true, false
	}
	return false, false
}

// handleFetchError classifies a failed adapter call, records it
// against the circuit breaker and rate limiter, and either returns
// false (the page loop should retry the same page immediately, for
// CIRCUIT_OPEN which doesn't consume a task-level attempt) or hands
// the task to the queue's retry/fail machinery and returns true.
func (p *Pool) handleFetchError(task *papers.Task, queryID string, err error, log zerolog.Logger) bool {
	br := p.breakers.For(task.Source)
	ae, ok := acqerr.As(err)
	if !ok {
		ae = acqerr.New(acqerr.ClassifyTransport(err), task.Source, err)
	}

	if p.tracker != nil {
		p.tracker.ErrorObserved(task.Source, string(ae.Kind))
	}

	if ae.Kind == acqerr.CircuitOpen {
		return false
	}

	br.RecordFailure()
	if ae.Kind == acqerr.RateLimit && ae.RetryAfter > 0 {
		p.limiters.For(task.Source).ResetAfter(ae.RetryAfter)
	}

	if !ae.Kind.Retryable() {
		p.finishFailedKind(task, ae.Kind, err)
		return true
	}

	backoff := acqerr.Backoff(ae.Kind, task.Attempt+1, ae.RetryAfter)
	log.Warn().Err(err).Str("kind", string(ae.Kind)).Dur("backoff", backoff).Msg("page fetch failed, retrying")
	time.Sleep(backoff)

	desc := papers.ErrorDescriptor{Kind: string(ae.Kind), Message: err.Error(), Attempt: task.Attempt + 1, LastBackoff: backoff.String()}
	if err := p.queue.Fail(task, desc, p.cfg.MaxRetries); err != nil {
		log.Error().Err(err).Msg("recording task failure")
	}
	if task.Status == papers.StatusPending {
		if p.tracker != nil {
			p.tracker.TaskRetried()
		}
	} else if p.tracker != nil {
		p.tracker.TaskFinished(task.Status)
	}
	return true
}

func (p *Pool) finishFailedKind(task *papers.Task, kind acqerr.Kind, err error) {
	desc := papers.ErrorDescriptor{Kind: string(kind), Message: err.Error(), Attempt: task.Attempt + 1}
	if qerr := p.queue.FailPermanently(task, desc); qerr != nil {
		p.log.Error().Err(qerr).Msg("recording terminal task failure")
	}
	if p.tracker != nil {
		p.tracker.TaskFinished(papers.StatusFailed)
	}
}

func (p *Pool) finishFailed(task *papers.Task, kind acqerr.Kind, err error) {
	desc := papers.ErrorDescriptor{Kind: string(kind), Message: err.Error(), Attempt: task.Attempt + 1}
	if qerr := p.queue.FailPermanently(task, desc); qerr != nil {
		p.log.Error().Err(qerr).Msg("recording terminal task failure")
	}
	if p.tracker != nil {
		p.tracker.TaskFinished(papers.StatusFailed)
	}
}

func (p *Pool) finishCancelled(task *papers.Task) {
	if err := p.queue.FinishCancelled(task); err != nil {
		p.log.Error().Err(err).Msg("recording cancellation")
	}
	if p.tracker != nil {
		p.tracker.TaskFinished(papers.StatusCancelled)
	}
}

func (p *Pool) finishCompleted(ctx context.Context, task *papers.Task, queryID string) {
	result, err := p.cache.PapersFor(ctx, queryID)
	if err != nil {
		p.finishFailed(task, acqerr.Internal, err)
		return
	}
	task.Papers = result
	if err := p.queue.Complete(task); err != nil {
		p.log.Error().Err(err).Msg("recording completion")
	}
	if p.tracker != nil {
		p.tracker.TaskFinished(papers.StatusCompleted)
	}
}
