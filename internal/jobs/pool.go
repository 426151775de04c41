// Package jobs runs the background work that keeps each learner's item bank,
// summary and learner model current. Jobs share the gateway write lock with
// foreground turns and step aside when it is busy.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Gidwell/jiro/internal/config"
	"github.com/Gidwell/jiro/internal/database"
)

// Kind names a background job.
type Kind string

const (
	KindQuestionGeneration Kind = "question_generation"
	KindSummarization      Kind = "summarization"
	KindLearnerModel       Kind = "learner_model"
)

// Kinds lists every job kind in sweep order.
var Kinds = []Kind{KindLearnerModel, KindSummarization, KindQuestionGeneration}

// Handler runs one job for one learner. Handlers are idempotent: running one
// twice in a row leaves the same state as running it once.
type Handler interface {
	Run(ctx context.Context, learnerID int64) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, learnerID int64) error

func (f HandlerFunc) Run(ctx context.Context, learnerID int64) error {
	return f(ctx, learnerID)
}

// Job is a unit of work for the pool.
type Job struct {
	Kind      Kind
	LearnerID int64
	Attempt   int
}

type jobKey struct {
	kind      Kind
	learnerID int64
}

// Result labels reported to the observer.
const (
	ResultOK       = "ok"
	ResultDeferred = "deferred"
	ResultDropped  = "dropped"
	ResultFailed   = "failed"
)

// Observer is told how every job run ended.
type Observer func(kind Kind, result string)

// Option configures a Pool.
type Option func(*Pool)

// WithObserver registers an observer of job results.
func WithObserver(observer Observer) Option {
	return func(p *Pool) {
		p.observe = observer
	}
}

// Pool processes jobs asynchronously on a fixed number of workers.
type Pool struct {
	cfg      config.JobsConfig
	handlers map[Kind]Handler
	queue    chan Job
	observe  Observer

	mu       sync.Mutex
	pending  map[jobKey]struct{}
	deferred map[*time.Timer]struct{}
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a pool and starts its workers.
func NewPool(cfg config.JobsConfig, handlers map[Kind]Handler, opts ...Option) (*Pool, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Workers > cfg.QueueSize {
		return nil, fmt.Errorf("workers %d exceeds queue size %d", cfg.Workers, cfg.QueueSize)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:      cfg,
		handlers: handlers,
		queue:    make(chan Job, cfg.QueueSize),
		observe:  func(Kind, string) {},
		pending:  make(map[jobKey]struct{}),
		deferred: make(map[*time.Timer]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(cfg.Workers)
	for i := range cfg.Workers {
		go p.worker(i)
	}
	return p, nil
}

// Enqueue submits a job. A job of the same kind for the same learner that is
// still waiting in the queue absorbs the new request. It returns false when
// the queue is full or the pool is closed.
func (p *Pool) Enqueue(kind Kind, learnerID int64) bool {
	return p.submit(Job{Kind: kind, LearnerID: learnerID})
}

func (p *Pool) submit(job Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	key := jobKey{kind: job.Kind, learnerID: job.LearnerID}
	if _, ok := p.pending[key]; ok {
		slog.Default().Debug("job coalesced", "kind", job.Kind, "learner_id", job.LearnerID)
		return true
	}

	select {
	case p.queue <- job:
		p.pending[key] = struct{}{}
		return true
	default:
		slog.Default().Warn("job not queued, queue full",
			"kind", job.Kind,
			"learner_id", job.LearnerID)
		p.observe(job.Kind, ResultDropped)
		return false
	}
}

// Sweep enqueues every job kind for each of ids.
func (p *Pool) Sweep(ids []int64) int {
	queued := 0
	for _, id := range ids {
		for _, kind := range Kinds {
			if p.Enqueue(kind, id) {
				queued++
			}
		}
	}
	return queued
}

// StartSweeper calls list every interval and sweeps the returned learners
// until ctx is done.
func (p *Pool) StartSweeper(ctx context.Context, interval time.Duration, list func(context.Context) ([]int64, error)) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ids, err := list(ctx)
				if err != nil {
					slog.Default().Error("failed to list learners for sweep", "error", err)
					continue
				}
				queued := p.Sweep(ids)
				slog.Default().Debug("sweep queued jobs", "learners", len(ids), "jobs", queued)
			}
		}
	}()
}

// Close stops accepting jobs, cancels deferred retries and waits for queued
// jobs to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for timer := range p.deferred {
		timer.Stop()
	}
	p.deferred = nil
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	slog.Default().Debug("job worker started", "worker_id", id)

	for job := range p.queue {
		p.process(job)
	}

	slog.Default().Debug("job worker stopped", "worker_id", id)
}

func (p *Pool) process(job Job) {
	p.mu.Lock()
	delete(p.pending, jobKey{kind: job.Kind, learnerID: job.LearnerID})
	p.mu.Unlock()

	handler, ok := p.handlers[job.Kind]
	if !ok {
		slog.Default().Error("no handler for job", "kind", job.Kind)
		p.observe(job.Kind, ResultFailed)
		return
	}

	err := handler.Run(p.ctx, job.LearnerID)
	switch {
	case err == nil:
		p.observe(job.Kind, ResultOK)
	case errors.Is(err, database.ErrLockContended):
		p.deferJob(job)
	default:
		slog.Default().Error("job failed",
			"kind", job.Kind,
			"learner_id", job.LearnerID,
			"attempt", job.Attempt+1,
			"error", err)
		p.observe(job.Kind, ResultFailed)
	}
}

// deferJob re-enqueues a job that lost the race for the write lock after
// the configured backoff, until it runs out of attempts.
func (p *Pool) deferJob(job Job) {
	job.Attempt++
	if job.Attempt >= p.cfg.MaxAttempts {
		slog.Default().Warn("job gave up waiting for the write lock",
			"kind", job.Kind,
			"learner_id", job.LearnerID,
			"attempts", job.Attempt)
		p.observe(job.Kind, ResultDropped)
		return
	}
	p.observe(job.Kind, ResultDeferred)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(p.cfg.DeferBackoff, func() {
		p.mu.Lock()
		delete(p.deferred, timer)
		p.mu.Unlock()
		p.submit(job)
	})
	p.deferred[timer] = struct{}{}
}
