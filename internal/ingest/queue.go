package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one document waiting for the pipeline.
type Job struct {
	Path        string
	Pages       []int // nil = every page
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// ProcessorQueue runs queued documents on a fixed set of workers. Jobs run
// under the context given to NewProcessorQueue, so cancelling it aborts
// in-flight documents.
type ProcessorQueue struct {
	ctx      context.Context
	proc     DocumentProcessor
	logger   *slog.Logger
	onResult func(FileResult)
	workers  int
	timeout  time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

// WithProcessTimeout bounds each document; 0 keeps the default.
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithResultHandler is called from worker goroutines after every job and
// must be safe for concurrent use.
func WithResultHandler(fn func(FileResult)) Option {
	return func(q *ProcessorQueue) { q.onResult = fn }
}

func NewProcessorQueue(ctx context.Context, proc DocumentProcessor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		ctx:     ctx,
		proc:    proc,
		logger:  logger,
		workers: 1,
		timeout: 10 * time.Minute,
		ch:      make(chan Job, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("queue.worker.started", "worker_id", workerID)
				for job := range q.ch {
					q.run(workerID, job)
				}
				q.logger.Debug("queue.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
	defer cancel()

	r := ProcessFile(ctx, q.proc, job.Path, job.Pages)
	if r.Err != nil {
		q.logger.Error("queue.job.failed", "worker_id", workerID, "trace_id", job.TraceID, "path", job.Path, "error", r.Err)
	} else {
		q.logger.Info("queue.job.done",
			"worker_id", workerID,
			"trace_id", job.TraceID,
			"path", job.Path,
			"run_id", r.RunID,
			"status", r.Status,
			"waited_ms", time.Since(job.SubmittedAt).Milliseconds(),
		)
	}
	if q.onResult != nil {
		q.onResult(r)
	}
}

// Enqueue blocks while the queue is full, until ctx is done.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	if job.TraceID == "" {
		job.TraceID = uuid.NewString()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.rejected", "path", job.Path)
		return ErrQueueClosed
	}
	select {
	case q.ch <- job:
	default:
		q.logger.Warn("queue.full", "path", job.Path)
		select {
		case q.ch <- job:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	q.logger.Debug("queue.enqueued", "path", job.Path, "trace_id", job.TraceID)
	return nil
}

// Shutdown stops intake and waits for queued jobs to finish or ctx to end.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
	case <-done:
		q.logger.Info("queue.drained")
	}
}
