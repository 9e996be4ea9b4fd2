package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/jobwatch/internal/core"
)

// ProcessorQueue feeds jobs to a fixed set of workers, each running one
// job at a time through a Runner.
type ProcessorQueue struct {
	runner    Runner
	logger    *slog.Logger
	workers   int
	timeout   time.Duration
	onOutcome func(Job, core.Outcome)

	ch     chan Job
	wg     sync.WaitGroup
	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc

	// closing is closed when Shutdown starts; it releases Enqueue calls
	// blocked on a full queue. mu keeps close(ch) from racing a send.
	closing     chan struct{}
	closingOnce sync.Once
	mu          sync.RWMutex
	closed      bool
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

// WithProcessTimeout bounds a single job, submission and polling included.
// The polling session's own timeout still applies.
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithOutcomeHandler is called by the worker after each job.
func WithOutcomeHandler(fn func(Job, core.Outcome)) Option {
	return func(q *ProcessorQueue) { q.onOutcome = fn }
}

func NewProcessorQueue(runner Runner, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &ProcessorQueue{
		runner:  runner,
		logger:  logger,
		workers: 4,
		timeout: 35 * time.Minute,
		ch:      make(chan Job, 256),
		ctx:     ctx,
		cancel:  cancel,
		closing: make(chan struct{}),
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
				q.logger.Info("queue.worker.started", "worker_id", workerID)

				for job := range q.ch {
					q.process(workerID, job)
				}

				q.logger.Info("queue.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) process(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
	defer cancel()

	start := time.Now()
	out := q.runner.Run(ctx, job.Input, job.Callbacks)
	attrs := []any{
		"worker_id", workerID,
		"trace_id", job.TraceID,
		"source", job.Input.Source(),
		"task_id", out.Handle,
		"state", out.State,
		"wait_ms", start.Sub(job.SubmittedAt).Milliseconds(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	}
	if out.Err != nil {
		q.logger.Error("queue.job.failed", append(attrs, "error", out.Err)...)
	} else {
		q.logger.Info("queue.job.done", attrs...)
	}
	if q.onOutcome != nil {
		q.onOutcome(job, out)
	}
}

// Enqueue adds job to the queue, blocking while it is full until ctx ends or
// Shutdown starts.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	if job.TraceID == "" {
		job.TraceID = uuid.New().String()
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed || q.isClosing() {
		q.logger.Warn("queue.enqueue.closed", "source", job.Input.Source())
		return ErrQueueClosed
	}
	select {
	case q.ch <- job:
		q.logger.Info("queue.enqueued", "source", job.Input.Source(), "trace_id", job.TraceID)
		return nil
	default:
	}

	q.logger.Warn("queue.full.backpressure", "source", job.Input.Source())
	select {
	case q.ch <- job:
		q.logger.Info("queue.enqueued", "source", job.Input.Source(), "trace_id", job.TraceID)
		return nil
	case <-q.closing:
		q.logger.Warn("queue.enqueue.closed", "source", job.Input.Source())
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *ProcessorQueue) isClosing() bool {
	select {
	case <-q.closing:
		return true
	default:
		return false
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish. When ctx
// ends first, running jobs are cancelled and Shutdown waits for the workers to
// return.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.closingOnce.Do(func() { close(q.closing) })

	// blocked senders have been released, so this lock is short
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
		q.logger.Warn("queue.shutdown.interrupted", "error", ctx.Err())
		q.cancel()
		<-done
	case <-done:
		q.logger.Info("queue.shutdown.drained")
	}
	q.cancel()
}
