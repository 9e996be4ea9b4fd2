package async

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joseph-ayodele/jobwatch/constants"
	"github.com/joseph-ayodele/jobwatch/internal/core"
	"github.com/joseph-ayodele/jobwatch/internal/entity"
	"github.com/joseph-ayodele/jobwatch/internal/poll"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRunner struct {
	mu      sync.Mutex
	sources []string
	active  atomic.Int32
	peak    atomic.Int32
	delay   time.Duration
	block   chan struct{}
}

func (r *fakeRunner) Run(ctx context.Context, in entity.JobInput, cb poll.Callbacks) core.Outcome {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return core.Outcome{State: constants.SessionCancelled}
		}
	}
	time.Sleep(r.delay)

	r.mu.Lock()
	r.sources = append(r.sources, in.Source())
	r.mu.Unlock()
	if cb.OnComplete != nil {
		cb.OnComplete(in.Source())
	}
	return core.Outcome{State: constants.SessionDone, Payload: in.Source()}
}

func pdfJob(name string) Job {
	return Job{Input: entity.JobInput{
		Kind:  constants.JobKindProcessPDF,
		Files: []entity.FilePart{{Field: "pdf", Filename: name, Content: []byte("x")}},
	}}
}

func TestProcessorQueueRunsAllJobs(t *testing.T) {
	runner := &fakeRunner{delay: 5 * time.Millisecond}
	var outcomes atomic.Int32
	q := NewProcessorQueue(runner, discardLogger(),
		WithWorkers(3),
		WithQueueSize(2),
		WithOutcomeHandler(func(_ Job, out core.Outcome) {
			if out.State == constants.SessionDone {
				outcomes.Add(1)
			}
		}),
	)

	var completed atomic.Int32
	for i := 0; i < 10; i++ {
		job := pdfJob("doc.pdf")
		job.Callbacks = poll.Callbacks{OnComplete: func(any) { completed.Add(1) }}
		if err := q.Enqueue(context.Background(), job); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	q.Shutdown(context.Background())

	if got := len(runner.sources); got != 10 {
		t.Fatalf("ran %d jobs, want 10", got)
	}
	if completed.Load() != 10 || outcomes.Load() != 10 {
		t.Fatalf("completed=%d outcomes=%d", completed.Load(), outcomes.Load())
	}
	if peak := runner.peak.Load(); peak > 3 {
		t.Fatalf("peak concurrency %d exceeds worker count", peak)
	}
}

func TestProcessorQueueRejectsAfterShutdown(t *testing.T) {
	q := NewProcessorQueue(&fakeRunner{}, discardLogger(), WithWorkers(1))
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	if err := q.Enqueue(context.Background(), pdfJob("late.pdf")); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("err = %v, want ErrQueueClosed", err)
	}
}

func TestProcessorQueueShutdownCancelsRunningJobs(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	var cancelled atomic.Int32
	q := NewProcessorQueue(runner, discardLogger(),
		WithWorkers(2),
		WithOutcomeHandler(func(_ Job, out core.Outcome) {
			if out.State == constants.SessionCancelled {
				cancelled.Add(1)
			}
		}),
	)
	for i := 0; i < 2; i++ {
		if err := q.Enqueue(context.Background(), pdfJob("slow.pdf")); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	q.Shutdown(ctx)

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("shutdown took %s", elapsed)
	}
	if cancelled.Load() != 2 {
		t.Fatalf("cancelled = %d, want 2", cancelled.Load())
	}
}

func TestProcessorQueueProcessTimeout(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	done := make(chan core.Outcome, 1)
	q := NewProcessorQueue(runner, discardLogger(),
		WithWorkers(1),
		WithProcessTimeout(20*time.Millisecond),
		WithOutcomeHandler(func(_ Job, out core.Outcome) { done <- out }),
	)
	defer q.Shutdown(context.Background())

	if err := q.Enqueue(context.Background(), pdfJob("slow.pdf")); err != nil {
		t.Fatal(err)
	}
	select {
	case out := <-done:
		if out.State != constants.SessionCancelled {
			t.Fatalf("state = %s", out.State)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job was not bounded by the process timeout")
	}
}

func TestEnqueueStampsJob(t *testing.T) {
	var got Job
	done := make(chan struct{})
	q := NewProcessorQueue(&fakeRunner{}, discardLogger(),
		WithWorkers(1),
		WithOutcomeHandler(func(j Job, _ core.Outcome) { got = j; close(done) }),
	)
	if err := q.Enqueue(context.Background(), pdfJob("a.pdf")); err != nil {
		t.Fatal(err)
	}
	<-done
	q.Shutdown(context.Background())
	if got.TraceID == "" || got.SubmittedAt.IsZero() {
		t.Fatalf("job not stamped: %+v", got)
	}
}

func TestShutdownReleasesBlockedEnqueue(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	q := NewProcessorQueue(runner, discardLogger(), WithWorkers(1), WithQueueSize(1))

	ctx := context.Background()
	if err := q.Enqueue(ctx, pdfJob("running.pdf")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for runner.active.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("worker never picked up the first job")
		}
		time.Sleep(time.Millisecond)
	}
	if err := q.Enqueue(ctx, pdfJob("buffered.pdf")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	blocked := make(chan error, 1)
	go func() { blocked <- q.Enqueue(ctx, pdfJob("waiting.pdf")) }()
	time.Sleep(20 * time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	q.Shutdown(shutdownCtx)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Shutdown took %s with a 100ms deadline", elapsed)
	}

	select {
	case err := <-blocked:
		if !errors.Is(err, ErrQueueClosed) {
			t.Fatalf("blocked Enqueue err = %v, want ErrQueueClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Enqueue was not released by Shutdown")
	}
}
