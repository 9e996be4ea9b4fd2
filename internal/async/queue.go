package async

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/jobwatch/internal/core"
	"github.com/joseph-ayodele/jobwatch/internal/entity"
	"github.com/joseph-ayodele/jobwatch/internal/poll"
)

// ErrQueueClosed is returned by Enqueue after Shutdown has started.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one submission waiting for a worker.
type Job struct {
	Input       entity.JobInput
	Callbacks   poll.Callbacks
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Runner runs one job to completion. *core.Processor satisfies it.
type Runner interface {
	Run(ctx context.Context, in entity.JobInput, cb poll.Callbacks) core.Outcome
}
