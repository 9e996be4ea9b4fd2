package core

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/jobwatch/constants"
	"github.com/joseph-ayodele/jobwatch/internal/client"
	"github.com/joseph-ayodele/jobwatch/internal/common"
	"github.com/joseph-ayodele/jobwatch/internal/entity"
	"github.com/joseph-ayodele/jobwatch/internal/journal"
	"github.com/joseph-ayodele/jobwatch/internal/poll"
	"github.com/joseph-ayodele/jobwatch/internal/validate"
)

// Recorder receives journal entries. *journal.Journal satisfies it.
type Recorder interface {
	Append(ctx context.Context, e journal.Entry) (journal.Entry, error)
}

// Outcome is what one Run ended with. Payload is the validated result and is
// only set when State is DONE.
type Outcome struct {
	RunID   string
	Handle  entity.TaskHandle
	State   constants.SessionState
	Payload any
	Err     error
}

// Processor coordinates submit -> poll -> validate for one job at a time.
// It is safe for concurrent use; every Run owns its own polling session.
type Processor struct {
	submitter      *client.Submitter
	engine         *poll.Engine
	recorder       Recorder
	validators     map[constants.JobKind]validate.ResultValidator
	maxUploadBytes int64
	logger         *slog.Logger
}

type ProcessorOption func(*Processor)

// WithRecorder journals every event of every run.
func WithRecorder(r Recorder) ProcessorOption {
	return func(p *Processor) { p.recorder = r }
}

// WithValidator sets the result validator for kind, replacing the default.
func WithValidator(kind constants.JobKind, v validate.ResultValidator) ProcessorOption {
	return func(p *Processor) {
		if v != nil {
			p.validators[kind] = v
		}
	}
}

// WithMaxUploadBytes overrides the per-file upload ceiling.
func WithMaxUploadBytes(n int64) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.maxUploadBytes = n
		}
	}
}

// NewProcessor wires a submitter and a polling engine. By default each job
// kind's result must carry its text field with more than
// DefaultMinResultLength characters.
func NewProcessor(submitter *client.Submitter, engine *poll.Engine, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		submitter:      submitter,
		engine:         engine,
		validators:     DefaultValidators(DefaultMinResultLength),
		maxUploadBytes: constants.MaxUploadBytes,
		logger:         logger,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run submits in and follows the task to the end. cb sees every progress
// update, then exactly one of OnComplete (with the validated payload) or
// OnError (submission failure, remote failure, timeout or rejected result).
// Nothing is delivered once ctx is cancelled.
func (p *Processor) Run(ctx context.Context, in entity.JobInput, cb poll.Callbacks) Outcome {
	runID := uuid.New().String()
	logger := p.logger.With("run_id", runID, "kind", in.Kind, "source", in.Source())
	rec := &runRecorder{recorder: p.recorder, ctx: context.WithoutCancel(ctx), runID: runID, in: in, logger: logger}
	out := Outcome{RunID: runID}

	fail := func(err error) Outcome {
		out.State = constants.SessionFailed
		out.Err = err
		if ctx.Err() != nil {
			out.State = constants.SessionCancelled
			rec.add(journal.EventCancelled, "", "", 0)
			return out
		}
		rec.add(journal.EventError, "", common.UserMessage(err), 0)
		if cb.OnError != nil {
			cb.OnError(err)
		}
		return out
	}

	if err := p.checkInput(in); err != nil {
		logger.Warn("processor.input.rejected", "error", err)
		return fail(err)
	}

	handle, err := p.submitter.Submit(ctx, in)
	if err != nil {
		return fail(err)
	}
	out.Handle = handle
	rec.handle = handle
	rec.add(journal.EventSubmitted, "", "", 0)

	validator := p.validators[in.Kind]
	var (
		validated any
		rejected  error
		delivered bool
	)
	// silenced reports whether ctx ended while a wrapper was working, in
	// which case the caller's callback is not invoked.
	silenced := func() bool { return ctx.Err() != nil }

	session := p.engine.Start(ctx, handle, poll.Callbacks{
		OnUpdate: func(u poll.Update) {
			ev := journal.EventUpdate
			if u.Transient {
				ev = journal.EventTransient
			}
			rec.add(ev, string(u.State), u.Text, u.Attempt)
			if cb.OnUpdate != nil && !silenced() {
				cb.OnUpdate(u)
			}
		},
		OnComplete: func(payload any) {
			v := payload
			var err error
			if validator != nil {
				v, err = validator.Validate(payload)
			}
			if silenced() {
				return
			}
			delivered = true
			if err != nil {
				rejected = err
				logger.Warn("processor.result.rejected", "task_id", handle, "error", err)
				rec.add(journal.EventRejected, string(constants.TaskStateDone), common.UserMessage(err), 0)
				if cb.OnError != nil {
					cb.OnError(err)
				}
				return
			}
			validated = v
			rec.add(journal.EventComplete, string(constants.TaskStateDone), "", 0)
			if cb.OnComplete != nil {
				cb.OnComplete(v)
			}
		},
		OnError: func(err error) {
			if silenced() {
				return
			}
			delivered = true
			rec.add(journal.EventError, "", common.UserMessage(err), 0)
			if cb.OnError != nil {
				cb.OnError(err)
			}
		},
	})
	sessionLogger := logger.With("task_id", handle, "session_id", session.ID())

	res := session.Wait()
	out.State = res.State
	out.Err = res.Err
	switch {
	case res.State == constants.SessionCancelled || (!delivered && ctx.Err() != nil):
		// cancelled by the engine, or ctx ended before the terminal callback
		out.State = constants.SessionCancelled
		out.Err = nil
		rec.add(journal.EventCancelled, "", "", 0)
		sessionLogger.Info("processor.run.cancelled", "remote_state", res.State)
	case res.State == constants.SessionDone && rejected != nil:
		out.State = constants.SessionFailed
		out.Err = rejected
		sessionLogger.Warn("processor.run.rejected", "error", rejected)
	case res.State == constants.SessionDone:
		out.Payload = validated
		sessionLogger.Info("processor.run.done")
	default:
		sessionLogger.Warn("processor.run.failed", "state", res.State, "error", res.Err)
	}
	return out
}

// checkInput applies the local upload rules before anything is sent.
func (p *Processor) checkInput(in entity.JobInput) error {
	if _, ok := constants.AllowedExtensions[in.Kind]; !ok {
		return common.SubmissionError(fmt.Sprintf("unknown job kind %q", in.Kind), common.ErrInvalidInput)
	}
	switch in.Kind {
	case constants.JobKindProcessPDF:
		if len(in.Files) == 0 {
			return common.SubmissionError("a PDF file is required", common.ErrInvalidInput)
		}
	case constants.JobKindGenerateSentence:
		if strings.TrimSpace(in.Fields[FieldReport]) == "" {
			return common.SubmissionError("a report is required", common.ErrInvalidInput)
		}
	}
	for _, f := range in.Files {
		ext := filepath.Ext(f.Name())
		if !constants.Allowed(in.Kind, ext) {
			return common.SubmissionError(fmt.Sprintf("%s: file type %q not accepted for %s", f.Name(), ext, in.Kind), common.ErrInvalidInput)
		}
		size, err := f.Size()
		if err != nil {
			return common.SubmissionError(fmt.Sprintf("%s: cannot read file", f.Name()), err)
		}
		if size == 0 {
			return common.SubmissionError(fmt.Sprintf("%s: file is empty", f.Name()), common.ErrInvalidInput)
		}
		if size > p.maxUploadBytes {
			return common.SubmissionError(
				fmt.Sprintf("%s: file too large (%d bytes, maximum %d)", f.Name(), size, p.maxUploadBytes), common.ErrInvalidInput)
		}
	}
	return nil
}

// runRecorder journals the events of one run. Journal failures are logged
// and never affect the run.
type runRecorder struct {
	recorder Recorder
	ctx      context.Context
	runID    string
	handle   entity.TaskHandle
	in       entity.JobInput
	logger   *slog.Logger
}

func (r *runRecorder) add(ev journal.Event, state, msg string, attempt int) {
	if r.recorder == nil {
		return
	}
	_, err := r.recorder.Append(r.ctx, journal.Entry{
		SessionID: r.runID,
		TaskID:    string(r.handle),
		JobKind:   string(r.in.Kind),
		Source:    r.in.Source(),
		Event:     ev,
		State:     state,
		Message:   msg,
		Attempt:   attempt,
	})
	if err != nil {
		r.logger.Warn("processor.journal.append_failed", "event", ev, "error", err)
	}
}
