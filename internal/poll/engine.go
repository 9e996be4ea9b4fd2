package poll

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/jobwatch/constants"
	"github.com/joseph-ayodele/jobwatch/internal/common"
	"github.com/joseph-ayodele/jobwatch/internal/entity"
)

// Fetcher issues one status call for a task.
type Fetcher interface {
	FetchStatus(ctx context.Context, handle entity.TaskHandle) (RawStatus, error)
}

// FetcherFunc adapts a plain function to Fetcher.
type FetcherFunc func(ctx context.Context, handle entity.TaskHandle) (RawStatus, error)

func (f FetcherFunc) FetchStatus(ctx context.Context, handle entity.TaskHandle) (RawStatus, error) {
	return f(ctx, handle)
}

// Config controls polling cadence and session lifetime.
type Config struct {
	// Interval between the end of one tick and the start of the next.
	Interval time.Duration
	// Timeout caps the session; once it passes the session ends TIMED_OUT
	// whatever the remote reports.
	Timeout time.Duration
	// AnnounceRetries emits a transient OnUpdate when a status fetch fails.
	AnnounceRetries bool
}

// Validate enforces Interval > 0 and Timeout > Interval.
func (c Config) Validate() error {
	v := common.NewValidator()
	v.Field("interval", c.Interval, common.Positive)
	v.Field("timeout", c.Timeout, common.Positive)
	v.Check(c.Timeout > c.Interval, "timeout", c.Timeout, "must be greater than interval")
	return v.AppError(common.CodeConfig)
}

// Default progress texts used when the remote sends none.
const (
	TextQueued        = "Task queued, waiting for a worker"
	TextProcessing    = "Processing"
	TextStillChecking = "Still checking task status"
)

// Update is one progress notification.
type Update struct {
	Handle    entity.TaskHandle
	State     constants.TaskState
	Text      string
	Attempt   int
	Transient bool
	Elapsed   time.Duration
	Remaining time.Duration
}

// Callbacks receive a session's notifications. Any of them may be nil.
// OnUpdate may fire many times; exactly one of OnComplete and OnError fires
// for a session that reaches DONE, FAILED or TIMED_OUT; none fires once the
// session is cancelled.
type Callbacks struct {
	OnUpdate   func(Update)
	OnComplete func(payload any)
	OnError    func(err error)
}

// Result is what Session.Wait resolves to.
type Result struct {
	State   constants.SessionState
	Payload any
	Err     error
}

// Engine starts polling sessions. It holds no per-session state and may be
// shared by any number of concurrent sessions.
type Engine struct {
	fetcher Fetcher
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock replaces time.Now for deadline checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New validates cfg and returns an Engine polling through fetcher.
func New(fetcher Fetcher, cfg Config, opts ...Option) (*Engine, error) {
	if fetcher == nil {
		return nil, common.NewAppError(common.CodeConfig, "status fetcher is required", common.ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Config returns the engine's polling configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Start begins polling handle and returns the session driving it. The first
// tick runs immediately. Cancelling ctx has the same effect as Session.Cancel.
func (e *Engine) Start(ctx context.Context, handle entity.TaskHandle, cb Callbacks) *Session {
	s := newSession(ctx, e, handle, cb)
	s.logger.Info("poll.session.start",
		"interval", e.cfg.Interval.String(),
		"timeout", e.cfg.Timeout.String(),
	)
	go s.run()
	return s
}

// Watch runs a session to completion and returns its result.
func (e *Engine) Watch(ctx context.Context, handle entity.TaskHandle, cb Callbacks) Result {
	return e.Start(ctx, handle, cb).Wait()
}

func (s *Session) run() {
	defer close(s.done)
	defer s.cancel()

	s.setState(constants.SessionPolling)

	for attempt := 1; ; attempt++ {
		if s.isCancelled() {
			s.finishCancelled()
			return
		}

		dl := Remaining(s.start, s.now(), s.timeout)
		if dl.Expired {
			err := common.TimeoutError(fmt.Sprintf("task %s did not finish within %s", s.handle, s.timeout))
			s.terminate(Result{State: constants.SessionTimedOut, Err: err}, attempt)
			return
		}

		raw, err := s.fetch(dl.Remaining)
		if s.isCancelled() {
			// the reply belongs to a cancelled session; drop it
			s.finishCancelled()
			return
		}

		if err != nil {
			s.logger.Warn("poll.tick.transport_error", "attempt", attempt, "error", err)
			if s.announce {
				s.notifyUpdate(Update{
					State:     constants.TaskStateProcessing,
					Text:      TextStillChecking,
					Attempt:   attempt,
					Transient: true,
				})
			}
		} else {
			snap := Decode(raw)
			switch snap.State {
			case constants.TaskStateDone:
				s.terminate(Result{State: constants.SessionDone, Payload: snap.Payload}, attempt)
				return
			case constants.TaskStateFailed:
				s.terminate(Result{State: constants.SessionFailed, Err: common.TaskFailedError(snap.ErrorMessage)}, attempt)
				return
			default:
				text := snap.ProgressText
				if text == "" {
					text = defaultText(snap.State)
				}
				s.logger.Debug("poll.tick.update", "attempt", attempt, "state", snap.State, "progress", text)
				s.notifyUpdate(Update{State: snap.State, Text: text, Attempt: attempt})
			}
		}

		if !s.sleep() {
			s.finishCancelled()
			return
		}
	}
}

// fetch performs the tick's single status call, bounded by the time left in
// the session so a hung call cannot outlive the deadline.
func (s *Session) fetch(remaining time.Duration) (RawStatus, error) {
	ctx, cancel := context.WithTimeout(s.ctx, remaining)
	defer cancel()
	return s.fetcher.FetchStatus(common.WithSessionID(ctx, s.id), s.handle)
}

// sleep waits for the next tick. It never waits past the deadline, so an
// expired session is reported close to its timeout. It returns false when the
// session was cancelled while waiting.
func (s *Session) sleep() bool {
	wait := s.interval
	if dl := Remaining(s.start, s.now(), s.timeout); !dl.Expired && dl.Remaining < wait {
		wait = dl.Remaining
	} else if dl.Expired {
		wait = 0
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func defaultText(state constants.TaskState) string {
	if state == constants.TaskStateQueued {
		return TextQueued
	}
	return TextProcessing
}
