package poll

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/jobwatch/constants"
	"github.com/joseph-ayodele/jobwatch/internal/entity"
)

// Session is one polling run for one task handle. It is owned by the
// goroutine started in Engine.Start; callers interact with it only through
// Cancel, Wait, Done and the read-only accessors.
type Session struct {
	id       string
	handle   entity.TaskHandle
	start    time.Time
	interval time.Duration
	timeout  time.Duration
	announce bool

	fetcher Fetcher
	cb      Callbacks
	logger  *slog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	cancelled atomic.Bool
	// emitMu guards the decision to deliver a notification. It is released
	// before the callback runs, so Cancel never waits on a callback.
	emitMu sync.Mutex

	mu     sync.Mutex
	state  constants.SessionState
	result Result
	done   chan struct{}
}

func newSession(parent context.Context, e *Engine, handle entity.TaskHandle, cb Callbacks) *Session {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.New().String()
	return &Session{
		id:       id,
		handle:   handle,
		start:    e.now(),
		interval: e.cfg.Interval,
		timeout:  e.cfg.Timeout,
		announce: e.cfg.AnnounceRetries,
		fetcher:  e.fetcher,
		cb:       cb,
		logger:   e.logger.With("task_id", string(handle), "session_id", id),
		now:      e.now,
		ctx:      ctx,
		cancel:   cancel,
		state:    constants.SessionStarting,
		done:     make(chan struct{}),
	}
}

func (s *Session) ID() string                { return s.id }
func (s *Session) Handle() entity.TaskHandle { return s.handle }
func (s *Session) StartedAt() time.Time      { return s.start }

// State returns the current lifecycle state.
func (s *Session) State() constants.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the session has reached a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends and returns its outcome.
func (s *Session) Wait() Result {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Cancel stops the session. No fetch is issued and no callback starts after
// Cancel returns; a reply already in flight is discarded. A callback that had
// already started when Cancel was called may still be running when it
// returns; use Stop to wait for it. Cancel may be called from inside a
// callback. Cancel after a terminal state is a no-op.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
	s.cancel()
	// any emit that passed its check before the flag was set has now
	// committed to its callback; later ones see the flag
	s.emitMu.Lock()
	s.emitMu.Unlock()
}

// Stop cancels the session and waits until its goroutine has returned, so no
// callback is running once Stop returns. It must not be called from inside a
// callback.
func (s *Session) Stop() Result {
	s.Cancel()
	return s.Wait()
}

func (s *Session) isCancelled() bool {
	return s.cancelled.Load() || s.ctx.Err() != nil
}

func (s *Session) setState(st constants.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.IsTerminal() {
		s.state = st
	}
}

func (s *Session) finish(res Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsTerminal() {
		return false
	}
	s.state = res.State
	s.result = res
	return true
}

func (s *Session) finishCancelled() {
	if s.finish(Result{State: constants.SessionCancelled}) {
		s.logger.Info("poll.session.cancelled", "elapsed_ms", s.now().Sub(s.start).Milliseconds())
	}
}

// terminate enters a terminal state and fires the matching callback, unless
// the session was cancelled first, in which case it ends CANCELLED silently.
func (s *Session) terminate(res Result, attempt int) {
	fired := s.emit(func() bool { return s.finish(res) }, func() {
		switch res.State {
		case constants.SessionDone:
			if s.cb.OnComplete != nil {
				s.cb.OnComplete(res.Payload)
			}
		default:
			if s.cb.OnError != nil {
				s.cb.OnError(res.Err)
			}
		}
	})
	if !fired {
		s.finishCancelled()
		return
	}

	attrs := []any{"attempts", attempt, "elapsed_ms", s.now().Sub(s.start).Milliseconds()}
	switch res.State {
	case constants.SessionDone:
		s.logger.Info("poll.session.done", attrs...)
	case constants.SessionTimedOut:
		s.logger.Warn("poll.session.timed_out", attrs...)
	default:
		s.logger.Warn("poll.session.failed", append(attrs, "error", res.Err)...)
	}
}

func (s *Session) notifyUpdate(u Update) {
	u.Handle = s.handle
	u.Elapsed = s.now().Sub(s.start)
	if dl := Remaining(s.start, s.now(), s.timeout); !dl.Expired {
		u.Remaining = dl.Remaining
	}
	s.emit(nil, func() {
		if s.cb.OnUpdate != nil {
			s.cb.OnUpdate(u)
		}
	})
}

// emit delivers one notification unless the session is cancelled. prepare
// runs under the same lock as the cancellation check; returning false from it
// suppresses the notification.
func (s *Session) emit(prepare func() bool, notify func()) (fired bool) {
	if !s.commit(prepare) {
		return false
	}

	fired = true
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("poll.callback.panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	notify()
	return fired
}

func (s *Session) commit(prepare func() bool) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.isCancelled() {
		return false
	}
	return prepare == nil || prepare()
}
