package client

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/jobwatch/internal/common"
	"github.com/joseph-ayodele/jobwatch/internal/entity"
)

// DefaultIDField is the reply field that carries the task identifier.
const DefaultIDField = "task_id"

// Submitter performs the accept call and extracts the task handle.
// It never retries; the caller decides whether to submit again.
type Submitter struct {
	caller  Caller
	idField string
	logger  *slog.Logger
}

type SubmitterOption func(*Submitter)

// WithIDField overrides the reply field holding the task identifier.
func WithIDField(field string) SubmitterOption {
	return func(s *Submitter) {
		if field != "" {
			s.idField = field
		}
	}
}

func NewSubmitter(caller Caller, logger *slog.Logger, opts ...SubmitterOption) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Submitter{caller: caller, idField: DefaultIDField, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Submit sends in and returns the handle of the accepted task. Every failure
// is a submission error (errors.Is(err, common.ErrSubmission)).
func (s *Submitter) Submit(ctx context.Context, in entity.JobInput) (entity.TaskHandle, error) {
	if in.Kind == "" {
		return "", common.SubmissionError("job kind is required", common.ErrInvalidInput)
	}

	reply, err := s.caller.Submit(ctx, in)
	if err != nil {
		s.logger.Error("submit.call_failed", "kind", in.Kind, "source", in.Source(), "error", err)
		return "", common.SubmissionError("submission call failed", err)
	}
	if !reply.OK() {
		msg := fmt.Sprintf("submission rejected with status %d", reply.StatusCode)
		if detail := replyDetail(reply); detail != "" {
			msg += ": " + detail
		}
		s.logger.Error("submit.rejected", "kind", in.Kind, "status", reply.StatusCode, "detail", replyDetail(reply))
		return "", common.SubmissionError(msg, nil)
	}
	if reply.Body == nil {
		s.logger.Error("submit.bad_body", "kind", in.Kind, "bytes", len(reply.Raw))
		return "", common.SubmissionError("submission reply is not a JSON object", nil)
	}

	id := identifier(reply.Body[s.idField])
	if id == "" {
		s.logger.Error("submit.missing_id", "kind", in.Kind, "field", s.idField)
		return "", common.SubmissionError(fmt.Sprintf("submission reply has no %q", s.idField), nil)
	}

	s.logger.Info("submit.accepted", "kind", in.Kind, "source", in.Source(), "task_id", id)
	return entity.TaskHandle(id), nil
}

func identifier(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// replyDetail pulls the server's explanation out of an error body
// (FastAPI-style {"detail": "..."} or {"error": "..."}).
func replyDetail(r Reply) string {
	for _, k := range []string{"detail", "error", "message"} {
		if s, ok := r.Body[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
