package constants

import "strings"

// TaskState is the decoded remote state of a task, as reported by the status call.
type TaskState string

// Stable values.
const (
	TaskStateQueued     TaskState = "QUEUED"
	TaskStateProcessing TaskState = "PROCESSING"
	TaskStateDone       TaskState = "DONE"
	TaskStateFailed     TaskState = "FAILED"
)

// wireStates maps the spellings used by task backends onto TaskState.
// Celery reports PENDING/STARTED/RETRY/SUCCESS/FAILURE, the queue API
// reports PENDING/PROCESSING/COMPLETED/FAILED/RETRY.
var wireStates = map[string]TaskState{
	"QUEUED":     TaskStateQueued,
	"PENDING":    TaskStateQueued,
	"RECEIVED":   TaskStateQueued,
	"SCHEDULED":  TaskStateQueued,
	"PROCESSING": TaskStateProcessing,
	"STARTED":    TaskStateProcessing,
	"RUNNING":    TaskStateProcessing,
	"PROGRESS":   TaskStateProcessing,
	"RETRY":      TaskStateProcessing,
	"DONE":       TaskStateDone,
	"COMPLETED":  TaskStateDone,
	"SUCCESS":    TaskStateDone,
	"FAILED":     TaskStateFailed,
	"FAILURE":    TaskStateFailed,
	"ERROR":      TaskStateFailed,
	"REVOKED":    TaskStateFailed,
}

// ParseTaskState normalizes a wire state. ok is false for empty or unknown values.
func ParseTaskState(s string) (TaskState, bool) {
	st, ok := wireStates[strings.ToUpper(strings.TrimSpace(s))]
	return st, ok
}

// IsTerminal reports whether the remote state ends a session.
func (s TaskState) IsTerminal() bool {
	return s == TaskStateDone || s == TaskStateFailed
}

// SessionState is the polling engine's own lifecycle state.
type SessionState string

const (
	SessionStarting  SessionState = "STARTING"
	SessionPolling   SessionState = "POLLING"
	SessionDone      SessionState = "DONE"
	SessionFailed    SessionState = "FAILED"
	SessionTimedOut  SessionState = "TIMED_OUT"
	SessionCancelled SessionState = "CANCELLED"
)

// IsTerminal reports whether no transition can leave s.
func (s SessionState) IsTerminal() bool {
	switch s {
	case SessionDone, SessionFailed, SessionTimedOut, SessionCancelled:
		return true
	default:
		return false
	}
}
