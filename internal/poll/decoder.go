package poll

import (
	"strings"

	"github.com/joseph-ayodele/jobwatch/constants"
)

// RawStatus is one status reply as decoded from the wire (a JSON object or a
// protobuf Struct converted to a map).
type RawStatus map[string]any

// StatusSnapshot is the decoded view of one status reply. A fresh value is
// produced on every tick.
type StatusSnapshot struct {
	State        constants.TaskState
	ProgressText string
	Payload      any
	ErrorMessage string
}

const (
	MsgResultMissing = "result missing"
	MsgTaskFailed    = "task failed"
)

var (
	stateKeys    = []string{"state", "status"}
	progressKeys = []string{"progress", "message"}
	payloadKeys  = []string{"result", "payload"}
	errorKeys    = []string{"error", "error_message", "detail"}
)

// Decode maps a raw status reply onto a StatusSnapshot. It has no side effects.
//
// A missing or unrecognized state decodes as PROCESSING with no progress text,
// so a server that omits the field for a moment does not end the session.
// FAILED always carries a message, and DONE without a payload is reported as
// FAILED with MsgResultMissing.
func Decode(raw RawStatus) StatusSnapshot {
	state, ok := constants.ParseTaskState(firstString(raw, stateKeys))
	if !ok {
		return StatusSnapshot{State: constants.TaskStateProcessing}
	}

	switch state {
	case constants.TaskStateDone:
		payload := firstPresent(raw, payloadKeys)
		if payload == nil {
			return StatusSnapshot{State: constants.TaskStateFailed, ErrorMessage: MsgResultMissing}
		}
		return StatusSnapshot{State: constants.TaskStateDone, Payload: payload}
	case constants.TaskStateFailed:
		msg := firstMessage(raw, errorKeys)
		if msg == "" {
			msg = MsgTaskFailed
		}
		return StatusSnapshot{State: constants.TaskStateFailed, ErrorMessage: msg}
	default:
		return StatusSnapshot{State: state, ProgressText: progressText(raw["progress"])}
	}
}

// progressText accepts either a plain string or the {"progress": "..."} meta
// object some workers report.
func progressText(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		return firstString(t, progressKeys)
	default:
		return ""
	}
}

func firstString(m map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstMessage(m map[string]any, keys []string) string {
	for _, k := range keys {
		switch t := m[k].(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		case map[string]any:
			if s := firstString(t, []string{"message", "detail"}); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstPresent(m map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && !isEmpty(v) {
			return v
		}
	}
	return nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}
