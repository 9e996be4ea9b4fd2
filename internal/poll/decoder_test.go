package poll

import (
	"testing"

	"github.com/joseph-ayodele/jobwatch/constants"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		raw       RawStatus
		wantState constants.TaskState
		wantText  string
		wantErr   string
		payload   bool
	}{
		{
			name:      "missing state is processing",
			raw:       RawStatus{"progress": "ignored"},
			wantState: constants.TaskStateProcessing,
		},
		{
			name:      "unknown state is processing",
			raw:       RawStatus{"state": "WEIRD", "progress": "ignored"},
			wantState: constants.TaskStateProcessing,
		},
		{
			name:      "queued with text",
			raw:       RawStatus{"state": "QUEUED", "progress": " waiting "},
			wantState: constants.TaskStateQueued,
			wantText:  "waiting",
		},
		{
			name:      "celery pending via status field",
			raw:       RawStatus{"status": "pending"},
			wantState: constants.TaskStateQueued,
		},
		{
			name:      "processing with meta object",
			raw:       RawStatus{"status": "PROCESSING", "progress": map[string]any{"progress": "Salvando arquivo PDF..."}},
			wantState: constants.TaskStateProcessing,
			wantText:  "Salvando arquivo PDF...",
		},
		{
			name:      "retry keeps working",
			raw:       RawStatus{"status": "RETRY"},
			wantState: constants.TaskStateProcessing,
		},
		{
			name:      "done with payload",
			raw:       RawStatus{"state": "DONE", "payload": map[string]any{"text": "x"}},
			wantState: constants.TaskStateDone,
			payload:   true,
		},
		{
			name:      "completed with result",
			raw:       RawStatus{"status": "COMPLETED", "result": map[string]any{"relatorio": "x"}},
			wantState: constants.TaskStateDone,
			payload:   true,
		},
		{
			name:      "done without payload fails",
			raw:       RawStatus{"state": "DONE"},
			wantState: constants.TaskStateFailed,
			wantErr:   MsgResultMissing,
		},
		{
			name:      "done with empty object fails",
			raw:       RawStatus{"state": "DONE", "result": map[string]any{}},
			wantState: constants.TaskStateFailed,
			wantErr:   MsgResultMissing,
		},
		{
			name:      "done with null result fails",
			raw:       RawStatus{"state": "SUCCESS", "result": nil},
			wantState: constants.TaskStateFailed,
			wantErr:   MsgResultMissing,
		},
		{
			name:      "failed with message",
			raw:       RawStatus{"state": "FAILED", "error": "pdf corrupted"},
			wantState: constants.TaskStateFailed,
			wantErr:   "pdf corrupted",
		},
		{
			name:      "failed with detail object",
			raw:       RawStatus{"status": "FAILURE", "error": map[string]any{"message": "worker lost"}},
			wantState: constants.TaskStateFailed,
			wantErr:   "worker lost",
		},
		{
			name:      "failed without message",
			raw:       RawStatus{"state": "FAILED", "error": "  "},
			wantState: constants.TaskStateFailed,
			wantErr:   MsgTaskFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.raw)
			if got.State != tt.wantState {
				t.Fatalf("state = %s, want %s", got.State, tt.wantState)
			}
			if got.ProgressText != tt.wantText {
				t.Errorf("progress = %q, want %q", got.ProgressText, tt.wantText)
			}
			if got.ErrorMessage != tt.wantErr {
				t.Errorf("error = %q, want %q", got.ErrorMessage, tt.wantErr)
			}
			if (got.Payload != nil) != tt.payload {
				t.Errorf("payload present = %t, want %t", got.Payload != nil, tt.payload)
			}
		})
	}
}

func TestDecodeNilMap(t *testing.T) {
	got := Decode(nil)
	if got.State != constants.TaskStateProcessing || got.ProgressText != "" {
		t.Fatalf("Decode(nil) = %+v, want bare PROCESSING", got)
	}
}
