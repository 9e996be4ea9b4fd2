package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/joseph-ayodele/jobwatch/constants"
	"github.com/joseph-ayodele/jobwatch/internal/common"
	"github.com/joseph-ayodele/jobwatch/internal/entity"
)

type fakeCaller struct {
	reply Reply
	err   error
	calls int
}

func (f *fakeCaller) Submit(ctx context.Context, in entity.JobInput) (Reply, error) {
	f.calls++
	return f.reply, f.err
}

func (f *fakeCaller) Status(ctx context.Context, handle entity.TaskHandle) (Reply, error) {
	f.calls++
	return f.reply, f.err
}

func TestSubmitterSubmit(t *testing.T) {
	in := entity.JobInput{Kind: constants.JobKindProcessPDF}

	tests := []struct {
		name       string
		caller     *fakeCaller
		opts       []SubmitterOption
		want       entity.TaskHandle
		errContain string
	}{
		{
			name:   "accepted",
			caller: &fakeCaller{reply: Reply{StatusCode: http.StatusOK, Body: map[string]any{"task_id": "abc"}}},
			want:   "abc",
		},
		{
			name:   "numeric id",
			caller: &fakeCaller{reply: Reply{StatusCode: http.StatusAccepted, Body: map[string]any{"task_id": float64(42)}}},
			want:   "42",
		},
		{
			name:   "custom id field",
			caller: &fakeCaller{reply: Reply{StatusCode: http.StatusOK, Body: map[string]any{"job": "j-1"}}},
			opts:   []SubmitterOption{WithIDField("job")},
			want:   "j-1",
		},
		{
			name:       "call error",
			caller:     &fakeCaller{err: errors.New("connection refused")},
			errContain: "submission call failed",
		},
		{
			name:       "rejected with detail",
			caller:     &fakeCaller{reply: Reply{StatusCode: http.StatusBadRequest, Body: map[string]any{"detail": "Apenas arquivos PDF são aceitos"}}},
			errContain: "Apenas arquivos PDF",
		},
		{
			name:       "non-json body",
			caller:     &fakeCaller{reply: Reply{StatusCode: http.StatusOK, Raw: []byte("ok")}},
			errContain: "not a JSON object",
		},
		{
			name:       "missing id",
			caller:     &fakeCaller{reply: Reply{StatusCode: http.StatusOK, Body: map[string]any{"status": "PENDING"}}},
			errContain: `no "task_id"`,
		},
		{
			name:       "blank id",
			caller:     &fakeCaller{reply: Reply{StatusCode: http.StatusOK, Body: map[string]any{"task_id": "  "}}},
			errContain: `no "task_id"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSubmitter(tt.caller, discardLogger(), tt.opts...)
			got, err := s.Submit(context.Background(), in)
			if tt.errContain != "" {
				if !errors.Is(err, common.ErrSubmission) {
					t.Fatalf("err = %v, want submission error", err)
				}
				if !strings.Contains(err.Error(), tt.errContain) {
					t.Fatalf("err = %q, want it to contain %q", err, tt.errContain)
				}
				return
			}
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if got != tt.want {
				t.Fatalf("handle = %q, want %q", got, tt.want)
			}
			if tt.caller.calls != 1 {
				t.Fatalf("calls = %d, want exactly one", tt.caller.calls)
			}
		})
	}
}

func TestSubmitterRequiresKind(t *testing.T) {
	caller := &fakeCaller{}
	_, err := NewSubmitter(caller, discardLogger()).Submit(context.Background(), entity.JobInput{})
	if !errors.Is(err, common.ErrSubmission) || !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
	if caller.calls != 0 {
		t.Fatal("caller should not be reached without a kind")
	}
}
