package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joseph-ayodele/jobwatch/constants"
	"github.com/joseph-ayodele/jobwatch/internal/common"
	"github.com/joseph-ayodele/jobwatch/internal/core"
	"github.com/joseph-ayodele/jobwatch/internal/poll"
)

func testConfig(url string) *common.Config {
	cfg := common.LoadConfig()
	cfg.Service.Transport = common.TransportHTTP
	cfg.Service.BaseURL = url
	cfg.Poll.Interval = 5 * time.Millisecond
	cfg.Poll.Timeout = 5 * time.Second
	cfg.Validation.MinResultLength = 10
	return cfg
}

func TestBuildRunsPDFJob(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/queue/processar":
			_, _ = w.Write([]byte(`{"task_id":"t-1","status":"PENDING"}`))
		case r.URL.Path == "/queue/status/t-1":
			if polls.Add(1) < 2 {
				_, _ = w.Write([]byte(`{"status":"PROCESSING","progress":"lendo"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"SUCCESS","result":{"relatorio":"` + strings.Repeat("r", 20) + `"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	pdf := filepath.Join(t.TempDir(), "caso.pdf")
	if err := os.WriteFile(pdf, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Build(context.Background(), testConfig(server.URL), logger)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer s.Cleanup()
	if s.HTTP == nil {
		t.Fatal("HTTP caller not built for http transport")
	}

	out := s.Processor.Run(context.Background(), core.PDFJob(pdf), poll.Callbacks{})
	if out.State != constants.SessionDone || out.Err != nil {
		t.Fatalf("outcome = %+v", out)
	}
	if got := core.ResultText(constants.JobKindProcessPDF, out.Payload); len(got) != 20 {
		t.Fatalf("result text = %q", got)
	}

	entries, err := s.Journal.Entries(context.Background(), out.RunID)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) == 0 || entries[len(entries)-1].TaskID != "t-1" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestBuildRejectsBadPollConfig(t *testing.T) {
	cfg := testConfig("http://localhost:1")
	cfg.Poll.Timeout = cfg.Poll.Interval
	if _, err := Build(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error when timeout does not exceed interval")
	}
}
