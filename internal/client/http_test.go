package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joseph-ayodele/jobwatch/constants"
	"github.com/joseph-ayodele/jobwatch/internal/common"
	"github.com/joseph-ayodele/jobwatch/internal/entity"
	"github.com/joseph-ayodele/jobwatch/internal/poll"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCaller(url string) *HTTPCaller {
	return NewHTTPCaller(HTTPConfig{BaseURL: url + "/", APIKey: "secret"}, nil, discardLogger())
}

func TestHTTPCallerSubmitMultipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/queue/processar" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		f, hdr, err := r.FormFile("pdf")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		if hdr.Filename != "caso.pdf" || string(b) != "%PDF-1.4" {
			t.Errorf("file = %s %q", hdr.Filename, b)
		}
		if got := r.FormValue("numero_processo"); got != "0001234-56.2024.8.17.0001" {
			t.Errorf("numero_processo = %q", got)
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"task_id":"abc"}`))
	}))
	defer server.Close()

	c := newTestCaller(server.URL)
	reply, err := c.Submit(context.Background(), entity.JobInput{
		Kind:   constants.JobKindProcessPDF,
		Files:  []entity.FilePart{{Field: "pdf", Filename: "caso.pdf", Content: []byte("%PDF-1.4")}},
		Fields: map[string]string{"numero_processo": "0001234-56.2024.8.17.0001"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if reply.StatusCode != http.StatusAccepted || reply.Body["task_id"] != "abc" {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestHTTPCallerSubmitFromDisk(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "doc.pdf")
	if err := os.WriteFile(p, []byte("disk-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("pdf")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		if hdr.Filename != "doc.pdf" || string(b) != "disk-bytes" {
			t.Errorf("file = %s %q", hdr.Filename, b)
		}
		_, _ = w.Write([]byte(`{"task_id":"disk"}`))
	}))
	defer server.Close()

	c := newTestCaller(server.URL)
	reply, err := c.Submit(context.Background(), entity.JobInput{
		Kind:  constants.JobKindProcessPDF,
		Files: []entity.FilePart{{Field: "pdf", Path: p}},
	})
	if err != nil || reply.Body["task_id"] != "disk" {
		t.Fatalf("reply=%+v err=%v", reply, err)
	}
}

func TestHTTPCallerSubmitMissingFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := newTestCaller(server.URL)
	reply, err := c.Submit(context.Background(), entity.JobInput{
		Kind:  constants.JobKindProcessPDF,
		Files: []entity.FilePart{{Field: "pdf", Path: filepath.Join(t.TempDir(), "missing.pdf")}},
	})
	if err == nil && reply.OK() {
		t.Fatal("expected failure for unreadable file")
	}
}

func TestHTTPCallerStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/queue/status/abc" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"task_id":"abc","status":"PROCESSING","progress":"parsing"}`))
	}))
	defer server.Close()

	f := NewStatusFetcher(newTestCaller(server.URL))
	raw, err := f.FetchStatus(context.Background(), "abc")
	if err != nil {
		t.Fatalf("FetchStatus: %v", err)
	}
	snap := poll.Decode(raw)
	if snap.State != constants.TaskStateProcessing || snap.ProgressText != "parsing" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestStatusFetcherTransportErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }},
		{"not json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("<html>")) }},
		{"json array", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`[1,2]`)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()
			_, err := NewStatusFetcher(newTestCaller(server.URL)).FetchStatus(context.Background(), "x")
			if !errors.Is(err, common.ErrTransport) {
				t.Fatalf("err = %v, want transport error", err)
			}
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		c := NewHTTPCaller(HTTPConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, nil, discardLogger())
		_, err := NewStatusFetcher(c).FetchStatus(context.Background(), "x")
		if !errors.Is(err, common.ErrTransport) {
			t.Fatalf("err = %v, want transport error", err)
		}
	})
}

func TestHTTPCallerDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/download/sentenca/sentenca_123.docx":
			_, _ = w.Write([]byte("docx-bytes"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := newTestCaller(server.URL)
	dir := t.TempDir()
	dest, err := c.Download(context.Background(), "/download/sentenca/sentenca_123.docx", dir)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	b, _ := os.ReadFile(dest)
	if filepath.Base(dest) != "sentenca_123.docx" || string(b) != "docx-bytes" {
		t.Fatalf("dest=%s content=%q", dest, b)
	}

	_, err = c.Download(context.Background(), server.URL+"/download/missing.zip", dir)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
}

func TestHTTPCallerDownloadRejectsBadNames(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("x"))
	}))
	defer server.Close()

	c := newTestCaller(server.URL)
	dir := filepath.Join(t.TempDir(), "downloads")
	for _, ref := range []string{"/..", "/download/%2e%2e", "/download/..", "/", "/download/a%5Cb.docx"} {
		if dest, err := c.Download(context.Background(), ref, dir); err == nil {
			t.Errorf("Download(%q) = %s, want error", ref, dest)
		}
	}
	if hits != 0 {
		t.Errorf("server hit %d times for rejected refs", hits)
	}
}
