package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/jobwatch/internal/common"
	"github.com/joseph-ayodele/jobwatch/internal/entity"
)

// HTTPConfig describes the document service's HTTP API.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// SubmitPath and StatusPath are fmt templates taking the job kind and the
	// task id respectively.
	SubmitPath string
	StatusPath string
}

const (
	DefaultSubmitPath = "/queue/%s"
	DefaultStatusPath = "/queue/status/%s"
)

// HTTPCaller speaks to the service over HTTP: multipart POST to submit, GET
// to read status.
type HTTPCaller struct {
	cfg    HTTPConfig
	client *http.Client
	logger *slog.Logger
}

func NewHTTPCaller(cfg HTTPConfig, client *http.Client, logger *slog.Logger) *HTTPCaller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.SubmitPath == "" {
		cfg.SubmitPath = DefaultSubmitPath
	}
	if cfg.StatusPath == "" {
		cfg.StatusPath = DefaultStatusPath
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPCaller{cfg: cfg, client: client, logger: logger}
}

// Submit streams in as a multipart form.
func (c *HTTPCaller) Submit(ctx context.Context, in entity.JobInput) (Reply, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		err := writeMultipart(writer, in)
		if err == nil {
			err = writer.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	endpoint := c.cfg.BaseURL + fmt.Sprintf(c.cfg.SubmitPath, url.PathEscape(string(in.Kind)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return Reply{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req)
}

func writeMultipart(w *multipart.Writer, in entity.JobInput) error {
	for _, f := range in.Files {
		part, err := w.CreateFormFile(f.Field, f.Name())
		if err != nil {
			return err
		}
		r, err := f.Open()
		if err != nil {
			return err
		}
		_, err = io.Copy(part, r)
		_ = r.Close()
		if err != nil {
			return err
		}
	}

	keys := make([]string, 0, len(in.Fields))
	for k := range in.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, in.Fields[k]); err != nil {
			return err
		}
	}
	return nil
}

// Status reads the task's current status.
func (c *HTTPCaller) Status(ctx context.Context, handle entity.TaskHandle) (Reply, error) {
	endpoint := c.cfg.BaseURL + fmt.Sprintf(c.cfg.StatusPath, url.PathEscape(string(handle)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Reply{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func (c *HTTPCaller) do(req *http.Request) (Reply, error) {
	reqID := uuid.New().String()
	start := time.Now()

	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	req.Header.Set("X-Request-ID", reqID)
	logger := c.logger.With("req_id", reqID)
	if sid := common.SessionIDFromContext(req.Context()); sid != "" {
		logger = logger.With("session_id", sid)
	}

	logger.Debug("client.http.request", "method", req.Method, "url", req.URL.String())

	resp, err := c.client.Do(req)
	if err != nil {
		logger.Warn("client.http.send_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return Reply{}, err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logger.Warn("client.http.response_body_close_error", "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Warn("client.http.read_error", "error", err)
		return Reply{}, fmt.Errorf("read body: %w", err)
	}

	logger.Debug("client.http.response",
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	reply := Reply{StatusCode: resp.StatusCode, Raw: raw}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err == nil {
		reply.Body = body
	}
	return reply, nil
}

// Download fetches an artifact referenced by a result (absolute URL or a path
// relative to BaseURL) into dir and returns the written file path.
func (c *HTTPCaller) Download(ctx context.Context, ref, dir string) (string, error) {
	target := ref
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		target = c.cfg.BaseURL + "/" + strings.TrimLeft(ref, "/")
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse artifact url: %w", err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("artifact url %q has no file name", ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("download %s: status %d", name, resp.StatusCode)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(dir, name)
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write %s: %w", dest, err)
	}
	c.logger.Info("client.http.download", "file", dest, "bytes", n)
	return dest, nil
}
