package server

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/jobwatch/internal/common"
	"github.com/joseph-ayodele/jobwatch/internal/export"
	"github.com/joseph-ayodele/jobwatch/internal/ingest"
	"github.com/joseph-ayodele/jobwatch/internal/journal"
)

// SessionStore is the read side of the journal.
type SessionStore interface {
	Sessions(ctx context.Context) ([]journal.Entry, error)
	Entries(ctx context.Context, sessionID string) ([]journal.Entry, error)
}

// WatchService exposes the daemon's journal, reports and ingestion over gRPC.
type WatchService struct {
	store    SessionStore
	exporter *export.Service
	ingestor ingest.Ingestor
	logger   *slog.Logger
}

func NewWatchService(store SessionStore, exporter *export.Service, ingestor ingest.Ingestor, logger *slog.Logger) *WatchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatchService{store: store, exporter: exporter, ingestor: ingestor, logger: logger}
}

// ListSessions returns the latest entry of every session, optionally only
// those updated at or after "since" (RFC 3339).
func (s *WatchService) ListSessions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	since, err := parseSince(req)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.Sessions(ctx)
	if err != nil {
		s.logger.Error("server.sessions.list_failed", "error", err)
		return nil, status.Error(codes.Internal, "list sessions failed")
	}

	out := make([]any, 0, len(entries))
	for _, e := range entries {
		if since != nil && e.At.Before(*since) {
			continue
		}
		out = append(out, entryMap(e))
	}
	return structpb.NewStruct(map[string]any{"sessions": out})
}

// GetSession returns every entry of one session.
func (s *WatchService) GetSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := strings.TrimSpace(stringField(req, "session_id"))
	if id == "" {
		return nil, common.InvalidArgumentError("session_id is required")
	}
	entries, err := s.store.Entries(ctx, id)
	if err != nil {
		s.logger.Error("server.sessions.get_failed", "session_id", id, "error", err)
		return nil, status.Error(codes.Internal, "get session failed")
	}
	if len(entries) == 0 {
		return nil, status.Errorf(codes.NotFound, "session %s not found", id)
	}

	out := make([]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryMap(e))
	}
	return structpb.NewStruct(map[string]any{"session_id": id, "entries": out})
}

// ExportSessions returns the XLSX session report, base64 encoded.
func (s *WatchService) ExportSessions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.exporter == nil {
		return nil, status.Error(codes.Unimplemented, "export not configured")
	}
	since, err := parseSince(req)
	if err != nil {
		return nil, err
	}
	xlsx, err := s.exporter.SessionsXLSX(ctx, since)
	if err != nil {
		s.logger.Error("export.xlsx.failed", "error", err)
		return nil, status.Error(codes.Internal, err.Error())
	}
	return structpb.NewStruct(map[string]any{
		"xlsx":  base64.StdEncoding.EncodeToString(xlsx),
		"bytes": len(xlsx),
	})
}

func parseSince(req *structpb.Struct) (*time.Time, error) {
	raw := strings.TrimSpace(stringField(req, "since"))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, common.InvalidArgumentError("since must be RFC 3339")
	}
	return &t, nil
}

func stringField(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	return req.GetFields()[name].GetStringValue()
}

func entryMap(e journal.Entry) map[string]any {
	return map[string]any{
		"session_id": e.SessionID,
		"task_id":    e.TaskID,
		"job_kind":   e.JobKind,
		"source":     e.Source,
		"event":      string(e.Event),
		"state":      e.State,
		"message":    e.Message,
		"attempt":    e.Attempt,
		"seq":        e.Seq,
		"at":         e.At.UTC().Format(time.RFC3339Nano),
	}
}
