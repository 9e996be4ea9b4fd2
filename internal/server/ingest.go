package server

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/jobwatch/internal/common"
	"github.com/joseph-ayodele/jobwatch/internal/ingest"
)

// IngestPath queues one PDF for processing.
func (s *WatchService) IngestPath(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.ingestor == nil {
		return nil, status.Error(codes.Unimplemented, "ingestion not configured")
	}
	path := strings.TrimSpace(stringField(req, "path"))
	if path == "" {
		s.logger.Error("server.ingest.missing_path")
		return nil, common.InvalidArgumentError("path is required")
	}

	s.logger.Info("server.ingest.file", "path", path)
	r, err := s.ingestor.IngestPath(ctx, path)
	if err != nil {
		return nil, common.InvalidArgumentErrorf("ingest: %v", err)
	}
	return structpb.NewStruct(resultMap(r))
}

// IngestDirectory queues every PDF under root_path. skip_hidden defaults to true.
func (s *WatchService) IngestDirectory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.ingestor == nil {
		return nil, status.Error(codes.Unimplemented, "ingestion not configured")
	}
	root := strings.TrimSpace(stringField(req, "root_path"))
	if root == "" {
		s.logger.Error("server.ingest.missing_root")
		return nil, common.InvalidArgumentError("root_path is required")
	}
	skipHidden := true
	if v, ok := req.GetFields()["skip_hidden"]; ok {
		skipHidden = v.GetBoolValue()
	}

	s.logger.Info("server.ingest.directory", "root", root, "skip_hidden", skipHidden)
	results, stats, err := s.ingestor.IngestDirectory(ctx, root, skipHidden)
	if err != nil {
		return nil, common.InvalidArgumentErrorf("ingest directory: %v", err)
	}
	s.logger.Info("server.ingest.directory_done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)

	items := make([]any, 0, len(results))
	for _, r := range results {
		items = append(items, resultMap(r))
	}
	return structpb.NewStruct(map[string]any{
		"scanned":      stats.Scanned,
		"matched":      stats.Matched,
		"succeeded":    stats.Succeeded,
		"deduplicated": stats.Deduplicated,
		"failed":       stats.Failed,
		"results":      items,
	})
}

func resultMap(r ingest.IngestionResult) map[string]any {
	m := map[string]any{
		"source_path":      r.SourcePath,
		"deduplicated":     r.Deduplicated,
		"content_hash_hex": r.HashHex,
		"file_ext":         r.FileExt,
		"error":            r.Err,
	}
	if !r.QueuedAt.IsZero() {
		m["queued_at"] = r.QueuedAt.UTC().Format(time.RFC3339)
	}
	return m
}
