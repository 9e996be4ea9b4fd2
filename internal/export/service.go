package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/jobwatch/internal/journal"
)

// Source is the part of the journal the exporter reads.
type Source interface {
	Sessions(ctx context.Context) ([]journal.Entry, error)
	All(ctx context.Context) ([]journal.Entry, error)
}

// Service produces XLSX session reports from the journal.
type Service struct {
	source Source
	logger *slog.Logger
}

func NewService(source Source, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, logger: logger}
}

const (
	sessionsSheet = "Sessions"
	eventsSheet   = "Events"
	timeLayout    = "2006-01-02 15:04:05"
)

// SessionsXLSX returns a workbook with one row per session (its latest
// entry) and a second sheet listing every event. A non-nil since keeps only
// sessions whose latest entry is at or after it.
func (s *Service) SessionsXLSX(ctx context.Context, since *time.Time) ([]byte, error) {
	start := time.Now()

	sessions, err := s.source.Sessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	events, err := s.source.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	keep := make(map[string]bool, len(sessions))
	var rows []journal.Entry
	for _, e := range sessions {
		if since != nil && e.At.Before(*since) {
			continue
		}
		keep[e.SessionID] = true
		rows = append(rows, e)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sessionsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(eventsSheet); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(sessionsSheet)
	f.SetActiveSheet(activeIndex)

	writeHeader(f, sessionsSheet, []string{
		"Session", "Task ID", "Job Kind", "Source", "Outcome", "Remote State", "Message", "Attempts", "Last Update",
	})
	for i, e := range rows {
		writeRow(f, sessionsSheet, i+2, []any{
			e.SessionID,
			e.TaskID,
			e.JobKind,
			e.Source,
			outcome(e.Event),
			e.State,
			truncate(e.Message, 140),
			e.Attempt,
			e.At.Local().Format(timeLayout),
		})
	}

	writeHeader(f, eventsSheet, []string{"Seq", "Session", "Task ID", "Event", "Remote State", "Message", "Attempt", "At"})
	row := 2
	for _, e := range events {
		if !keep[e.SessionID] {
			continue
		}
		writeRow(f, eventsSheet, row, []any{
			e.Seq, e.SessionID, e.TaskID, string(e.Event), e.State, truncate(e.Message, 140), e.Attempt, e.At.Local().Format(timeLayout),
		})
		row++
	}

	_ = f.SetColWidth(sessionsSheet, "A", "B", 38) // ids
	_ = f.SetColWidth(sessionsSheet, "C", "C", 16)
	_ = f.SetColWidth(sessionsSheet, "D", "D", 40) // source
	_ = f.SetColWidth(sessionsSheet, "E", "F", 14)
	_ = f.SetColWidth(sessionsSheet, "G", "G", 60) // message
	_ = f.SetColWidth(sessionsSheet, "I", "I", 20)
	_ = f.SetColWidth(eventsSheet, "B", "C", 38)
	_ = f.SetColWidth(eventsSheet, "F", "F", 60)
	_ = f.SetColWidth(eventsSheet, "H", "H", 20)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"sessions", len(rows),
		"events", row-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// WriteSessionsXLSX writes the report to path.
func (s *Service) WriteSessionsXLSX(ctx context.Context, path string) error {
	b, err := s.SessionsXLSX(ctx, nil)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	s.logger.Info("export.report.written", "path", path, "bytes", len(b))
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []string) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

// outcome maps a session's latest event to the label shown in the report.
func outcome(ev journal.Event) string {
	switch ev {
	case journal.EventComplete:
		return "done"
	case journal.EventError:
		return "failed"
	case journal.EventRejected:
		return "rejected"
	case journal.EventCancelled:
		return "cancelled"
	default:
		return "running"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
