// Package journal keeps an in-memory record of every observable event of
// every polling session. It lives in a private SQLite database and is lost
// when the process exits.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Event is the kind of a journal entry.
type Event string

const (
	EventSubmitted Event = "submitted"
	EventUpdate    Event = "update"
	EventTransient Event = "transient"
	EventComplete  Event = "complete"
	EventError     Event = "error"
	EventRejected  Event = "rejected"
	EventCancelled Event = "cancelled"
)

// IsTerminal reports whether the event ends a session.
func (e Event) IsTerminal() bool {
	switch e {
	case EventComplete, EventError, EventRejected, EventCancelled:
		return true
	}
	return false
}

// Entry is one journal row.
type Entry struct {
	ID        string
	Seq       int64
	SessionID string
	TaskID    string
	JobKind   string
	Source    string
	Event     Event
	State     string
	Message   string
	Attempt   int
	At        time.Time
}

const table = "journal_entries"

var columns = []string{"id", "seq", "session_id", "task_id", "job_kind", "source", "event", "state", "message", "attempt", "at"}

const schema = `CREATE TABLE IF NOT EXISTS journal_entries (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT    NOT NULL UNIQUE,
	session_id TEXT    NOT NULL,
	task_id    TEXT    NOT NULL DEFAULT '',
	job_kind   TEXT    NOT NULL DEFAULT '',
	source     TEXT    NOT NULL DEFAULT '',
	event      TEXT    NOT NULL,
	state      TEXT    NOT NULL DEFAULT '',
	message    TEXT    NOT NULL DEFAULT '',
	attempt    INTEGER NOT NULL DEFAULT 0,
	at         INTEGER NOT NULL
)`

const sessionIndex = `CREATE INDEX IF NOT EXISTS journal_entries_session ON journal_entries(session_id, seq)`

// Journal is safe for concurrent use.
type Journal struct {
	drv    *entsql.Driver
	logger *slog.Logger
	now    func() time.Time
}

// Open creates an empty journal backed by a private in-memory database.
func Open(ctx context.Context, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	// every connection to ":memory:" is a separate database
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(0)
	db.SetConnMaxLifetime(0)

	drv := entsql.OpenDB(dialect.SQLite, db)
	for _, stmt := range []string{schema, sessionIndex} {
		if err := drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			_ = drv.Close()
			return nil, fmt.Errorf("create journal schema: %w", err)
		}
	}
	logger.Debug("journal.open")
	return &Journal{drv: drv, logger: logger, now: time.Now}, nil
}

// Close releases the database. Entries are gone afterwards.
func (j *Journal) Close() error {
	return j.drv.Close()
}

// Append stores e. ID and At are filled in when empty.
func (j *Journal) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.SessionID == "" {
		return Entry{}, fmt.Errorf("journal entry without session id")
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.At.IsZero() {
		e.At = j.now()
	}

	query, args := entsql.Dialect(dialect.SQLite).
		Insert(table).
		Columns("id", "session_id", "task_id", "job_kind", "source", "event", "state", "message", "attempt", "at").
		Values(e.ID, e.SessionID, e.TaskID, e.JobKind, e.Source, string(e.Event), e.State, e.Message, e.Attempt, e.At.UnixNano()).
		Query()

	var res sql.Result
	if err := j.drv.Exec(ctx, query, args, &res); err != nil {
		j.logger.Error("journal.append_failed", "session_id", e.SessionID, "event", e.Event, "error", err)
		return Entry{}, fmt.Errorf("append journal entry: %w", err)
	}
	if seq, err := res.LastInsertId(); err == nil {
		e.Seq = seq
	}
	j.logger.Debug("journal.append", "session_id", e.SessionID, "task_id", e.TaskID, "event", e.Event, "seq", e.Seq)
	return e, nil
}

// Entries returns the entries of one session in insertion order.
func (j *Journal) Entries(ctx context.Context, sessionID string) ([]Entry, error) {
	sel := entsql.Dialect(dialect.SQLite).
		Select(columns...).
		From(entsql.Table(table)).
		Where(entsql.EQ("session_id", sessionID)).
		OrderBy(entsql.Asc("seq"))
	return j.query(ctx, sel)
}

// All returns every entry in insertion order.
func (j *Journal) All(ctx context.Context) ([]Entry, error) {
	sel := entsql.Dialect(dialect.SQLite).
		Select(columns...).
		From(entsql.Table(table)).
		OrderBy(entsql.Asc("seq"))
	return j.query(ctx, sel)
}

// Sessions returns the latest entry of each session, oldest session first.
func (j *Journal) Sessions(ctx context.Context) ([]Entry, error) {
	b := entsql.Dialect(dialect.SQLite)
	latest := b.Select(entsql.Max("seq")).
		From(entsql.Table(table)).
		GroupBy("session_id")
	sel := b.Select(columns...).
		From(entsql.Table(table)).
		Where(entsql.In("seq", latest)).
		OrderBy(entsql.Asc("seq"))
	return j.query(ctx, sel)
}

func (j *Journal) query(ctx context.Context, sel *entsql.Selector) ([]Entry, error) {
	query, args := sel.Query()
	if args == nil {
		args = []any{}
	}
	var rows entsql.Rows
	if err := j.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			event string
			at    int64
		)
		if err := rows.Scan(&e.ID, &e.Seq, &e.SessionID, &e.TaskID, &e.JobKind, &e.Source, &event, &e.State, &e.Message, &e.Attempt, &at); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.Event = Event(event)
		e.At = time.Unix(0, at)
		out = append(out, e)
	}
	return out, rows.Err()
}
