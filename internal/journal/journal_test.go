package journal

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestAppendAndEntries(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{EventSubmitted, EventUpdate, EventTransient, EventComplete}
	for i, ev := range events {
		e, err := j.Append(ctx, Entry{
			SessionID: "s1",
			TaskID:    "t1",
			JobKind:   "processar",
			Source:    "caso.pdf",
			Event:     ev,
			State:     "PROCESSING",
			Attempt:   i,
			At:        at.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if e.ID == "" || e.Seq == 0 {
			t.Fatalf("entry not stamped: %+v", e)
		}
	}
	if _, err := j.Append(ctx, Entry{SessionID: "s2", Event: EventSubmitted}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := j.Entries(ctx, "s1")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("len = %d, want %d", len(got), len(events))
	}
	for i, e := range got {
		if e.Event != events[i] || e.Attempt != i {
			t.Errorf("entry %d = %+v", i, e)
		}
		if !e.At.Equal(at.Add(time.Duration(i) * time.Second)) {
			t.Errorf("entry %d at = %v", i, e.At)
		}
	}
	if got[0].Source != "caso.pdf" || got[0].JobKind != "processar" || got[0].TaskID != "t1" {
		t.Errorf("first entry = %+v", got[0])
	}

	none, err := j.Entries(ctx, "missing")
	if err != nil || len(none) != 0 {
		t.Fatalf("unknown session: %v %v", none, err)
	}
}

func TestAppendRequiresSession(t *testing.T) {
	j := openTestJournal(t)
	if _, err := j.Append(context.Background(), Entry{Event: EventUpdate}); err == nil {
		t.Fatal("expected error for entry without session")
	}
}

func TestSessionsReturnsLatestPerSession(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	appendAll := func(session string, evs ...Event) {
		for _, ev := range evs {
			if _, err := j.Append(ctx, Entry{SessionID: session, Event: ev}); err != nil {
				t.Fatalf("Append: %v", err)
			}
		}
	}
	appendAll("a", EventSubmitted, EventUpdate)
	appendAll("b", EventSubmitted)
	appendAll("a", EventComplete)
	appendAll("c", EventSubmitted, EventError)

	got, err := j.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	want := map[string]Event{"a": EventComplete, "b": EventSubmitted, "c": EventError}
	if len(got) != len(want) {
		t.Fatalf("sessions = %+v", got)
	}
	for _, e := range got {
		if want[e.SessionID] != e.Event {
			t.Errorf("session %s latest = %s, want %s", e.SessionID, e.Event, want[e.SessionID])
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Seq <= got[i-1].Seq {
			t.Fatalf("sessions not ordered by seq: %+v", got)
		}
	}

	all, err := j.All(ctx)
	if err != nil || len(all) != 6 {
		t.Fatalf("All = %d entries, err %v", len(all), err)
	}
}

func TestConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 10; k++ {
				if _, err := j.Append(ctx, Entry{SessionID: "shared", Event: EventUpdate, Attempt: k}); err != nil {
					t.Errorf("Append: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	got, err := j.Entries(ctx, "shared")
	if err != nil || len(got) != 80 {
		t.Fatalf("entries = %d, err %v", len(got), err)
	}
}

func TestEventIsTerminal(t *testing.T) {
	for _, ev := range []Event{EventComplete, EventError, EventRejected, EventCancelled} {
		if !ev.IsTerminal() {
			t.Errorf("%s should be terminal", ev)
		}
	}
	for _, ev := range []Event{EventSubmitted, EventUpdate, EventTransient} {
		if ev.IsTerminal() {
			t.Errorf("%s should not be terminal", ev)
		}
	}
}
