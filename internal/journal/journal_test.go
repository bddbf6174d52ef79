package journal

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func TestSQLiteIndexCommandsAndMotion(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()

	cmds := []CommandRecord{
		{ID: "c1", Tick: 1, AgentIDs: []string{"a", "b"}, Target: [3]float64{10, 0, 20}, Accepted: true, FlockID: 1},
		{ID: "c2", Tick: 5, AgentIDs: []string{"a"}, Target: [3]float64{-4, 1, 2}, Accepted: false, Error: "flock allocation failed"},
	}
	for _, c := range cmds {
		if err := idx.RecordCommand(c); err != nil {
			t.Fatalf("RecordCommand: %v", err)
		}
	}
	for _, m := range []MotionRecord{
		{Tick: 1, AgentID: "a", Event: "motion_start"},
		{Tick: 1, AgentID: "b", Event: "motion_start"},
		{Tick: 40, AgentID: "a", Event: "motion_end"},
	} {
		if err := idx.RecordMotion(m); err != nil {
			t.Fatalf("RecordMotion: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	got, err := idx.Commands(ctx, 10)
	if err != nil {
		t.Fatalf("Commands: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c2" || got[1].ID != "c1" {
		t.Fatalf("Commands order = %+v", got)
	}
	if got[0].Accepted || got[0].Error == "" || got[1].FlockID != 1 {
		t.Fatalf("command fields lost: %+v", got)
	}
	if len(got[1].AgentIDs) != 2 || got[1].AgentIDs[1] != "b" || got[1].Target != cmds[0].Target {
		t.Fatalf("command c1 = %+v", got[1])
	}

	events, err := idx.MotionEvents(ctx, "a")
	if err != nil {
		t.Fatalf("MotionEvents: %v", err)
	}
	if len(events) != 2 || events[0].Event != "motion_start" || events[1].Event != "motion_end" || events[1].Tick != 40 {
		t.Fatalf("events for a = %+v", events)
	}
	all, err := idx.MotionEvents(ctx, "")
	if err != nil {
		t.Fatalf("MotionEvents(all): %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all events = %d, want 3", len(all))
	}
}

func TestSQLiteIndexDropsWhenQueueFull(t *testing.T) {
	idx, err := openSQLite(filepath.Join(t.TempDir(), "index.db"), 2)
	if err != nil {
		t.Fatalf("openSQLite: %v", err)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Holding the only connection stalls the writer.
	conn, err := idx.db.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}
	const n = 10
	var full int
	start := time.Now()
	for i := 0; i < n; i++ {
		err := idx.RecordCommand(CommandRecord{ID: string(rune('a' + i)), Tick: uint64(i), Accepted: true})
		switch {
		case errors.Is(err, ErrQueueFull):
			full++
		case err != nil:
			t.Fatalf("RecordCommand: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("recording blocked for %v", elapsed)
	}
	if full == 0 || uint64(full) != idx.Dropped() {
		t.Fatalf("full errors = %d, Dropped = %d", full, idx.Dropped())
	}
	_ = conn.Close()

	if err := idx.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	got, err := idx.Commands(ctx, 100)
	if err != nil {
		t.Fatalf("Commands: %v", err)
	}
	if len(got)+full != n {
		t.Fatalf("stored %d + dropped %d, want %d", len(got), full, n)
	}
}

func TestSQLiteIndexPersistsOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.RecordMotion(MotionRecord{Tick: 3, AgentID: "z", Event: "motion_end"}); err != nil {
		t.Fatalf("RecordMotion: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := idx.RecordMotion(MotionRecord{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("write after close err = %v, want ErrClosed", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var (
		tick  int64
		agent string
		event string
	)
	if err := db.QueryRow(`SELECT tick,agent_id,event FROM motion_events`).Scan(&tick, &agent, &event); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if tick != 3 || agent != "z" || event != "motion_end" {
		t.Fatalf("row mismatch: tick=%d agent=%q event=%q", tick, agent, event)
	}
}

func TestTraceWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tw := NewTraceWriter(dir)
	for i := uint64(1); i <= 3; i++ {
		entry := TickEntry{
			Tick:   i,
			Flocks: 1,
			Agents: []AgentSample{{ID: "a", Pos: [3]float64{float64(i), 0, 0}, Vel: [2]float64{1, 0}, State: "MOVING", Flock: 1}},
		}
		if err := tw.WriteTick(entry); err != nil {
			t.Fatalf("WriteTick: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := TraceFiles(dir)
	if err != nil {
		t.Fatalf("TraceFiles: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("trace files = %v, want one", files)
	}

	var ticks []uint64
	err = ReadTrace(files[0], func(e TickEntry) error {
		ticks = append(ticks, e.Tick)
		if e.Agents[0].Pos[0] != float64(e.Tick) {
			t.Fatalf("tick %d pos = %v", e.Tick, e.Agents[0].Pos)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReadTrace: %v", err)
	}
	if len(ticks) != 3 || ticks[0] != 1 || ticks[2] != 3 {
		t.Fatalf("ticks = %v", ticks)
	}
}

func TestJSONLZstdWriterRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "ticks")
	clock := time.Date(2025, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	if err := w.Write(TickEntry{Tick: 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := w.Write(TickEntry{Tick: 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := TraceFiles(dir)
	if err != nil {
		t.Fatalf("TraceFiles: %v", err)
	}
	want := []string{
		filepath.Join(dir, "ticks-2025-03-01-10.jsonl.zst"),
		filepath.Join(dir, "ticks-2025-03-01-11.jsonl.zst"),
	}
	if len(files) != 2 || files[0] != want[0] || files[1] != want[1] {
		t.Fatalf("files = %v, want %v", files, want)
	}
}

func TestJournalOpenAndClose(t *testing.T) {
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := j.RecordCommand(CommandRecord{ID: "x", AgentIDs: []string{"a"}, Accepted: true}); err != nil {
		t.Fatalf("RecordCommand: %v", err)
	}
	if err := j.RecordTick(TickEntry{Tick: 1}); err != nil {
		t.Fatalf("RecordTick: %v", err)
	}
	if err := j.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	cmds, err := j.Index.Commands(context.Background(), 0)
	if err != nil || len(cmds) != 1 {
		t.Fatalf("Commands = %v, %v", cmds, err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
