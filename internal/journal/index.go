package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrClosed is returned by writes on a closed index.
	ErrClosed = errors.New("journal index closed")
	// ErrQueueFull is returned when a record is dropped because the writer
	// has fallen behind.
	ErrQueueFull = errors.New("journal index queue full")
)

const defaultQueueSize = 65536

// SQLiteIndex stores commands and motion events in SQLite. Writes are queued
// and applied in batches by a single writer goroutine. Recording never
// blocks: when the queue is full the record is dropped and counted.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqCommand reqKind = iota + 1
	reqMotion
	reqSync
)

type req struct {
	kind reqKind

	command CommandRecord
	motion  MotionRecord
	done    chan struct{}
}

// OpenSQLite opens (creating if needed) the index at path.
func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, defaultQueueSize)
}

func openSQLite(path string, queueSize int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queueSize),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS commands (
			id TEXT PRIMARY KEY,
			tick INTEGER NOT NULL,
			agent_ids TEXT NOT NULL,
			target_x REAL NOT NULL,
			target_y REAL NOT NULL,
			target_z REAL NOT NULL,
			accepted INTEGER NOT NULL,
			flock_id INTEGER NOT NULL,
			error TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS commands_tick ON commands(tick);`,
		`CREATE TABLE IF NOT EXISTS motion_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			event TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS motion_events_agent ON motion_events(agent_id, seq);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close drains pending writes and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped reports how many records were discarded on a full queue.
func (s *SQLiteIndex) Dropped() uint64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

// RecordCommand queues a command row.
func (s *SQLiteIndex) RecordCommand(c CommandRecord) error {
	return s.enqueue(req{kind: reqCommand, command: c})
}

// RecordMotion queues a motion event row.
func (s *SQLiteIndex) RecordMotion(m MotionRecord) error {
	return s.enqueue(req{kind: reqMotion, motion: m})
}

// Sync blocks until every write queued before it is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if err := s.send(ctx, req{kind: reqSync, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) enqueue(r req) (err error) {
	if s == nil || s.closed.Load() {
		return ErrClosed
	}
	// Close may race with a send; a send on the closed channel is reported
	// as ErrClosed.
	defer func() {
		if recover() != nil {
			err = ErrClosed
		}
	}()
	select {
	case s.ch <- r:
		return nil
	default:
		s.dropped.Add(1)
		return ErrQueueFull
	}
}

// send is the blocking form of enqueue used by Sync.
func (s *SQLiteIndex) send(ctx context.Context, r req) (err error) {
	if s == nil || s.closed.Load() {
		return ErrClosed
	}
	defer func() {
		if recover() != nil {
			err = ErrClosed
		}
	}()
	select {
	case s.ch <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Commands returns the most recent commands, newest first.
func (s *SQLiteIndex) Commands(ctx context.Context, limit int) ([]CommandRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,tick,agent_ids,target_x,target_y,target_z,accepted,flock_id,error
		 FROM commands ORDER BY tick DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CommandRecord
	for rows.Next() {
		var (
			c        CommandRecord
			ids      string
			tick     int64
			accepted int
			flockID  int64
		)
		if err := rows.Scan(&c.ID, &tick, &ids, &c.Target[0], &c.Target[1], &c.Target[2], &accepted, &flockID, &c.Error); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(ids), &c.AgentIDs); err != nil {
			return nil, fmt.Errorf("command %s agent ids: %w", c.ID, err)
		}
		c.Tick = uint64(tick)
		c.Accepted = accepted != 0
		c.FlockID = uint64(flockID)
		out = append(out, c)
	}
	return out, rows.Err()
}

// MotionEvents returns the motion events for an agent in emission order.
// An empty agentID returns every agent's events.
func (s *SQLiteIndex) MotionEvents(ctx context.Context, agentID string) ([]MotionRecord, error) {
	var (
		b    strings.Builder
		args []any
	)
	b.WriteString(`SELECT tick,agent_id,event FROM motion_events`)
	if agentID != "" {
		b.WriteString(` WHERE agent_id = ?`)
		args = append(args, agentID)
	}
	b.WriteString(` ORDER BY seq`)

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MotionRecord
	for rows.Next() {
		var (
			m    MotionRecord
			tick int64
		)
		if err := rows.Scan(&tick, &m.AgentID, &m.Event); err != nil {
			return nil, err
		}
		m.Tick = uint64(tick)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertCommand, _ := s.db.Prepare(`INSERT OR REPLACE INTO commands(id,tick,agent_ids,target_x,target_y,target_z,accepted,flock_id,error) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertMotion, _ := s.db.Prepare(`INSERT INTO motion_events(tick,agent_id,event) VALUES(?,?,?)`)
	defer func() {
		if insertCommand != nil {
			_ = insertCommand.Close()
		}
		if insertMotion != nil {
			_ = insertMotion.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 1000
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		if r.kind == reqSync {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqCommand:
			c := r.command
			ids, _ := json.Marshal(c.AgentIDs)
			if c.AgentIDs == nil {
				ids = []byte("[]")
			}
			accepted := 0
			if c.Accepted {
				accepted = 1
			}
			if insertCommand != nil {
				if _, err := tx.Stmt(insertCommand).Exec(
					c.ID, int64(c.Tick), string(ids),
					c.Target[0], c.Target[1], c.Target[2],
					accepted, int64(c.FlockID), c.Error,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqMotion:
			m := r.motion
			if insertMotion != nil {
				if _, err := tx.Stmt(insertMotion).Exec(int64(m.Tick), m.AgentID, m.Event); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		// Readers share the single connection, so an idle queue commits.
		if len(s.ch) == 0 || opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
