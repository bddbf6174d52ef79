package journal

import (
	"context"
	"errors"
	"path/filepath"
)

// Journal pairs the SQLite event index with the compressed tick trace under
// one directory.
type Journal struct {
	Index *SQLiteIndex
	Trace *TraceWriter
}

// Open creates dir/index.db and dir/trace/.
func Open(dir string) (*Journal, error) {
	idx, err := OpenSQLite(filepath.Join(dir, "index.db"))
	if err != nil {
		return nil, err
	}
	return &Journal{
		Index: idx,
		Trace: NewTraceWriter(filepath.Join(dir, "trace")),
	}, nil
}

// RecordCommand implements the host's journal sink.
func (j *Journal) RecordCommand(c CommandRecord) error { return j.Index.RecordCommand(c) }

// RecordMotion implements the host's journal sink.
func (j *Journal) RecordMotion(m MotionRecord) error { return j.Index.RecordMotion(m) }

// RecordTick implements the host's journal sink.
func (j *Journal) RecordTick(e TickEntry) error { return j.Trace.WriteTick(e) }

// Dropped reports index records lost to a full write queue.
func (j *Journal) Dropped() uint64 { return j.Index.Dropped() }

// Sync flushes the trace and waits for the index writer.
func (j *Journal) Sync(ctx context.Context) error {
	return errors.Join(j.Trace.Flush(), j.Index.Sync(ctx))
}

// Close flushes and closes both sinks.
func (j *Journal) Close() error {
	return errors.Join(j.Trace.Close(), j.Index.Close())
}
