// Package recording implements the optional append-only JSONL sink: one
// line per emitted replication event (full snapshot or patch), for
// post-hoc replay and debugging.
package recording

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rathix/relay/internal/document"
)

// Record is the on-disk shape of one recorded replication event.
type Record struct {
	Seq       int64  `json:"seq"`
	Timestamp int64  `json:"timestamp"`
	Event     string `json:"event"`
	Data      any    `json:"data"`
}

// FileSink implements document.Recorder by appending one JSON line per
// replication event to a file: an append-only, never-truncated log of
// every full snapshot and patch the Core has ever emitted.
type FileSink struct {
	mu     sync.Mutex
	file   *os.File
	logger *slog.Logger
	seq    int64
}

// NewFileSink opens (or creates) the file at path for append-only writing.
func NewFileSink(path string, logger *slog.Logger) (*FileSink, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileSink{file: f, logger: logger}, nil
}

// Record implements document.Recorder: it assigns the event the next
// sequence number and appends it as one JSON line. Write failures are
// logged, never propagated — the caller (the Core's writer goroutine) must
// never block or fail a mutation because a recording sink is unhealthy.
func (s *FileSink) Record(evt document.ReplicationEvent) {
	eventType, data, timestamp, ok := flatten(evt)
	if !ok {
		return
	}

	rec := Record{
		Seq:       atomic.AddInt64(&s.seq, 1),
		Timestamp: timestamp,
		Event:     eventType,
		Data:      data,
	}

	line, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("failed to marshal recording entry", "error", err)
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(line); err != nil {
		s.logger.Error("failed to write recording entry", "error", err)
	}
}

// Close closes the underlying file handle.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func flatten(evt document.ReplicationEvent) (eventType string, data any, timestamp int64, ok bool) {
	switch {
	case evt.Full != nil:
		return evt.Full.Type, evt.Full.Data, evt.Full.Timestamp, true
	case evt.Patch != nil:
		return evt.Patch.Type, evt.Patch.Data, evt.Patch.Timestamp, true
	default:
		return "", nil, 0, false
	}
}

// NoopSink discards every recorded event; wired in when recording is
// disabled by configuration.
type NoopSink struct{}

// Record discards evt.
func (NoopSink) Record(document.ReplicationEvent) {}

var _ document.Recorder = (*FileSink)(nil)
var _ document.Recorder = NoopSink{}
