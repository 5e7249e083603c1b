package execlog

import (
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Format is the version tag written at the head of every persisted trace.
// Readers must reject any other value rather than guess at the layout.
const Format = "v2"

// Statuses recorded on completed entries. They mirror the engine statuses,
// plus "incomplete" for spans that were begun but never ended.
const (
	StatusOK            = "ok"
	StatusFailed        = "failed"
	StatusLimitExceeded = "limit_exceeded"
	StatusIncomplete    = "incomplete"
)

// UpdatesSnapshot is the point-in-time copy of a node's accumulated result
// taken when its span is closed.
type UpdatesSnapshot struct {
	Metrics map[string]float64 `json:"metrics,omitempty"`
	Outputs map[string]any     `json:"outputs,omitempty"`
	Status  string             `json:"status"`
}

// Entry is one record of the trace: a single node execution. Seq numbers are
// assigned in begin (pre-) order; ParentSeq links entries into the call tree.
// ParentSeq 0 means the entry is the root execution.
type Entry struct {
	Seq       int              `json:"seq"`
	ParentSeq int              `json:"parent_seq"`
	NodeID    string           `json:"node_id"`
	ParentID  string           `json:"parent_id,omitempty"`
	Kind      string           `json:"kind"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time,omitzero"`
	Status    string           `json:"status"`
	Updates   *UpdatesSnapshot `json:"updates,omitempty"`
}

// Span is the handle returned by Begin. It must be closed with End exactly
// once; spans left open are marked incomplete by Flush.
type Span struct {
	log   *Log
	entry *Entry
}

// Seq returns the span's sequence number, or 0 for a nil span.
func (s *Span) Seq() int {
	if s == nil {
		return 0
	}
	return s.entry.Seq
}

// NodeID returns the node identifier the span was opened for.
func (s *Span) NodeID() string {
	if s == nil {
		return ""
	}
	return s.entry.NodeID
}

// End closes the span with a final status and an updates snapshot. Calling
// End on a nil span, or twice on the same span, is a no-op.
func (s *Span) End(status string, snap *UpdatesSnapshot) {
	if s == nil || s.log == nil {
		return
	}
	s.log.end(s, status, snap)
}

// Log is the append-only recorder of the recursive execution trace. It is
// write-only from the engine's perspective; reading happens through Reader.
// All methods are safe for concurrent use, and a nil *Log is a valid no-op
// recorder so the engine never has to check for its presence.
type Log struct {
	mu     sync.Mutex
	runID  string
	seq    int
	closed bool
	ordered []*Entry
	open    map[int]*Entry
	sink    io.Writer
}

// New creates an in-memory Log with a fresh run ID.
func New() *Log {
	return &Log{
		runID: uuid.NewString(),
		open:  make(map[int]*Entry),
	}
}

// NewWithSink creates a Log that additionally streams records to w as they
// complete. The format header is written immediately.
func NewWithSink(w io.Writer) (*Log, error) {
	l := New()
	l.sink = w
	if err := writeHeader(w, l.runID); err != nil {
		return nil, err
	}
	return l, nil
}

// RunID returns the unique identifier of this execution run.
func (l *Log) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

// Begin opens a span for one node execution. parent may be nil for the root.
func (l *Log) Begin(parent *Span, nodeID, kind string) *Span {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	e := &Entry{
		Seq:       l.seq,
		ParentSeq: parent.Seq(),
		NodeID:    nodeID,
		ParentID:  parent.NodeID(),
		Kind:      kind,
		StartTime: time.Now(),
	}
	l.ordered = append(l.ordered, e)
	l.open[e.Seq] = e
	return &Span{log: l, entry: e}
}

func (l *Log) end(s *Span, status string, snap *UpdatesSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.open[s.entry.Seq]
	if !ok {
		return
	}
	delete(l.open, e.Seq)
	e.EndTime = time.Now()
	e.Status = status
	e.Updates = snap
	if l.sink != nil {
		// Stream errors are deliberately not propagated into the execution:
		// the trace must never alter the run it observes.
		_ = writeEntry(l.sink, e)
	}
}

// Flush closes the log. Any span that was begun but never ended is marked
// incomplete; this is the only recovery behavior the recorder performs.
// Flush is idempotent.
func (l *Log) Flush() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	for _, e := range l.ordered {
		if _, stillOpen := l.open[e.Seq]; !stillOpen {
			continue
		}
		delete(l.open, e.Seq)
		e.EndTime = time.Now()
		e.Status = StatusIncomplete
		if l.sink != nil {
			_ = writeEntry(l.sink, e)
		}
	}
}

// Entries returns a copy of all recorded entries in begin order.
func (l *Log) Entries() []Entry {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.ordered))
	for i, e := range l.ordered {
		out[i] = *e
	}
	return out
}
