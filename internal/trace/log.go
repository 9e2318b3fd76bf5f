package trace

import (
	"fmt"
	"strings"
	"sync"
)

// Record is one totally-ordered trace event. Timestamp is virtual
// simulation time in nanoseconds, not wall-clock time — the trace log
// is driven by the DEVS coordinator's clock so that identical inputs
// reproduce byte-identical trace streams; a real wall clock would
// make two runs diverge trivially.
type Record struct {
	Seq       uint64
	Timestamp int64 // virtual nanoseconds since simulation start
	Kind      string
	Fields    []Field
	Context   string
}

// Sink observes every record appended to a Log, in order. Observe must
// not block for long: it runs on the caller's goroutine inside the
// single-threaded DEVS coordinator's Output phase, so a slow sink
// would stall the whole simulation. internal/traceserver buffers per
// client and drops on backpressure; internal/tracestore writes each
// record to its database synchronously inside Observe.
type Sink interface {
	Observe(Record)
}

// Log is the ordered, append-only event log. It is
// the single source of truth for the simulation's trace stream; Sinks
// are observers, not storage.
type Log struct {
	mu      sync.Mutex
	seq     uint64
	records []Record
	sinks   []Sink
}

// New creates an empty trace log.
func New() *Log {
	return &Log{}
}

// AddSink registers a sink to be notified of every future record. Not
// safe to call concurrently with Event.
func (l *Log) AddSink(s Sink) {
	l.sinks = append(l.sinks, s)
}

// Event appends a new record and notifies every sink, in registration
// order, before returning. The trace sequence corresponds exactly to
// call order — callers (the Output function of a Machine) must call
// Event in the precise order the canonical chains require.
func (l *Log) Event(kind, contextID string, virtualTimeNS int64, fields ...Field) Record {
	l.mu.Lock()
	l.seq++
	r := Record{
		Seq:       l.seq,
		Timestamp: virtualTimeNS,
		Kind:      kind,
		Fields:    fields,
		Context:   contextID,
	}
	l.records = append(l.records, r)
	sinks := l.sinks
	l.mu.Unlock()

	for _, s := range sinks {
		s.Observe(r)
	}
	return r
}

// Records returns a copy of every record appended so far, in sequence
// order.
func (l *Log) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of records appended so far.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// FormatLine renders a record in the external trace contract's line
// format:
//
//	[<seq>] <timestamp_s>.<nanos> <kind>: { k1 = v1, k2 = "s" }  ctx=<name>
func FormatLine(r Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %d.%09d %s: {", r.Seq, r.Timestamp/1e9, r.Timestamp%1e9, r.Kind)
	for i, f := range r.Fields {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, " %s = %s", f.Key, f.Repr)
	}
	if len(r.Fields) > 0 {
		b.WriteString(" ")
	}
	b.WriteString("}")
	if r.Context != "" {
		fmt.Fprintf(&b, "  ctx=%s", r.Context)
	}
	return b.String()
}
