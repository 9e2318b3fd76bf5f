package trace

import (
	"fmt"
	"io"
	"sync"
)

// WriterSink formats every record with FormatLine and writes it,
// newline-terminated, to an underlying io.Writer. It is the tee-to-a-
// file sink and doubles as the stdout sink the CLI's run subcommand
// uses by default.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink wraps w as a Sink.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Observe implements Sink.
func (s *WriterSink) Observe(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, FormatLine(r))
}

// CollectorSink accumulates every observed record in memory, useful in
// tests that want to assert on the exact trace sequence without
// parsing formatted lines back out.
type CollectorSink struct {
	mu      sync.Mutex
	records []Record
}

// NewCollectorSink creates an empty CollectorSink.
func NewCollectorSink() *CollectorSink {
	return &CollectorSink{}
}

// Observe implements Sink.
func (c *CollectorSink) Observe(r Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
}

// Records returns a copy of every record observed so far.
func (c *CollectorSink) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// Kinds returns the Kind of every observed record, in order — the
// shape most ordering tests actually assert on.
func (c *CollectorSink) Kinds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.records))
	for i, r := range c.records {
		out[i] = r.Kind
	}
	return out
}
