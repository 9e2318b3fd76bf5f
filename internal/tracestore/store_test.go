package tracestore

import (
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/rosdevs/pdevs-sim/internal/trace"
)

// newTestStore opens a store with the pure-Go driver so the test suite
// does not need cgo.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", filepath.Join(t.TempDir(), "traces.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestObserveAndReadBack(t *testing.T) {
	s := newTestStore(t)
	log := trace.New()
	log.AddSink(s)

	log.Event("rcl_init", "rcl.p0", 0)
	log.Event("rcl_node_init", "node.N", 1000, trace.Str("node_name", "N"), trace.Handle("node_handle", uint64(1)))

	got, err := s.Records(s.RunID())
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("archived %d records, want 2", len(got))
	}
	if got[0].Kind != "rcl_init" || got[1].Kind != "rcl_node_init" {
		t.Fatalf("kinds = %q, %q", got[0].Kind, got[1].Kind)
	}
	if got[1].Timestamp != 1000 {
		t.Fatalf("timestamp = %d, want 1000", got[1].Timestamp)
	}
	if trace.FormatLine(got[1]) != trace.FormatLine(trace.Record{
		Seq: 2, Timestamp: 1000, Kind: "rcl_node_init", Context: "node.N",
		Fields: []trace.Field{trace.Str("node_name", "N"), trace.Handle("node_handle", uint64(1))},
	}) {
		t.Fatalf("formatted line did not round-trip: %s", trace.FormatLine(got[1]))
	}
}

func TestCountByKind(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		s.Observe(trace.Record{Seq: uint64(i + 1), Kind: "rcl_publish"})
	}
	s.Observe(trace.Record{Seq: 4, Kind: "rmw_publish"})

	counts, err := s.CountByKind(s.RunID())
	if err != nil {
		t.Fatalf("CountByKind: %v", err)
	}
	if counts["rcl_publish"] != 3 || counts["rmw_publish"] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestDiffKindsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.db")
	a, err := Open("sqlite", path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	a.Observe(trace.Record{Seq: 1, Kind: "rcl_publish"})
	a.Observe(trace.Record{Seq: 2, Kind: "rcl_publish"})
	a.Close()

	b, err := Open("sqlite", path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()
	b.Observe(trace.Record{Seq: 1, Kind: "rcl_publish"})
	b.Observe(trace.Record{Seq: 2, Kind: "transport_drop"})

	runs, err := b.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("archived %d runs, want 2", len(runs))
	}

	diff, err := b.DiffKinds(runs[0], runs[1])
	if err != nil {
		t.Fatalf("DiffKinds: %v", err)
	}
	if diff["rcl_publish"] != [2]int64{2, 1} {
		t.Fatalf("rcl_publish diff = %v", diff["rcl_publish"])
	}
	if diff["transport_drop"] != [2]int64{0, 1} {
		t.Fatalf("transport_drop diff = %v", diff["transport_drop"])
	}
}
