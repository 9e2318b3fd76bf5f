// Package tracestore archives trace records to SQLite for offline
// replay and cross-run diffing. The store is an observer sink on the
// in-memory trace log, never authoritative storage — dropping the
// database loses nothing a rerun cannot regenerate.
package tracestore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rosdevs/pdevs-sim/internal/trace"
)

// Store persists trace records for one or more simulation runs.
type Store struct {
	db    *sql.DB
	runID string
}

// New opens (or creates) a trace archive at dbPath using the cgo
// sqlite3 driver and starts a fresh run.
func New(dbPath string) (*Store, error) {
	return Open("sqlite3", dbPath)
}

// Open is New with an explicit database/sql driver name, so tests can
// use a pure-Go driver (modernc.org/sqlite registers as "sqlite")
// without cgo.
func Open(driverName, dsn string) (*Store, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open trace archive: %w", err)
	}

	s := &Store{db: db, runID: NewRunID()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunID returns the identifier under which this store archives records.
func (s *Store) RunID() string { return s.runID }

// NewRunID generates a time-ordered UUIDv7 run identifier.
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trace_events (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		timestamp_ns INTEGER NOT NULL,
		kind TEXT NOT NULL,
		fields_json TEXT NOT NULL,
		context TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_trace_events_kind ON trace_events(run_id, kind);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Observe implements trace.Sink: every record is inserted under the
// store's run id. Insert failures are swallowed — a sink must never
// stall or abort the simulation.
func (s *Store) Observe(r trace.Record) {
	fieldsJSON, err := json.Marshal(r.Fields)
	if err != nil {
		return
	}
	s.db.Exec(`
		INSERT INTO trace_events (run_id, seq, timestamp_ns, kind, fields_json, context)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.runID, r.Seq, r.Timestamp, r.Kind, string(fieldsJSON), r.Context)
}

// Records returns every archived record for runID in sequence order.
func (s *Store) Records(runID string) ([]trace.Record, error) {
	rows, err := s.db.Query(`
		SELECT seq, timestamp_ns, kind, fields_json, context
		FROM trace_events WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trace.Record
	for rows.Next() {
		var r trace.Record
		var fieldsJSON string
		if err := rows.Scan(&r.Seq, &r.Timestamp, &r.Kind, &fieldsJSON, &r.Context); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &r.Fields); err != nil {
			return nil, fmt.Errorf("unmarshal fields: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Runs returns every archived run id, oldest first (run ids are
// time-ordered UUIDv7s, so lexical order is creation order).
func (s *Store) Runs() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT run_id FROM trace_events ORDER BY run_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CountByKind returns how many events of each kind runID recorded.
func (s *Store) CountByKind(runID string) (map[string]int64, error) {
	rows, err := s.db.Query(`
		SELECT kind, COUNT(*) FROM trace_events WHERE run_id = ? GROUP BY kind
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		out[kind] = n
	}
	return out, rows.Err()
}

// DiffKinds compares the per-kind event counts of two archived runs
// and returns the kinds whose counts differ, mapped to [countA,
// countB]. Two deterministic runs of the same scenario diff empty.
func (s *Store) DiffKinds(runA, runB string) (map[string][2]int64, error) {
	a, err := s.CountByKind(runA)
	if err != nil {
		return nil, err
	}
	b, err := s.CountByKind(runB)
	if err != nil {
		return nil, err
	}
	diff := make(map[string][2]int64)
	for kind, n := range a {
		if m := b[kind]; m != n {
			diff[kind] = [2]int64{n, m}
		}
	}
	for kind, m := range b {
		if _, ok := a[kind]; !ok {
			diff[kind] = [2]int64{0, m}
		}
	}
	return diff, nil
}

var _ trace.Sink = (*Store)(nil)
