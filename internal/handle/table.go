// Package handle implements the per-layer handle types, counters and an
// arena-backed Table: each layer (UCL, ICL, MW, participant) draws
// handles from its own monotonic counter and keys its entities by its
// own handle type (internal/mw stores them in a Table; the other layers
// use maps keyed by the typed handle), so the rule that a handle lives
// in exactly one layer's table is enforced by distinct Go types rather
// than convention.
package handle

import "fmt"

// UCLHandle identifies an entity in the user client library's table.
type UCLHandle uint64

// ICLHandle identifies an entity in the inner client library's table.
type ICLHandle uint64

// MWHandle identifies an entity in the middleware abstraction's table.
type MWHandle uint64

// GUID identifies a writer or reader registered on a DDS participant.
type GUID uint64

// Hex renders a handle the way rcl/rmw trace fields render numeric
// handles: "0x" followed by uppercase hex digits.
func Hex[T ~uint64](h T) string {
	return fmt.Sprintf("0x%X", uint64(h))
}

// Counter mints strictly increasing handles within one layer. Handles
// are never reused within a simulation run.
type Counter[T ~uint64] struct {
	next uint64
}

// Next returns the next handle, starting at 1 (0 is reserved as "no
// handle" so zero-valued fields are distinguishable from real handles).
func (c *Counter[T]) Next() T {
	c.next++
	return T(c.next)
}

// Table is an arena-backed store of entities of type E, indexed by
// handle type T. Entries are never removed from the backing slice —
// destruction is modeled by the entity's own "live" state, not by
// freeing the slot, which keeps handle-to-index lookup O(1).
type Table[T ~uint64, E any] struct {
	counter Counter[T]
	handles []T
	entries []E
	index   map[T]int
}

// NewTable creates an empty handle table.
func NewTable[T ~uint64, E any]() *Table[T, E] {
	return &Table[T, E]{index: make(map[T]int)}
}

// Insert allocates a fresh handle for e and stores it, returning the
// handle.
func (t *Table[T, E]) Insert(e E) T {
	h := t.counter.Next()
	t.index[h] = len(t.entries)
	t.handles = append(t.handles, h)
	t.entries = append(t.entries, e)
	return h
}

// Get resolves a handle to its entity. ok is false for an unknown
// handle.
func (t *Table[T, E]) Get(h T) (E, bool) {
	idx, ok := t.index[h]
	if !ok {
		var zero E
		return zero, false
	}
	return t.entries[idx], true
}

// Set overwrites the entity stored at h. Panics on an unknown handle —
// callers resolve with Get first when the handle may be stale.
func (t *Table[T, E]) Set(h T, e E) {
	idx, ok := t.index[h]
	if !ok {
		panic(fmt.Sprintf("handle: Set on unknown handle %s", Hex(h)))
	}
	t.entries[idx] = e
}

// Len returns the number of entries ever inserted (including any that
// model themselves as no-longer-live).
func (t *Table[T, E]) Len() int {
	return len(t.entries)
}

// Each calls fn for every handle/entity pair in insertion order.
func (t *Table[T, E]) Each(fn func(T, E)) {
	for i, h := range t.handles {
		fn(h, t.entries[i])
	}
}
