// Package executor implements the work-item dispatcher: fixed
// priority (timers > subscriptions > guard_conditions) with FIFO
// within a class.
package executor

import "github.com/rosdevs/pdevs-sim/internal/model"

// Class is a work item's source category. Ordinal value doubles as
// dispatch priority — lower sorts first.
type Class int

const (
	ClassTimer Class = iota
	ClassSubscription
	ClassGuardCondition
)

// WorkItem is one unit of work awaiting dispatch.
type WorkItem struct {
	Class     Class
	Handle    uint64 // opaque to the executor; only used to correlate traces
	Callback  model.Callback
	Envelope  model.Envelope
	Cancelled bool
	seq       uint64 // insertion order, for FIFO-within-class
}

// Executor holds the queue of pending work items.
type Executor struct {
	items   []WorkItem
	nextSeq uint64
}

// New creates an empty executor.
func New() *Executor { return &Executor{} }

// Submit enqueues a work item; items from the same source are
// dispatched in emission order.
func (e *Executor) Submit(item WorkItem) {
	item.seq = e.nextSeq
	e.nextSeq++
	e.items = append(e.items, item)
}

// HasPending reports whether any work item is queued.
func (e *Executor) HasPending() bool { return len(e.items) > 0 }

// Dispatched is the result of popping and running one work item.
type Dispatched struct {
	Item      WorkItem
	Cancelled bool
	Err       error
}

// Pop removes and returns the highest-priority, earliest-queued work
// item without running it, so the caller can emit callback_start (or
// callback_cancelled) before the callback actually runs.
func (e *Executor) Pop() (WorkItem, bool) {
	if len(e.items) == 0 {
		return WorkItem{}, false
	}
	best := 0
	for i := 1; i < len(e.items); i++ {
		if less(e.items[i], e.items[best]) {
			best = i
		}
	}
	item := e.items[best]
	e.items = append(e.items[:best], e.items[best+1:]...)
	return item, true
}

// Run invokes item's callback (unless Cancelled) and returns the
// outcome. The caller is responsible for callback_start/callback_end
// tracing around this call and callback_cancelled in place of it when
// item.Cancelled.
func (e *Executor) Run(item WorkItem) Dispatched {
	if item.Cancelled {
		return Dispatched{Item: item, Cancelled: true}
	}
	var err error
	if item.Callback != nil {
		err = item.Callback.Invoke(item.Envelope)
	}
	return Dispatched{Item: item, Err: err}
}

// Next pops and runs one work item in a single call, for callers (like
// tests) that don't need to trace around the callback individually.
func (e *Executor) Next() (Dispatched, bool) {
	item, ok := e.Pop()
	if !ok {
		return Dispatched{}, false
	}
	return e.Run(item), true
}

func less(a, b WorkItem) bool {
	if a.Class != b.Class {
		return a.Class < b.Class
	}
	return a.seq < b.seq
}
