// Package devs implements the classic discrete-event system (DEVS)
// abstract simulator: atomic machines connected by named ports, driven
// by a single coordinator that advances a shared virtual clock. The
// transport multiplexer (internal/transport) and internal/sim's stack,
// timer and sink machines are atomic Machines; the synchronous layers
// (internal/participant, internal/mw, internal/icl, internal/ucl,
// internal/executor) run inside them. internal/devs itself knows nothing about ROS2, QoS,
// or traces — it only knows time-advance, transitions, and ports.
package devs

import "math/bits"

// Infinity is the time-advance value a machine returns when it has no
// scheduled internal event (it can only be woken by external input).
const Infinity = int64(1<<63 - 1)

// Message is a single value delivered to a machine's input port by the
// coordinator, the result of routing another machine's Output through
// a Coupling.
type Message struct {
	Port  string
	Value any
}

// Output is a single value an atomic machine emits from a named output
// port. The coordinator routes it to every Coupling whose FromPort
// matches.
type Output struct {
	Port  string
	Value any
}

// Machine is an atomic DEVS machine: time-advance, internal transition
// (taken when the scheduled delay elapses), external transition (taken
// when messages arrive on an input port), and an output function
// executed immediately before an internal transition.
//
// Implementations must not emit traces (or any other observable side
// effect) from ExternalTransition or InternalTransition — only Output
// may do so, so the trace sequence corresponds exactly to the
// scheduled event order.
type Machine interface {
	// Name identifies the machine for coupling lookups and the
	// lexicographic tie-break rule on simultaneous events.
	Name() string

	// TimeAdvance returns the virtual-time delay, from the machine's
	// last transition, until its next scheduled internal event.
	// Infinity means "no scheduled event; wait for external input".
	TimeAdvance() int64

	// Output is called immediately before InternalTransition, while
	// state still reflects the prior transition. It returns zero or
	// more values to emit on named output ports.
	Output() []Output

	// InternalTransition is taken when TimeAdvance's delay elapses.
	InternalTransition()

	// ExternalTransition is taken when one or more messages arrive on
	// input ports at the current virtual time. elapsed is the virtual
	// time since this machine's last transition (internal or external).
	ExternalTransition(inputs []Message, elapsed int64)
}

// Coupling connects one machine's output port to another machine's
// input port. FromMachine == ToMachine models a self-loop (unused by
// the concrete layers but legal).
type Coupling struct {
	FromMachine string
	FromPort    string
	ToMachine   string
	ToPort      string
}

// addWithOverflowClamp returns a+b, saturating at Infinity rather than
// wrapping, since a machine may legitimately return Infinity as its
// time-advance and lastEventTime+Infinity would otherwise overflow.
func addWithOverflowClamp(a, b int64) int64 {
	if b == Infinity || a == Infinity {
		return Infinity
	}
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 || int64(sum) < 0 {
		return Infinity
	}
	return int64(sum)
}
