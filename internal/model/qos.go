package model

import "time"

// Reliability mirrors the DDS reliability policy.
type Reliability string

const (
	Reliable   Reliability = "RELIABLE"
	BestEffort Reliability = "BEST_EFFORT"
)

// Durability mirrors the DDS durability policy.
type Durability string

const (
	Volatile       Durability = "VOLATILE"
	TransientLocal Durability = "TRANSIENT_LOCAL"
	Transient      Durability = "TRANSIENT"
	Persistent     Durability = "PERSISTENT"
)

// History mirrors the DDS history policy.
type History string

const (
	KeepLast History = "KEEP_LAST"
	KeepAll  History = "KEEP_ALL"
)

// QoS is the inner-layer (rcl/rclcpp) QoS representation: millisecond
// durations with an explicit "unset" sentinel meaning infinite.
type QoS struct {
	Reliability Reliability
	Durability  Durability
	History     History
	Depth       uint
	DeadlineMS  int64 // DeadlineInfinite if unbounded
	LifespanMS  int64 // LifespanInfinite if unbounded
}

// DeadlineInfinite and LifespanInfinite are the inner-layer sentinels
// for "no deadline"/"no lifespan".
const (
	DeadlineInfinite = int64(-1)
	LifespanInfinite = int64(-1)
)

// LowerQoS is the participant-layer (rmw/DDS) QoS representation:
// nanosecond durations where zero means unset, i.e. infinite.
type LowerQoS struct {
	Reliability Reliability
	Durability  Durability
	History     History
	Depth       uint
	DeadlineNS  int64 // 0 means unset/infinite
	LifespanNS  int64 // 0 means unset/infinite
}

// Defaults returns the built-in default QoS profile: RELIABLE,
// VOLATILE, KEEP_LAST, depth=10, infinite deadline/lifespan.
func Defaults() QoS {
	return QoS{
		Reliability: Reliable,
		Durability:  Volatile,
		History:     KeepLast,
		Depth:       10,
		DeadlineMS:  DeadlineInfinite,
		LifespanMS:  LifespanInfinite,
	}
}

// WithDefaults fills unset (zero-value) fields of q with the package
// defaults. Reliability/Durability/History are considered unset when
// they are the empty string; Depth is considered unset when zero.
func WithDefaults(q QoS) QoS {
	return FillDefaults(q, Defaults())
}

// FillDefaults fills unset fields of q from d, for callers (the
// middleware, driven by the qos.defaults.* config section) whose
// default profile differs from the built-in one.
func FillDefaults(q, d QoS) QoS {
	if q.Reliability == "" {
		q.Reliability = d.Reliability
	}
	if q.Durability == "" {
		q.Durability = d.Durability
	}
	if q.History == "" {
		q.History = d.History
	}
	if q.Depth == 0 {
		q.Depth = d.Depth
	}
	if q.DeadlineMS == 0 {
		q.DeadlineMS = d.DeadlineMS
	}
	if q.LifespanMS == 0 {
		q.LifespanMS = d.LifespanMS
	}
	return q
}

// ToLower coerces the inner-layer ms+infinity representation to the
// lower-layer ns+unset-as-infinite representation. Both directions of
// the coercion live here, rather than in internal/mw, so the two
// representations cannot drift apart.
func ToLower(q QoS) LowerQoS {
	return LowerQoS{
		Reliability: q.Reliability,
		Durability:  q.Durability,
		History:     q.History,
		Depth:       q.Depth,
		DeadlineNS:  msToNS(q.DeadlineMS, DeadlineInfinite),
		LifespanNS:  msToNS(q.LifespanMS, LifespanInfinite),
	}
}

// ToInner coerces the lower-layer representation back to the
// inner-layer representation. Composing ToInner(ToLower(q)) is the
// identity modulo the infinite-deadline representation: an
// explicit 0 deadline in ms (if a caller ever set one) round-trips as
// infinite, since 0ns and "unset" are indistinguishable at the lower
// layer by design.
func ToInner(l LowerQoS) QoS {
	return QoS{
		Reliability: l.Reliability,
		Durability:  l.Durability,
		History:     l.History,
		Depth:       l.Depth,
		DeadlineMS:  nsToMS(l.DeadlineNS),
		LifespanMS:  nsToMS(l.LifespanNS),
	}
}

func msToNS(ms int64, infinite int64) int64 {
	if ms == infinite || ms < 0 {
		return 0
	}
	return ms * int64(time.Millisecond/time.Nanosecond)
}

func nsToMS(ns int64) int64 {
	if ns == 0 {
		return DeadlineInfinite
	}
	return ns / int64(time.Millisecond/time.Nanosecond)
}

// ReliabilityCompatible implements the reliability half of delivery
// gating: a RELIABLE subscription cannot accept data from a
// BEST_EFFORT publisher.
func ReliabilityCompatible(pub, sub QoS) (ok bool, reason string) {
	if sub.Reliability == Reliable && pub.Reliability == BestEffort {
		return false, "reliability mismatch"
	}
	return true, ""
}

// DurabilityCompatible implements the durability half of delivery
// gating: a TRANSIENT_LOCAL subscription cannot accept data from a
// VOLATILE publisher.
func DurabilityCompatible(pub, sub QoS) (ok bool, reason string) {
	if sub.Durability == TransientLocal && pub.Durability == Volatile {
		return false, "durability mismatch"
	}
	return true, ""
}

// Compatible runs every delivery-gating rule and returns the first
// failing reason, if any.
func Compatible(pub, sub QoS) (ok bool, reason string) {
	if ok, reason := ReliabilityCompatible(pub, sub); !ok {
		return false, reason
	}
	if ok, reason := DurabilityCompatible(pub, sub); !ok {
		return false, reason
	}
	return true, ""
}
