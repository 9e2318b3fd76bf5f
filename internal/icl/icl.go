// Package icl implements the inner client library: the rcl-layer
// handle table, ordered pending-operation queue, timer manager, guard
// conditions, lifecycle gating, and the intra-process fast path.
// Like internal/mw and internal/participant it is a
// plain synchronous component; internal/sim is the only place that
// calls ProcessNext/FireDueTimers, and only from inside a Machine's
// Output function, so trace emission for the results stays confined
// to the output phase.
package icl

import (
	"sort"

	"github.com/rosdevs/pdevs-sim/internal/handle"
	"github.com/rosdevs/pdevs-sim/internal/model"
	"github.com/rosdevs/pdevs-sim/internal/mw"
)

// Phase is the ICL's own lifecycle, distinct from any one node's.
type Phase int

const (
	Uninitialized Phase = iota
	Active
)

// OpKind tags a queued operation.
type OpKind string

const (
	OpCreateNode          OpKind = "create_node"
	OpCreatePublisher     OpKind = "create_publisher"
	OpCreateSubscription  OpKind = "create_subscription"
	OpCreateTimer         OpKind = "create_timer"
	OpCreateGuardCondition OpKind = "create_guard_condition"
	OpPublish             OpKind = "publish"
	OpLifecycle           OpKind = "lifecycle"
	OpTriggerGuard        OpKind = "trigger_guard_condition"
)

// Operation is the pending-queue's tagged union of requests coming
// down from the UCL or up from the application.
type Operation struct {
	Kind            OpKind
	NodeHandle      handle.ICLHandle
	NodeName        string
	Namespace       string
	Topic, TypeName string
	QoS             model.QoS
	Format          string
	PublisherHandle handle.ICLHandle
	Envelope        model.Envelope
	Callback        model.Callback
	PeriodNS        int64
	GuardHandle     handle.ICLHandle
	EnablePublishers *bool
	EnableTimers     *bool

	// Tag is opaque to the ICL — internal/sim stamps it with whatever
	// correlation data it needs to match this operation's eventual
	// result back to the UCL-layer op that produced it (or leaves it
	// nil for operations submitted directly, like guard conditions,
	// that have no UCL counterpart). ProcessNext returns it unchanged
	// alongside the result.
	Tag any
}

// Node is the ICL-layer node record. UCLHandle links it to its owning
// UCL node without sharing that layer's handle namespace.
type Node struct {
	Handle    handle.ICLHandle
	Name      string
	Namespace string
	UCLHandle handle.UCLHandle
	Controls  model.NodeControls
}

// Publisher is the ICL-layer publisher record.
type Publisher struct {
	Handle     handle.ICLHandle
	NodeHandle handle.ICLHandle
	Topic      string
	QoS        model.QoS
	Format     string
	MWHandle   handle.MWHandle
}

// PublisherCreated is ProcessNext's result for OpCreatePublisher. It
// carries the MW-level graph event and writer GUID alongside the
// ICL record so internal/sim can trace rmw_publisher_init and
// publisher_created without a second lookup into internal/mw.
type PublisherCreated struct {
	Publisher  Publisher
	Graph      mw.GraphEvent
	WriterGUID handle.GUID
}

// Subscription is the ICL-layer subscription record.
type Subscription struct {
	Handle     handle.ICLHandle
	NodeHandle handle.ICLHandle
	Topic      string
	QoS        model.QoS
	MWHandle   handle.MWHandle
	Callback   model.Callback
}

// SubscriptionCreated is ProcessNext's result for OpCreateSubscription,
// the subscription counterpart to PublisherCreated.
type SubscriptionCreated struct {
	Subscription Subscription
	Graph        mw.GraphEvent
	ReaderGUID   handle.GUID
}

// Timer is the ICL-layer timer record.
type Timer struct {
	Handle     handle.ICLHandle
	NodeHandle handle.ICLHandle
	PeriodNS   int64
	LastFire   int64
	Callback   model.Callback
}

// GuardCondition is the ICL-layer guard condition record.
type GuardCondition struct {
	Handle     handle.ICLHandle
	NodeHandle handle.ICLHandle
	Callback   model.Callback
}

// IntraDelivery is one subscriber reached via the intra-process fast
// path.
type IntraDelivery struct {
	SubHandle handle.ICLHandle
	Callback  model.Callback
	Envelope  model.Envelope
}

// PublishResult is ProcessNext's result for OpPublish. A publish is
// either entirely intra-process (IntraProcess true,
// ForwardedToMW false) or entirely forwarded (the reverse) — never
// both and never neither, unless the publish was dropped (Dropped
// true: unknown publisher handle or disabled publisher).
type PublishResult struct {
	PublisherHandle handle.ICLHandle
	Topic           string
	Envelope        model.Envelope
	Dropped         bool
	DropReason      string // "unknown_handle" | "publisher_disabled" when Dropped
	IntraProcess    bool
	IntraDeliveries []IntraDelivery
	ForwardedToMW   bool
	MWPublisherHandle handle.MWHandle
}

// TimerFire is one timer due at the current instant.
type TimerFire struct {
	Handle     handle.ICLHandle
	NodeHandle handle.ICLHandle
	Callback   model.Callback
	Suppressed bool // lifecycle-disabled: no timer_callback/work item emitted
}

// ICL is the inner client library.
type ICL struct {
	phase Phase

	counter handle.Counter[handle.ICLHandle]
	nodes   map[handle.ICLHandle]*Node
	pubs    map[handle.ICLHandle]*Publisher
	subs    map[handle.ICLHandle]*Subscription
	timers  map[handle.ICLHandle]*Timer
	guards  map[handle.ICLHandle]*GuardCondition

	pending []Operation

	mw *mw.MW
}

// New creates an ICL bound to an MW instance.
func New(m *mw.MW) *ICL {
	return &ICL{
		nodes:  make(map[handle.ICLHandle]*Node),
		pubs:   make(map[handle.ICLHandle]*Publisher),
		subs:   make(map[handle.ICLHandle]*Subscription),
		timers: make(map[handle.ICLHandle]*Timer),
		guards: make(map[handle.ICLHandle]*GuardCondition),
		mw:     m,
	}
}

// Submit appends op to the ordered pending-operation queue.
func (c *ICL) Submit(op Operation) { c.pending = append(c.pending, op) }

// HasPending reports whether an operation is queued (drives the
// owning machine's time-advance to 0).
func (c *ICL) HasPending() bool { return len(c.pending) > 0 }

// NextTimerDue returns the smallest last_fire+period across every
// timer; the bool is false if there are none.
func (c *ICL) NextTimerDue() (int64, bool) {
	var best int64
	found := false
	for _, t := range c.timers {
		due := t.LastFire + t.PeriodNS
		if !found || due < best {
			best, found = due, true
		}
	}
	return best, found
}

// Node resolves an ICL node handle.
func (c *ICL) Node(h handle.ICLHandle) (*Node, bool) { n, ok := c.nodes[h]; return n, ok }

// SubscriptionByMWHandle resolves the ICL subscription that owns a
// given MW-layer subscription handle, so internal/sim can route an
// MW delivery callback (fired for every accepted subscription,
// regardless of layer) back to the ICL record that carries the
// application-supplied callback.
func (c *ICL) SubscriptionByMWHandle(h handle.MWHandle) (*Subscription, bool) {
	for _, s := range c.subs {
		if s.MWHandle == h {
			return s, true
		}
	}
	return nil, false
}

// Publisher resolves an ICL publisher handle.
func (c *ICL) Publisher(h handle.ICLHandle) (*Publisher, bool) { p, ok := c.pubs[h]; return p, ok }

// ProcessNext pops and executes the head of the pending queue. If the
// ICL is still uninitialized it instead performs only the phase
// transition (the caller traces rcl_init) and leaves the queue head
// for the following call.
func (c *ICL) ProcessNext(now int64) (justInitialized bool, kind OpKind, tag any, result any) {
	if c.phase == Uninitialized {
		c.phase = Active
		return true, "", nil, nil
	}
	op := c.pending[0]
	c.pending = c.pending[1:]
	switch op.Kind {
	case OpCreateNode:
		return false, op.Kind, op.Tag, c.createNode(op)
	case OpCreatePublisher:
		return false, op.Kind, op.Tag, c.createPublisher(op)
	case OpCreateSubscription:
		return false, op.Kind, op.Tag, c.createSubscription(op)
	case OpCreateTimer:
		return false, op.Kind, op.Tag, c.createTimer(op, now)
	case OpCreateGuardCondition:
		return false, op.Kind, op.Tag, c.createGuardCondition(op)
	case OpPublish:
		return false, op.Kind, op.Tag, c.publish(op)
	case OpLifecycle:
		return false, op.Kind, op.Tag, c.lifecycle(op)
	case OpTriggerGuard:
		return false, op.Kind, op.Tag, c.triggerGuard(op)
	}
	return false, op.Kind, op.Tag, nil
}

func (c *ICL) createNode(op Operation) Node {
	n := &Node{Name: op.NodeName, Namespace: op.Namespace, UCLHandle: 0, Controls: model.NodeControls{PublishersEnabled: true, TimersEnabled: true}}
	n.Handle = c.counter.Next()
	c.nodes[n.Handle] = n
	return *n
}

func (c *ICL) createPublisher(op Operation) PublisherCreated {
	mwPub, graph := c.mw.CreatePublisher(op.Topic, op.TypeName, op.NodeName, op.QoS)
	p := &Publisher{NodeHandle: op.NodeHandle, Topic: op.Topic, QoS: mwPub.QoS, Format: op.Format, MWHandle: mwPub.Handle}
	p.Handle = c.counter.Next()
	c.pubs[p.Handle] = p
	return PublisherCreated{Publisher: *p, Graph: graph, WriterGUID: mwPub.WriterGUID}
}

func (c *ICL) createSubscription(op Operation) SubscriptionCreated {
	mwSub, graph := c.mw.CreateSubscription(op.Topic, op.TypeName, op.NodeName, op.QoS)
	s := &Subscription{NodeHandle: op.NodeHandle, Topic: op.Topic, QoS: mwSub.QoS, MWHandle: mwSub.Handle, Callback: op.Callback}
	s.Handle = c.counter.Next()
	c.subs[s.Handle] = s
	return SubscriptionCreated{Subscription: *s, Graph: graph, ReaderGUID: mwSub.ReaderGUID}
}

// createTimer seeds LastFire so the timer's first expiration lands at
// its creation instant: the first firing happens at creation time, not
// one period later.
func (c *ICL) createTimer(op Operation, now int64) Timer {
	t := &Timer{NodeHandle: op.NodeHandle, PeriodNS: op.PeriodNS, Callback: op.Callback, LastFire: now - op.PeriodNS}
	t.Handle = c.counter.Next()
	c.timers[t.Handle] = t
	return *t
}

func (c *ICL) createGuardCondition(op Operation) GuardCondition {
	g := &GuardCondition{NodeHandle: op.NodeHandle, Callback: op.Callback}
	g.Handle = c.counter.Next()
	c.guards[g.Handle] = g
	return *g
}

// publish implements the intra-process fast path: subscriptions on
// the same topic owned by the same node as the publisher are reached
// directly; otherwise the envelope is forwarded to MW in full.
func (c *ICL) publish(op Operation) PublishResult {
	pub, ok := c.pubs[op.PublisherHandle]
	res := PublishResult{PublisherHandle: op.PublisherHandle, Topic: op.Topic, Envelope: op.Envelope}
	if !ok {
		res.Dropped = true
		res.DropReason = "unknown_handle"
		return res
	}
	if node, ok := c.nodes[pub.NodeHandle]; ok && !node.Controls.PublishersEnabled {
		res.Dropped = true
		res.DropReason = "publisher_disabled"
		return res
	}

	for _, h := range c.sortedSubHandles() {
		s := c.subs[h]
		if s.Topic == op.Topic && s.NodeHandle == pub.NodeHandle {
			res.IntraDeliveries = append(res.IntraDeliveries, IntraDelivery{
				SubHandle: s.Handle, Callback: s.Callback, Envelope: op.Envelope,
			})
		}
	}
	if len(res.IntraDeliveries) > 0 {
		res.IntraProcess = true
		return res
	}
	res.ForwardedToMW = true
	res.MWPublisherHandle = pub.MWHandle
	return res
}

// LifecycleResult is ProcessNext's result for OpLifecycle.
type LifecycleResult struct {
	NodeHandle handle.ICLHandle
	Controls   model.NodeControls
}

func (c *ICL) lifecycle(op Operation) LifecycleResult {
	n, ok := c.nodes[op.NodeHandle]
	if !ok {
		return LifecycleResult{}
	}
	if op.EnablePublishers != nil {
		n.Controls.PublishersEnabled = *op.EnablePublishers
	}
	if op.EnableTimers != nil {
		n.Controls.TimersEnabled = *op.EnableTimers
	}
	return LifecycleResult{NodeHandle: n.Handle, Controls: n.Controls}
}

// GuardTriggered is ProcessNext's result for OpTriggerGuard.
type GuardTriggered struct {
	Handle   handle.ICLHandle
	Callback model.Callback
}

func (c *ICL) triggerGuard(op Operation) GuardTriggered {
	g, ok := c.guards[op.GuardHandle]
	if !ok {
		return GuardTriggered{}
	}
	return GuardTriggered{Handle: g.Handle, Callback: g.Callback}
}

// FireDueTimers advances every timer whose last_fire+period <= now to
// max(now, last_fire+period) — so missed deadlines never accumulate a
// burst — and returns the set that fired, in handle order so identical
// runs fire identically. Timers owned by a node with
// TimersEnabled=false still advance but are reported Suppressed.
func (c *ICL) FireDueTimers(now int64) []TimerFire {
	handles := make([]handle.ICLHandle, 0, len(c.timers))
	for h := range c.timers {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	var fires []TimerFire
	for _, h := range handles {
		t := c.timers[h]
		due := t.LastFire + t.PeriodNS
		if due > now {
			continue
		}
		if due < now {
			due = now
		}
		t.LastFire = due

		suppressed := false
		if n, ok := c.nodes[t.NodeHandle]; ok && !n.Controls.TimersEnabled {
			suppressed = true
		}
		fires = append(fires, TimerFire{Handle: h, NodeHandle: t.NodeHandle, Callback: t.Callback, Suppressed: suppressed})
	}
	return fires
}

func (c *ICL) sortedSubHandles() []handle.ICLHandle {
	out := make([]handle.ICLHandle, 0, len(c.subs))
	for h := range c.subs {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Waitset is the canonical set of work sources the executor may wake
// for: every currently live subscription, timer, and guard condition,
// each in handle order. It is rebuilt on demand from the layer tables,
// so there is no separate membership list to fall out of sync.
type Waitset struct {
	Subscriptions   []handle.ICLHandle
	Timers          []handle.ICLHandle
	GuardConditions []handle.ICLHandle
}

// Waitset returns the current waitset.
func (c *ICL) Waitset() Waitset {
	ws := Waitset{Subscriptions: c.sortedSubHandles()}
	for h := range c.timers {
		ws.Timers = append(ws.Timers, h)
	}
	sort.Slice(ws.Timers, func(i, j int) bool { return ws.Timers[i] < ws.Timers[j] })
	for h := range c.guards {
		ws.GuardConditions = append(ws.GuardConditions, h)
	}
	sort.Slice(ws.GuardConditions, func(i, j int) bool { return ws.GuardConditions[i] < ws.GuardConditions[j] })
	return ws
}
