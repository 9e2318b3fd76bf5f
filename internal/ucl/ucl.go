// Package ucl implements the user client library: the
// application-facing front door, per-node registries, operation
// enrichment, deferred entity creation, and the executor spin loop.
// Like the lower layers it is a plain
// synchronous component driven by internal/sim.
package ucl

import (
	"github.com/rosdevs/pdevs-sim/internal/handle"
	"github.com/rosdevs/pdevs-sim/internal/icl"
	"github.com/rosdevs/pdevs-sim/internal/model"
)

// OpKind tags an application-submitted operation descriptor.
type OpKind string

const (
	OpCreateNode         OpKind = "create_node"
	OpCreatePublisher    OpKind = "create_publisher"
	OpCreateSubscription OpKind = "create_subscription"
	OpCreateTimer        OpKind = "create_timer"
	OpPublish            OpKind = "publish"
	OpLifecycle          OpKind = "lifecycle"
)

// AppOp is the opaque operation descriptor applications submit.
type AppOp struct {
	Kind             OpKind
	NodeName         string
	Namespace        string
	Topic, TypeName  string
	QoS              model.QoS
	Format           string
	PublisherHandle  handle.UCLHandle // optional for publish; resolved by topic if zero
	ID               string          // envelope id, for publish; correlates trace events
	Payload          any
	Callback         model.Callback
	PeriodNS         int64
	EnablePublishers *bool
	EnableTimers     *bool
}

// Node is the UCL-layer node record.
type Node struct {
	Handle    handle.UCLHandle
	Name      string
	Namespace string
	ICLHandle handle.ICLHandle
	Created   bool
}

// Publisher is the UCL-layer publisher record.
type Publisher struct {
	Handle     handle.UCLHandle
	NodeHandle handle.UCLHandle
	Topic      string
	Format     string
	ICLHandle  handle.ICLHandle
}

// Subscription is the UCL-layer subscription record.
type Subscription struct {
	Handle     handle.UCLHandle
	NodeHandle handle.UCLHandle
	Topic      string
	Callback   model.Callback
	ICLHandle  handle.ICLHandle
}

// Timer is the UCL-layer timer record.
type Timer struct {
	Handle     handle.UCLHandle
	NodeHandle handle.UCLHandle
	PeriodNS   int64
	Callback   model.Callback
	ICLHandle  handle.ICLHandle
}

// Delivery is one application-bound message awaiting a spin tick in
// the deliver_to_app queue.
type Delivery struct {
	SubHandle handle.UCLHandle
	Callback  model.Callback
	Envelope  model.Envelope
}

// ToICL is the downward-forwarded descriptor ProcessNext returns after
// enriching an AppOp; internal/sim hands this straight to icl.Submit.
type ToICL struct {
	Op         icl.Operation
	UCLHandle  handle.UCLHandle // the UCL-layer handle already minted for this op's entity
	NodeHandle handle.UCLHandle // for create_publisher/subscription/timer, the owning UCL node
}

// UCL is the user client library.
type UCL struct {
	counter handle.Counter[handle.UCLHandle]

	nodesByName map[string]*Node
	nodes       map[handle.UCLHandle]*Node
	pubs        map[handle.UCLHandle]*Publisher
	pubsByKey   map[nodeTopicKey]*Publisher
	subs        map[handle.UCLHandle]*Subscription
	timers      map[handle.UCLHandle]*Timer

	pending  []AppOp
	deferred map[string][]AppOp

	deliverQueue []Delivery

	spinPeriodNS int64
	lastSpinAt   int64
	spinning     bool
}

type nodeTopicKey struct {
	node, topic string
}

// New creates a UCL with the given spin period.
func New(spinPeriodNS int64) *UCL {
	return &UCL{
		nodesByName:  make(map[string]*Node),
		nodes:        make(map[handle.UCLHandle]*Node),
		pubs:         make(map[handle.UCLHandle]*Publisher),
		pubsByKey:    make(map[nodeTopicKey]*Publisher),
		subs:         make(map[handle.UCLHandle]*Subscription),
		timers:       make(map[handle.UCLHandle]*Timer),
		deferred:     make(map[string][]AppOp),
		spinPeriodNS: spinPeriodNS,
	}
}

// Submit accepts an application operation descriptor. Creations that
// target a node without a handle yet are placed in that node's
// deferred queue instead of the main pending queue.
func (u *UCL) Submit(op AppOp) {
	if (op.Kind == OpCreatePublisher || op.Kind == OpCreateSubscription || op.Kind == OpCreateTimer) && !u.nodeReady(op.NodeName) {
		u.deferred[op.NodeName] = append(u.deferred[op.NodeName], op)
		return
	}
	u.pending = append(u.pending, op)
}

func (u *UCL) nodeReady(name string) bool {
	n, ok := u.nodesByName[name]
	return ok && n.Created
}

// HasPending reports whether an operation is queued for processing.
func (u *UCL) HasPending() bool { return len(u.pending) > 0 }

// ProcessNext pops and enriches the head of the pending queue,
// returning the downward descriptor to forward to ICL.
func (u *UCL) ProcessNext() ToICL {
	op := u.pending[0]
	u.pending = u.pending[1:]

	switch op.Kind {
	case OpCreateNode:
		n := &Node{Name: op.NodeName, Namespace: op.Namespace}
		n.Handle = u.counter.Next()
		u.nodes[n.Handle] = n
		u.nodesByName[op.NodeName] = n
		return ToICL{Op: icl.Operation{Kind: icl.OpCreateNode, NodeName: op.NodeName, Namespace: op.Namespace}, UCLHandle: n.Handle}

	case OpCreatePublisher:
		node := u.nodesByName[op.NodeName]
		p := &Publisher{NodeHandle: node.Handle, Topic: op.Topic, Format: op.Format}
		p.Handle = u.counter.Next()
		u.pubs[p.Handle] = p
		u.pubsByKey[nodeTopicKey{op.NodeName, op.Topic}] = p
		return ToICL{
			Op:         icl.Operation{Kind: icl.OpCreatePublisher, NodeHandle: node.ICLHandle, NodeName: op.NodeName, Topic: op.Topic, TypeName: op.TypeName, QoS: op.QoS, Format: op.Format},
			UCLHandle:  p.Handle,
			NodeHandle: node.Handle,
		}

	case OpCreateSubscription:
		node := u.nodesByName[op.NodeName]
		s := &Subscription{NodeHandle: node.Handle, Topic: op.Topic, Callback: op.Callback}
		s.Handle = u.counter.Next()
		u.subs[s.Handle] = s
		return ToICL{
			Op:         icl.Operation{Kind: icl.OpCreateSubscription, NodeHandle: node.ICLHandle, NodeName: op.NodeName, Topic: op.Topic, TypeName: op.TypeName, QoS: op.QoS, Callback: subCallback(u, s.Handle)},
			UCLHandle:  s.Handle,
			NodeHandle: node.Handle,
		}

	case OpCreateTimer:
		node := u.nodesByName[op.NodeName]
		tm := &Timer{NodeHandle: node.Handle, PeriodNS: op.PeriodNS, Callback: op.Callback}
		tm.Handle = u.counter.Next()
		u.timers[tm.Handle] = tm
		return ToICL{
			Op:         icl.Operation{Kind: icl.OpCreateTimer, NodeHandle: node.ICLHandle, PeriodNS: op.PeriodNS, Callback: op.Callback},
			UCLHandle:  tm.Handle,
			NodeHandle: node.Handle,
		}

	case OpPublish:
		if op.ID == "" {
			op.ID = model.NewMessageID()
		}
		pubHandle := op.PublisherHandle
		if pubHandle == 0 {
			if p, ok := u.pubsByKey[nodeTopicKey{op.NodeName, op.Topic}]; ok {
				pubHandle = p.Handle
			}
		}
		pub := u.pubs[pubHandle]
		iclPubHandle := handle.ICLHandle(0)
		topic := op.Topic
		if pub != nil {
			iclPubHandle = pub.ICLHandle
			if topic == "" {
				topic = pub.Topic
			}
		}
		return ToICL{
			Op:        icl.Operation{Kind: icl.OpPublish, PublisherHandle: iclPubHandle, Topic: topic, Envelope: model.Envelope{ID: op.ID, Topic: topic, Kind: model.KindData, Payload: op.Payload}},
			UCLHandle: pubHandle,
		}

	case OpLifecycle:
		node, ok := u.nodesByName[op.NodeName]
		if !ok {
			return ToICL{}
		}
		return ToICL{
			Op: icl.Operation{Kind: icl.OpLifecycle, NodeHandle: node.ICLHandle, EnablePublishers: op.EnablePublishers, EnableTimers: op.EnableTimers},
		}
	}
	return ToICL{}
}

// subCallback returns a Callback that enqueues a delivery for the
// given UCL subscription handle rather than invoking anything
// directly — actual invocation happens later, via the executor, once
// a spin tick dispatches it.
func subCallback(u *UCL, subHandle handle.UCLHandle) model.Callback {
	return model.CallbackFunc(func(env model.Envelope) error {
		u.EnqueueDelivery(subHandle, env)
		return nil
	})
}

// OnNodeCreated records the ICL-layer handle for node and drains its
// deferred queue into the main pending queue in arrival order.
func (u *UCL) OnNodeCreated(name string, iclHandle handle.ICLHandle) {
	n, ok := u.nodesByName[name]
	if !ok {
		return
	}
	n.ICLHandle = iclHandle
	n.Created = true
	u.pending = append(u.pending, u.deferred[name]...)
	delete(u.deferred, name)
}

// OnPublisherCreated records the ICL-layer handle for a publisher once
// ICL acks its creation.
func (u *UCL) OnPublisherCreated(uclHandle handle.UCLHandle, iclHandle handle.ICLHandle) {
	if p, ok := u.pubs[uclHandle]; ok {
		p.ICLHandle = iclHandle
	}
}

// OnSubscriptionCreated records the ICL-layer handle for a subscription.
func (u *UCL) OnSubscriptionCreated(uclHandle handle.UCLHandle, iclHandle handle.ICLHandle) {
	if s, ok := u.subs[uclHandle]; ok {
		s.ICLHandle = iclHandle
	}
}

// EnqueueDelivery places env in the spin-gated FIFO for subHandle's
// callback. The caller traces
// rclcpp_take at this point — enrollment here is what "UCL took
// receipt of it" means in this model.
func (u *UCL) EnqueueDelivery(subHandle handle.UCLHandle, env model.Envelope) {
	sub, ok := u.subs[subHandle]
	if !ok {
		return
	}
	u.deliverQueue = append(u.deliverQueue, Delivery{SubHandle: subHandle, Callback: sub.Callback, Envelope: env})
}

// StartSpinning marks the UCL as initialized and schedules the first
// spin tick.
func (u *UCL) StartSpinning(now int64) {
	if u.spinning {
		return
	}
	u.spinning = true
	u.lastSpinAt = now
}

// Spinning reports whether the spin loop has started.
func (u *UCL) Spinning() bool { return u.spinning }

// NextSpinDue returns the virtual time of the next spin tick.
func (u *UCL) NextSpinDue() int64 { return u.lastSpinAt + u.spinPeriodNS }

// Spin advances the spin clock to now and dequeues at most one
// pending delivery; spin is the only source of progress for
// application callbacks.
func (u *UCL) Spin(now int64) (Delivery, bool) {
	u.lastSpinAt = now
	if len(u.deliverQueue) == 0 {
		return Delivery{}, false
	}
	d := u.deliverQueue[0]
	u.deliverQueue = u.deliverQueue[1:]
	return d, true
}

// HasPendingDelivery reports whether a spin tick would have work.
func (u *UCL) HasPendingDelivery() bool { return len(u.deliverQueue) > 0 }

// Node resolves a UCL node handle.
func (u *UCL) Node(h handle.UCLHandle) (*Node, bool) { n, ok := u.nodes[h]; return n, ok }

// NodeByName resolves a node record by name.
func (u *UCL) NodeByName(name string) (*Node, bool) { n, ok := u.nodesByName[name]; return n, ok }

// Publisher resolves a UCL publisher handle.
func (u *UCL) Publisher(h handle.UCLHandle) (*Publisher, bool) { p, ok := u.pubs[h]; return p, ok }

// Subscription resolves a UCL subscription handle.
func (u *UCL) Subscription(h handle.UCLHandle) (*Subscription, bool) { s, ok := u.subs[h]; return s, ok }
