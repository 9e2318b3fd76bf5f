// Package mw implements the middleware abstraction: the RMW-level
// publisher/subscription tables, QoS coercion, delivery gating, and
// graph events. Like internal/participant,
// it is a plain synchronous component — internal/sim calls into it
// from inside a Machine's Output function, which is where the
// resulting trace events actually get appended to the log.
package mw

import (
	"github.com/rosdevs/pdevs-sim/internal/handle"
	"github.com/rosdevs/pdevs-sim/internal/model"
	"github.com/rosdevs/pdevs-sim/internal/participant"
	"github.com/rosdevs/pdevs-sim/internal/registry"
)

// Publisher is the RMW-level record for a publisher.
type Publisher struct {
	Handle     handle.MWHandle
	Topic      string
	Node       string
	QoS        model.QoS
	WriterGUID handle.GUID
}

// Subscription is the RMW-level record for a subscription.
type Subscription struct {
	Handle     handle.MWHandle
	Topic      string
	Node       string
	QoS        model.QoS
	ReaderGUID handle.GUID
}

// GraphEvent is a discovery-domain announcement emitted on each
// entity creation, carrying the event kind, topic, and node.
type GraphEvent struct {
	Kind  string // "publisher_created" | "subscription_created"
	Topic string
	Node  string
}

// Rejection describes a delivery MW refused at the gating check.
type Rejection struct {
	SubHandle handle.MWHandle
	Topic     string
	Reason    string
	Envelope  model.Envelope
}

// MW is the middleware abstraction. It owns no virtual clock of its
// own; every method here executes at the instant it is called.
type MW struct {
	participant *participant.Participant
	defaults    model.QoS

	pubs    *handle.Table[handle.MWHandle, Publisher]
	subs    *handle.Table[handle.MWHandle, Subscription]
	pubByGUID map[handle.GUID]handle.MWHandle
	subByGUID map[handle.GUID]handle.MWHandle

	// onDeliver/onReject fire for the whole MW instance rather than per
	// subscription because internal/sim needs a single place to hook
	// trace emission for every accepted/rejected delivery — see
	// CreateSubscription's on_data wiring below.
	onDeliver func(sub Subscription, env model.Envelope)
	onReject  func(rej Rejection)
}

// New creates an MW instance bound to a participant. onDeliver is
// invoked for every envelope that passes gating; onReject for every
// one that does not.
func New(p *participant.Participant, onDeliver func(Subscription, model.Envelope), onReject func(Rejection)) *MW {
	return &MW{
		participant: p,
		defaults:    model.Defaults(),
		pubs:        handle.NewTable[handle.MWHandle, Publisher](),
		subs:        handle.NewTable[handle.MWHandle, Subscription](),
		pubByGUID:   make(map[handle.GUID]handle.MWHandle),
		subByGUID:   make(map[handle.GUID]handle.MWHandle),
		onDeliver:   onDeliver,
		onReject:    onReject,
	}
}

// SetDefaultQoS replaces the built-in default profile with the one
// from the qos.defaults.* configuration section. Call before creating
// any entities.
func (m *MW) SetDefaultQoS(q model.QoS) { m.defaults = q }

// CreatePublisher coerces qos inward (inner ms+infinity -> lower
// ns+unset-infinite) and registers a writer on the participant. It
// returns the new publisher record and the graph event the caller
// should trace.
func (m *MW) CreatePublisher(topic, typeName, node string, qos model.QoS) (Publisher, GraphEvent) {
	qos = model.FillDefaults(qos, m.defaults)
	w := m.participant.CreateWriter(topic, typeName, model.ToLower(qos))
	pub := Publisher{Topic: topic, Node: node, QoS: qos, WriterGUID: w.GUID}
	pub.Handle = m.pubs.Insert(pub)
	m.pubs.Set(pub.Handle, pub)
	m.pubByGUID[w.GUID] = pub.Handle
	return pub, GraphEvent{Kind: "publisher_created", Topic: topic, Node: node}
}

// CreateSubscription coerces qos inward and registers a reader on the
// participant whose on_data callback performs the delivery-gating
// check before handing an accepted envelope to m.onDeliver.
func (m *MW) CreateSubscription(topic, typeName, node string, qos model.QoS) (Subscription, GraphEvent) {
	qos = model.FillDefaults(qos, m.defaults)
	var subHandle handle.MWHandle
	r := m.participant.CreateReader(topic, typeName, model.ToLower(qos), model.CallbackFunc(func(env model.Envelope) error {
		m.deliver(subHandle, env)
		return nil
	}))
	sub := Subscription{Topic: topic, Node: node, QoS: qos, ReaderGUID: r.GUID}
	sub.Handle = m.subs.Insert(sub)
	m.subs.Set(sub.Handle, sub)
	subHandle = sub.Handle
	m.subByGUID[r.GUID] = sub.Handle
	return sub, GraphEvent{Kind: "subscription_created", Topic: topic, Node: node}
}

func (m *MW) deliver(subHandle handle.MWHandle, env model.Envelope) {
	sub, ok := m.subs.Get(subHandle)
	if !ok {
		return
	}
	pubQoS := m.defaults
	if pubMWHandle, ok := m.pubByGUID[env.WriterGUID]; ok {
		if pub, ok := m.pubs.Get(pubMWHandle); ok {
			pubQoS = pub.QoS
		}
	}
	if ok, reason := model.Compatible(pubQoS, sub.QoS); !ok {
		if m.onReject != nil {
			m.onReject(Rejection{SubHandle: subHandle, Topic: sub.Topic, Reason: reason, Envelope: env})
		}
		return
	}
	if m.onDeliver != nil {
		m.onDeliver(sub, env)
	}
}

// Publish estimates env's serialized size via the cost registry,
// stamps it, and stamps a sequence number via the paired writer. The
// returned envelope is what the caller should hand to the transport
// multiplexer.
func (m *MW) Publish(pubHandle handle.MWHandle, env model.Envelope, format string) (model.Envelope, bool) {
	pub, ok := m.pubs.Get(pubHandle)
	if !ok {
		return env, false
	}
	env.SerializedBytes = registry.EstimateSize(env.Payload)
	env, ok = m.participant.WriteData(pub.WriterGUID, env)
	return env, ok
}

// Deliver routes an inbound envelope to every local reader for its
// topic — MW owns the call site
// because the reader's on_data callback (registered in
// CreateSubscription) is where the gating check lives.
func (m *MW) Deliver(env model.Envelope) {
	for _, r := range m.participant.LocalReadersForTopic(env.Topic) {
		if r.OnData != nil {
			r.OnData.Invoke(env)
		}
	}
}

// Publisher resolves a publisher handle.
func (m *MW) Publisher(h handle.MWHandle) (Publisher, bool) { return m.pubs.Get(h) }

// Subscription resolves a subscription handle.
func (m *MW) Subscription(h handle.MWHandle) (Subscription, bool) { return m.subs.Get(h) }
