// Package model holds the cross-layer data model shared by every
// component: the message envelope, QoS profiles, callback capability
// handles, and the participant-layer endpoint records. Per-layer
// entity records (nodes, publishers, subscriptions, timers) live with
// the layer that owns them, in internal/ucl and internal/icl. Nothing
// in this package performs I/O or scheduling; it is the plain data
// that the DEVS machines pass between each other.
package model

import (
	"time"

	"github.com/rosdevs/pdevs-sim/internal/handle"
)

// Kind tags a message envelope's role in the protocol.
type Kind string

const (
	KindData            Kind = "DATA"
	KindServiceRequest  Kind = "SERVICE_REQUEST"
	KindServiceResponse Kind = "SERVICE_RESPONSE"
	KindActionGoal      Kind = "ACTION_GOAL"
	KindActionFeedback  Kind = "ACTION_FEEDBACK"
	KindActionResult    Kind = "ACTION_RESULT"
)

// Envelope is the message-carrying artifact that flows through every
// layer. Id is minted once by the application layer (UCL) and stays
// stable end to end so trace events can be correlated by id.
type Envelope struct {
	ID        string
	Topic     string
	Created   time.Time
	Kind      Kind
	QoS       *QoS // optional hint carried by the application
	Payload   any

	// Stamped by lower layers as the envelope descends/ascends the stack.
	SerializedBytes int64          // stamped by MW.publish via the cost registry
	WriterGUID      handle.GUID    // stamped by the participant on write_data
	SequenceNumber  uint64         // stamped by the participant on write_data
	WriteTime       time.Time      // not stamped by any layer: write_data leaves it at its zero value
}

// Clone returns a shallow copy of the envelope; layers that fan an
// envelope out to multiple local readers/subscriptions clone it so
// per-delivery stamps (e.g. a rejecting QoS check) do not alias.
func (e Envelope) Clone() Envelope {
	return e
}

// Callback is a capability handle for a user-supplied callback.
// Concrete callbacks (subscription data handlers, timer callbacks,
// guard condition callbacks) implement Invoke.
type Callback interface {
	Invoke(env Envelope) error
}

// CallbackFunc adapts a plain function to the Callback interface.
type CallbackFunc func(env Envelope) error

func (f CallbackFunc) Invoke(env Envelope) error { return f(env) }

// NodeControls gates publication and timer firing per the lifecycle
// control port.
type NodeControls struct {
	PublishersEnabled bool
	TimersEnabled     bool
}

// Writer is the participant-layer record for an outgoing DDS endpoint.
type Writer struct {
	GUID     handle.GUID
	Topic    string
	TypeName string
	QoS      LowerQoS
	NextSeq  uint64
}

// Reader is the participant-layer record for an incoming DDS endpoint.
type Reader struct {
	GUID     handle.GUID
	Topic    string
	TypeName string
	QoS      LowerQoS
	OnData   Callback
}
