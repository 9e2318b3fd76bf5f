// Package transport implements the transport multiplexer: a DEVS
// atomic machine that models loopback/shared-mem/UDP/TCP cost and
// ordering between DDS participant writers and readers. It never
// realizes real wire delivery — every "send" becomes a scheduled
// virtual-time delivery or a modeled drop.
package transport

import (
	"math/rand"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/rosdevs/pdevs-sim/internal/devs"
	"github.com/rosdevs/pdevs-sim/internal/model"
)

// Kind identifies a transport mechanism.
type Kind string

const (
	IntraProcess Kind = "INTRAPROCESS"
	SHMem        Kind = "SHMEM"
	UDP          Kind = "UDP"
	TCP          Kind = "TCP"
)

// CostModel parameterizes one transport kind's modeled cost.
type CostModel struct {
	BaseLatencyNS         int64
	PerByteLatencyNS       int64
	DropProbability       float64
	ThroughputBytesPerSec float64 // 0 disables rate shaping for this kind
	BurstBytes            int
}

// DefaultModels returns a reasonable default cost model per kind:
// intra-process and shared memory are cheap and lossless, UDP is fast
// but lossy, TCP is reliable but has higher base latency.
func DefaultModels() map[Kind]CostModel {
	return map[Kind]CostModel{
		IntraProcess: {BaseLatencyNS: 0, PerByteLatencyNS: 0, DropProbability: 0},
		SHMem:        {BaseLatencyNS: 500, PerByteLatencyNS: 1, DropProbability: 0, ThroughputBytesPerSec: 1e10, BurstBytes: 1 << 20},
		UDP:          {BaseLatencyNS: 50_000, PerByteLatencyNS: 4, DropProbability: 0.01, ThroughputBytesPerSec: 1e8, BurstBytes: 1 << 16},
		TCP:          {BaseLatencyNS: 120_000, PerByteLatencyNS: 2, DropProbability: 0, ThroughputBytesPerSec: 1e9, BurstBytes: 1 << 20},
	}
}

// SendRequest is the payload a participant delivers to the
// multiplexer's "send" input port.
type SendRequest struct {
	Kind        Kind
	Src, Dst    string // participant identity, for the FIFO ordering triple
	Topic       string
	Envelope    model.Envelope
	DstPort     string // the participant output port to deliver on, e.g. "inbound:<dst>"
}

// DropEvent describes a modeled drop, emitted on the "drop" output
// port so the coordinating layer can turn it into a transport_drop
// trace event from *its* Output function (trace emission stays
// confined to output functions — the multiplexer itself only forwards
// the fact of the drop).
type DropEvent struct {
	Kind  Kind
	Topic string
	Src   string
	Dst   string
}

// DeliverEvent carries a successfully transported envelope back out on
// the multiplexer's "deliver" output port.
type DeliverEvent struct {
	DstPort  string
	Envelope model.Envelope
}

type tripleKey struct {
	src, dst, topic string
}

type pendingItem struct {
	deliverAt int64
	dropped   bool
	req       SendRequest
}

// Multiplexer is the transport's atomic machine.
type Multiplexer struct {
	name    string
	models  map[Kind]CostModel
	limiter map[Kind]*rate.Limiter
	epoch   time.Time

	now            int64
	pending        []pendingItem
	lastDeliverAt  map[tripleKey]int64
	rng            *rand.Rand
}

// New creates a Multiplexer named name, using models for per-kind cost
// and a deterministic RNG seeded by seed, so drop decisions are
// reproducible.
func New(name string, models map[Kind]CostModel, seed int64) *Multiplexer {
	m := &Multiplexer{
		name:          name,
		models:        models,
		limiter:       make(map[Kind]*rate.Limiter),
		epoch:         time.Unix(0, 0),
		lastDeliverAt: make(map[tripleKey]int64),
		rng:           rand.New(rand.NewSource(seed)),
	}
	for kind, cm := range models {
		if cm.ThroughputBytesPerSec > 0 {
			m.limiter[kind] = rate.NewLimiter(rate.Limit(cm.ThroughputBytesPerSec), cm.BurstBytes)
		}
	}
	return m
}

func (m *Multiplexer) Name() string { return m.name }

func (m *Multiplexer) TimeAdvance() int64 {
	if len(m.pending) == 0 {
		return devs.Infinity
	}
	return m.pending[0].deliverAt - m.now
}

// syncNow pulls m.now forward to the head of the pending queue. Output
// and InternalTransition are only ever invoked when this machine is
// imminent, i.e. exactly when the coordinator's virtual time reaches
// pending[0].deliverAt — the value TimeAdvance promised — so that head
// deliverAt *is* the current time. ExternalTransition's elapsed-based
// update is not enough on its own: a run of pure internal transitions
// (no external input) would otherwise leave m.now stuck at whatever it
// was after the last external message.
func (m *Multiplexer) syncNow() {
	if len(m.pending) > 0 {
		m.now = m.pending[0].deliverAt
	}
}

// Output emits a DeliverEvent or DropEvent for every pending item that
// is due exactly at m.now (there may be several, since several sends
// can resolve to the same deliverAt).
func (m *Multiplexer) Output() []devs.Output {
	m.syncNow()
	var outs []devs.Output
	for _, it := range m.pending {
		if it.deliverAt != m.now {
			break // m.pending is kept sorted by deliverAt
		}
		if it.dropped {
			outs = append(outs, devs.Output{Port: "drop", Value: DropEvent{
				Kind: it.req.Kind, Topic: it.req.Topic, Src: it.req.Src, Dst: it.req.Dst,
			}})
			continue
		}
		outs = append(outs, devs.Output{Port: "deliver", Value: DeliverEvent{
			DstPort: it.req.DstPort, Envelope: it.req.Envelope,
		}})
	}
	return outs
}

// InternalTransition drops every item that was due at m.now.
func (m *Multiplexer) InternalTransition() {
	m.syncNow()
	due := 0
	for due < len(m.pending) && m.pending[due].deliverAt == m.now {
		due++
	}
	m.pending = m.pending[due:]
}

// ExternalTransition enqueues each incoming SendRequest for future
// delivery or drop, applying the per-(src,dst,topic) FIFO-ordering and
// cost rules.
func (m *Multiplexer) ExternalTransition(inputs []devs.Message, elapsed int64) {
	m.now += elapsed
	for _, in := range inputs {
		req, ok := in.Value.(SendRequest)
		if !ok {
			continue
		}
		m.enqueue(req)
	}
	sort.SliceStable(m.pending, func(i, j int) bool { return m.pending[i].deliverAt < m.pending[j].deliverAt })
}

func (m *Multiplexer) enqueue(req SendRequest) {
	cm := m.models[req.Kind]
	bytes := req.Envelope.SerializedBytes

	latency := cm.BaseLatencyNS + bytes*cm.PerByteLatencyNS
	if lim, ok := m.limiter[req.Kind]; ok {
		res := lim.ReserveN(m.epoch.Add(time.Duration(m.now)), int(bytes))
		latency += int64(res.DelayFrom(m.epoch.Add(time.Duration(m.now))))
	}

	deliverAt := m.now + latency

	// FIFO within (src,dst,topic): never let a later send resolve
	// earlier than one already queued for the same triple.
	key := tripleKey{req.Src, req.Dst, req.Topic}
	if prior, ok := m.lastDeliverAt[key]; ok && deliverAt <= prior {
		deliverAt = prior + 1
	}
	m.lastDeliverAt[key] = deliverAt

	dropped := cm.DropProbability > 0 && m.rng.Float64() < cm.DropProbability

	m.pending = append(m.pending, pendingItem{deliverAt: deliverAt, dropped: dropped, req: req})
}
