// Package participant implements the DDS participant: the
// writer/reader registry, topic matching, and per-writer sequence
// numbering. It is a plain synchronous
// component, not a DEVS machine — every operation in this package
// completes at the instant it is called; internal/sim drives it from
// inside a Machine's Output function so the call still happens only
// during the coordinator's Output phase (see internal/sim's design
// note on trace emission).
package participant

import (
	"sort"

	"github.com/rosdevs/pdevs-sim/internal/handle"
	"github.com/rosdevs/pdevs-sim/internal/model"
)

// Participant holds the writer/reader tables for one DDS domain
// participant. Discovery is local-only: every writer and
// reader ever created on this Participant is visible to every other
// one created on it, which is how same-process peers "discover" each
// other without a wire protocol.
type Participant struct {
	guids   handle.Counter[handle.GUID]
	writers map[handle.GUID]*model.Writer
	readers map[handle.GUID]*model.Reader
}

// New creates an empty participant.
func New() *Participant {
	return &Participant{
		writers: make(map[handle.GUID]*model.Writer),
		readers: make(map[handle.GUID]*model.Reader),
	}
}

// CreateWriter registers a new writer for topic/typeName with QoS qos
// and returns it.
func (p *Participant) CreateWriter(topic, typeName string, qos model.LowerQoS) *model.Writer {
	w := &model.Writer{GUID: p.guids.Next(), Topic: topic, TypeName: typeName, QoS: qos}
	p.writers[w.GUID] = w
	return w
}

// CreateReader registers a new reader for topic/typeName with QoS qos
// and on-data callback onData.
func (p *Participant) CreateReader(topic, typeName string, qos model.LowerQoS, onData model.Callback) *model.Reader {
	r := &model.Reader{GUID: p.guids.Next(), Topic: topic, TypeName: typeName, QoS: qos, OnData: onData}
	p.readers[r.GUID] = r
	return r
}

// Writer resolves a writer GUID, for callers that need to re-check QoS
// or topic without threading the *model.Writer through every call.
func (p *Participant) Writer(guid handle.GUID) (*model.Writer, bool) {
	w, ok := p.writers[guid]
	return w, ok
}

// Reader resolves a reader GUID.
func (p *Participant) Reader(guid handle.GUID) (*model.Reader, bool) {
	r, ok := p.readers[guid]
	return r, ok
}

// WriteData stamps env with a per-writer monotonically increasing
// sequence number and the writer's guid. It does
// not deliver the envelope anywhere — the caller (internal/mw, via
// internal/sim) is responsible for handing the stamped envelope to the
// transport multiplexer.
func (p *Participant) WriteData(writerGUID handle.GUID, env model.Envelope) (model.Envelope, bool) {
	w, ok := p.writers[writerGUID]
	if !ok {
		return env, false
	}
	w.NextSeq++
	env.WriterGUID = writerGUID
	env.SequenceNumber = w.NextSeq
	return env, true
}

// LocalReadersForTopic returns every local reader whose topic equals
// topic. Cross-writer ordering is undefined, but identical runs must
// still fan out identically, so readers are returned in GUID order
// rather than map order.
func (p *Participant) LocalReadersForTopic(topic string) []*model.Reader {
	var out []*model.Reader
	for _, r := range p.readers {
		if r.Topic == topic {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GUID < out[j].GUID })
	return out
}
