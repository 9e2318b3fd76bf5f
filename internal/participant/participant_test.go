package participant

import (
	"testing"

	"github.com/rosdevs/pdevs-sim/internal/model"
)

func TestCreateWriterReaderDistinctGUIDs(t *testing.T) {
	p := New()
	w := p.CreateWriter("/t", "std_msgs/String", model.LowerQoS{})
	r := p.CreateReader("/t", "std_msgs/String", model.LowerQoS{}, model.CallbackFunc(func(model.Envelope) error { return nil }))

	if w.GUID == r.GUID {
		t.Fatalf("writer and reader minted the same guid: %d", w.GUID)
	}
	if w.GUID == 0 || r.GUID == 0 {
		t.Fatalf("expected nonzero guids, got writer=%d reader=%d", w.GUID, r.GUID)
	}
}

func TestWriteDataAssignsMonotonicSequenceNumbers(t *testing.T) {
	p := New()
	w := p.CreateWriter("/t", "std_msgs/String", model.LowerQoS{})

	e1, ok := p.WriteData(w.GUID, model.Envelope{ID: "a"})
	if !ok || e1.SequenceNumber != 1 {
		t.Fatalf("first WriteData: seq=%d ok=%v, want seq=1", e1.SequenceNumber, ok)
	}
	e2, ok := p.WriteData(w.GUID, model.Envelope{ID: "b"})
	if !ok || e2.SequenceNumber != 2 {
		t.Fatalf("second WriteData: seq=%d ok=%v, want seq=2", e2.SequenceNumber, ok)
	}
	if e1.WriterGUID != w.GUID || e2.WriterGUID != w.GUID {
		t.Fatalf("expected both envelopes stamped with writer guid %d", w.GUID)
	}
}

func TestWriteDataUnknownWriter(t *testing.T) {
	p := New()
	if _, ok := p.WriteData(999, model.Envelope{}); ok {
		t.Fatalf("expected WriteData on unknown writer to fail")
	}
}

func TestLocalReadersForTopicFiltersByTopic(t *testing.T) {
	p := New()
	cb := model.CallbackFunc(func(model.Envelope) error { return nil })
	r1 := p.CreateReader("/a", "T", model.LowerQoS{}, cb)
	_ = p.CreateReader("/b", "T", model.LowerQoS{}, cb)
	r2 := p.CreateReader("/a", "T", model.LowerQoS{}, cb)

	got := p.LocalReadersForTopic("/a")
	if len(got) != 2 {
		t.Fatalf("LocalReadersForTopic(/a) = %d readers, want 2", len(got))
	}
	seen := map[uint64]bool{}
	for _, r := range got {
		seen[uint64(r.GUID)] = true
	}
	if !seen[uint64(r1.GUID)] || !seen[uint64(r2.GUID)] {
		t.Fatalf("expected both /a readers present, got %+v", got)
	}
}

func TestTwoIndependentWritersSequenceIndependently(t *testing.T) {
	p := New()
	w1 := p.CreateWriter("/t", "T", model.LowerQoS{})
	w2 := p.CreateWriter("/t", "T", model.LowerQoS{})

	e1, _ := p.WriteData(w1.GUID, model.Envelope{})
	_, _ = p.WriteData(w2.GUID, model.Envelope{})
	e3, _ := p.WriteData(w1.GUID, model.Envelope{})

	if e1.SequenceNumber != 1 || e3.SequenceNumber != 2 {
		t.Fatalf("expected writer w1's own sequence to be independent of w2: e1=%d e3=%d", e1.SequenceNumber, e3.SequenceNumber)
	}
}
