package transport

import (
	"testing"

	"github.com/rosdevs/pdevs-sim/internal/devs"
	"github.com/rosdevs/pdevs-sim/internal/model"
)

func TestIntraProcessDeliversImmediately(t *testing.T) {
	models := DefaultModels()
	mux := New("mux", models, 1)

	mux.ExternalTransition([]devs.Message{{Port: "send", Value: SendRequest{
		Kind: IntraProcess, Src: "a", Dst: "b", Topic: "/t",
		Envelope: model.Envelope{ID: "1"}, DstPort: "inbound:b",
	}}}, 0)

	if ta := mux.TimeAdvance(); ta != 0 {
		t.Fatalf("TimeAdvance() = %d, want 0 for zero-latency intra-process kind", ta)
	}

	outs := mux.Output()
	if len(outs) != 1 {
		t.Fatalf("Output() = %v, want 1 item", outs)
	}
	de, ok := outs[0].Value.(DeliverEvent)
	if !ok || de.Envelope.ID != "1" {
		t.Fatalf("Output()[0] = %+v, want DeliverEvent{ID=1}", outs[0])
	}
}

func TestFIFOWithinTriple(t *testing.T) {
	models := DefaultModels()
	mux := New("mux", models, 1)

	// Two sends on the same (src,dst,topic) triple, same tick.
	mux.ExternalTransition([]devs.Message{
		{Port: "send", Value: SendRequest{Kind: TCP, Src: "a", Dst: "b", Topic: "/t", Envelope: model.Envelope{ID: "1"}}},
		{Port: "send", Value: SendRequest{Kind: TCP, Src: "a", Dst: "b", Topic: "/t", Envelope: model.Envelope{ID: "2"}}},
	}, 0)

	if len(mux.pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(mux.pending))
	}
	if mux.pending[0].deliverAt >= mux.pending[1].deliverAt {
		t.Fatalf("expected strictly increasing deliverAt within a triple: %d, %d",
			mux.pending[0].deliverAt, mux.pending[1].deliverAt)
	}
	if mux.pending[0].req.Envelope.ID != "1" || mux.pending[1].req.Envelope.ID != "2" {
		t.Fatalf("expected FIFO order preserved by id")
	}
}

func TestAlwaysDropModelsLoss(t *testing.T) {
	models := DefaultModels()
	udp := models[UDP]
	udp.DropProbability = 1.0
	models[UDP] = udp
	mux := New("mux", models, 1)

	mux.ExternalTransition([]devs.Message{{Port: "send", Value: SendRequest{
		Kind: UDP, Src: "a", Dst: "b", Topic: "/t", Envelope: model.Envelope{ID: "1"},
	}}}, 0)

	mux.now = mux.pending[0].deliverAt
	outs := mux.Output()
	if len(outs) != 1 {
		t.Fatalf("Output() = %v, want 1 item", outs)
	}
	if _, ok := outs[0].Value.(DropEvent); !ok {
		t.Fatalf("Output()[0] = %+v, want a DropEvent", outs[0])
	}
}

func TestNeverDropDeliversCleanly(t *testing.T) {
	models := DefaultModels()
	udp := models[UDP]
	udp.DropProbability = 0.0
	models[UDP] = udp
	mux := New("mux", models, 1)

	for i := 0; i < 20; i++ {
		mux.ExternalTransition([]devs.Message{{Port: "send", Value: SendRequest{
			Kind: UDP, Src: "a", Dst: "b", Topic: "/t", Envelope: model.Envelope{ID: "x"},
		}}}, 0)
	}
	for _, it := range mux.pending {
		if it.dropped {
			t.Fatalf("expected no drops with DropProbability=0")
		}
	}
}
