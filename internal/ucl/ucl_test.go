package ucl

import (
	"testing"

	"github.com/rosdevs/pdevs-sim/internal/model"
)

func TestDeferredPublisherDrainsOnNodeCreated(t *testing.T) {
	u := New(1000)
	u.Submit(AppOp{Kind: OpCreatePublisher, NodeName: "X", Topic: "/q"})
	if u.HasPending() {
		t.Fatalf("expected create_publisher for an unknown node to be deferred, not pending")
	}

	u.Submit(AppOp{Kind: OpCreateNode, NodeName: "X"})
	if !u.HasPending() {
		t.Fatalf("expected create_node to be pending immediately")
	}
	toICL := u.ProcessNext()
	u.OnNodeCreated("X", 7)

	if !u.HasPending() {
		t.Fatalf("expected the deferred create_publisher to drain into pending after node_created")
	}
	next := u.ProcessNext()
	if next.Op.NodeHandle != 7 {
		t.Fatalf("expected drained publisher op to carry the freshly acked ICL node handle, got %v (first op was %v)", next.Op.NodeHandle, toICL.Op.Kind)
	}
}

func TestPublishAutoResolvesPublisherByTopic(t *testing.T) {
	u := New(1000)
	u.Submit(AppOp{Kind: OpCreateNode, NodeName: "N"})
	u.ProcessNext()
	u.OnNodeCreated("N", 1)

	u.Submit(AppOp{Kind: OpCreatePublisher, NodeName: "N", Topic: "/t"})
	pubToICL := u.ProcessNext()
	u.OnPublisherCreated(pubToICL.UCLHandle, 42)

	u.Submit(AppOp{Kind: OpPublish, NodeName: "N", Topic: "/t", Payload: "hi"})
	pubOp := u.ProcessNext()
	if pubOp.Op.PublisherHandle != 42 {
		t.Fatalf("expected publish to auto-resolve to the ICL publisher handle 42, got %v", pubOp.Op.PublisherHandle)
	}
}

func TestSpinDispatchesOneDeliveryPerTick(t *testing.T) {
	u := New(1000)
	u.Submit(AppOp{Kind: OpCreateNode, NodeName: "N"})
	u.ProcessNext()
	u.OnNodeCreated("N", 1)

	u.Submit(AppOp{Kind: OpCreateSubscription, NodeName: "N", Topic: "/t", Callback: model.CallbackFunc(func(model.Envelope) error { return nil })})
	subToICL := u.ProcessNext()
	u.OnSubscriptionCreated(subToICL.UCLHandle, 9)

	u.EnqueueDelivery(subToICL.UCLHandle, model.Envelope{ID: "1"})
	u.EnqueueDelivery(subToICL.UCLHandle, model.Envelope{ID: "2"})

	u.StartSpinning(0)
	d1, ok := u.Spin(1000)
	if !ok || d1.Envelope.ID != "1" {
		t.Fatalf("first spin should dispatch id=1, got %+v ok=%v", d1, ok)
	}
	if !u.HasPendingDelivery() {
		t.Fatalf("expected a second delivery still queued")
	}
	d2, ok := u.Spin(2000)
	if !ok || d2.Envelope.ID != "2" {
		t.Fatalf("second spin should dispatch id=2, got %+v ok=%v", d2, ok)
	}
	if _, ok := u.Spin(3000); ok {
		t.Fatalf("third spin should find the queue empty")
	}
}

func TestDeferredOpsPreserveArrivalOrder(t *testing.T) {
	u := New(1000)
	u.Submit(AppOp{Kind: OpCreatePublisher, NodeName: "X", Topic: "/a"})
	u.Submit(AppOp{Kind: OpCreatePublisher, NodeName: "X", Topic: "/b"})
	u.Submit(AppOp{Kind: OpCreateNode, NodeName: "X"})

	u.ProcessNext() // create_node
	u.OnNodeCreated("X", 1)

	first := u.ProcessNext()
	second := u.ProcessNext()
	if first.Op.Topic != "/a" || second.Op.Topic != "/b" {
		t.Fatalf("expected deferred ops drained in arrival order, got %q then %q", first.Op.Topic, second.Op.Topic)
	}
}
