package icl

import (
	"testing"

	"github.com/rosdevs/pdevs-sim/internal/handle"
	"github.com/rosdevs/pdevs-sim/internal/model"
	"github.com/rosdevs/pdevs-sim/internal/mw"
	"github.com/rosdevs/pdevs-sim/internal/participant"
)

func newTestICL(t *testing.T) *ICL {
	t.Helper()
	p := participant.New()
	m := mw.New(p, func(mw.Subscription, model.Envelope) {}, func(mw.Rejection) {})
	return New(m)
}

func drainInit(t *testing.T, c *ICL, now int64) {
	t.Helper()
	justInit, _, _, _ := c.ProcessNext(now)
	if !justInit {
		t.Fatalf("expected the first ProcessNext call to perform the rcl_init transition")
	}
}

func createNode(t *testing.T, c *ICL, name string) Node {
	t.Helper()
	c.Submit(Operation{Kind: OpCreateNode, NodeName: name})
	_, kind, _, res := c.ProcessNext(0)
	if kind != OpCreateNode {
		t.Fatalf("kind = %v, want OpCreateNode", kind)
	}
	return res.(Node)
}

func createPublisher(t *testing.T, c *ICL, node Node, topic string) Publisher {
	t.Helper()
	c.Submit(Operation{Kind: OpCreatePublisher, NodeHandle: node.Handle, NodeName: node.Name, Topic: topic, TypeName: "T", Format: "raw"})
	_, kind, _, res := c.ProcessNext(0)
	if kind != OpCreatePublisher {
		t.Fatalf("kind = %v, want OpCreatePublisher", kind)
	}
	return res.(PublisherCreated).Publisher
}

func createSubscription(t *testing.T, c *ICL, node Node, topic string) Subscription {
	t.Helper()
	c.Submit(Operation{Kind: OpCreateSubscription, NodeHandle: node.Handle, NodeName: node.Name, Topic: topic, TypeName: "T"})
	_, kind, _, res := c.ProcessNext(0)
	if kind != OpCreateSubscription {
		t.Fatalf("kind = %v, want OpCreateSubscription", kind)
	}
	return res.(SubscriptionCreated).Subscription
}

func TestFirstProcessNextTransitionsPhase(t *testing.T) {
	c := newTestICL(t)
	c.Submit(Operation{Kind: OpCreateNode, NodeName: "N"})
	drainInit(t, c, 0)

	justInit, kind, _, res := c.ProcessNext(0)
	if justInit {
		t.Fatalf("second ProcessNext should not report justInitialized again")
	}
	if kind != OpCreateNode {
		t.Fatalf("kind = %v, want OpCreateNode", kind)
	}
	n := res.(Node)
	if n.Name != "N" || n.Handle == 0 {
		t.Fatalf("unexpected node record: %+v", n)
	}
}

func TestIntraProcessFastPathSameNode(t *testing.T) {
	c := newTestICL(t)
	drainInit(t, c, 0)
	node := createNode(t, c, "N")
	pub := createPublisher(t, c, node, "/t")
	sub := createSubscription(t, c, node, "/t")

	c.Submit(Operation{Kind: OpPublish, PublisherHandle: pub.Handle, Topic: "/t", Envelope: model.Envelope{ID: "1"}})
	_, _, _, res := c.ProcessNext(0)
	pr := res.(PublishResult)

	if !pr.IntraProcess || pr.ForwardedToMW {
		t.Fatalf("expected intra-process delivery, got %+v", pr)
	}
	if len(pr.IntraDeliveries) != 1 || pr.IntraDeliveries[0].SubHandle != sub.Handle {
		t.Fatalf("expected delivery to sub %v, got %+v", sub.Handle, pr.IntraDeliveries)
	}
}

func TestPublishForwardsWhenNoLocalMatch(t *testing.T) {
	c := newTestICL(t)
	drainInit(t, c, 0)
	nodeA := createNode(t, c, "A")
	nodeB := createNode(t, c, "B")
	pub := createPublisher(t, c, nodeA, "/t")
	createSubscription(t, c, nodeB, "/t")

	c.Submit(Operation{Kind: OpPublish, PublisherHandle: pub.Handle, Topic: "/t", Envelope: model.Envelope{ID: "1"}})
	_, _, _, res := c.ProcessNext(0)
	pr := res.(PublishResult)

	if pr.IntraProcess || !pr.ForwardedToMW {
		t.Fatalf("expected a forwarded publish across nodes, got %+v", pr)
	}
	if pr.MWPublisherHandle != pub.MWHandle {
		t.Fatalf("expected forwarded publish to carry the mw publisher handle")
	}
}

func TestLifecycleDisablesPublisher(t *testing.T) {
	c := newTestICL(t)
	drainInit(t, c, 0)
	node := createNode(t, c, "N")
	pub := createPublisher(t, c, node, "/t")
	createSubscription(t, c, node, "/t")

	disable := false
	c.Submit(Operation{Kind: OpLifecycle, NodeHandle: node.Handle, EnablePublishers: &disable})
	c.ProcessNext(0)

	c.Submit(Operation{Kind: OpPublish, PublisherHandle: pub.Handle, Topic: "/t", Envelope: model.Envelope{ID: "1"}})
	_, _, _, res := c.ProcessNext(0)
	pr := res.(PublishResult)

	if !pr.Dropped {
		t.Fatalf("expected publish from a disabled publisher to be dropped, got %+v", pr)
	}
}

func TestTimerFiresImmediatelyThenEveryPeriod(t *testing.T) {
	c := newTestICL(t)
	drainInit(t, c, 0)
	node := createNode(t, c, "N")

	c.Submit(Operation{Kind: OpCreateTimer, NodeHandle: node.Handle, PeriodNS: 1_000_000_000})
	_, kind, _, res := c.ProcessNext(0)
	if kind != OpCreateTimer {
		t.Fatalf("kind = %v, want OpCreateTimer", kind)
	}
	_ = res.(Timer)

	var fireCount int
	for _, now := range []int64{0, 1_000_000_000, 2_000_000_000, 3_000_000_000, 3_500_000_000} {
		fires := c.FireDueTimers(now)
		fireCount += len(fires)
	}
	if fireCount != 4 {
		t.Fatalf("fireCount = %d, want 4 (t=0,1,2,3 within a 3.5s run)", fireCount)
	}
}

func TestTimerSuppressedWhenNodeTimersDisabled(t *testing.T) {
	c := newTestICL(t)
	drainInit(t, c, 0)
	node := createNode(t, c, "N")
	c.Submit(Operation{Kind: OpCreateTimer, NodeHandle: node.Handle, PeriodNS: 1_000_000_000})
	c.ProcessNext(0)

	disable := false
	c.Submit(Operation{Kind: OpLifecycle, NodeHandle: node.Handle, EnableTimers: &disable})
	c.ProcessNext(0)

	fires := c.FireDueTimers(0)
	if len(fires) != 1 || !fires[0].Suppressed {
		t.Fatalf("expected one suppressed fire, got %+v", fires)
	}
}

func TestGuardConditionTrigger(t *testing.T) {
	c := newTestICL(t)
	drainInit(t, c, 0)
	node := createNode(t, c, "N")

	c.Submit(Operation{Kind: OpCreateGuardCondition, NodeHandle: node.Handle})
	_, _, _, res := c.ProcessNext(0)
	g := res.(GuardCondition)

	c.Submit(Operation{Kind: OpTriggerGuard, GuardHandle: g.Handle})
	_, kind, _, res2 := c.ProcessNext(0)
	if kind != OpTriggerGuard {
		t.Fatalf("kind = %v, want OpTriggerGuard", kind)
	}
	gt := res2.(GuardTriggered)
	if gt.Handle != g.Handle {
		t.Fatalf("GuardTriggered.Handle = %v, want %v", gt.Handle, g.Handle)
	}
}

func TestCreatePublisherCarriesGraphEventAndWriterGUID(t *testing.T) {
	c := newTestICL(t)
	drainInit(t, c, 0)
	node := createNode(t, c, "N")

	c.Submit(Operation{Kind: OpCreatePublisher, NodeHandle: node.Handle, NodeName: node.Name, Topic: "/t", TypeName: "T", Format: "raw"})
	_, _, _, res := c.ProcessNext(0)
	pc := res.(PublisherCreated)

	if pc.Graph.Kind != "publisher_created" || pc.Graph.Topic != "/t" || pc.Graph.Node != "N" {
		t.Fatalf("unexpected graph event: %+v", pc.Graph)
	}
	if pc.WriterGUID == 0 {
		t.Fatalf("expected a nonzero writer GUID")
	}
}

func TestHandleUniquenessAcrossEntityKinds(t *testing.T) {
	c := newTestICL(t)
	drainInit(t, c, 0)
	node := createNode(t, c, "N")
	pub := createPublisher(t, c, node, "/t")
	sub := createSubscription(t, c, node, "/t")

	seen := map[handle.ICLHandle]bool{node.Handle: true}
	for _, h := range []handle.ICLHandle{pub.Handle, sub.Handle} {
		if seen[h] {
			t.Fatalf("handle %v reused across entity kinds", h)
		}
		seen[h] = true
	}
}
