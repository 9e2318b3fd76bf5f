package sim

import (
	"github.com/rosdevs/pdevs-sim/internal/devs"
	"github.com/rosdevs/pdevs-sim/internal/executor"
	"github.com/rosdevs/pdevs-sim/internal/handle"
	"github.com/rosdevs/pdevs-sim/internal/icl"
	"github.com/rosdevs/pdevs-sim/internal/model"
	"github.com/rosdevs/pdevs-sim/internal/mw"
	"github.com/rosdevs/pdevs-sim/internal/trace"
	"github.com/rosdevs/pdevs-sim/internal/transport"
	"github.com/rosdevs/pdevs-sim/internal/ucl"
)

// opLatencyNS is the modeled cost of one layer-stack operation (an op
// descriptor hop, an executor dispatch). Each unit of work advances
// virtual time by this much instead of completing in zero time, so the
// trace chain for a single message carries strictly increasing
// timestamps, the way a real instrumented stack's does.
const opLatencyNS = int64(1_000)

// stackMachine is the atomic machine wrapping the synchronous layer
// components (UCL, ICL, MW, participant, executor). Each internal
// transition performs exactly one unit of work — an executor dispatch,
// one ICL operation, one UCL operation, or a spin tick — and all trace
// emission for that unit happens here in Output, never in a
// transition, so the trace sequence is exactly the scheduled event
// order.
//
// Input ports: "app_ops" (ucl.AppOp), "guard_ops" (icl.Operation),
// "work_in" (executor.WorkItem from the timer machine).
// Output ports: "send" (transport.SendRequest), "timer_created"
// (handle.ICLHandle, a wake signal for the timer machine).
type stackMachine struct {
	s *Simulator
}

func (m *stackMachine) Name() string { return "stack" }

func (m *stackMachine) ready() bool {
	s := m.s
	return s.exec.HasPending() || s.iclL.HasPending() || s.uclL.HasPending()
}

func (m *stackMachine) TimeAdvance() int64 {
	s := m.s
	if m.ready() {
		return opLatencyNS
	}
	if s.uclL.Spinning() {
		delta := s.uclL.NextSpinDue() - s.coord.Now()
		if delta < 0 {
			delta = 0
		}
		return delta
	}
	return devs.Infinity
}

func (m *stackMachine) Output() []devs.Output {
	s := m.s
	now := s.coord.Now()

	// The very first unit of work anywhere in the stack performs the
	// uninitialized -> active phase transition and emits rcl_init
	// before any entity init event. The queued operation that woke us
	// stays queued for the next transition.
	if !s.rclInitDone {
		if !m.ready() {
			return nil
		}
		s.iclL.ProcessNext(now)
		s.rclInitDone = true
		s.uclL.StartSpinning(now)
		s.traceLog.Event(kindRclInit, s.rclCtx, now, trace.Int("domain_id", int64(s.cfg.DomainID)))
		return nil
	}

	switch {
	case s.exec.HasPending():
		return m.dispatchOne(now)
	case s.iclL.HasPending():
		return m.processICL(now)
	case s.uclL.HasPending():
		return m.processUCL(now)
	case s.uclL.Spinning() && now >= s.uclL.NextSpinDue():
		return m.spin(now)
	}
	return nil
}

func (m *stackMachine) InternalTransition() {}

func (m *stackMachine) ExternalTransition(inputs []devs.Message, elapsed int64) {
	s := m.s
	for _, in := range inputs {
		switch in.Port {
		case "app_ops":
			if op, ok := in.Value.(ucl.AppOp); ok {
				s.uclL.Submit(op)
			}
		case "guard_ops":
			if op, ok := in.Value.(icl.Operation); ok {
				s.iclL.Submit(op)
			}
		case "work_in":
			if item, ok := in.Value.(executor.WorkItem); ok {
				s.exec.Submit(item)
			}
		}
	}
}

// dispatchOne pops the highest-priority work item and runs it between
// callback_start/callback_end.
func (m *stackMachine) dispatchOne(now int64) []devs.Output {
	s := m.s
	item, ok := s.exec.Pop()
	if !ok {
		return nil
	}
	s.traceLog.Event(kindGetNextReady, s.execCtx, now,
		trace.Str("kind", classNames[item.Class]),
		trace.Handle("handle", item.Handle))
	s.traceLog.Event(kindExecute, s.execCtx, now, trace.Handle("handle", item.Handle))

	if item.Cancelled {
		s.traceLog.Event(kindCallbackCancelled, s.execCtx, now, trace.Handle("handle", item.Handle))
		return nil
	}

	startFields := []trace.Field{trace.Handle("callback", item.Handle)}
	if item.Envelope.ID != "" {
		startFields = append(startFields, trace.Str("message", item.Envelope.ID))
	}
	s.traceLog.Event(kindCallbackStart, s.execCtx, now, startFields...)

	disp := s.exec.Run(item)
	if disp.Err != nil {
		// A raised user callback is logged; the subscription continues.
		s.traceLog.Event(kindCallbackError, s.execCtx, now,
			trace.Handle("callback", item.Handle),
			trace.Str("error", disp.Err.Error()))
	}
	endFields := []trace.Field{trace.Handle("callback", item.Handle)}
	if item.Envelope.ID != "" {
		endFields = append(endFields, trace.Str("message", item.Envelope.ID))
	}
	s.traceLog.Event(kindCallbackEnd, s.execCtx, now, endFields...)

	if item.Class == executor.ClassSubscription && item.Envelope.ID != "" {
		if t0, ok := s.publishedAt[item.Envelope.ID]; ok {
			if s.metrics != nil {
				s.metrics.PublishLatencyNS.Observe(float64(now - t0))
			}
			delete(s.publishedAt, item.Envelope.ID)
		}
	}
	return nil
}

// processUCL pops one application operation, enriches it, and forwards
// it to the ICL queue tagged with the correlation the result handler
// needs to ack the right UCL-layer record.
func (m *stackMachine) processUCL(now int64) []devs.Output {
	s := m.s
	to := s.uclL.ProcessNext()
	op := to.Op
	if op.Kind == "" {
		return nil
	}
	if to.UCLHandle != 0 || to.NodeHandle != 0 {
		op.Tag = correlation{uclHandle: to.UCLHandle, nodeHandle: to.NodeHandle}
	}
	if op.Kind == icl.OpPublish {
		s.traceLog.Event(kindRclcppPublish, s.pubContext(to.UCLHandle), now,
			trace.Str("message", op.Envelope.ID),
			trace.Str("topic_name", op.Envelope.Topic))
		s.publishedAt[op.Envelope.ID] = now
	}
	s.iclL.Submit(op)
	return nil
}

// processICL pops one ICL operation and renders its result into the
// canonical trace chain for that operation kind.
func (m *stackMachine) processICL(now int64) []devs.Output {
	s := m.s
	_, kind, tag, result := s.iclL.ProcessNext(now)
	corr, _ := tag.(correlation)

	switch kind {
	case icl.OpCreateNode:
		n := result.(icl.Node)
		ctx := s.ctxReg.Register("node", n.Name)
		s.contextByNode[n.Name] = ctx
		s.traceLog.Event(kindRclNodeInit, ctx, now,
			trace.Str("node_name", n.Name),
			trace.Str("namespace", n.Namespace),
			trace.Handle("node_handle", n.Handle))
		s.uclL.OnNodeCreated(n.Name, n.Handle)

	case icl.OpCreatePublisher:
		pc := result.(icl.PublisherCreated)
		ctx := s.contextByNode[pc.Graph.Node]
		s.traceLog.Event(kindRclPublisherInit, ctx, now,
			trace.Str("topic_name", pc.Publisher.Topic),
			trace.Handle("publisher_handle", pc.Publisher.Handle),
			trace.Handle("node_handle", pc.Publisher.NodeHandle))
		s.traceLog.Event(kindRmwPublisherInit, ctx, now,
			trace.Str("topic_name", pc.Publisher.Topic),
			trace.GID("gid", guidWords(pc.WriterGUID)))
		s.traceLog.Event(kindPublisherCreated, ctx, now,
			trace.Str("topic_name", pc.Graph.Topic),
			trace.Str("node_name", pc.Graph.Node))
		s.uclL.OnPublisherCreated(corr.uclHandle, pc.Publisher.Handle)

	case icl.OpCreateSubscription:
		sc := result.(icl.SubscriptionCreated)
		ctx := s.contextByNode[sc.Graph.Node]
		s.traceLog.Event(kindRclSubscriptionInit, ctx, now,
			trace.Str("topic_name", sc.Subscription.Topic),
			trace.Handle("subscription_handle", sc.Subscription.Handle),
			trace.Handle("node_handle", sc.Subscription.NodeHandle))
		s.traceLog.Event(kindRmwSubscriptionInit, ctx, now,
			trace.Str("topic_name", sc.Subscription.Topic),
			trace.GID("gid", guidWords(sc.ReaderGUID)))
		s.traceLog.Event(kindSubscriptionCreated, ctx, now,
			trace.Str("topic_name", sc.Graph.Topic),
			trace.Str("node_name", sc.Graph.Node))
		s.uclL.OnSubscriptionCreated(corr.uclHandle, sc.Subscription.Handle)

	case icl.OpCreateTimer:
		tmr := result.(icl.Timer)
		s.traceLog.Event(kindRclTimerInit, s.nodeCtx(tmr.NodeHandle), now,
			trace.Handle("timer_handle", tmr.Handle),
			trace.Int("period", tmr.PeriodNS))
		// Wake the timer machine so its next-expiration schedule picks
		// up the new timer.
		return []devs.Output{{Port: "timer_created", Value: tmr.Handle}}

	case icl.OpPublish:
		return m.finishPublish(now, result.(icl.PublishResult))

	case icl.OpTriggerGuard:
		gt := result.(icl.GuardTriggered)
		if gt.Handle != 0 {
			s.exec.Submit(executor.WorkItem{
				Class:    executor.ClassGuardCondition,
				Handle:   uint64(gt.Handle),
				Callback: gt.Callback,
			})
		}

	case icl.OpCreateGuardCondition, icl.OpLifecycle:
		// No canonical trace kind; state change only.
	}
	return nil
}

// finishPublish completes the downward half of a publish once the ICL
// has decided its fate: dropped (lifecycle gate or unknown handle),
// delivered intra-process, or forwarded through MW to the transport.
// Exactly one of the three happens.
func (m *stackMachine) finishPublish(now int64, res icl.PublishResult) []devs.Output {
	s := m.s
	ctx := s.iclPubContext(res.PublisherHandle)

	if res.Dropped {
		kind := kindUnknownHandle
		if res.DropReason == "publisher_disabled" {
			kind = kindPublisherDisabled
		}
		s.traceLog.Event(kind, ctx, now,
			trace.Str("message", res.Envelope.ID),
			trace.Str("topic_name", res.Topic))
		return nil
	}

	s.traceLog.Event(kindRclPublish, ctx, now,
		trace.Str("message", res.Envelope.ID),
		trace.Str("topic_name", res.Topic),
		trace.Handle("publisher_handle", res.PublisherHandle))

	if res.IntraProcess {
		// Fast path: hand the envelope straight to each co-located
		// subscription's UCL-facing callback. No rmw_publish is ever
		// emitted for this id.
		for _, d := range res.IntraDeliveries {
			if d.Callback != nil {
				d.Callback.Invoke(d.Envelope)
			}
			s.traceLog.Event(kindRclcppTake, ctx, now,
				trace.Str("message", d.Envelope.ID),
				trace.Handle("subscription_handle", d.SubHandle))
		}
		return nil
	}

	env, ok := s.mwL.Publish(res.MWPublisherHandle, res.Envelope, s.cfg.Serializer.Format)
	if !ok {
		s.traceLog.Event(kindUnknownHandle, ctx, now,
			trace.Str("message", res.Envelope.ID),
			trace.Str("topic_name", res.Topic))
		return nil
	}

	fields := []trace.Field{
		trace.Str("message", env.ID),
		trace.Str("topic_name", res.Topic),
		trace.Uint("sequence_number", env.SequenceNumber),
		trace.Int("serialized_bytes", env.SerializedBytes),
		trace.GID("gid", guidWords(env.WriterGUID)),
	}
	if cost, ok := s.costOf(env); ok {
		fields = append(fields, trace.Int("serialization_latency", cost.LatencyNS))
	}
	s.traceLog.Event(kindRmwPublish, ctx, now, fields...)

	return []devs.Output{{Port: "send", Value: transport.SendRequest{
		Kind:     s.transportKind,
		Src:      s.participantName,
		Dst:      s.participantName,
		Topic:    res.Topic,
		Envelope: env,
		DstPort:  "deliver",
	}}}
}

// spin performs one executor spin tick: emit spin_some and hand at
// most one application-bound delivery to the executor.
func (m *stackMachine) spin(now int64) []devs.Output {
	s := m.s
	d, ok := s.uclL.Spin(now)
	s.traceLog.Event(kindSpinSome, s.execCtx, now)
	if !ok {
		s.traceLog.Event(kindWaitForWork, s.execCtx, now)
		return nil
	}
	s.exec.Submit(executor.WorkItem{
		Class:    executor.ClassSubscription,
		Handle:   uint64(d.SubHandle),
		Callback: d.Callback,
		Envelope: d.Envelope,
	})
	return nil
}

// timerMachine schedules the ICL timer manager: its time-advance is
// the distance to the nearest timer expiration, and its output fires
// every due timer, emitting the timer_callback data event and a work
// item toward the executor. The "wake" input carries no data —
// it exists so timer creation reschedules this machine.
type timerMachine struct {
	s *Simulator
}

func (m *timerMachine) Name() string { return "timers" }

func (m *timerMachine) TimeAdvance() int64 {
	due, ok := m.s.iclL.NextTimerDue()
	if !ok {
		return devs.Infinity
	}
	delta := due - m.s.coord.Now()
	if delta < 0 {
		return 0
	}
	return delta
}

func (m *timerMachine) Output() []devs.Output {
	s := m.s
	now := s.coord.Now()
	var outs []devs.Output
	for _, fire := range s.iclL.FireDueTimers(now) {
		if fire.Suppressed {
			continue
		}
		s.traceLog.Event(kindTimerCallback, s.nodeCtx(fire.NodeHandle), now,
			trace.Handle("timer_handle", fire.Handle))
		outs = append(outs, devs.Output{Port: "work", Value: executor.WorkItem{
			Class:    executor.ClassTimer,
			Handle:   uint64(fire.Handle),
			Callback: fire.Callback,
		}})
	}
	return outs
}

func (m *timerMachine) InternalTransition() {}

func (m *timerMachine) ExternalTransition(inputs []devs.Message, elapsed int64) {
	// Wake only: a timer was created, so the coordinator recomputes
	// this machine's time-advance against the new expiration set.
}

// sinkMachine receives the transport multiplexer's deliver/drop events
// and feeds delivered envelopes into the MW's inbound path, where the
// QoS gating check (and the resulting rmw_take/rcl_take/rclcpp_take or
// qos_incompatible traces) runs. Pending events are processed in
// Output and cleared in InternalTransition so the traces land in the
// output phase.
type sinkMachine struct {
	s *Simulator
}

func (m *sinkMachine) Name() string { return "transport_sink" }

func (m *sinkMachine) TimeAdvance() int64 {
	if len(m.s.pendingTransport) > 0 {
		return 0
	}
	return devs.Infinity
}

func (m *sinkMachine) Output() []devs.Output {
	s := m.s
	now := s.coord.Now()
	for _, ev := range s.pendingTransport {
		if ev.drop != nil {
			s.traceLog.Event(kindTransportDrop, s.rclCtx, now,
				trace.Str("kind", string(ev.drop.Kind)),
				trace.Str("topic_name", ev.drop.Topic),
				trace.Str("src", ev.drop.Src),
				trace.Str("dst", ev.drop.Dst))
			continue
		}
		s.mwL.Deliver(ev.deliver.Envelope)
	}
	return nil
}

func (m *sinkMachine) InternalTransition() {
	m.s.pendingTransport = nil
}

func (m *sinkMachine) ExternalTransition(inputs []devs.Message, elapsed int64) {
	for _, in := range inputs {
		switch v := in.Value.(type) {
		case transport.DeliverEvent:
			ev := v
			m.s.pendingTransport = append(m.s.pendingTransport, transportEvent{deliver: &ev})
		case transport.DropEvent:
			ev := v
			m.s.pendingTransport = append(m.s.pendingTransport, transportEvent{drop: &ev})
		}
	}
}

// onMWDeliver is the MW's accepted-delivery hook: the envelope passed
// gating for sub, so the upward half of the take chain is traced here
// (rmw_take -> rcl_take -> rclcpp_take) and the envelope
// is enrolled in the UCL's spin-gated delivery queue via the ICL
// subscription's callback.
func (s *Simulator) onMWDeliver(sub mw.Subscription, env model.Envelope) {
	now := s.coord.Now()
	ctx := s.contextByNode[sub.Node]
	s.traceLog.Event(kindRmwTake, ctx, now,
		trace.Str("message", env.ID),
		trace.Str("topic_name", sub.Topic),
		trace.Uint("sequence_number", env.SequenceNumber),
		trace.GID("gid", guidWords(sub.ReaderGUID)))

	iclSub, ok := s.iclL.SubscriptionByMWHandle(sub.Handle)
	if !ok {
		s.traceLog.Event(kindUnknownHandle, ctx, now,
			trace.Str("message", env.ID),
			trace.Handle("rmw_subscription_handle", sub.Handle))
		return
	}
	s.traceLog.Event(kindRclTake, ctx, now,
		trace.Str("message", env.ID),
		trace.Handle("subscription_handle", iclSub.Handle))
	if iclSub.Callback != nil {
		iclSub.Callback.Invoke(env)
	}
	s.traceLog.Event(kindRclcppTake, ctx, now,
		trace.Str("message", env.ID),
		trace.Handle("subscription_handle", iclSub.Handle))
}

// onMWReject is the MW's gating-rejection hook: the message is
// dropped and the qos_incompatible event is the only observable
// effect.
func (s *Simulator) onMWReject(rej mw.Rejection) {
	now := s.coord.Now()
	sub, _ := s.mwL.Subscription(rej.SubHandle)
	s.traceLog.Event(kindQoSIncompatible, s.contextByNode[sub.Node], now,
		trace.Str("message", rej.Envelope.ID),
		trace.Str("topic_name", rej.Topic),
		trace.Str("reason", rej.Reason))
}

var classNames = map[executor.Class]string{
	executor.ClassTimer:          "timer",
	executor.ClassSubscription:   "subscription",
	executor.ClassGuardCondition: "guard_condition",
}

// guidWords splits a participant GUID into its big-endian bytes for
// the indexed-array GID rendering the trace contract requires.
func guidWords(g handle.GUID) []uint64 {
	words := make([]uint64, 8)
	v := uint64(g)
	for i := 0; i < 8; i++ {
		words[i] = (v >> uint(56-8*i)) & 0xFF
	}
	return words
}

// nodeCtx resolves the context token for an ICL node handle.
func (s *Simulator) nodeCtx(h handle.ICLHandle) string {
	n, ok := s.iclL.Node(h)
	if !ok {
		return s.rclCtx
	}
	return s.contextByNode[n.Name]
}

// iclPubContext resolves the context token for the node owning an ICL
// publisher handle.
func (s *Simulator) iclPubContext(h handle.ICLHandle) string {
	p, ok := s.iclL.Publisher(h)
	if !ok {
		return s.rclCtx
	}
	return s.nodeCtx(p.NodeHandle)
}

// pubContext resolves the context token for the node owning a UCL
// publisher handle.
func (s *Simulator) pubContext(h handle.UCLHandle) string {
	p, ok := s.uclL.Publisher(h)
	if !ok {
		return s.rclCtx
	}
	n, ok := s.uclL.Node(p.NodeHandle)
	if !ok {
		return s.rclCtx
	}
	return s.contextByNode[n.Name]
}
