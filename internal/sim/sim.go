// Package sim is the top-level orchestrator that wires the layer
// components (internal/ucl, internal/icl, internal/mw,
// internal/participant, internal/executor, internal/transport)
// together behind a devs.Coordinator and is the only place any of them
// is actually driven. It owns every trace.Log.Event call in the
// system, so the cross-layer ordering rules live here rather than
// scattered across layers.
package sim

import (
	"time"

	"github.com/rosdevs/pdevs-sim/internal/config"
	"github.com/rosdevs/pdevs-sim/internal/devs"
	"github.com/rosdevs/pdevs-sim/internal/executor"
	"github.com/rosdevs/pdevs-sim/internal/handle"
	"github.com/rosdevs/pdevs-sim/internal/icl"
	"github.com/rosdevs/pdevs-sim/internal/metrics"
	"github.com/rosdevs/pdevs-sim/internal/model"
	"github.com/rosdevs/pdevs-sim/internal/mw"
	"github.com/rosdevs/pdevs-sim/internal/participant"
	"github.com/rosdevs/pdevs-sim/internal/registry"
	"github.com/rosdevs/pdevs-sim/internal/trace"
	"github.com/rosdevs/pdevs-sim/internal/transport"
	"github.com/rosdevs/pdevs-sim/internal/ucl"
)

// Trace event kinds. Names are the external contract — never rename
// one of these without a matching change to every tool that consumes
// the trace stream.
const (
	kindRclInit              = "rcl_init"
	kindRclNodeInit          = "rcl_node_init"
	kindRclPublisherInit     = "rcl_publisher_init"
	kindRmwPublisherInit     = "rmw_publisher_init"
	kindRclSubscriptionInit  = "rcl_subscription_init"
	kindRmwSubscriptionInit  = "rmw_subscription_init"
	kindRclTimerInit         = "rcl_timer_init"
	kindRclcppPublish        = "rclcpp_publish"
	kindRclPublish           = "rcl_publish"
	kindRmwPublish           = "rmw_publish"
	kindRmwTake              = "rmw_take"
	kindRclTake              = "rcl_take"
	kindRclcppTake           = "rclcpp_take"
	kindCallbackStart        = "callback_start"
	kindCallbackEnd          = "callback_end"
	kindCallbackCancelled    = "callback_cancelled"
	kindSpinSome             = "rclcpp_executor_spin_some"
	kindWaitForWork          = "rclcpp_executor_wait_for_work"
	kindGetNextReady         = "rclcpp_executor_get_next_ready"
	kindExecute              = "rclcpp_executor_execute"
	kindPublisherCreated     = "publisher_created"
	kindSubscriptionCreated  = "subscription_created"
	kindQoSIncompatible      = "qos_incompatible"
	kindPublisherDisabled    = "publisher_disabled"
	kindTimerCallback        = "timer_callback"
	kindTransportDrop        = "transport_drop"
	kindCallbackError        = "callback_error"
	kindUnknownHandle        = "unknown_handle"
)

// correlation is the opaque tag internal/sim stamps on every
// icl.Operation it forwards on behalf of a UCL op, so that when the
// ICL's FIFO eventually gets around to the result, sim can ack the
// right UCL-layer handle without keeping a side queue in lockstep with
// the ICL's own queue.
type correlation struct {
	uclHandle  handle.UCLHandle
	nodeHandle handle.UCLHandle
}

// Simulator owns every layer component and the coordinator that drives
// them, plus the trace log every layer's effects are rendered into.
type Simulator struct {
	cfg config.Config

	part *participant.Participant
	mwL  *mw.MW
	iclL *icl.ICL
	uclL *ucl.UCL
	exec *executor.Executor
	mux  *transport.Multiplexer

	coord *devs.Coordinator

	traceLog *trace.Log
	ctxReg   *config.ContextRegistry
	costs    *registry.Table
	metrics  *metrics.Metrics

	participantName string
	transportKind   transport.Kind

	rclInitDone bool
	rclCtx      string // context token for stack-wide events (rcl_init, drops)
	execCtx     string // context token for executor/spin events

	contextByNode map[string]string
	publishedAt   map[string]int64 // envelope id -> virtual time of rclcpp_publish

	pendingTransport []transportEvent
}

type transportEvent struct {
	deliver *transport.DeliverEvent
	drop    *transport.DropEvent
}

// Option configures optional collaborators a Simulator is built with.
type Option func(*Simulator)

// WithMetrics wires a Prometheus-backed metrics bundle; every trace
// event also feeds metrics.TraceSink and every delivered publish's
// end-to-end latency feeds PublishLatencyNS.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Simulator) { s.metrics = m }
}

// WithCostTable overrides the default per-format cost table (internal/registry).
func WithCostTable(t *registry.Table) Option {
	return func(s *Simulator) { s.costs = t }
}

// WithSink registers an additional trace.Sink (internal/tracestore,
// internal/traceserver) on the simulation's trace log.
func WithSink(sink trace.Sink) Option {
	return func(s *Simulator) { s.traceLog.AddSink(sink) }
}

// New builds a Simulator with a single DDS participant named
// participantName, wired per cfg, and registers its machines on a
// fresh coordinator.
func New(cfg config.Config, participantName string, seed int64, opts ...Option) *Simulator {
	s := &Simulator{
		cfg:             cfg,
		traceLog:        trace.New(),
		ctxReg:          config.NewContextRegistry(),
		costs:           registry.NewTable(),
		participantName: participantName,
		transportKind:   transport.Kind(cfg.Transport.DefaultKind),
		contextByNode:   make(map[string]string),
		publishedAt:     make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics != nil {
		s.traceLog.AddSink(metrics.NewTraceSink(s.metrics))
	}

	s.part = participant.New()
	s.mwL = mw.New(s.part, s.onMWDeliver, s.onMWReject)
	if cfg.QoS.Reliability != "" {
		s.mwL.SetDefaultQoS(cfg.DefaultQoS())
	}
	s.iclL = icl.New(s.mwL)
	s.uclL = ucl.New(cfg.Executor.SpinPeriodUS * 1000)
	s.exec = executor.New()
	s.mux = transport.New("transport", transport.DefaultModels(), seed)

	s.rclCtx = s.ctxReg.Register("rcl", participantName)
	s.execCtx = s.ctxReg.Register("executor", participantName)

	s.coord = devs.NewCoordinator()
	s.coord.AddMachine(&stackMachine{s: s})
	s.coord.AddMachine(&timerMachine{s: s})
	s.coord.AddMachine(s.mux)
	s.coord.AddMachine(&sinkMachine{s: s})
	s.coord.Connect("stack", "send", "transport", "send")
	s.coord.Connect("stack", "timer_created", "timers", "wake")
	s.coord.Connect("timers", "work", "stack", "work_in")
	s.coord.Connect("transport", "deliver", "transport_sink", "deliver")
	s.coord.Connect("transport", "drop", "transport_sink", "drop")

	if cfg.RealTimeSimulation {
		s.coord.OnAdvance(func(from, to int64) {
			time.Sleep(time.Duration(to - from))
		})
	}

	return s
}

// TraceLog exposes the underlying log for callers (the CLI, tests)
// that want to read back the recorded stream or attach further sinks.
func (s *Simulator) TraceLog() *trace.Log { return s.traceLog }

// Now returns the coordinator's current virtual time.
func (s *Simulator) Now() int64 { return s.coord.Now() }

// Run steps the simulation to virtual time until.
func (s *Simulator) Run(until int64) { s.coord.Run(until) }

// RunUntilQuiescent drains every scheduled and pending event.
func (s *Simulator) RunUntilQuiescent(maxSteps int) { s.coord.RunUntilQuiescent(maxSteps) }

// Submit hands an application operation descriptor to the UCL machine
// — the sole entry point applications (and the scenario loader) use to
// drive the simulation.
func (s *Simulator) Submit(op ucl.AppOp) {
	s.coord.Inject("stack", "app_ops", op)
}

// CreateGuardCondition submits a guard condition creation directly to
// the ICL, bypassing UCL — guard conditions have no op descriptor in
// the application-facing surface; they are a waitset/executor concern,
// not an application one.
func (s *Simulator) CreateGuardCondition(nodeHandle handle.ICLHandle, cb model.Callback) {
	s.coord.Inject("stack", "guard_ops", icl.Operation{Kind: icl.OpCreateGuardCondition, NodeHandle: nodeHandle, Callback: cb})
}

// TriggerGuardCondition submits a guard condition trigger directly to
// the ICL.
func (s *Simulator) TriggerGuardCondition(h handle.ICLHandle) {
	s.coord.Inject("stack", "guard_ops", icl.Operation{Kind: icl.OpTriggerGuard, GuardHandle: h})
}

// NodeByName resolves an application node's UCL record, for callers
// (scenario loader, tests) that need its handle after creation.
func (s *Simulator) NodeByName(name string) (*ucl.Node, bool) { return s.uclL.NodeByName(name) }

// ICLNodeHandle resolves an ICL-layer node handle, for CreateGuardCondition
// callers that only have a node name.
func (s *Simulator) ICLNodeHandle(name string) (handle.ICLHandle, bool) {
	n, ok := s.uclL.NodeByName(name)
	if !ok || !n.Created {
		return 0, false
	}
	return n.ICLHandle, true
}

func (s *Simulator) costOf(env model.Envelope) (registry.Cost, bool) {
	c, err := s.costs.CostOf(string(env.Kind), env.SerializedBytes, s.cfg.Serializer.Format)
	return c, err == nil
}
