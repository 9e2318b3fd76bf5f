// Package scenario loads a YAML description of a simulation — node,
// publisher, subscription, and timer declarations plus a time-ordered
// publish/lifecycle schedule — and drives a Simulator with it, so
// end-to-end runs need no Go code. The file format is deliberately
// thin: it maps one-to-one onto the application operation descriptors
// of the UCL surface.
package scenario

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rosdevs/pdevs-sim/internal/model"
	"github.com/rosdevs/pdevs-sim/internal/sim"
	"github.com/rosdevs/pdevs-sim/internal/ucl"
)

// Scenario is one loadable simulation description.
type Scenario struct {
	Name          string             `yaml:"name"`
	RunForMS      int64              `yaml:"run_for_ms"`
	Nodes         []NodeDecl         `yaml:"nodes"`
	Publishers    []EndpointDecl     `yaml:"publishers"`
	Subscriptions []EndpointDecl     `yaml:"subscriptions"`
	Timers        []TimerDecl        `yaml:"timers"`
	Events        []Event            `yaml:"events"`
}

// NodeDecl declares one application node.
type NodeDecl struct {
	Name      string `yaml:"name"`
	Namespace string `yaml:"namespace"`
}

// EndpointDecl declares a publisher or subscription.
type EndpointDecl struct {
	Node  string   `yaml:"node"`
	Topic string   `yaml:"topic"`
	Type  string   `yaml:"type"`
	QoS   *QoSDecl `yaml:"qos"`
}

// QoSDecl is the YAML shape of an inner-layer QoS profile. Absent
// fields take the middleware defaults.
type QoSDecl struct {
	Reliability string `yaml:"reliability"`
	Durability  string `yaml:"durability"`
	History     string `yaml:"history"`
	Depth       uint   `yaml:"depth"`
	DeadlineMS  int64  `yaml:"deadline_ms"`
	LifespanMS  int64  `yaml:"lifespan_ms"`
}

// TimerDecl declares a periodic timer; if Publish is set, each firing
// publishes one message from the owning node.
type TimerDecl struct {
	Node     string       `yaml:"node"`
	PeriodMS int64        `yaml:"period_ms"`
	Publish  *PublishDecl `yaml:"publish"`
}

// PublishDecl is one publish action, used by both timers and events.
// ID is optional; a fresh message id is minted per publish when blank.
type PublishDecl struct {
	Node    string `yaml:"node"`
	Topic   string `yaml:"topic"`
	ID      string `yaml:"id"`
	Payload string `yaml:"payload"`
}

// LifecycleDecl is one lifecycle control action.
type LifecycleDecl struct {
	Node             string `yaml:"node"`
	EnablePublishers *bool  `yaml:"enable_publishers"`
	EnableTimers     *bool  `yaml:"enable_timers"`
}

// Event is one scheduled action in the scenario timeline. Exactly one
// of Publish, Lifecycle, or AdvanceTo is set: AdvanceTo performs no
// action of its own, it just forces virtual time forward to AtMS (a
// settling point between bursts of activity).
type Event struct {
	AtMS      int64          `yaml:"at_ms"`
	Publish   *PublishDecl   `yaml:"publish"`
	Lifecycle *LifecycleDecl `yaml:"lifecycle"`
	AdvanceTo bool           `yaml:"advance_to"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("scenario invalid: %w", err)
	}
	return &sc, nil
}

// Validate cross-checks the declarations: every endpoint, timer, and
// event must reference a declared node.
func (sc *Scenario) Validate() error {
	if sc.RunForMS <= 0 {
		return fmt.Errorf("run_for_ms must be positive, got %d", sc.RunForMS)
	}
	nodes := make(map[string]bool, len(sc.Nodes))
	for _, n := range sc.Nodes {
		if n.Name == "" {
			return fmt.Errorf("node with empty name")
		}
		if nodes[n.Name] {
			return fmt.Errorf("duplicate node %q", n.Name)
		}
		nodes[n.Name] = true
	}
	for _, p := range sc.Publishers {
		if !nodes[p.Node] {
			return fmt.Errorf("publisher on %q references undeclared node %q", p.Topic, p.Node)
		}
	}
	for _, s := range sc.Subscriptions {
		if !nodes[s.Node] {
			return fmt.Errorf("subscription on %q references undeclared node %q", s.Topic, s.Node)
		}
	}
	for _, tm := range sc.Timers {
		if !nodes[tm.Node] {
			return fmt.Errorf("timer references undeclared node %q", tm.Node)
		}
		if tm.PeriodMS <= 0 {
			return fmt.Errorf("timer on node %q has non-positive period %d", tm.Node, tm.PeriodMS)
		}
	}
	for i, ev := range sc.Events {
		switch {
		case ev.Publish != nil:
			if !nodes[ev.Publish.Node] {
				return fmt.Errorf("event %d publishes from undeclared node %q", i, ev.Publish.Node)
			}
		case ev.Lifecycle != nil:
			if !nodes[ev.Lifecycle.Node] {
				return fmt.Errorf("event %d targets undeclared node %q", i, ev.Lifecycle.Node)
			}
		case ev.AdvanceTo:
			if ev.AtMS <= 0 {
				return fmt.Errorf("event %d advances to non-positive time %d", i, ev.AtMS)
			}
		default:
			return fmt.Errorf("event %d has no action", i)
		}
	}
	return nil
}

func (q *QoSDecl) toModel() model.QoS {
	if q == nil {
		return model.QoS{}
	}
	return model.QoS{
		Reliability: model.Reliability(q.Reliability),
		Durability:  model.Durability(q.Durability),
		History:     model.History(q.History),
		Depth:       q.Depth,
		DeadlineMS:  q.DeadlineMS,
		LifespanMS:  q.LifespanMS,
	}
}

// Result summarizes one scenario run.
type Result struct {
	// DeliveredByTopic counts application-callback invocations per
	// subscribed topic.
	DeliveredByTopic map[string]int
	// Published counts publish operations submitted (scheduled events
	// plus timer firings).
	Published int
}

// Run submits the scenario's declarations, plays its event timeline,
// and runs the simulator for the declared duration.
func (sc *Scenario) Run(s *sim.Simulator) Result {
	res := Result{DeliveredByTopic: make(map[string]int)}

	for _, n := range sc.Nodes {
		s.Submit(ucl.AppOp{Kind: ucl.OpCreateNode, NodeName: n.Name, Namespace: n.Namespace})
	}
	for _, p := range sc.Publishers {
		s.Submit(ucl.AppOp{Kind: ucl.OpCreatePublisher, NodeName: p.Node, Topic: p.Topic, TypeName: p.Type, QoS: p.QoS.toModel()})
	}
	for _, sub := range sc.Subscriptions {
		topic := sub.Topic
		s.Submit(ucl.AppOp{
			Kind: ucl.OpCreateSubscription, NodeName: sub.Node, Topic: topic, TypeName: sub.Type, QoS: sub.QoS.toModel(),
			Callback: model.CallbackFunc(func(model.Envelope) error {
				res.DeliveredByTopic[topic]++
				return nil
			}),
		})
	}
	for _, tm := range sc.Timers {
		pub := tm.Publish
		node := tm.Node
		s.Submit(ucl.AppOp{
			Kind: ucl.OpCreateTimer, NodeName: node, PeriodNS: tm.PeriodMS * 1_000_000,
			Callback: model.CallbackFunc(func(model.Envelope) error {
				if pub == nil {
					return nil
				}
				res.Published++
				s.Submit(ucl.AppOp{
					Kind: ucl.OpPublish, NodeName: pub.Node, Topic: pub.Topic,
					ID: model.NewMessageID(), Payload: pub.Payload,
				})
				return nil
			}),
		})
	}

	// Let the creation chain settle before the first scheduled event,
	// so a publish at t=0 cannot outrun its own publisher's creation.
	s.Run(1_000_000)

	events := make([]Event, len(sc.Events))
	copy(events, sc.Events)
	sort.SliceStable(events, func(i, j int) bool { return events[i].AtMS < events[j].AtMS })

	for _, ev := range events {
		at := ev.AtMS * 1_000_000
		if at > s.Now() {
			s.Run(at)
		}
		switch {
		case ev.Publish != nil:
			id := ev.Publish.ID
			if id == "" {
				id = model.NewMessageID()
			}
			res.Published++
			s.Submit(ucl.AppOp{
				Kind: ucl.OpPublish, NodeName: ev.Publish.Node, Topic: ev.Publish.Topic,
				ID: id, Payload: ev.Publish.Payload,
			})
		case ev.Lifecycle != nil:
			s.Submit(ucl.AppOp{
				Kind: ucl.OpLifecycle, NodeName: ev.Lifecycle.Node,
				EnablePublishers: ev.Lifecycle.EnablePublishers,
				EnableTimers:     ev.Lifecycle.EnableTimers,
			})
		case ev.AdvanceTo:
			// The s.Run(at) above already moved the clock to AtMS.
		}
	}

	s.Run(sc.RunForMS * 1_000_000)
	return res
}
