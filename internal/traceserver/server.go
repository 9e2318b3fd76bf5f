// Package traceserver re-broadcasts trace records as JSON over
// WebSocket connections, for a live dashboard watching a running
// simulation. It is an observer sink on the trace log: slow or
// disconnected clients miss records rather than stalling the
// single-threaded coordinator.
package traceserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rosdevs/pdevs-sim/internal/trace"
)

// wireRecord is the JSON shape sent to WebSocket clients. Field values
// keep their preformatted trace representation so a dashboard renders
// exactly what the line format would show.
type wireRecord struct {
	Seq         uint64       `json:"seq"`
	TimestampNS int64        `json:"timestamp_ns"`
	Kind        string       `json:"kind"`
	Fields      []wireField  `json:"fields,omitempty"`
	Context     string       `json:"ctx,omitempty"`
}

type wireField struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Hub is a non-blocking broadcast bus for trace records. Subscribers
// receive on buffered channels; a full subscriber drops records rather
// than blocking the publisher. Publish on a nil *Hub is a no-op, so
// callers do not need guard checks.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan trace.Record]struct{}
	// recvToSend maps the receive-only channel handed to a subscriber
	// back to the bidirectional channel stored in subs, so Unsubscribe
	// can accept the caller's view of the channel.
	recvToSend map[<-chan trace.Record]chan trace.Record
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs:       make(map[chan trace.Record]struct{}),
		recvToSend: make(map[<-chan trace.Record]chan trace.Record),
	}
}

// Publish broadcasts r to every subscriber, dropping it for any whose
// buffer is full. Safe on a nil receiver.
func (h *Hub) Publish(r trace.Record) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- r:
		default:
		}
	}
}

// Subscribe returns a buffered channel of future records. The caller
// must eventually Unsubscribe.
func (h *Hub) Subscribe(bufSize int) <-chan trace.Record {
	ch := make(chan trace.Record, bufSize)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[ch] = struct{}{}
	h.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel. No-op for
// a channel that is already unsubscribed.
func (h *Hub) Unsubscribe(ch <-chan trace.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sendCh, ok := h.recvToSend[ch]
	if !ok {
		return
	}
	delete(h.subs, sendCh)
	delete(h.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Observe implements trace.Sink.
func (h *Hub) Observe(r trace.Record) { h.Publish(r) }

var _ trace.Sink = (*Hub)(nil)

// Server serves the hub's stream over WebSocket.
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewServer wraps hub as an http.Handler. logger may be nil.
func NewServer(hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The dashboard is a local observability surface, same
			// trust domain as the process serving it.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the connection and streams every record published
// to the hub until the client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("trace websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := s.hub.Subscribe(256)
	defer s.hub.Unsubscribe(ch)

	// Drain client frames so pings and close messages are processed;
	// the stream itself is one-directional.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.Unsubscribe(ch)
				return
			}
		}
	}()

	for rec := range ch {
		data, err := json.Marshal(toWire(rec))
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func toWire(r trace.Record) wireRecord {
	w := wireRecord{
		Seq:         r.Seq,
		TimestampNS: r.Timestamp,
		Kind:        r.Kind,
		Context:     r.Context,
	}
	for _, f := range r.Fields {
		w.Fields = append(w.Fields, wireField{Key: f.Key, Value: f.Repr})
	}
	return w
}
