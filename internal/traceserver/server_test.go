package traceserver

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rosdevs/pdevs-sim/internal/trace"
)

func TestHubBroadcastsToSubscribers(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe(4)
	defer h.Unsubscribe(ch)

	h.Publish(trace.Record{Seq: 1, Kind: "rcl_init"})

	select {
	case r := <-ch:
		if r.Kind != "rcl_init" {
			t.Fatalf("kind = %q, want rcl_init", r.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the published record")
	}
}

func TestHubDropsWhenSubscriberFull(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe(1)
	defer h.Unsubscribe(ch)

	h.Publish(trace.Record{Seq: 1, Kind: "a"})
	h.Publish(trace.Record{Seq: 2, Kind: "b"}) // buffer full: dropped

	r := <-ch
	if r.Seq != 1 {
		t.Fatalf("seq = %d, want 1", r.Seq)
	}
	select {
	case r := <-ch:
		t.Fatalf("unexpected second record %v; it should have been dropped", r)
	default:
	}
}

func TestNilHubIsSafe(t *testing.T) {
	var h *Hub
	h.Publish(trace.Record{Seq: 1, Kind: "a"}) // must not panic
	if n := h.SubscriberCount(); n != 0 {
		t.Fatalf("nil hub subscriber count = %d, want 0", n)
	}
}

func TestServerStreamsRecordsOverWebSocket(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(NewServer(h, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the server a moment to register the subscription before
	// publishing, since Publish drops with no subscribers.
	deadline := time.Now().Add(2 * time.Second)
	for h.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	h.Publish(trace.Record{
		Seq: 7, Timestamp: 42, Kind: "rmw_publish", Context: "node.A",
		Fields: []trace.Field{trace.Str("topic_name", "/t")},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got wireRecord
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	if got.Seq != 7 || got.Kind != "rmw_publish" || got.Context != "node.A" {
		t.Fatalf("wire record = %+v", got)
	}
	if len(got.Fields) != 1 || got.Fields[0].Key != "topic_name" || got.Fields[0].Value != `"/t"` {
		t.Fatalf("wire fields = %+v", got.Fields)
	}
}
