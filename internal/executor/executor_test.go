package executor

import (
	"testing"

	"github.com/rosdevs/pdevs-sim/internal/model"
)

func recordingCallback(log *[]string, name string) model.Callback {
	return model.CallbackFunc(func(model.Envelope) error {
		*log = append(*log, name)
		return nil
	})
}

func TestPriorityOrderTimersBeforeSubsBeforeGuards(t *testing.T) {
	e := New()
	var log []string
	e.Submit(WorkItem{Class: ClassGuardCondition, Callback: recordingCallback(&log, "guard")})
	e.Submit(WorkItem{Class: ClassSubscription, Callback: recordingCallback(&log, "sub")})
	e.Submit(WorkItem{Class: ClassTimer, Callback: recordingCallback(&log, "timer")})

	for i := 0; i < 3; i++ {
		if _, ok := e.Next(); !ok {
			t.Fatalf("expected a work item at step %d", i)
		}
	}
	want := []string{"timer", "sub", "guard"}
	for i, w := range want {
		if log[i] != w {
			t.Fatalf("dispatch order = %v, want %v", log, want)
		}
	}
}

func TestFIFOWithinClass(t *testing.T) {
	e := New()
	var log []string
	e.Submit(WorkItem{Class: ClassSubscription, Callback: recordingCallback(&log, "a")})
	e.Submit(WorkItem{Class: ClassSubscription, Callback: recordingCallback(&log, "b")})
	e.Submit(WorkItem{Class: ClassSubscription, Callback: recordingCallback(&log, "c")})

	for i := 0; i < 3; i++ {
		e.Next()
	}
	if log[0] != "a" || log[1] != "b" || log[2] != "c" {
		t.Fatalf("FIFO order violated: %v", log)
	}
}

func TestCancelledItemNotInvoked(t *testing.T) {
	e := New()
	var log []string
	e.Submit(WorkItem{Class: ClassTimer, Cancelled: true, Callback: recordingCallback(&log, "x")})

	d, ok := e.Next()
	if !ok {
		t.Fatalf("expected a dispatched item")
	}
	if !d.Cancelled {
		t.Fatalf("expected Cancelled=true")
	}
	if len(log) != 0 {
		t.Fatalf("expected cancelled item's callback not invoked, log=%v", log)
	}
}

func TestNextOnEmptyQueue(t *testing.T) {
	e := New()
	if _, ok := e.Next(); ok {
		t.Fatalf("expected no item on empty queue")
	}
}

func TestHasPending(t *testing.T) {
	e := New()
	if e.HasPending() {
		t.Fatalf("expected empty executor to have no pending work")
	}
	e.Submit(WorkItem{Class: ClassTimer})
	if !e.HasPending() {
		t.Fatalf("expected pending work after Submit")
	}
}
