package trace

import (
	"strings"
	"testing"
)

func TestEventSequenceNumbers(t *testing.T) {
	l := New()
	r1 := l.Event("rcl_init", "ctx1", 0)
	r2 := l.Event("rcl_node_init", "ctx1", 10)

	if r1.Seq != 1 || r2.Seq != 2 {
		t.Fatalf("sequence numbers = %d, %d; want 1, 2", r1.Seq, r2.Seq)
	}
}

func TestFormatLineMatchesContract(t *testing.T) {
	l := New()
	r := l.Event("rcl_publisher_init", "node_a", 1_500_000_000,
		Str("topic", "/t"),
		Handle("handle", uint64(5)),
		GID("gid", []uint64{1, 15}),
	)

	line := FormatLine(r)
	want := `[1] 1.500000000 rcl_publisher_init: { topic = "/t", handle = 0x5, gid = [ [0]=1, [1]=15 ] }  ctx=node_a`
	if line != want {
		t.Fatalf("FormatLine() = %q, want %q", line, want)
	}
}

func TestFormatLineNoFields(t *testing.T) {
	l := New()
	r := l.Event("rcl_init", "", 0)
	line := FormatLine(r)
	if !strings.Contains(line, "rcl_init: {}") {
		t.Fatalf("FormatLine() = %q, want it to contain %q", line, "rcl_init: {}")
	}
	if strings.Contains(line, "ctx=") {
		t.Fatalf("FormatLine() = %q, want no ctx suffix for empty context", line)
	}
}

func TestSinksNotifiedInOrder(t *testing.T) {
	l := New()
	c := NewCollectorSink()
	l.AddSink(c)

	l.Event("a", "", 0)
	l.Event("b", "", 1)
	l.Event("c", "", 2)

	got := c.Kinds()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("Kinds() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Kinds()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRecordsReturnsStableCopy(t *testing.T) {
	l := New()
	l.Event("a", "", 0)
	first := l.Records()
	l.Event("b", "", 1)
	if len(first) != 1 {
		t.Fatalf("first snapshot mutated: len=%d, want 1", len(first))
	}
}
