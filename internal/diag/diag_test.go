package diag

import (
	"strings"
	"testing"
)

func TestNewEventIdentity(t *testing.T) {
	ev := New(KindStreamError, "avm", "", "read timeout")
	if !strings.HasPrefix(ev.ID, "diag-") {
		t.Errorf("ID = %q, want diag- prefix", ev.ID)
	}
	if ev.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
	if ev.Kind != KindStreamError || ev.Adapter != "avm" {
		t.Errorf("event fields not carried: %+v", ev)
	}
}

func TestRingWrapsAndOrdersNewestFirst(t *testing.T) {
	r := NewRing(3)
	for _, d := range []string{"a", "b", "c", "d"} {
		r.Record(New(KindTranslationError, "x", "", d))
	}

	got := r.Recent(0)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	want := []string{"d", "c", "b"}
	for i, ev := range got {
		if ev.Detail != want[i] {
			t.Errorf("event %d detail = %q, want %q", i, ev.Detail, want[i])
		}
	}
}

func TestRingRecentLimit(t *testing.T) {
	r := NewRing(8)
	for _, d := range []string{"a", "b", "c"} {
		r.Record(New(KindStreamError, "x", "", d))
	}
	got := r.Recent(2)
	if len(got) != 2 || got[0].Detail != "c" {
		t.Errorf("Recent(2) = %v", got)
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	r1, r2 := NewRing(4), NewRing(4)
	m := MultiSink{r1, r2}
	m.Record(New(KindCascadeLoop, "", "", "depth cap"))

	if len(r1.Recent(0)) != 1 || len(r2.Recent(0)) != 1 {
		t.Error("event not delivered to all sinks")
	}
}
