package aggregator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/calder-iot/shadowbridge/internal/adapter"
	"github.com/calder-iot/shadowbridge/internal/diag"
	"github.com/calder-iot/shadowbridge/internal/engine"
	"github.com/calder-iot/shadowbridge/internal/property"
)

// mockRemote is a RemoteClient capturing reports and exposing the delta
// handler for tests to invoke.
type mockRemote struct {
	mu      sync.Mutex
	reports []*property.Document
	handler func(*property.Document)
	started bool
	stopped bool
	failAll bool
}

func (m *mockRemote) OnDelta(h func(*property.Document)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

func (m *mockRemote) ReportState(doc *property.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errors.New("remote unavailable")
	}
	m.reports = append(m.reports, doc.Clone())
	return nil
}

func (m *mockRemote) Start(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return nil
}

func (m *mockRemote) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *mockRemote) reportCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reports)
}

func (m *mockRemote) lastReport() *property.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.reports) == 0 {
		return nil
	}
	return m.reports[len(m.reports)-1]
}

func (m *mockRemote) deliverDelta(doc *property.Document) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(doc)
	}
}

// mockBroadcaster captures broadcast calls.
type mockBroadcaster struct {
	mu     sync.Mutex
	events []any
}

func (b *mockBroadcaster) Broadcast(_ string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, payload)
}

func (b *mockBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// boolProp registers an inbound+outbound boolean property on a fresh adapter.
func boolProp(t *testing.T, adapterName, prop, onCmd, offCmd string) *adapter.Adapter {
	t.Helper()
	a := adapter.New(adapterName, nil)
	err := a.RegisterInbound(prop+`=([01])`, []string{prop},
		func(_, capture string) (property.Value, error) {
			return property.Bool(capture == "1"), nil
		})
	if err != nil {
		t.Fatalf("RegisterInbound() error = %v", err)
	}
	err = a.RegisterOutbound(prop, "", func(v property.Value) (any, error) {
		if v.IsUnknown() {
			return nil, fmt.Errorf("cannot command unknown value")
		}
		if v.Truth() {
			return onCmd, nil
		}
		return offCmd, nil
	})
	if err != nil {
		t.Fatalf("RegisterOutbound() error = %v", err)
	}
	return a
}

// idleEngine builds an unstarted engine over a pipe, good enough to observe
// queued commands via Stats.
func idleEngine(t *testing.T, a *adapter.Adapter, updates chan<- engine.Update) *engine.Engine {
	t.Helper()
	conn, peer := net.Pipe()
	t.Cleanup(func() { conn.Close(); peer.Close() })
	return engine.New(a, conn, updates, engine.Config{}, nil, nil)
}

func TestRegisterGlobalPropertyUniqueness(t *testing.T) {
	g := New(&mockRemote{}, nil, nil, nil, nil)

	amp := boolProp(t, "amp", "ampPower", "PWRON", "PWROFF")
	if err := g.Register(amp, idleEngine(t, amp, g.Updates())); err != nil {
		t.Fatalf("Register(amp) error = %v", err)
	}

	clash := boolProp(t, "other", "ampPower", "ON", "OFF")
	if err := g.Register(clash, idleEngine(t, clash, g.Updates())); !errors.Is(err, ErrDuplicateProperty) {
		t.Errorf("error = %v, want ErrDuplicateProperty", err)
	}

	dup := boolProp(t, "amp", "ampMute", "MUTEON", "MUTEOFF")
	if err := g.Register(dup, idleEngine(t, dup, g.Updates())); !errors.Is(err, ErrDuplicateAdapter) {
		t.Errorf("error = %v, want ErrDuplicateAdapter", err)
	}
}

func TestApplyUpdateMergesReportsBroadcasts(t *testing.T) {
	remote := &mockRemote{}
	bc := &mockBroadcaster{}
	g := New(remote, nil, nil, nil, bc)

	amp := boolProp(t, "amp", "ampPower", "PWRON", "PWROFF")
	if err := g.Register(amp, idleEngine(t, amp, g.Updates())); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	changed := property.NewDocument()
	changed.Set("ampPower", property.Bool(true))
	g.applyUpdate(engine.Update{Adapter: "amp", Changed: changed})

	if v, _ := g.Document().Get("ampPower"); !v.Equal(property.Bool(true)) {
		t.Error("merged document not updated")
	}
	rep := remote.lastReport()
	if rep == nil || !rep.Has("ampPower") || rep.Len() != 1 {
		t.Errorf("report = %v, want just ampPower", rep)
	}
	if bc.count() != 1 {
		t.Errorf("broadcasts = %d, want 1", bc.count())
	}

	// The same fragment again changes nothing and reports nothing.
	before := remote.reportCount()
	g.applyUpdate(engine.Update{Adapter: "amp", Changed: changed})
	if remote.reportCount() != before {
		t.Error("redundant update produced a report")
	}
}

func TestDeltaRoutedToOwningAdapter(t *testing.T) {
	remote := &mockRemote{}
	ring := diag.NewRing(8)
	g := New(remote, nil, nil, ring, nil)

	amp := boolProp(t, "amp", "ampPower", "PWRON", "PWROFF")
	ampEng := idleEngine(t, amp, g.Updates())
	if err := g.Register(amp, ampEng); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	desired := property.NewDocument()
	desired.Set("ampPower", property.Bool(true))
	desired.Set("ghost", property.Bool(true))
	g.routeDelta(desired)

	if depth := ampEng.Stats().QueueDepth; depth != 1 {
		t.Errorf("queue depth = %d, want 1", depth)
	}

	stats := g.Stats()
	if stats.CommandsRouted != 1 {
		t.Errorf("commands routed = %d, want 1", stats.CommandsRouted)
	}
	if stats.Unroutable != 1 {
		t.Errorf("unroutable = %d, want 1", stats.Unroutable)
	}

	var sawUnroutable bool
	for _, ev := range ring.Recent(0) {
		if ev.Kind == diag.KindUnroutableProperty && ev.Property == "ghost" {
			sawUnroutable = true
		}
	}
	if !sawUnroutable {
		t.Error("no unroutable_property diagnostic recorded")
	}
}

func TestDeltaInvalidValueDropsPropertyNotBatch(t *testing.T) {
	remote := &mockRemote{}
	ring := diag.NewRing(8)
	g := New(remote, nil, nil, ring, nil)

	amp := boolProp(t, "amp", "ampPower", "PWRON", "PWROFF")
	ampEng := idleEngine(t, amp, g.Updates())
	if err := g.Register(amp, ampEng); err != nil {
		t.Fatalf("Register(amp) error = %v", err)
	}
	proj := boolProp(t, "proj", "projPower", "PWR ON", "PWR OFF")
	projEng := idleEngine(t, proj, g.Updates())
	if err := g.Register(proj, projEng); err != nil {
		t.Fatalf("Register(proj) error = %v", err)
	}

	// Unknown is rejected by the outbound converter; the projector command
	// behind it must still route.
	desired := property.NewDocument()
	desired.Set("ampPower", property.Unknown)
	desired.Set("projPower", property.Bool(true))
	g.routeDelta(desired)

	if depth := ampEng.Stats().QueueDepth; depth != 0 {
		t.Errorf("amp queue depth = %d, want 0", depth)
	}
	if depth := projEng.Stats().QueueDepth; depth != 1 {
		t.Errorf("proj queue depth = %d, want 1", depth)
	}
	if g.Stats().InvalidValues != 1 {
		t.Errorf("invalid values = %d, want 1", g.Stats().InvalidValues)
	}
}

func TestCascadeRoutesFollowOnCommands(t *testing.T) {
	remote := &mockRemote{}
	g := New(remote, func(changed, state *property.Document) *property.Document {
		// Projector coming on drags the amp with it.
		v, ok := changed.Get("projPower")
		if !ok || !v.Truth() {
			return nil
		}
		if cur, _ := state.Get("ampPower"); cur.Truth() {
			return nil
		}
		out := property.NewDocument()
		out.Set("ampPower", property.Bool(true))
		return out
	}, nil, nil, nil)

	amp := boolProp(t, "amp", "ampPower", "PWRON", "PWROFF")
	ampEng := idleEngine(t, amp, g.Updates())
	if err := g.Register(amp, ampEng); err != nil {
		t.Fatalf("Register(amp) error = %v", err)
	}
	proj := boolProp(t, "proj", "projPower", "PWR ON", "PWR OFF")
	if err := g.Register(proj, idleEngine(t, proj, g.Updates())); err != nil {
		t.Fatalf("Register(proj) error = %v", err)
	}

	changed := property.NewDocument()
	changed.Set("projPower", property.Bool(true))
	g.applyUpdate(engine.Update{Adapter: "proj", Changed: changed})

	if depth := ampEng.Stats().QueueDepth; depth != 1 {
		t.Errorf("amp queue depth = %d, want 1 cascade command", depth)
	}
	if g.Stats().CascadeOverruns != 0 {
		t.Error("settling cascade counted as overrun")
	}
}

func TestCascadeDepthCap(t *testing.T) {
	ring := diag.NewRing(8)
	g := New(&mockRemote{}, func(changed, state *property.Document) *property.Document {
		// Pathological cascade that never settles.
		out := property.NewDocument()
		out.Set("ampPower", property.Bool(true))
		return out
	}, nil, ring, nil)

	amp := boolProp(t, "amp", "ampPower", "PWRON", "PWROFF")
	if err := g.Register(amp, idleEngine(t, amp, g.Updates())); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	changed := property.NewDocument()
	changed.Set("ampPower", property.Bool(true))
	g.applyUpdate(engine.Update{Adapter: "amp", Changed: changed})

	if g.Stats().CascadeOverruns != 1 {
		t.Fatalf("overruns = %d, want 1", g.Stats().CascadeOverruns)
	}

	var sawLoop bool
	for _, ev := range ring.Recent(0) {
		if ev.Kind == diag.KindCascadeLoop {
			sawLoop = true
		}
	}
	if !sawLoop {
		t.Error("no cascade_loop diagnostic recorded")
	}
}

func TestLifecycleReportsInitialStateAndDrainsBatches(t *testing.T) {
	remote := &mockRemote{}
	g := New(remote, nil, nil, nil, nil)

	amp := boolProp(t, "amp", "ampPower", "PWRON", "PWROFF")
	if err := g.Register(amp, idleEngine(t, amp, g.Updates())); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := g.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer g.Stop()

	if err := g.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}

	// Initial full report carries the declared-but-unknown property.
	if remote.reportCount() != 1 {
		t.Fatalf("initial reports = %d, want 1", remote.reportCount())
	}
	if rep := remote.lastReport(); !rep.Has("ampPower") {
		t.Error("initial report missing declared property")
	}

	// A burst through the updates channel lands as individually reported
	// merges once the batch window closes.
	on := property.NewDocument()
	on.Set("ampPower", property.Bool(true))
	off := property.NewDocument()
	off.Set("ampPower", property.Bool(false))
	g.Updates() <- engine.Update{Adapter: "amp", Changed: on}
	g.Updates() <- engine.Update{Adapter: "amp", Changed: off}

	deadline := time.After(2 * time.Second)
	for remote.reportCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("reports = %d, want 3 (initial + 2 merges)", remote.reportCount())
		case <-time.After(10 * time.Millisecond):
		}
	}

	if v, _ := g.Document().Get("ampPower"); !v.Equal(property.Bool(false)) {
		t.Error("final document should reflect last update in arrival order")
	}
}
