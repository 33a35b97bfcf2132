package aggregator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/calder-iot/shadowbridge/internal/adapter"
	"github.com/calder-iot/shadowbridge/internal/diag"
	"github.com/calder-iot/shadowbridge/internal/engine"
	"github.com/calder-iot/shadowbridge/internal/property"
)

// Logger is the interface for structured logging within the aggregator package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// RemoteClient is the contract with the remote state service. The service
// holds desired state, receives reported state, and pushes deltas when the
// two diverge. Authentication and transport details live behind this
// interface.
type RemoteClient interface {
	// OnDelta installs the handler invoked for each incoming delta
	// document. Must be called before Start.
	OnDelta(handler func(desired *property.Document))

	// ReportState publishes a reported-state fragment.
	ReportState(doc *property.Document) error

	// Start connects to the service and begins delivering deltas.
	Start(ctx context.Context) error

	// Stop disconnects from the service.
	Stop()
}

// CascadeFunc derives follow-on desired changes from a state change. It
// receives the fragment that just changed and a snapshot of the merged
// document, and returns desired property values to apply, or nil.
//
// The function must be idempotent: rerunning it on the state it produced
// must eventually return nothing, or the depth cap cuts it off.
type CascadeFunc func(changed, state *property.Document) *property.Document

// Broadcaster pushes property-change events to local observers.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// maxCascadeDepth bounds synthetic-delta feedback per inbound change.
const maxCascadeDepth = 8

// batchWindow is how long the event loop keeps draining after the first
// update of a burst before processing. Devices that answer a status poll
// with several records arrive as one batch.
const batchWindow = 100 * time.Millisecond

// Stats holds aggregator operational counters.
type Stats struct {
	UpdatesMerged   uint64
	ReportsSent     uint64
	ReportFailures  uint64
	DeltasReceived  uint64
	CommandsRouted  uint64
	Unroutable      uint64
	InvalidValues   uint64
	CascadeOutputs  uint64
	CascadeOverruns uint64
}

// registration binds one adapter to the engine driving it.
type registration struct {
	adapter *adapter.Adapter
	engine  *engine.Engine
}

// Aggregator owns the merged property document for one thing and the
// reconciliation loop around it.
//
// Thread Safety: Register is startup-time only. Document and Stats are safe
// for concurrent use once started.
type Aggregator struct {
	remote    RemoteClient
	cascade   CascadeFunc
	logger    Logger
	sink      diag.Sink
	broadcast Broadcaster

	updates chan engine.Update

	mu       sync.RWMutex
	doc      *property.Document
	owners   map[string]*registration // property name -> owner
	adapters map[string]*registration // adapter name -> registration
	order    []string                 // adapter registration order
	started  bool

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	updatesMerged   atomic.Uint64
	reportsSent     atomic.Uint64
	reportFailures  atomic.Uint64
	deltasReceived  atomic.Uint64
	commandsRouted  atomic.Uint64
	unroutable      atomic.Uint64
	invalidValues   atomic.Uint64
	cascadeOutputs  atomic.Uint64
	cascadeOverruns atomic.Uint64
}

// New creates an aggregator reconciling against remote. A nil cascade
// disables cascading; a nil logger disables logging; a nil sink discards
// diagnostics; a nil broadcaster disables local event fan-out.
func New(remote RemoteClient, cascade CascadeFunc, logger Logger, sink diag.Sink, broadcast Broadcaster) *Aggregator {
	if logger == nil {
		logger = noopLogger{}
	}
	if sink == nil {
		sink = diag.Discard
	}
	return &Aggregator{
		remote:    remote,
		cascade:   cascade,
		logger:    logger,
		sink:      sink,
		broadcast: broadcast,
		updates:   make(chan engine.Update, 64),
		doc:       property.NewDocument(),
		owners:    make(map[string]*registration),
		adapters:  make(map[string]*registration),
		done:      make(chan struct{}),
	}
}

// Updates returns the channel engines deliver changed-property fragments on.
func (g *Aggregator) Updates() chan<- engine.Update {
	return g.updates
}

// Register binds an adapter and its engine to this aggregator. Property
// names must be globally unique across adapters; a collision here is a
// configuration error caught at startup.
func (g *Aggregator) Register(a *adapter.Adapter, e *engine.Engine) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		return ErrAlreadyStarted
	}
	if _, ok := g.adapters[a.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAdapter, a.Name())
	}

	props := a.Properties()
	for _, p := range props {
		if owner, ok := g.owners[p]; ok {
			return fmt.Errorf("%w: %s declared by both %s and %s",
				ErrDuplicateProperty, p, owner.adapter.Name(), a.Name())
		}
	}

	reg := &registration{adapter: a, engine: e}
	g.adapters[a.Name()] = reg
	g.order = append(g.order, a.Name())
	for _, p := range props {
		g.owners[p] = reg
	}

	for _, w := range a.CoverageWarnings() {
		g.logger.Warn("adapter property coverage", "adapter", a.Name(), "warning", w)
	}

	// Seed the merged document from the adapter's initial state.
	g.doc.Merge(a.State().Snapshot())
	return nil
}

// Start connects the remote client, starts every registered engine and runs
// the reconciliation loop. The full document is reported once at startup so
// the remote service sees declared-but-unknown properties immediately.
func (g *Aggregator) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return ErrAlreadyStarted
	}
	g.started = true
	regs := make([]*registration, 0, len(g.order))
	for _, name := range g.order {
		regs = append(regs, g.adapters[name])
	}
	initial := g.doc.Clone()
	g.mu.Unlock()

	g.remote.OnDelta(g.handleDelta)
	if err := g.remote.Start(ctx); err != nil {
		return fmt.Errorf("aggregator: starting remote client: %w", err)
	}

	if err := g.remote.ReportState(initial); err != nil {
		g.reportFailures.Add(1)
		g.logger.Warn("initial state report failed", "error", err)
	} else {
		g.reportsSent.Add(1)
	}

	for _, reg := range regs {
		reg.engine.Start(ctx)
	}

	g.wg.Add(1)
	go g.run(ctx)

	g.logger.Info("aggregator started", "adapters", len(regs), "properties", initial.Len())
	return nil
}

// Stop shuts down in dependency order: engines first, so no more updates
// are produced, then the loop, then the remote client.
func (g *Aggregator) Stop() {
	g.mu.RLock()
	regs := make([]*registration, 0, len(g.order))
	for _, name := range g.order {
		regs = append(regs, g.adapters[name])
	}
	g.mu.RUnlock()

	for _, reg := range regs {
		reg.engine.Stop()
	}

	g.stopOnce.Do(func() { close(g.done) })
	g.wg.Wait()

	g.remote.Stop()
	g.logger.Info("aggregator stopped")
}

// Document returns a copy of the current merged property document.
func (g *Aggregator) Document() *property.Document {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.doc.Clone()
}

// AdapterNames returns registered adapter names in registration order.
func (g *Aggregator) AdapterNames() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// AdapterSnapshot is one adapter's operational view for the status API.
type AdapterSnapshot struct {
	Name       string
	Healthy    bool
	LastPoll   time.Time
	Properties *property.Document
	Engine     engine.Stats
}

// AdapterState returns one adapter's current snapshot.
func (g *Aggregator) AdapterState(name string) (AdapterSnapshot, bool) {
	g.mu.RLock()
	reg, ok := g.adapters[name]
	g.mu.RUnlock()
	if !ok {
		return AdapterSnapshot{}, false
	}
	st := reg.adapter.State()
	return AdapterSnapshot{
		Name:       reg.adapter.Name(),
		Healthy:    st.Healthy(),
		LastPoll:   st.LastPoll(),
		Properties: st.Snapshot(),
		Engine:     reg.engine.Stats(),
	}, true
}

// EngineStats returns the stats of one registered engine.
func (g *Aggregator) EngineStats(name string) (engine.Stats, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	reg, ok := g.adapters[name]
	if !ok {
		return engine.Stats{}, false
	}
	return reg.engine.Stats(), true
}

// Stats returns aggregator operational counters.
func (g *Aggregator) Stats() Stats {
	return Stats{
		UpdatesMerged:   g.updatesMerged.Load(),
		ReportsSent:     g.reportsSent.Load(),
		ReportFailures:  g.reportFailures.Load(),
		DeltasReceived:  g.deltasReceived.Load(),
		CommandsRouted:  g.commandsRouted.Load(),
		Unroutable:      g.unroutable.Load(),
		InvalidValues:   g.invalidValues.Load(),
		CascadeOutputs:  g.cascadeOutputs.Load(),
		CascadeOverruns: g.cascadeOverruns.Load(),
	}
}

// run is the reconciliation loop. Updates are processed strictly in arrival
// order; a burst is drained for one batch window before processing so a
// multi-record poll response lands as a unit, but every merge still reports
// individually.
func (g *Aggregator) run(ctx context.Context) {
	defer g.wg.Done()

	for {
		var first engine.Update
		select {
		case <-ctx.Done():
			return
		case <-g.done:
			return
		case first = <-g.updates:
		}

		batch := []engine.Update{first}
		timer := time.NewTimer(batchWindow)
	drain:
		for {
			select {
			case u := <-g.updates:
				batch = append(batch, u)
			case <-timer.C:
				break drain
			case <-ctx.Done():
				timer.Stop()
				return
			case <-g.done:
				timer.Stop()
				return
			}
		}

		for _, u := range batch {
			g.applyUpdate(u)
		}
	}
}

// applyUpdate merges one fragment, reports what changed and evaluates the
// cascade on the result.
func (g *Aggregator) applyUpdate(u engine.Update) {
	g.mu.Lock()
	changed := g.doc.Merge(u.Changed)
	state := g.doc.Clone()
	g.mu.Unlock()

	if changed.Len() == 0 {
		return
	}
	g.updatesMerged.Add(1)

	g.report(changed)

	if g.broadcast != nil {
		g.broadcast.Broadcast("properties", map[string]any{
			"adapter":    u.Adapter,
			"properties": changed.Interface(),
		})
	}

	g.runCascade(changed, state)
}

// runCascade feeds cascade output back as synthetic deltas until the
// cascade settles or the depth cap trips.
func (g *Aggregator) runCascade(changed, state *property.Document) {
	if g.cascade == nil {
		return
	}

	for depth := 0; ; depth++ {
		out := g.cascade(changed, state)
		if out == nil || out.Len() == 0 {
			return
		}
		if depth >= maxCascadeDepth {
			g.cascadeOverruns.Add(1)
			g.sink.Record(diag.New(diag.KindCascadeLoop, "", "",
				fmt.Sprintf("cascade still producing output at depth %d, cutting off: %s", depth, out)))
			return
		}

		g.cascadeOutputs.Add(1)
		g.routeDelta(out)

		// The next round sees the cascade's own output as the change, over
		// the state as if the devices had already confirmed it.
		state = state.Clone()
		state.Merge(out)
		changed = out
	}
}

// handleDelta routes one desired-state document from the remote service.
// Installed as the remote client's delta handler.
func (g *Aggregator) handleDelta(desired *property.Document) {
	g.deltasReceived.Add(1)
	g.logger.Debug("delta received", "properties", desired.Len())
	g.routeDelta(desired)
}

// routeDelta partitions a desired-state document by owning adapter and
// queues the translated commands. Failures drop the single property and
// the batch continues.
func (g *Aggregator) routeDelta(desired *property.Document) {
	desired.Range(func(name string, v property.Value) bool {
		g.mu.RLock()
		reg, ok := g.owners[name]
		g.mu.RUnlock()

		if !ok {
			g.unroutable.Add(1)
			g.sink.Record(diag.New(diag.KindUnroutableProperty, "", name,
				fmt.Sprintf("no adapter owns property %s", name)))
			return true
		}

		cmd, err := reg.adapter.TranslateOutbound(name, v)
		if err != nil {
			g.invalidValues.Add(1)
			g.sink.Record(diag.New(diag.KindInvalidValue, reg.adapter.Name(), name, err.Error()))
			return true
		}

		reg.engine.EnqueueCommand(cmd)
		g.commandsRouted.Add(1)
		return true
	})
}

// report publishes a changed fragment to the remote service. A failed
// report is counted and logged; reported state converges on the next
// change or reconnect.
func (g *Aggregator) report(changed *property.Document) {
	if err := g.remote.ReportState(changed); err != nil {
		g.reportFailures.Add(1)
		g.logger.Warn("state report failed", "error", err, "fragment", changed.String())
		return
	}
	g.reportsSent.Add(1)
}
