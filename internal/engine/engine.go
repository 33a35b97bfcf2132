package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/calder-iot/shadowbridge/internal/adapter"
	"github.com/calder-iot/shadowbridge/internal/diag"
	"github.com/calder-iot/shadowbridge/internal/property"
	"github.com/calder-iot/shadowbridge/internal/stream"
)

// Logger is the interface for structured logging within the engine package.
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

// Update is one adapter's changed-property fragment, emitted after a
// successful inbound commit. Fragments arrive on the aggregator's channel
// in the order the device delivered them.
type Update struct {
	Adapter string
	Changed *property.Document
}

// Default timing parameters.
const (
	// defaultReadTimeout bounds one read wait. In asynchronous mode it is
	// only the shutdown-check granularity; in synchronous mode it is the
	// response window after each command.
	defaultReadTimeout = 2 * time.Second

	// defaultNotReadyRetry is how long writes stay deferred when the
	// readiness probe gives no retry hint.
	defaultNotReadyRetry = 5 * time.Second

	// streamErrorBackoff throttles the read loop while the stream is down,
	// so a dead connection does not spin the loop.
	streamErrorBackoff = time.Second
)

// Config holds per-engine settings.
type Config struct {
	// Synchronous selects strict write-then-read operation for devices
	// that only respond to queries and never volunteer records.
	Synchronous bool

	// Terminator delimits inbound records on the wire. Default "\n".
	Terminator string

	// WriteTerminator is appended to outbound commands when the device
	// expects a different delimiter than it responds with. Empty means
	// use Terminator.
	WriteTerminator string

	// ReadTimeout bounds a single read wait. Default 2s.
	ReadTimeout time.Duration

	// PollInterval schedules status queries. Zero disables polling.
	PollInterval time.Duration

	// NotReadyRetry is the default deferral when the readiness probe
	// reports not ready without a retry hint. Default 5s.
	NotReadyRetry time.Duration
}

// Stats holds per-engine operational counters.
type Stats struct {
	RecordsIn         uint64
	CommandsOut       uint64
	TranslationErrors uint64
	StreamErrors      uint64
	Requeues          uint64
	Dropped           uint64
	Polls             uint64
	QueueDepth        int
}

// Engine runs the I/O loops for one adapter over one stream.
//
// Thread Safety: EnqueueCommand and Stats are safe for concurrent use.
// Start may be called once; Stop is idempotent.
type Engine struct {
	adapter *adapter.Adapter
	stream  stream.Stream
	reader  *stream.RecordReader
	updates chan<- Update
	cfg     Config
	logger  Logger
	sink    diag.Sink

	queue *queue

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	recordsIn         atomic.Uint64
	commandsOut       atomic.Uint64
	translationErrors atomic.Uint64
	streamErrors      atomic.Uint64
	requeues          atomic.Uint64
	dropped           atomic.Uint64
	polls             atomic.Uint64
}

// New creates an engine for one adapter over one stream. Updates carrying
// changed properties are sent on updates. A nil logger disables logging;
// a nil sink discards diagnostics.
func New(a *adapter.Adapter, s stream.Stream, updates chan<- Update, cfg Config, logger Logger, sink diag.Sink) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	if sink == nil {
		sink = diag.Discard
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.NotReadyRetry == 0 {
		cfg.NotReadyRetry = defaultNotReadyRetry
	}
	if cfg.WriteTerminator == "" {
		cfg.WriteTerminator = cfg.Terminator
	}
	return &Engine{
		adapter: a,
		stream:  s,
		reader:  stream.NewRecordReader(s, cfg.Terminator),
		updates: updates,
		cfg:     cfg,
		logger:  logger,
		sink:    sink,
		queue:   newQueue(),
		done:    make(chan struct{}),
	}
}

// Name returns the owning adapter's name.
func (e *Engine) Name() string { return e.adapter.Name() }

// Start launches the I/O loops. They run until ctx is cancelled or Stop
// is called.
func (e *Engine) Start(ctx context.Context) {
	if e.cfg.Synchronous {
		e.wg.Add(1)
		go e.syncLoop(ctx)
	} else {
		e.wg.Add(2)
		go e.readLoop(ctx)
		go e.writeLoop(ctx)
	}

	if e.cfg.PollInterval > 0 {
		e.wg.Add(1)
		go e.pollLoop(ctx)
	}

	e.logger.Info("engine started",
		"adapter", e.adapter.Name(),
		"synchronous", e.cfg.Synchronous,
		"poll_interval", e.cfg.PollInterval,
	)
}

// Stop closes the stream and waits for the loops to exit. Loops notice
// within one read timeout at most. Safe to call multiple times.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.done)
		e.stream.Close() //nolint:errcheck // Shutting down regardless
	})
	e.wg.Wait()
	e.logger.Info("engine stopped", "adapter", e.adapter.Name())
}

// EnqueueCommand queues an application-driven command for transmission,
// ahead of any pending poll traffic.
func (e *Engine) EnqueueCommand(cmd string) {
	e.queue.push(command{text: cmd, priority: PriorityApp})
}

// Stats returns current operational counters.
func (e *Engine) Stats() Stats {
	return Stats{
		RecordsIn:         e.recordsIn.Load(),
		CommandsOut:       e.commandsOut.Load(),
		TranslationErrors: e.translationErrors.Load(),
		StreamErrors:      e.streamErrors.Load(),
		Requeues:          e.requeues.Load(),
		Dropped:           e.dropped.Load(),
		Polls:             e.polls.Load(),
		QueueDepth:        e.queue.len(),
	}
}

// readLoop consumes records as the device volunteers them (asynchronous
// mode). It is the single writer of the adapter's state.
func (e *Engine) readLoop(ctx context.Context) {
	defer e.wg.Done()

	for {
		if e.stopping(ctx) {
			return
		}

		rec, err := e.reader.ReadRecord(e.cfg.ReadTimeout)
		if err != nil {
			if errors.Is(err, stream.ErrReadTimeout) {
				// Idle device; timeout is just the shutdown check.
				continue
			}
			if e.stopping(ctx) {
				return
			}
			e.onStreamError("read", err)
			select {
			case <-time.After(streamErrorBackoff):
			case <-ctx.Done():
				return
			case <-e.done:
				return
			}
			continue
		}

		e.adapter.State().SetHealthy(true)
		e.handleRecord(ctx, rec)
	}
}

// writeLoop transmits queued commands (asynchronous mode).
func (e *Engine) writeLoop(ctx context.Context) {
	defer e.wg.Done()

	for {
		cmd, ok := e.nextCommand(ctx)
		if !ok {
			return
		}
		if !e.waitReady(ctx) {
			return
		}
		e.transmit(cmd)
	}
}

// syncLoop runs strict write-then-read operation (synchronous mode). Every
// command, application or poll, is followed by one bounded read for its
// response; a silent device means the command failed.
func (e *Engine) syncLoop(ctx context.Context) {
	defer e.wg.Done()

	for {
		cmd, ok := e.nextCommand(ctx)
		if !ok {
			return
		}
		if !e.waitReady(ctx) {
			return
		}

		if !e.transmit(cmd) {
			continue
		}

		rec, err := e.reader.ReadRecord(e.cfg.ReadTimeout)
		if err != nil {
			if e.stopping(ctx) {
				return
			}
			// No response within the window: the command failed.
			e.onStreamError("response", err)
			e.retryOrDrop(cmd)
			continue
		}

		e.adapter.State().SetHealthy(true)
		e.handleRecord(ctx, rec)
	}
}

// pollLoop enqueues status queries at poll priority on each tick.
func (e *Engine) pollLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-ticker.C:
		}

		cmds := e.adapter.QueryStatus()
		if len(cmds) == 0 {
			continue
		}
		for _, c := range cmds {
			e.queue.push(command{text: c, priority: PriorityPoll})
		}
		e.polls.Add(1)
		e.adapter.State().MarkPolled(time.Now())
	}
}

// handleRecord translates one record and commits the result. Unmatched or
// unconvertible records become diagnostics; the loop never stops for them.
func (e *Engine) handleRecord(ctx context.Context, rec string) {
	e.recordsIn.Add(1)

	doc, err := e.adapter.TranslateInbound(rec)
	if err != nil {
		e.translationErrors.Add(1)
		if errors.Is(err, adapter.ErrNoMatch) {
			e.logger.Debug("unmatched record", "adapter", e.adapter.Name(), "record", rec)
		}
		e.sink.Record(diag.New(diag.KindTranslationError, e.adapter.Name(), "", err.Error()))
		return
	}

	changed := e.adapter.State().Commit(doc)
	if changed.Len() == 0 {
		return
	}

	select {
	case e.updates <- Update{Adapter: e.adapter.Name(), Changed: changed}:
	case <-ctx.Done():
	case <-e.done:
	}
}

// transmit writes one command to the stream. Returns false when the write
// failed; the command is requeued once, then dropped.
func (e *Engine) transmit(cmd command) bool {
	if err := stream.WriteRecord(e.stream, e.cfg.WriteTerminator, cmd.text); err != nil {
		e.onStreamError("write", err)
		e.retryOrDrop(cmd)
		return false
	}
	e.adapter.State().SetHealthy(true)
	e.commandsOut.Add(1)
	return true
}

// retryOrDrop requeues a failed command at most once. The retry goes to the
// front of its priority band; a second failure drops the command with a
// diagnostic.
func (e *Engine) retryOrDrop(cmd command) {
	if cmd.attempts == 0 {
		cmd.attempts++
		e.requeues.Add(1)
		e.queue.pushFront(cmd)
		return
	}
	e.dropped.Add(1)
	e.sink.Record(diag.New(diag.KindCommandDropped, e.adapter.Name(), "", cmd.text))
	e.logger.Warn("command dropped after retry", "adapter", e.adapter.Name(), "command", cmd.text)
}

// nextCommand blocks until a command is available or shutdown begins.
func (e *Engine) nextCommand(ctx context.Context) (command, bool) {
	for {
		if c, ok := e.queue.pop(); ok {
			return c, true
		}
		select {
		case <-ctx.Done():
			return command{}, false
		case <-e.done:
			return command{}, false
		case <-e.queue.notify:
		}
	}
}

// waitReady blocks until the adapter reports ready. Writes are deferred
// while not ready; reads are unaffected, which is how state changes that
// restore readiness get observed at all. Returns false on shutdown.
func (e *Engine) waitReady(ctx context.Context) bool {
	for {
		r := e.adapter.Readiness()
		if r.Ready {
			return true
		}
		retry := r.RetryAfter
		if retry == 0 {
			retry = e.cfg.NotReadyRetry
		}
		e.logger.Debug("device not ready, deferring writes",
			"adapter", e.adapter.Name(), "retry_after", retry)
		select {
		case <-time.After(retry):
		case <-ctx.Done():
			return false
		case <-e.done:
			return false
		}
	}
}

// onStreamError records a stream fault and marks the adapter unhealthy
// until I/O succeeds again.
func (e *Engine) onStreamError(op string, err error) {
	e.streamErrors.Add(1)
	e.adapter.State().SetHealthy(false)
	e.sink.Record(diag.New(diag.KindStreamError, e.adapter.Name(), "", op+": "+err.Error()))
}

func (e *Engine) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-e.done:
		return true
	default:
		return false
	}
}
