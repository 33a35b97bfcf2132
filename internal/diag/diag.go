package diag

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a diagnostic event.
type Kind string

// Diagnostic event kinds.
const (
	// KindTranslationError records an inbound record a rule matched but
	// could not convert, or a record no rule matched.
	KindTranslationError Kind = "translation_error"

	// KindStreamError records a read or write failure on a device stream.
	KindStreamError Kind = "stream_error"

	// KindCommandDropped records a command discarded after its retry.
	KindCommandDropped Kind = "command_dropped"

	// KindUnroutableProperty records a delta property no adapter owns.
	KindUnroutableProperty Kind = "unroutable_property"

	// KindInvalidValue records a delta value a device cannot express.
	KindInvalidValue Kind = "invalid_value"

	// KindCascadeLoop records a cascade that hit the depth cap.
	KindCascadeLoop Kind = "cascade_loop"
)

// Event is one diagnostic record.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	Adapter   string    `json:"adapter,omitempty"`
	Property  string    `json:"property,omitempty"`
	Detail    string    `json:"detail"`
}

// New builds an event with a fresh ID and timestamp.
func New(kind Kind, adapterName, propertyName, detail string) Event {
	return Event{
		ID:        "diag-" + uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Adapter:   adapterName,
		Property:  propertyName,
		Detail:    detail,
	}
}

// Sink receives diagnostic events. Implementations must not block for long;
// they are called from engine and aggregator loops.
type Sink interface {
	Record(ev Event)
}

// Discard is a sink that drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(Event) {}

// MultiSink fans one event out to several sinks.
type MultiSink []Sink

func (m MultiSink) Record(ev Event) {
	for _, s := range m {
		s.Record(ev)
	}
}

// Logger is the interface for structured logging within the diag package.
type Logger interface {
	Warn(msg string, args ...any)
}

// LogSink writes events to a structured logger at warn level.
type LogSink struct {
	logger Logger
}

// NewLogSink wraps a logger as a sink.
func NewLogSink(logger Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(ev Event) {
	s.logger.Warn("diagnostic",
		"id", ev.ID,
		"kind", string(ev.Kind),
		"adapter", ev.Adapter,
		"property", ev.Property,
		"detail", ev.Detail,
	)
}

// Ring keeps the most recent events in memory for the status API.
//
// Thread Safety: all methods are safe for concurrent use.
type Ring struct {
	mu     sync.RWMutex
	events []Event
	next   int
	full   bool
}

// NewRing creates a ring holding up to capacity events.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 256
	}
	return &Ring{events: make([]Event, capacity)}
}

func (r *Ring) Record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[r.next] = ev
	r.next = (r.next + 1) % len(r.events)
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns up to limit events, newest first.
func (r *Ring) Recent(limit int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	size := r.next
	if r.full {
		size = len(r.events)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]Event, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + len(r.events)) % len(r.events)
		out = append(out, r.events[idx])
	}
	return out
}
