package adapter

import (
	"sync"
	"time"

	"github.com/calder-iot/shadowbridge/internal/property"
)

// State holds one adapter's current property document plus the bookkeeping
// the engine needs around it.
//
// Thread Safety: all methods are safe for concurrent use, but Commit is
// meant for exactly one caller, the engine's read path. Concurrent commits
// would interleave merge results and break read-order semantics.
type State struct {
	mu       sync.RWMutex
	doc      *property.Document
	lastPoll time.Time
	ready    bool
}

func newState() *State {
	return &State{
		doc:   property.NewDocument(),
		ready: true,
	}
}

// declare adds a property with an Unknown value if not already present.
// Called from rule registration.
func (s *State) declare(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.doc.Has(name) {
		s.doc.Set(name, property.Unknown)
	}
}

// declared returns all property names in declaration order.
func (s *State) declared() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Names()
}

// SetInitial seeds a property with a configured starting value, replacing
// the Unknown sentinel. Startup-time only.
func (s *State) SetInitial(name string, v property.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Set(name, v)
}

// Snapshot returns a copy of the current document. Callers may hold or
// mutate it freely.
func (s *State) Snapshot() *property.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

// Commit merges an inbound update into the state document and returns the
// subset that actually changed. An empty result means the update was fully
// redundant and no event needs to propagate.
func (s *State) Commit(update *property.Document) *property.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Merge(update)
}

// Get returns one property's current value.
func (s *State) Get(name string) (property.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Get(name)
}

// MarkPolled records the time of the last completed status poll.
func (s *State) MarkPolled(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPoll = t
}

// LastPoll returns the time of the last completed status poll.
func (s *State) LastPoll() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPoll
}

// SetHealthy records whether the stream is currently delivering I/O.
// The engine clears this on persistent stream failure and restores it on
// the next successful read or write.
func (s *State) SetHealthy(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ok
}

// Healthy reports whether the stream was delivering I/O at last check.
func (s *State) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}
