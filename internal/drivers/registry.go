package drivers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/calder-iot/shadowbridge/internal/adapter"
)

// BuildFunc constructs an adapter with one driver's rule tables.
type BuildFunc func(name string, logger adapter.Logger) (*adapter.Adapter, error)

// Defaults are the protocol parameters a driver expects. Configuration
// may override them per adapter.
type Defaults struct {
	// Synchronous selects strict write-then-read operation.
	Synchronous bool

	// Terminator delimits inbound records. Empty means "\n".
	Terminator string

	// WriteTerminator is appended to outbound commands when it differs
	// from Terminator.
	WriteTerminator string
}

// Descriptor is one registered driver.
type Descriptor struct {
	Build    BuildFunc
	Defaults Defaults
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Descriptor)
)

// Register adds a driver under the given name. Built-in drivers register
// from init; additional drivers may register before configuration is
// loaded.
func Register(driver string, desc Descriptor) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[driver]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateDriver, driver)
	}
	registry[driver] = desc
	return nil
}

// mustRegister panics on a duplicate name. Built-in init registrations
// only; a collision there is a programming error.
func mustRegister(driver string, desc Descriptor) {
	if err := Register(driver, desc); err != nil {
		panic(err)
	}
}

// Lookup returns the descriptor registered under driver.
func Lookup(driver string) (Descriptor, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	desc, ok := registry[driver]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	return desc, nil
}

// New builds an adapter using the named driver.
func New(driver, name string, logger adapter.Logger) (*adapter.Adapter, error) {
	desc, err := Lookup(driver)
	if err != nil {
		return nil, err
	}
	return desc.Build(name, logger)
}

// Names lists the registered driver names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
