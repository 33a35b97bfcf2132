package aggregator

import "errors"

// Domain errors for the aggregator package.
var (
	// ErrDuplicateProperty is returned when a registering adapter declares
	// a property name another adapter already owns.
	ErrDuplicateProperty = errors.New("aggregator: property owned by another adapter")

	// ErrDuplicateAdapter is returned when an adapter name is registered twice.
	ErrDuplicateAdapter = errors.New("aggregator: adapter already registered")

	// ErrAlreadyStarted is returned when Register is called after Start.
	ErrAlreadyStarted = errors.New("aggregator: already started")
)
