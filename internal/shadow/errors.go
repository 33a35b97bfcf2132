package shadow

import "errors"

// Package error sentinels. Wrap with fmt.Errorf("%w: ...") for context.
var (
	// ErrNoHandler indicates Start was called before OnDelta.
	ErrNoHandler = errors.New("shadow: delta handler not set")

	// ErrAlreadyStarted indicates a second Start on the same client.
	ErrAlreadyStarted = errors.New("shadow: already started")

	// ErrNotStarted indicates an operation that needs a started client.
	ErrNotStarted = errors.New("shadow: not started")
)
