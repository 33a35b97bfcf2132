package drivers

import "errors"

// Package error sentinels. Wrap with fmt.Errorf("%w: ...") for context.
var (
	// ErrUnknownDriver indicates a configured driver name with no
	// registered driver.
	ErrUnknownDriver = errors.New("drivers: unknown driver")

	// ErrDuplicateDriver indicates a second registration under one name.
	ErrDuplicateDriver = errors.New("drivers: duplicate driver")
)
