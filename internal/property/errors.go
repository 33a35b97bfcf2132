package property

import "errors"

// Domain errors for the property package.
var (
	// ErrInvalidValue is returned when a raw value cannot be represented
	// as a property Value.
	ErrInvalidValue = errors.New("property: invalid value")

	// ErrUnknownProperty is returned when an operation names a property
	// that has not been declared.
	ErrUnknownProperty = errors.New("property: unknown property")
)
