package adapter

import (
	"errors"
	"fmt"
)

// Domain errors for the adapter package.
var (
	// ErrNoMatch is returned when no inbound rule matches a device record.
	// Callers log and drop the record; it is never fatal.
	ErrNoMatch = errors.New("adapter: no rule matches record")

	// ErrInvalidPattern is returned when an inbound pattern fails to compile.
	ErrInvalidPattern = errors.New("adapter: invalid pattern")

	// ErrDuplicatePattern is returned when a byte-identical inbound pattern
	// is registered twice on the same adapter.
	ErrDuplicatePattern = errors.New("adapter: duplicate pattern")

	// ErrDuplicateProperty is returned when a property is declared by more
	// than one rule in the same direction on the same adapter.
	ErrDuplicateProperty = errors.New("adapter: duplicate property")

	// ErrCaptureMismatch is returned when a pattern's capture-group count
	// does not equal the number of declared properties.
	ErrCaptureMismatch = errors.New("adapter: capture group count mismatch")

	// ErrUnknownProperty is returned when outbound translation is requested
	// for a property with no registered formatter.
	ErrUnknownProperty = errors.New("adapter: unknown property")
)

// TranslationError reports a failed inbound conversion. The whole record
// is discarded when any one property conversion fails.
type TranslationError struct {
	Adapter  string
	Raw      string
	Property string
	Err      error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("adapter %s: translating %q for property %s: %v", e.Adapter, e.Raw, e.Property, e.Err)
}

func (e *TranslationError) Unwrap() error { return e.Err }

// InvalidValueError reports an outbound value the device cannot express.
type InvalidValueError struct {
	Adapter  string
	Property string
	Reason   string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("adapter %s: invalid value for property %s: %s", e.Adapter, e.Property, e.Reason)
}
