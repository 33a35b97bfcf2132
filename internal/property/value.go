package property

import (
	"fmt"
	"strconv"
)

// Kind identifies the dynamic type of a Value.
type Kind int

const (
	// KindUnknown is the sentinel kind for properties whose current value
	// has not yet been observed from the device.
	KindUnknown Kind = iota

	// KindString is a free-form text value.
	KindString

	// KindInt is an integer value.
	KindInt

	// KindBool is a boolean value.
	KindBool

	// KindSymbol is an enumerated symbol value (e.g. "ON", "AUX").
	// Symbols compare by their literal text but are kept distinct from
	// strings so translation functions can validate against a closed set.
	KindSymbol
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindUnknown:
		return "unknown"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindSymbol:
		return "symbol"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is an opaque typed property value.
//
// The zero Value is the Unknown sentinel. Values are immutable; all
// constructors return by value and the struct holds no references.
type Value struct {
	kind Kind
	str  string
	num  int64
	b    bool
}

// Unknown is the sentinel value assigned to every declared property at
// adapter construction, before the device has reported anything.
var Unknown = Value{kind: KindUnknown}

// String returns a string-typed value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int returns an integer-typed value.
func Int(n int64) Value { return Value{kind: KindInt, num: n} }

// Bool returns a boolean-typed value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Symbol returns an enumerated-symbol value.
func Symbol(s string) Value { return Value{kind: KindSymbol, str: s} }

// Kind returns the dynamic type of the value.
func (v Value) Kind() Kind { return v.kind }

// IsUnknown reports whether the value is the Unknown sentinel.
func (v Value) IsUnknown() bool { return v.kind == KindUnknown }

// Text returns the string or symbol payload.
// Returns "" for non-textual kinds.
func (v Value) Text() string {
	if v.kind == KindString || v.kind == KindSymbol {
		return v.str
	}
	return ""
}

// Int64 returns the integer payload, or 0 for non-integer kinds.
func (v Value) Int64() int64 {
	if v.kind == KindInt {
		return v.num
	}
	return 0
}

// Truth returns the boolean payload, or false for non-boolean kinds.
func (v Value) Truth() bool {
	if v.kind == KindBool {
		return v.b
	}
	return false
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindUnknown:
		return true
	case KindString, KindSymbol:
		return v.str == o.str
	case KindInt:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	default:
		return false
	}
}

// String renders the value for logging and diagnostics.
func (v Value) String() string {
	switch v.kind {
	case KindUnknown:
		return "UNKNOWN"
	case KindString:
		return strconv.Quote(v.str)
	case KindSymbol:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "?"
	}
}

// Interface returns the payload as a plain Go value for JSON encoding:
// string for strings and symbols, int64, bool, or nil for Unknown.
func (v Value) Interface() any {
	switch v.kind {
	case KindString, KindSymbol:
		return v.str
	case KindInt:
		return v.num
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// FromInterface converts a decoded JSON value into a Value.
// JSON numbers arrive as float64; only integral values are accepted since
// the model has no float kind. Strings map to symbols: the shadow service
// has no way to distinguish the two, and symbol is what device enumerations
// use in practice.
func FromInterface(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Unknown, nil
	case string:
		return Symbol(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		n := int64(t)
		if float64(n) != t {
			return Unknown, fmt.Errorf("%w: non-integral number %v", ErrInvalidValue, t)
		}
		return Int(n), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	default:
		return Unknown, fmt.Errorf("%w: unsupported type %T", ErrInvalidValue, raw)
	}
}
