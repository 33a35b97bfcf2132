package adapter

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/calder-iot/shadowbridge/internal/property"
)

// Logger is the interface for structured logging within the adapter package.
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

// ConvertFunc turns a captured substring into a property value.
// It is invoked once per declared property of a matched rule, with the
// property name and the corresponding capture group.
type ConvertFunc func(propertyName, capture string) (property.Value, error)

// FormatFunc turns a property value into the argument for an outbound
// format string. Returning an error rejects the value as unexpressable
// on this device.
type FormatFunc func(v property.Value) (any, error)

// QueryFunc produces the status-query commands for a poll cycle, given a
// snapshot of current state. Returning nil skips the cycle.
type QueryFunc func(state *property.Document) []string

// ReadyFunc reports whether the device will accept commands right now,
// given a snapshot of current state.
type ReadyFunc func(state *property.Document) Readiness

// Readiness is the result of a readiness probe. A not-ready device has
// its outbound commands deferred, never its inbound reads.
type Readiness struct {
	Ready bool

	// RetryAfter is how long to wait before probing again when not ready.
	// Zero means the engine's default interval.
	RetryAfter time.Duration
}

// ReadyNow is the readiness of a device that accepts commands.
var ReadyNow = Readiness{Ready: true}

// NotReadyFor defers outbound commands for at least d.
func NotReadyFor(d time.Duration) Readiness {
	return Readiness{RetryAfter: d}
}

// inboundRule maps one anchored pattern onto an ordered property list.
type inboundRule struct {
	pattern    string
	re         *regexp.Regexp
	properties []string
	convert    ConvertFunc
}

// outboundRule renders one property into a device command.
type outboundRule struct {
	format  string
	convert FormatFunc
}

// Adapter translates between one device's wire protocol and property
// documents, and owns that device's state.
//
// Thread Safety: Register* and the hook setters are startup-time only and
// not synchronized against translation. TranslateInbound and
// TranslateOutbound are read-only afterwards and safe for concurrent use.
// State mutation goes through State, which has its own locking but expects
// a single writer (the engine's read path).
type Adapter struct {
	name   string
	logger Logger

	inbound     []inboundRule
	inboundSet  map[string]bool // properties declared by inbound rules
	outbound    map[string]outboundRule
	outboundOrd []string

	queryStatus QueryFunc
	ready       ReadyFunc

	state *State
}

// New creates an adapter for the named device. A nil logger disables logging.
func New(name string, logger Logger) *Adapter {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Adapter{
		name:       name,
		logger:     logger,
		inboundSet: make(map[string]bool),
		outbound:   make(map[string]outboundRule),
		state:      newState(),
	}
}

// Name returns the adapter's device name.
func (a *Adapter) Name() string { return a.name }

// State returns the adapter's state container.
func (a *Adapter) State() *State { return a.state }

// SetQueryStatus installs the status-poll hook.
func (a *Adapter) SetQueryStatus(fn QueryFunc) { a.queryStatus = fn }

// SetReady installs the readiness probe. Without one the device is always
// considered ready.
func (a *Adapter) SetReady(fn ReadyFunc) { a.ready = fn }

// QueryStatus returns the poll commands for the current state, or nil when
// no hook is installed.
func (a *Adapter) QueryStatus() []string {
	if a.queryStatus == nil {
		return nil
	}
	return a.queryStatus(a.state.Snapshot())
}

// Readiness probes the device's readiness against current state.
func (a *Adapter) Readiness() Readiness {
	if a.ready == nil {
		return ReadyNow
	}
	return a.ready(a.state.Snapshot())
}

// RegisterInbound adds a rule mapping records matching pattern onto the
// given properties, one capture group per property in order.
//
// The pattern is compiled anchored: a rule matches whole records only.
// Rules are tried in registration order and the first match wins, so
// register specific patterns before broad ones. A nil convert stores each
// capture as a string value unchanged.
//
// Registration fails if the pattern does not compile, its capture-group
// count differs from len(properties), the identical pattern was already
// registered, or any property already belongs to another inbound rule.
func (a *Adapter) RegisterInbound(pattern string, properties []string, convert ConvertFunc) error {
	if len(properties) == 0 {
		return fmt.Errorf("%w: rule declares no properties", ErrCaptureMismatch)
	}

	anchored := pattern
	if !strings.HasPrefix(anchored, "^") {
		anchored = "^" + anchored
	}
	if !strings.HasSuffix(anchored, "$") {
		anchored += "$"
	}

	re, err := regexp.Compile(anchored)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidPattern, pattern, err)
	}
	if re.NumSubexp() != len(properties) {
		return fmt.Errorf("%w: pattern %q has %d capture groups for %d properties",
			ErrCaptureMismatch, pattern, re.NumSubexp(), len(properties))
	}

	for _, r := range a.inbound {
		if r.pattern == pattern {
			return fmt.Errorf("%w: %q", ErrDuplicatePattern, pattern)
		}
	}
	for _, p := range properties {
		if a.inboundSet[p] {
			return fmt.Errorf("%w: %s already declared by another inbound rule", ErrDuplicateProperty, p)
		}
	}

	if convert == nil {
		convert = func(_, capture string) (property.Value, error) {
			return property.String(capture), nil
		}
	}

	a.inbound = append(a.inbound, inboundRule{
		pattern:    pattern,
		re:         re,
		properties: properties,
		convert:    convert,
	})
	for _, p := range properties {
		a.inboundSet[p] = true
		a.state.declare(p)
	}
	return nil
}

// RegisterOutbound adds a formatter rendering the named property into a
// device command. The converted value is substituted into format via
// fmt.Sprintf when format contains a verb; a verbless format is emitted
// literally, for converts that select between fixed command strings.
// A nil convert substitutes the value's native representation.
func (a *Adapter) RegisterOutbound(propertyName, format string, convert FormatFunc) error {
	if _, ok := a.outbound[propertyName]; ok {
		return fmt.Errorf("%w: %s already has an outbound rule", ErrDuplicateProperty, propertyName)
	}
	a.outbound[propertyName] = outboundRule{format: format, convert: convert}
	a.outboundOrd = append(a.outboundOrd, propertyName)
	a.state.declare(propertyName)
	return nil
}

// TranslateInbound maps one raw device record onto a property document.
//
// Rules are tried in registration order; the first whole-record match is
// applied. All of the matched rule's properties convert successfully or the
// record is rejected with a TranslationError and no update is produced.
// Returns ErrNoMatch when no rule matches.
func (a *Adapter) TranslateInbound(raw string) (*property.Document, error) {
	for _, rule := range a.inbound {
		m := rule.re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}

		doc := property.NewDocument()
		for i, p := range rule.properties {
			v, err := rule.convert(p, m[i+1])
			if err != nil {
				return nil, &TranslationError{Adapter: a.name, Raw: raw, Property: p, Err: err}
			}
			doc.Set(p, v)
		}
		return doc, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNoMatch, raw)
}

// TranslateOutbound renders a property value into a device command string,
// without the terminator. Unknown properties return ErrUnknownProperty;
// values the device cannot express return an InvalidValueError.
func (a *Adapter) TranslateOutbound(propertyName string, v property.Value) (string, error) {
	rule, ok := a.outbound[propertyName]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProperty, propertyName)
	}

	arg := v.Interface()
	if rule.convert != nil {
		converted, err := rule.convert(v)
		if err != nil {
			return "", &InvalidValueError{Adapter: a.name, Property: propertyName, Reason: err.Error()}
		}
		arg = converted
	}

	if !strings.Contains(rule.format, "%") {
		// Fixed-command rule: convert already chose the full string, or
		// the format itself is the command.
		if s, ok := arg.(string); ok && rule.convert != nil {
			return s, nil
		}
		return rule.format, nil
	}
	return fmt.Sprintf(rule.format, arg), nil
}

// Properties returns every property this adapter declares, in declaration
// order, inbound rules first.
func (a *Adapter) Properties() []string {
	return a.state.declared()
}

// CoverageWarnings lists properties declared in only one direction. A
// read-only sensor value or write-only trigger is legitimate, but a typo in
// a rule table shows up here, so callers log these at startup.
func (a *Adapter) CoverageWarnings() []string {
	var warnings []string
	for _, p := range a.state.declared() {
		_, out := a.outbound[p]
		in := a.inboundSet[p]
		switch {
		case in && !out:
			warnings = append(warnings, fmt.Sprintf("property %s has no outbound rule (read-only)", p))
		case out && !in:
			warnings = append(warnings, fmt.Sprintf("property %s has no inbound rule (write-only)", p))
		}
	}
	return warnings
}
