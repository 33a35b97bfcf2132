package property

import (
	"sort"
	"strings"
)

// Document is an ordered mapping of property name to value.
//
// Iteration follows insertion order, so a document built from a rule's
// property list or a config file preserves the author's ordering. A
// document handed to another component should be a copy (Clone); callers
// treat received documents as immutable.
type Document struct {
	names  []string
	values map[string]Value
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{values: make(map[string]Value)}
}

// Set assigns a value, appending the name to the iteration order if new.
// Each Set supersedes the prior value for that name atomically.
func (d *Document) Set(name string, v Value) {
	if d.values == nil {
		d.values = make(map[string]Value)
	}
	if _, ok := d.values[name]; !ok {
		d.names = append(d.names, name)
	}
	d.values[name] = v
}

// Get returns the value for name and whether it is present.
func (d *Document) Get(name string) (Value, bool) {
	v, ok := d.values[name]
	return v, ok
}

// Has reports whether the document contains name.
func (d *Document) Has(name string) bool {
	_, ok := d.values[name]
	return ok
}

// Len returns the number of properties in the document.
func (d *Document) Len() int { return len(d.names) }

// Names returns the property names in insertion order.
// The returned slice is a copy.
func (d *Document) Names() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Range calls fn for each property in insertion order.
// Iteration stops if fn returns false.
func (d *Document) Range(fn func(name string, v Value) bool) {
	for _, n := range d.names {
		if !fn(n, d.values[n]) {
			return
		}
	}
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{
		names:  make([]string, len(d.names)),
		values: make(map[string]Value, len(d.values)),
	}
	copy(out.names, d.names)
	for k, v := range d.values {
		out.values[k] = v
	}
	return out
}

// Merge applies every property in other on top of d, in other's order.
// Returns the subset of other that actually changed d (new names or
// different values), preserving other's ordering. The returned fragment is
// what should be reported to the remote service after a merge.
func (d *Document) Merge(other *Document) *Document {
	changed := NewDocument()
	if other == nil {
		return changed
	}
	other.Range(func(name string, v Value) bool {
		prev, ok := d.values[name]
		if !ok || !prev.Equal(v) {
			d.Set(name, v)
			changed.Set(name, v)
		}
		return true
	})
	return changed
}

// Equal reports whether two documents hold the same name/value pairs,
// regardless of ordering.
func (d *Document) Equal(other *Document) bool {
	if other == nil {
		return d.Len() == 0
	}
	if len(d.values) != len(other.values) {
		return false
	}
	for k, v := range d.values {
		ov, ok := other.values[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Interface returns the document as a plain map for JSON encoding.
func (d *Document) Interface() map[string]any {
	out := make(map[string]any, len(d.values))
	for k, v := range d.values {
		out[k] = v.Interface()
	}
	return out
}

// FromMap builds a document from a decoded JSON object.
// Keys are inserted in sorted order for determinism, since JSON objects carry
// no ordering of their own.
func FromMap(raw map[string]any) (*Document, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := NewDocument()
	for _, k := range keys {
		v, err := FromInterface(raw[k])
		if err != nil {
			return nil, err
		}
		doc.Set(k, v)
	}
	return doc, nil
}

// String renders the document for logging: {a=1, b="x"}.
func (d *Document) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, n := range d.names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(n)
		b.WriteByte('=')
		b.WriteString(d.values[n].String())
	}
	b.WriteByte('}')
	return b.String()
}
