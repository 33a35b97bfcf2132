// Package property defines the shared data model for device state: typed
// property values and ordered property documents.
//
// A property is a named facet of device state shared with the remote shadow
// service. Documents represent one of the three shadow facets (desired,
// reported, delta) or a fragment of one. Values are opaque to the engine;
// only the per-adapter translation functions interpret them.
package property
