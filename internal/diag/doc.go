// Package diag is the diagnostic channel for non-fatal runtime faults.
//
// Translation failures, stream errors, unroutable properties and cascade
// loop detections are recorded as events rather than propagated as errors:
// the bridge keeps running and the fault trail stays queryable. Events fan
// out to whatever sinks are configured, typically a structured-log sink, an
// in-memory ring for the HTTP API, and the SQLite journal.
package diag
