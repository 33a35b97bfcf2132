// Package engine drives the I/O for one adapter's device stream.
//
// Each engine owns exactly one adapter and one stream. In asynchronous mode
// a read loop and a write loop run independently: the device may volunteer
// records at any time and commands flow out without waiting for responses.
// In synchronous mode a single loop writes one command and then reads its
// response within a bounded timeout, because the device only ever speaks
// when spoken to.
//
// Outbound commands sit in a two-priority queue. Application-driven
// commands (delta handling, cascade output) always leave before poll-driven
// status queries, and within a priority order is FIFO. A device reporting
// itself not ready has its writes deferred, never its reads.
//
// Stream faults are diagnostics, not errors: a failed command is requeued
// once, then dropped with a diagnostic, and the loop moves on.
package engine
