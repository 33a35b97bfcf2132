// Package stream provides the duplex byte-stream abstraction that device
// adapters speak over, plus record framing and a reconnecting socket client.
//
// The engine only ever sees the Stream interface; concrete transports
// (TCP, Unix socket, in-memory pipes for tests) live behind it. Records are
// delimited by a per-adapter terminator sequence; the terminator is
// stripped before pattern matching and appended after command formatting.
package stream
