// Package drivers holds the built-in device drivers and the registry the
// bridge constructs adapters from.
//
// A driver is a function that builds an adapter with the rule tables for
// one device protocol, plus the protocol defaults (record terminator,
// synchronous or asynchronous operation) the engine needs. Configuration
// selects a driver by name and may override the defaults per adapter.
//
// Built-in drivers:
//   - anthem-avm: Anthem AVM series preamplifier, asynchronous serial
//   - epson-projector: Epson home cinema projector, synchronous serial
//   - relay: single-channel relay board with fixed commands
package drivers
