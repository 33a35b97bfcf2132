// Package adapter implements per-device protocol translation.
//
// An Adapter declares the properties a device contributes and carries two
// rule tables: inbound rules map raw device records onto property updates
// via anchored regular expressions, outbound rules render property values
// into device command strings. Rules are registered once at startup;
// translation is read-only and safe for concurrent use.
//
// Inbound rules are scanned in registration order and the first full match
// wins, so more specific patterns must be registered before broader ones.
// A rule that extracts several properties from one record applies all of
// them or none: a single failed conversion aborts the whole record.
//
// The adapter also owns the device's state document. State is mutated only
// by the engine's read path (a single writer); everyone else gets copies
// through Snapshot.
package adapter
