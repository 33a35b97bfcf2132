// Package shadow reconciles the bridge's property state with the remote
// state service over MQTT.
//
// The service keeps a shadow document per thing: a desired section written
// by applications and a reported section written by this bridge. The
// client publishes reported-state fragments, receives desired-state deltas,
// and requests the full desired document once at startup to catch changes
// made while the bridge was offline.
//
// # Wire Format
//
// Reported fragments are published to the shadow update topic:
//
//	{"state": {"reported": {"avrPower": true, "avrVolume": -40}}}
//
// Deltas arrive on the shadow delta topic with a flat state section:
//
//	{"state": {"avrPower": false}}
//
// Values the property model cannot express (nested objects, fractional
// numbers) are skipped per key and recorded as diagnostics; the rest of
// the delta still applies.
package shadow
