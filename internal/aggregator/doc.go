// Package aggregator merges per-adapter state into one thing-level property
// document and reconciles it with the remote state service.
//
// Inbound, engines emit changed-property fragments; the aggregator merges
// them in arrival order, reports each resulting change to the remote
// service, and evaluates the cascade function so one property change can
// drive others (powering on the amp when the projector comes up). Outbound,
// remote deltas are split per owning adapter, translated and queued as
// application-priority commands.
//
// Faults stay local: a delta property no adapter owns, or a value a device
// cannot express, is dropped with a diagnostic while the rest of the batch
// proceeds.
package aggregator
