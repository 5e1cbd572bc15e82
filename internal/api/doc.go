// Package api defines the wire-format types of the reelforge HTTP API and a
// client for it. The daemon serves these types and the CLI consumes them, so
// neither side couples to workflow or job store internals.
//
// # Key Types
//
// JobStatus: scalar progress of a job plus its per-step summary, built either
// from an active run (FromJobView) or a persisted snapshot (FromSnapshot).
//
// StreamEnvelope: one progress event on the websocket stream, tagged with the
// channel it came from.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Progress events are passed through unchanged from the progress package.
package api
