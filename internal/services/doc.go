// Package services defines shared utilities consumed by the workflow
// coordinator, the tool executors, and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, step numbers, tool names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that carry a failure kind
//     and a machine-readable code through to terminal workflow events.
//
// Use these helpers when wiring new tool or step logic so operational
// behaviour (error classification, observability) stays uniform across the
// pipeline.
package services
