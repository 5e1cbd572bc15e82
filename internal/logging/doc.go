// Package logging assembles structured slog loggers and formatting helpers
// used across reelforge services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so coordinator and tool code can
// tag log lines with job IDs, step numbers, tool names, and correlation IDs.
// The package also provides a no-op logger for tests and wiring code that
// cannot fail.
package logging
