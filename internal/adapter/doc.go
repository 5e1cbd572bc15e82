// Package adapter reconciles the inconsistent output shapes of pipeline tools.
//
// Canonicalize maps a tool's raw JSON output into segment.Segment values, and
// PrepareArgs builds the arguments for the next step by walking that step's
// upstream preference list. The five-step plan and its input specs live here so
// the coordinator and the adapter cannot disagree about them.
package adapter
