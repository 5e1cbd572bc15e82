// Package tools invokes the external step tools.
//
// Two executors implement the same contract: HTTPExecutor POSTs the step
// arguments as JSON to {base_url}/{tool} through a per-tool circuit breaker,
// and CommandExecutor runs a command from a YAML manifest with the arguments
// on stdin and reads the result from stdout. Both classify failures with the
// services error markers so the workflow can attach a failure code.
package tools
