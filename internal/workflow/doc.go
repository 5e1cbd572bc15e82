// Package workflow drives jobs through the fixed five step reel pipeline.
//
// The Coordinator owns one RunState per active job. Each run executes on its
// own goroutine, stepping strictly in order: the adapter builds a step's
// arguments from earlier results, the StepExecutor invokes the tool, the raw
// output is canonicalized into segments and validated, and progress is
// published on both bus channels. The render step additionally receives an
// effects plan chosen by the fallback planner.
//
// A failed step ends the run with a single terminal error event carrying a
// machine-readable code. Runs are discarded from memory once their terminal
// event has been published; durable history lives in the job store, which is
// written best-effort.
package workflow
