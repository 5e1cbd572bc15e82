// Package progress publishes per-job progress to any number of observers.
//
// A Bus carries two typed topics: Scalar for coarse status/percent/message
// snapshots and Workflow for structured step lifecycle events. Each subscriber
// gets its own mailbox drained by a dedicated goroutine, so a slow observer
// never blocks the publisher or other observers. Events published before a
// subscription are not replayed; late subscribers query the current status
// separately.
package progress
