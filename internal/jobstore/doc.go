// Package jobstore persists workflow status snapshots in SQLite.
//
// The coordinator writes a snapshot when a job is created, after every step,
// and when the job reaches a terminal state. Writes are best-effort from the
// coordinator's point of view; the store itself reports every failure so the
// caller can log it. The history command and the daemon's job listing read
// from here after the in-memory run state has been discarded.
package jobstore
