// Package preflight provides readiness checks for the directories, tool
// backends and helper binaries reelforge depends on.
//
// The daemon runs RunAll at startup and logs every failed check, and the
// health endpoint reports the same results so operators can see why a run
// is likely to fail before submitting it. Checks never block startup.
package preflight
