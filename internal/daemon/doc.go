// Package daemon coordinates the long-running reelforge process.
//
// It wires configuration, the job store and the workflow coordinator into a
// single lifecycle with flock-based locking to prevent multiple instances,
// and serves the HTTP API: job creation, status queries, job history, health
// with preflight results, and the websocket progress stream.
//
// Keep orchestration logic in the workflow package; the daemon focuses on
// startup, shutdown and transport.
package daemon
