// Package notifications delivers workflow outcomes via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Event types cover
// job completion and failure plus a test message, so the coordinator emits
// consistent messages without duplicating HTTP glue.
package notifications
