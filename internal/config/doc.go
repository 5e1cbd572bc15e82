// Package config loads, normalizes, and validates reelforge configuration.
//
// Configuration is read from TOML (defaults, then the file, then environment
// overrides), paths are expanded to absolute form, and Validate rejects values
// the daemon cannot run with. CreateSample writes the embedded sample file used
// by `reelforge config init`.
package config
