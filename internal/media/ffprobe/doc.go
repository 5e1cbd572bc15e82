// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect runs ffprobe and decodes its streams and format sections. Duration
// resolves a single media duration, preferring the container value and falling
// back to the longest video stream; the effects planner consumes it through
// DurationProbe when deciding whether time-accurate fades are possible.
package ffprobe
