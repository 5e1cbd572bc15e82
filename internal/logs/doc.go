// Package logs reads the daemon log file for the CLI.
//
// A Reader returns the newest lines with bounded memory and then follows the
// file by polling. When bound to a job it keeps only that job's records, in
// either the console or the JSON log format.
package logs
