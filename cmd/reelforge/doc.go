// Command reelforge is the command-line client for the reelforge daemon.
//
// It submits reel jobs, follows their progress stream, shows job status and
// history, and runs the daemon itself in the foreground.
package main
