// Package subprocess supervises the bridge's child process.
//
// The Supervisor spawns the target executable with stdin, stdout and stderr
// pipes, tracks whether it is still running, and stops it gracefully (stop
// signal, grace period, then kill). It is the only owner of the pipe
// handles: readers get the output streams, writers go through Send.
package subprocess
