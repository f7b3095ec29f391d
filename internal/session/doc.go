// Package session drives one bridge session from spawn to final status.
//
// A Session owns the supervised child, the chunk reassembler, and the
// parent-facing emitter, and runs the stdout pump, stderr pump, and
// control-input reader as independent workers. Shutdown has a single path
// shared by the shutdown command, termination signals, and context
// cancellation.
package session
