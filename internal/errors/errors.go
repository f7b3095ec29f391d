package errors

import (
	"errors"
	"fmt"
)

// BridgeError is the base interface for all bridge errors.
type BridgeError interface {
	error
	IsBridgeError() bool
}

// Compile-time verification that all error types implement BridgeError.
var (
	_ BridgeError = (*ProtocolError)(nil)
	_ BridgeError = (*RoutingError)(nil)
	_ BridgeError = (*SupervisionError)(nil)
	_ BridgeError = (*ShutdownError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrNoRunningProcess indicates there is no live child to receive a message.
	ErrNoRunningProcess = errors.New("no running process to receive input")

	// ErrUnknownCommand indicates a system message named a command the bridge does not handle.
	ErrUnknownCommand = errors.New("unknown system command")

	// ErrUnknownMessageType indicates a message type that cannot be routed.
	ErrUnknownMessageType = errors.New("unknown message type or no process running")

	// ErrMissingChunkID indicates a chunk frame arrived without a chunkId.
	ErrMissingChunkID = errors.New("received chunk without chunkId")

	// ErrChunkCombine indicates the concatenated chunks did not form valid JSON.
	ErrChunkCombine = errors.New("error parsing combined chunks")

	// ErrReassemblyTimeout indicates a chunk group went idle before completing.
	ErrReassemblyTimeout = errors.New("reassembly timed out")

	// ErrExecutableNotFound indicates the target executable does not exist.
	ErrExecutableNotFound = errors.New("target executable not found")

	// ErrStdinClosed indicates the child's stdin has been closed.
	ErrStdinClosed = errors.New("stdin closed")

	// ErrProcessNotStarted indicates an operation on a supervisor whose child never started.
	ErrProcessNotStarted = errors.New("process not started")
)

// ProtocolError indicates a frame could not be decoded or reassembled.
// RawData preserves the offending input when there is one.
type ProtocolError struct {
	Op      string
	RawData string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("protocol error: %v", e.Err)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *ProtocolError) IsBridgeError() bool { return true }

// RoutingError indicates a well-formed message had nowhere to go.
type RoutingError struct {
	Type    string
	Command string
	Err     error
}

func (e *RoutingError) Error() string {
	switch {
	case e.Command != "":
		return fmt.Sprintf("%v: %s", e.Err, e.Command)
	case e.Type != "" && !errors.Is(e.Err, ErrNoRunningProcess):
		return fmt.Sprintf("%v: %s", e.Err, e.Type)
	default:
		return e.Err.Error()
	}
}

func (e *RoutingError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *RoutingError) IsBridgeError() bool { return true }

// SupervisionError indicates the child process could not be started.
type SupervisionError struct {
	Path string
	Err  error
}

func (e *SupervisionError) Error() string {
	return fmt.Sprintf("failed to start process %s: %v", e.Path, e.Err)
}

func (e *SupervisionError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *SupervisionError) IsBridgeError() bool { return true }

// ShutdownError indicates a stop signal could not be delivered to the child.
type ShutdownError struct {
	PID int
	Err error
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("error during shutdown (pid %d): %v", e.PID, e.Err)
}

func (e *ShutdownError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *ShutdownError) IsBridgeError() bool { return true }
