package procbridge

import "github.com/wagiedev/procbridge/internal/errors"

// Re-export error types from internal package

// ProtocolError indicates a malformed frame or a failed chunk recombination.
type ProtocolError = errors.ProtocolError

// RoutingError indicates a control message that could not be routed.
type RoutingError = errors.RoutingError

// SupervisionError indicates the child process could not be started.
type SupervisionError = errors.SupervisionError

// ShutdownError indicates a failure while stopping the child process.
type ShutdownError = errors.ShutdownError

// BridgeError is the base interface for all bridge errors.
type BridgeError = errors.BridgeError

// Re-export sentinel errors from internal package.
var (
	// ErrNoRunningProcess indicates input arrived while no child was running.
	ErrNoRunningProcess = errors.ErrNoRunningProcess

	// ErrUnknownCommand indicates an unrecognized system command.
	ErrUnknownCommand = errors.ErrUnknownCommand

	// ErrUnknownMessageType indicates a message that could not be forwarded.
	ErrUnknownMessageType = errors.ErrUnknownMessageType

	// ErrMissingChunkID indicates a chunk frame without a chunkId.
	ErrMissingChunkID = errors.ErrMissingChunkID

	// ErrChunkCombine indicates reassembled chunks did not form valid JSON.
	ErrChunkCombine = errors.ErrChunkCombine

	// ErrReassemblyTimeout indicates an incomplete chunk group was dropped.
	ErrReassemblyTimeout = errors.ErrReassemblyTimeout

	// ErrExecutableNotFound indicates the target executable does not exist.
	ErrExecutableNotFound = errors.ErrExecutableNotFound
)
