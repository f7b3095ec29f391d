// Package errors defines error types for the process bridge.
//
// Errors fall into four classes: protocol errors (bad frames, failed chunk
// recombination), routing errors (unknown commands or types, no child to
// receive input), supervision errors (the child could not be spawned) and
// shutdown errors (a stop signal could not be delivered). Only supervision
// errors are fatal to a session. All types support unwrapping and can be
// checked using errors.Is, errors.As, and errors.AsType.
package errors
