package procbridge

import (
	"context"
	"fmt"
	"io"

	"github.com/wagiedev/procbridge/internal/session"
)

// Bridge runs one session between a parent's control channel and a
// supervised child process.
type Bridge struct {
	session *session.Session
}

// New creates a bridge reading control messages from in and writing
// protocol frames to out. It returns an error if the options are invalid.
func New(in io.Reader, out io.Writer, opts ...Option) (*Bridge, error) {
	options := applyOptions(opts)

	if err := options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	if options.Logger == nil {
		options.Logger = NopLogger()
	}

	return &Bridge{session: session.New(options, in, out)}, nil
}

// ID returns the session id, also exported to the child as
// PROCBRIDGE_SESSION_ID.
func (b *Bridge) ID() string {
	return b.session.ID()
}

// Run spawns the child and blocks until it exits or shutdown is requested.
//
// The returned exit code is the child's exit code, including after a
// requested shutdown (128+signal when the child was killed by a signal).
// If the child cannot be started, Run returns 1 and a *SupervisionError.
// Cancelling ctx triggers the same graceful shutdown as the shutdown
// command.
func (b *Bridge) Run(ctx context.Context) (int, error) {
	return b.session.Run(ctx)
}

// Shutdown requests a graceful shutdown: the parent is sent
// status {"status":"shutting_down"} and the child is terminated.
func (b *Bridge) Shutdown() {
	b.session.Shutdown()
}

// Run creates a bridge and runs it to completion.
//
// Example usage:
//
//	code, err := procbridge.Run(ctx, os.Stdin, os.Stdout,
//	    procbridge.WithExecutable("./agent.py"),
//	    procbridge.WithInterpreter("python3"),
//	)
func Run(ctx context.Context, in io.Reader, out io.Writer, opts ...Option) (int, error) {
	if ctx.Err() != nil {
		return session.ExitInternalFailure, ctx.Err()
	}

	bridge, err := New(in, out, opts...)
	if err != nil {
		return session.ExitInternalFailure, err
	}

	return bridge.Run(ctx)
}
