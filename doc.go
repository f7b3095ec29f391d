// Package procbridge bridges a controlling parent process and a supervised
// child process over standard I/O.
//
// Both sides speak newline-delimited JSON envelopes of the form
// {"type", "payload", "timestamp"}. Envelopes larger than 16384 bytes are
// split into "<type>_CHUNK" frames and reassembled on receipt. The bridge
// spawns the child, turns its stdout and stderr into protocol messages,
// routes control messages from the parent, and supervises the child's
// lifecycle through graceful termination and a forced kill.
//
// # Basic Usage
//
//	code, err := procbridge.Run(ctx, os.Stdin, os.Stdout,
//	    procbridge.WithExecutable("./agent.py"),
//	    procbridge.WithInterpreter("python3"),
//	)
//	if err != nil {
//	    log.Print(err)
//	}
//	os.Exit(code)
//
// # Control Messages
//
// System commands are handled by the bridge itself:
//
//	{"type":"system","payload":{"command":"ping"}}      -> status {"pong": true}
//	{"type":"system","payload":{"command":"shutdown"}}  -> status {"status": "shutting_down"}
//
// user_input messages are forwarded to the child and acknowledged with
// status {"status":"received_input","inputId":...}; every other type is
// forwarded verbatim while a child is running.
//
// # Logging
//
// Diagnostic logging is disabled unless a logger is supplied:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
//	code, err := procbridge.Run(ctx, os.Stdin, os.Stdout,
//	    procbridge.WithExecutable("/usr/local/bin/worker"),
//	    procbridge.WithLogger(logger),
//	)
//
// Never point the logger at the protocol output.
//
// # Error Handling
//
// Failures to start the child are returned as typed errors:
//
//	_, err := procbridge.Run(ctx, os.Stdin, os.Stdout, procbridge.WithExecutable(path))
//	if supErr, ok := errors.AsType[*procbridge.SupervisionError](err); ok {
//	    log.Fatalf("could not start %s: %v", supErr.Path, supErr.Err)
//	}
//
// All other failures are reported to the parent as error messages and do
// not end the session.
package procbridge
