// procbridge supervises a child process and bridges it to the invoking
// parent over standard I/O.
//
// The parent writes newline-delimited JSON envelopes to procbridge's stdin
// and reads envelopes from its stdout. The child's stdout and stderr are
// relayed as log messages or, for lines that are themselves envelopes,
// passed through unchanged. Diagnostic logs go to stderr or --log-file,
// never to stdout.
//
// Usage:
//
//	procbridge [flags] <executable> [args...]
//
// Everything after the executable is passed to the child untouched.
// Settings are layered: defaults, then the --config (or PROCBRIDGE_CONFIG)
// YAML file, then PROCBRIDGE_* environment variables, then flags.
package main
