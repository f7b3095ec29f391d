package procbridge

import "log/slog"

// NopLogger returns a logger that discards all output. Bridges created
// without WithLogger use it.
func NopLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
