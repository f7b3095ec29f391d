package procbridge

import (
	"log/slog"
	"maps"
	"time"

	"github.com/wagiedev/procbridge/internal/config"
)

// Options configures a bridge session. The zero value is not usable; start
// from DefaultOptions.
type Options = config.Options

// LogOptions configures the diagnostic logger built by the procbridge binary.
type LogOptions = config.LogOptions

// DefaultOptions returns the built-in defaults.
func DefaultOptions() *Options {
	return config.Default()
}

// Option configures Options using the functional options pattern.
type Option func(*Options)

// applyOptions applies functional options over the defaults.
func applyOptions(opts []Option) *Options {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// ===== Basic Configuration =====

// WithOptions replaces every setting with a copy of base. Options given
// after it still apply on top.
func WithOptions(base *Options) Option {
	return func(o *Options) {
		*o = *base
		o.Args = append([]string(nil), base.Args...)
		o.Env = maps.Clone(base.Env)
	}
}

// WithLogger sets the logger for diagnostic output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// ===== Child Process =====

// WithExecutable sets the program to supervise and its arguments.
func WithExecutable(path string, args ...string) Option {
	return func(o *Options) {
		o.Executable = path
		o.Args = args
	}
}

// WithInterpreter runs the executable under an interpreter (e.g. "python3").
func WithInterpreter(interpreter string) Option {
	return func(o *Options) {
		o.Interpreter = interpreter
	}
}

// WithDir sets the child's working directory.
func WithDir(dir string) Option {
	return func(o *Options) {
		o.Dir = dir
	}
}

// WithEnv adds environment overrides for the child. Repeated calls merge.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string, len(env))
		}

		maps.Copy(o.Env, env)
	}
}

// ===== Lifecycle =====

// WithGracePeriod sets how long the child may take to exit after the stop
// signal before it is killed. Default 5s.
func WithGracePeriod(d time.Duration) Option {
	return func(o *Options) {
		o.GracePeriod = d
	}
}

// WithJoinTimeout bounds how long shutdown waits for the stream workers.
func WithJoinTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.JoinTimeout = d
	}
}

// WithSignalHandling makes SIGINT and SIGTERM request a graceful shutdown.
func WithSignalHandling(enabled bool) Option {
	return func(o *Options) {
		o.HandleSignals = enabled
	}
}

// ===== Framing =====

// WithChunkSize sets the largest envelope written as a single frame.
// Peers expect 16384; change it only when both sides agree.
func WithChunkSize(size int) Option {
	return func(o *Options) {
		o.ChunkSize = size
	}
}

// WithChunkDelay sets the pause between chunk frames of one message.
func WithChunkDelay(d time.Duration) Option {
	return func(o *Options) {
		o.ChunkDelay = d
	}
}

// WithChunkIdleTimeout drops incomplete inbound chunk groups that receive
// no chunk for d and reports them as errors. Zero disables expiry.
func WithChunkIdleTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ChunkIdleTimeout = d
	}
}

// WithMaxLineSize bounds a single line read from the child's output.
func WithMaxLineSize(size int) Option {
	return func(o *Options) {
		o.MaxLineSize = size
	}
}
