// Package config holds the bridge configuration and its loaders.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then PROCBRIDGE_* environment variables. Command-line flags are applied
// last by the binary. There is no config file discovery; a file is read only
// when named explicitly.
package config

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ErrNoExecutable indicates no target executable was configured.
var ErrNoExecutable = stderrors.New("executable is required")

// Defaults.
const (
	DefaultGracePeriod = 5 * time.Second
	DefaultJoinTimeout = 1 * time.Second
	DefaultChunkSize   = 16384
	DefaultChunkDelay  = 10 * time.Millisecond
	DefaultMaxLineSize = 1024 * 1024

	// EnvPrefix prefixes every environment variable the bridge reads.
	EnvPrefix = "PROCBRIDGE_"

	// ConfigFileEnv names the config file when --config is not given.
	ConfigFileEnv = EnvPrefix + "CONFIG"
)

// Options configures a bridge session.
type Options struct {
	// Logger is the slog logger for diagnostic output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger `yaml:"-"`

	// Executable is the path of the program to supervise.
	Executable string `yaml:"executable" env:"EXECUTABLE"`

	// Args are passed to the executable.
	Args []string `yaml:"args" env:"ARGS" envSeparator:" "`

	// Interpreter, when set, runs the executable as its first argument
	// (for example "python3").
	Interpreter string `yaml:"interpreter" env:"INTERPRETER"`

	// Dir is the child's working directory. Empty inherits the bridge's.
	Dir string `yaml:"dir" env:"DIR"`

	// Env holds environment overrides appended to the inherited environment.
	Env map[string]string `yaml:"env" env:"ENV"`

	// GracePeriod is how long a terminated child may take to exit before it
	// is killed.
	GracePeriod time.Duration `yaml:"grace_period" env:"GRACE_PERIOD"`

	// JoinTimeout bounds how long shutdown waits for workers to finish.
	JoinTimeout time.Duration `yaml:"join_timeout" env:"JOIN_TIMEOUT"`

	// ChunkSize is the largest envelope sent as a single frame.
	ChunkSize int `yaml:"chunk_size" env:"CHUNK_SIZE"`

	// ChunkDelay is the pause between chunk frames of one message.
	ChunkDelay time.Duration `yaml:"chunk_delay" env:"CHUNK_DELAY"`

	// ChunkIdleTimeout drops partial chunk groups that received no chunk
	// for this long. Zero keeps them until the session ends.
	ChunkIdleTimeout time.Duration `yaml:"chunk_idle_timeout" env:"CHUNK_IDLE_TIMEOUT"`

	// MaxLineSize bounds a single line read from the child.
	MaxLineSize int `yaml:"max_line_size" env:"MAX_LINE_SIZE"`

	// HandleSignals makes the session treat SIGINT and SIGTERM as a
	// shutdown request.
	HandleSignals bool `yaml:"handle_signals" env:"HANDLE_SIGNALS"`

	// Log configures the diagnostic logger built by the binary.
	Log LogOptions `yaml:"log" envPrefix:"LOG_"`
}

// LogOptions configures diagnostic logging.
type LogOptions struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`

	// Format is text or json.
	Format string `yaml:"format" env:"FORMAT"`

	// File receives the log. Empty logs to stderr.
	File string `yaml:"file" env:"FILE"`
}

// Default returns the built-in defaults.
func Default() *Options {
	return &Options{
		GracePeriod: DefaultGracePeriod,
		JoinTimeout: DefaultJoinTimeout,
		ChunkSize:   DefaultChunkSize,
		ChunkDelay:  DefaultChunkDelay,
		MaxLineSize: DefaultMaxLineSize,
		Log: LogOptions{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds options from defaults, the file named by path (or by
// PROCBRIDGE_CONFIG when path is empty), and the environment.
func Load(path string) (*Options, error) {
	opts := Default()

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}

	if path != "" {
		if err := opts.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := opts.LoadEnv(); err != nil {
		return nil, err
	}

	return opts, nil
}

// LoadFile merges a YAML file into the options. Keys absent from the file
// keep their current values.
func (o *Options) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, o); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	return nil
}

// LoadEnv merges PROCBRIDGE_* environment variables into the options.
func (o *Options) LoadEnv() error {
	return o.loadEnv(nil)
}

func (o *Options) loadEnv(environment map[string]string) error {
	logger := o.Logger
	defer func() { o.Logger = logger }()

	if err := env.ParseWithOptions(o, env.Options{
		Prefix:      EnvPrefix,
		Environment: environment,
	}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	return nil
}

// Validate reports every invalid field.
func (o *Options) Validate() error {
	var errs []error

	if o.Executable == "" {
		errs = append(errs, ErrNoExecutable)
	}

	if o.GracePeriod <= 0 {
		errs = append(errs, fmt.Errorf("grace period must be positive, got %s", o.GracePeriod))
	}

	if o.JoinTimeout <= 0 {
		errs = append(errs, fmt.Errorf("join timeout must be positive, got %s", o.JoinTimeout))
	}

	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", o.ChunkSize))
	}

	if o.ChunkDelay < 0 {
		errs = append(errs, fmt.Errorf("chunk delay must not be negative, got %s", o.ChunkDelay))
	}

	if o.ChunkIdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("chunk idle timeout must not be negative, got %s", o.ChunkIdleTimeout))
	}

	if o.MaxLineSize <= 0 {
		errs = append(errs, fmt.Errorf("max line size must be positive, got %d", o.MaxLineSize))
	}

	switch o.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", o.Log.Format))
	}

	return stderrors.Join(errs...)
}
