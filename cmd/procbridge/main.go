package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"maps"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/wagiedev/procbridge"
	"github.com/wagiedev/procbridge/internal/config"
	"github.com/wagiedev/procbridge/internal/envelope"
)

const (
	// exitFailure is returned when the bridge cannot start a session.
	exitFailure = 1
	// exitUsage is returned for invalid flags or configuration.
	exitUsage = 2
)

func main() {
	code, err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "procbridge: %v\n", err)
	}

	os.Exit(code)
}

// flags holds the command-line overrides. Only flags the user set are
// applied over the loaded configuration.
type flags struct {
	configPath       string
	interpreter      string
	dir              string
	env              map[string]string
	gracePeriod      time.Duration
	joinTimeout      time.Duration
	chunkDelay       time.Duration
	chunkIdleTimeout time.Duration
	maxLineSize      int
	logLevel         string
	logFormat        string
	logFile          string
}

func newFlagSet(f *flags, stderr io.Writer) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("procbridge", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(false)

	flagSet.StringVar(&f.configPath, "config", "", "path to a YAML config file (default: $"+config.ConfigFileEnv+")")
	flagSet.StringVar(&f.interpreter, "interpreter", "", "run the executable under this interpreter (e.g. python3)")
	flagSet.StringVar(&f.dir, "dir", "", "working directory for the child")
	flagSet.StringToStringVar(&f.env, "env", nil, "environment overrides for the child (KEY=VALUE, repeatable)")
	flagSet.DurationVar(&f.gracePeriod, "grace-period", config.DefaultGracePeriod, "time between the stop signal and a forced kill")
	flagSet.DurationVar(&f.joinTimeout, "join-timeout", config.DefaultJoinTimeout, "time to wait for stream workers at shutdown")
	flagSet.DurationVar(&f.chunkDelay, "chunk-delay", config.DefaultChunkDelay, "pause between chunk frames")
	flagSet.DurationVar(&f.chunkIdleTimeout, "chunk-idle-timeout", 0, "drop incomplete inbound chunk groups idle this long (0 disables)")
	flagSet.IntVar(&f.maxLineSize, "max-line-size", config.DefaultMaxLineSize, "longest child output line in bytes")
	flagSet.StringVar(&f.logLevel, "log-level", "info", "diagnostic log level (debug, info, warn, error)")
	flagSet.StringVar(&f.logFormat, "log-format", "text", "diagnostic log format (text, json)")
	flagSet.StringVar(&f.logFile, "log-file", "", "write diagnostic logs to this file instead of stderr")

	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "Usage: procbridge [flags] <executable> [args...]\n\nFlags:\n")
		flagSet.PrintDefaults()
	}

	return flagSet
}

// apply copies every flag the user set onto opts.
func (f *flags) apply(flagSet *pflag.FlagSet, opts *config.Options) {
	if flagSet.Changed("interpreter") {
		opts.Interpreter = f.interpreter
	}

	if flagSet.Changed("dir") {
		opts.Dir = f.dir
	}

	if flagSet.Changed("env") {
		if opts.Env == nil {
			opts.Env = make(map[string]string, len(f.env))
		}

		maps.Copy(opts.Env, f.env)
	}

	if flagSet.Changed("grace-period") {
		opts.GracePeriod = f.gracePeriod
	}

	if flagSet.Changed("join-timeout") {
		opts.JoinTimeout = f.joinTimeout
	}

	if flagSet.Changed("chunk-delay") {
		opts.ChunkDelay = f.chunkDelay
	}

	if flagSet.Changed("chunk-idle-timeout") {
		opts.ChunkIdleTimeout = f.chunkIdleTimeout
	}

	if flagSet.Changed("max-line-size") {
		opts.MaxLineSize = f.maxLineSize
	}

	if flagSet.Changed("log-level") {
		opts.Log.Level = f.logLevel
	}

	if flagSet.Changed("log-format") {
		opts.Log.Format = f.logFormat
	}

	if flagSet.Changed("log-file") {
		opts.Log.File = f.logFile
	}
}

// loadOptions resolves the layered configuration for args.
func loadOptions(args []string, stderr io.Writer) (*config.Options, error) {
	var f flags

	flagSet := newFlagSet(&f, stderr)
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}

	opts, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	f.apply(flagSet, opts)

	if positional := flagSet.Args(); len(positional) > 0 {
		opts.Executable = positional[0]
		opts.Args = positional[1:]
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return opts, nil
}

// reportStartupError writes err to the parent as an error frame, so a
// parent that only reads stdout still sees why no session started.
func reportStartupError(stdout io.Writer, err error) {
	frames, encErr := envelope.NewEncoder(0).Encode(envelope.TypeError, envelope.ErrorPayload{Message: err.Error()})
	if encErr != nil {
		return
	}

	for _, frame := range frames {
		_, _ = stdout.Write(append(frame, '\n'))
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	opts, err := loadOptions(args, stderr)
	if err != nil {
		if stderrors.Is(err, pflag.ErrHelp) {
			return 0, nil
		}

		if stderrors.Is(err, config.ErrNoExecutable) {
			reportStartupError(stdout, err)

			return exitFailure, err
		}

		return exitUsage, err
	}

	logOutput := stderr

	if opts.Log.File != "" {
		file, err := os.OpenFile(opts.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return exitUsage, fmt.Errorf("open log file: %w", err)
		}
		defer file.Close()

		logOutput = file
	}

	logger, err := opts.Log.NewLogger(logOutput)
	if err != nil {
		return exitUsage, err
	}

	logger = logger.With("pid", os.Getpid())

	return procbridge.Run(ctx, stdin, stdout,
		procbridge.WithOptions(opts),
		procbridge.WithLogger(logger),
		procbridge.WithSignalHandling(true),
	)
}
