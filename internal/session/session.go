package session

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/procbridge/internal/chunk"
	"github.com/wagiedev/procbridge/internal/config"
	"github.com/wagiedev/procbridge/internal/envelope"
	"github.com/wagiedev/procbridge/internal/protocol"
	"github.com/wagiedev/procbridge/internal/pump"
	"github.com/wagiedev/procbridge/internal/subprocess"
)

const (
	// SessionIDEnv carries the session id into the child's environment.
	SessionIDEnv = "PROCBRIDGE_SESSION_ID"

	// ExitInternalFailure is the exit code when no child exit code is known.
	ExitInternalFailure = 1
)

// Session is the context object for one bridge run.
type Session struct {
	id   string
	log  *slog.Logger
	opts *config.Options

	in      io.Reader
	emitter *protocol.Emitter
	chunks  *chunk.Reassembler
	router  *protocol.Router

	supervisor *subprocess.Supervisor

	shutdownOnce      sync.Once
	shutdownCh        chan struct{}
	shutdownRequested atomic.Bool
}

// New creates a session reading control messages from in and writing
// protocol frames to out. opts must already be validated.
func New(opts *config.Options, in io.Reader, out io.Writer) *Session {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	id := newSessionID()
	log = log.With("session_id", id)

	return &Session{
		id:         id,
		log:        log.With("component", "session"),
		opts:       opts,
		in:         in,
		emitter:    protocol.NewEmitter(log, out, envelope.NewEncoder(opts.ChunkSize), opts.ChunkDelay),
		chunks:     chunk.NewReassembler(log, opts.ChunkIdleTimeout),
		shutdownCh: make(chan struct{}),
	}
}

func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Run spawns the child and bridges it until it exits or shutdown is
// requested. It returns the child's exit code, whether the child exited on
// its own or was stopped by a shutdown. A spawn failure returns
// ExitInternalFailure with the SupervisionError.
func (s *Session) Run(ctx context.Context) (int, error) {
	go s.emitter.Run()
	defer s.emitter.Stop()

	if s.opts.HandleSignals {
		stop := s.notifySignals()
		defer stop()
	}

	s.log.Info("Starting process", "executable", s.opts.Executable, "args", s.opts.Args)
	s.emitter.Emit(envelope.NewLog(envelope.LevelInfo, "Starting process: "+s.opts.Executable))

	sup, err := subprocess.Spawn(s.log, subprocess.SpawnConfig{
		Executable:  s.opts.Executable,
		Args:        s.opts.Args,
		Interpreter: s.opts.Interpreter,
		Dir:         s.opts.Dir,
		Env:         s.childEnv(),
	})
	if err != nil {
		s.log.Error("Failed to spawn process", "error", err)
		s.emitter.Emit(envelope.NewError(err, ""))

		return ExitInternalFailure, err
	}

	s.supervisor = sup
	defer func() { _ = sup.Close() }()

	s.router = protocol.NewRouter(s.log, sup, s.chunks, s.emitter)
	s.registerCommands()

	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()

	workers := s.startWorkers(workerCtx)

	readerCtx, cancelReader := context.WithCancel(workerCtx)
	defer cancelReader()

	go func() {
		if err := s.router.ReadInput(readerCtx, s.in); err != nil && readerCtx.Err() == nil {
			s.log.Warn("Control input reader stopped with error", "error", err)
		}
	}()

	s.emitter.Emit(envelope.NewStatus(map[string]any{"running": true, "pid": sup.PID()}))
	s.emitter.Emit(envelope.NewStatus(map[string]any{"status": "ready"}))

	select {
	case <-sup.Done():
		s.log.Info("Process exited", "pid", sup.PID())
	case <-s.shutdownCh:
	case <-ctx.Done():
		s.log.Info("Context cancelled, shutting down", "error", ctx.Err())
		s.Shutdown()
	}

	if s.shutdownRequested.Load() {
		s.terminate(workerCtx)
	}

	exitCode := sup.Wait()

	cancelReader()
	s.join(workers, cancelWorkers)

	s.emitter.Emit(envelope.NewStatus(map[string]any{"running": false, "exitCode": exitCode}))
	s.log.Info("Session finished", "exit_code", exitCode, "shutdown_requested", s.shutdownRequested.Load())

	return exitCode, nil
}

// Shutdown requests a graceful end of the session. Only the first call has
// an effect.
func (s *Session) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.log.Info("Shutdown requested")
		s.emitter.Emit(envelope.NewStatus(map[string]any{"status": "shutting_down"}))
		s.shutdownRequested.Store(true)
		close(s.shutdownCh)
	})
}

func (s *Session) registerCommands() {
	s.router.RegisterHandler("ping", func(context.Context, *envelope.Message) error {
		s.emitter.Emit(envelope.NewStatus(map[string]any{"pong": true}))

		return nil
	})

	s.router.RegisterHandler("shutdown", func(context.Context, *envelope.Message) error {
		s.Shutdown()

		return nil
	})
}

// startWorkers runs the output pumps and, when idle expiry is enabled, the
// chunk sweeper. Worker failures are reported to the parent and never stop
// the other workers.
func (s *Session) startWorkers(ctx context.Context) *errgroup.Group {
	var g errgroup.Group

	units := s.emitter.Units()
	streams := []struct {
		name  string
		level string
		r     io.Reader
	}{
		{name: "stdout", level: envelope.LevelInfo, r: s.supervisor.Stdout()},
		{name: "stderr", level: envelope.LevelError, r: s.supervisor.Stderr()},
	}

	for _, stream := range streams {
		p := pump.New(s.log, stream.name, stream.level, s.opts.MaxLineSize)

		g.Go(func() error {
			if err := p.Run(ctx, stream.r, units); err != nil && ctx.Err() == nil {
				s.emitter.Emit(envelope.NewError(err, stream.name))
			}

			return nil
		})
	}

	if s.opts.ChunkIdleTimeout > 0 {
		g.Go(func() error {
			s.sweepChunks(ctx)

			return nil
		})
	}

	return &g
}

// sweepChunks expires idle chunk groups until ctx is done.
func (s *Session) sweepChunks(ctx context.Context) {
	ticker := time.NewTicker(max(s.opts.ChunkIdleTimeout/2, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, err := range s.chunks.Expire() {
				s.log.Warn("Dropped idle chunk group", "error", err)
				s.emitter.Emit(envelope.NewError(err, ""))
			}
		}
	}
}

// terminate stops the child, reporting signal failures without aborting
// the shutdown.
func (s *Session) terminate(ctx context.Context) {
	if err := s.supervisor.Terminate(ctx, s.opts.GracePeriod); err != nil {
		s.log.Warn("Error during shutdown", "error", err)
		s.emitter.Emit(envelope.NewError(err, ""))
	}
}

// join waits up to the join timeout for the workers, then cancels them and
// releases the pipes so blocked reads return.
func (s *Session) join(workers *errgroup.Group, cancel context.CancelFunc) {
	joined := make(chan struct{})

	go func() {
		_ = workers.Wait()
		close(joined)
	}()

	timer := time.NewTimer(s.opts.JoinTimeout)
	defer timer.Stop()

	select {
	case <-joined:
		cancel()
	case <-timer.C:
		s.log.Warn("Workers did not finish within join timeout", "timeout", s.opts.JoinTimeout)
		cancel()

		if err := s.supervisor.Close(); err != nil {
			s.log.Debug("Error closing pipes", "error", err)
		}

		<-joined
	}
}

func (s *Session) childEnv() map[string]string {
	env := make(map[string]string, len(s.opts.Env)+1)
	maps.Copy(env, s.opts.Env)

	if _, ok := env[SessionIDEnv]; !ok {
		env[SessionIDEnv] = s.id
	}

	return env
}

