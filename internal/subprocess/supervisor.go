package subprocess

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/wagiedev/procbridge/internal/errors"
)

const (
	// DefaultGracePeriod is how long Terminate waits between the stop signal and a kill.
	DefaultGracePeriod = 5 * time.Second

	// writeAbandonTimeout bounds the wait for a blocked write after stdin is closed.
	writeAbandonTimeout = 1 * time.Second
)

// SpawnConfig describes the child process.
type SpawnConfig struct {
	// Executable is the program (or script, when Interpreter is set) to run.
	Executable string

	// Args are passed to the child after the executable.
	Args []string

	// Interpreter, when set, runs Executable as its first argument
	// (e.g. "python3" for a script target).
	Interpreter string

	// Dir is the working directory. Empty inherits the bridge's.
	Dir string

	// Env holds overrides appended to the inherited environment.
	Env map[string]string
}

// Supervisor owns one child process and its pipes.
type Supervisor struct {
	log *slog.Logger
	cmd *exec.Cmd
	pid int

	stdin  io.WriteCloser
	stdout *os.File
	stderr *os.File

	mu          sync.Mutex // Protects stdin writes
	stdinClosed bool

	running  atomic.Bool
	exitCode int
	exitErr  error
	done     chan struct{}

	closeOnce sync.Once
}

// Spawn starts the child described by cfg and begins watching for its exit.
//
// Returns a SupervisionError wrapping ErrExecutableNotFound if the target
// does not exist, or wrapping the OS error if the process cannot start.
func Spawn(log *slog.Logger, cfg SpawnConfig) (*Supervisor, error) {
	log = log.With("component", "supervisor")

	program, args, err := resolveCommand(cfg)
	if err != nil {
		log.Error("Target executable not found", "executable", cfg.Executable, "error", err)

		return nil, &errors.SupervisionError{Path: cfg.Executable, Err: err}
	}

	//nolint:gosec // G204: launching the configured target is the purpose of the bridge
	cmd := exec.Command(program, args...)
	cmd.Dir = cfg.Dir
	cmd.Env = buildEnvironment(cfg.Env)
	cmd.SysProcAttr = sysProcAttr()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &errors.SupervisionError{Path: cfg.Executable, Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	// Output pipes are created by hand so that Wait never closes the read
	// ends underneath the pumps; they are released by Close.
	stdoutRead, stdoutWrite, err := os.Pipe()
	if err != nil {
		return nil, &errors.SupervisionError{Path: cfg.Executable, Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	stderrRead, stderrWrite, err := os.Pipe()
	if err != nil {
		closeAll(stdoutRead, stdoutWrite)

		return nil, &errors.SupervisionError{Path: cfg.Executable, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	cmd.Stdout = stdoutWrite
	cmd.Stderr = stderrWrite

	if err := cmd.Start(); err != nil {
		closeAll(stdoutRead, stdoutWrite, stderrRead, stderrWrite)
		log.Error("Failed to start process", "error", err)

		return nil, &errors.SupervisionError{Path: cfg.Executable, Err: fmt.Errorf("start process: %w", err)}
	}

	// The child holds its own copies of the write ends.
	closeAll(stdoutWrite, stderrWrite)

	s := &Supervisor{
		log:    log,
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		stdin:  stdin,
		stdout: stdoutRead,
		stderr: stderrRead,
		done:   make(chan struct{}),
	}
	s.running.Store(true)

	go s.watch()

	log.Info("Process started", "pid", s.pid, "program", program, "args", args)

	return s, nil
}

// resolveCommand checks the target exists and builds the argv.
func resolveCommand(cfg SpawnConfig) (string, []string, error) {
	if cfg.Executable == "" {
		return "", nil, errors.ErrExecutableNotFound
	}

	target := cfg.Executable

	if cfg.Interpreter == "" && !strings.ContainsRune(target, filepath.Separator) {
		path, err := exec.LookPath(target)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %s", errors.ErrExecutableNotFound, target)
		}

		return path, cfg.Args, nil
	}

	if _, err := os.Stat(target); err != nil {
		return "", nil, fmt.Errorf("%w: %s", errors.ErrExecutableNotFound, target)
	}

	if cfg.Interpreter == "" {
		return target, cfg.Args, nil
	}

	interpreter, err := exec.LookPath(cfg.Interpreter)
	if err != nil {
		return "", nil, fmt.Errorf("%w: interpreter %s", errors.ErrExecutableNotFound, cfg.Interpreter)
	}

	return interpreter, append([]string{target}, cfg.Args...), nil
}

// buildEnvironment appends overrides to the inherited environment. Later
// entries win for duplicate keys.
func buildEnvironment(overrides map[string]string) []string {
	env := os.Environ()

	for key, value := range overrides {
		env = append(env, key+"="+value)
	}

	return env
}

// watch waits for the child to exit and records its exit code.
func (s *Supervisor) watch() {
	err := s.cmd.Wait()

	s.exitCode = exitCode(s.cmd.ProcessState)
	if _, ok := stderrors.AsType[*exec.ExitError](err); !ok {
		s.exitErr = err
	}

	s.running.Store(false)
	close(s.done)

	s.log.Info("Process exited", "pid", s.pid, "exit_code", s.exitCode)
}

// exitCode maps a process state to an exit status. A child ended by a
// signal reports 128+signal.
func exitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}

	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}

	return state.ExitCode()
}

// PID returns the child's process id.
func (s *Supervisor) PID() int {
	return s.pid
}

// Running reports whether the child has not yet exited.
func (s *Supervisor) Running() bool {
	return s.running.Load()
}

// Done returns a channel that is closed when the child exits.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the child exits and returns its exit code.
func (s *Supervisor) Wait() int {
	<-s.done

	return s.exitCode
}

// ExitCode returns the exit code once the child has exited.
func (s *Supervisor) ExitCode() (int, bool) {
	select {
	case <-s.done:
		return s.exitCode, true
	default:
		return 0, false
	}
}

// WaitErr returns a non-exit error reported while waiting for the child,
// such as an I/O failure. It is nil until the child exits.
func (s *Supervisor) WaitErr() error {
	select {
	case <-s.done:
		return s.exitErr
	default:
		return nil
	}
}

// Stdout returns the read end of the child's stdout.
func (s *Supervisor) Stdout() io.Reader {
	return s.stdout
}

// Stderr returns the read end of the child's stderr.
func (s *Supervisor) Stderr() io.Reader {
	return s.stderr
}

// Send writes one line to the child's stdin, appending a newline if missing.
//
// Writes are serialized. If ctx is cancelled while a write is blocked,
// stdin is closed to unblock it and later calls return ErrStdinClosed.
func (s *Supervisor) Send(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stdin == nil {
		return errors.ErrProcessNotStarted
	}

	if s.stdinClosed {
		return errors.ErrStdinClosed
	}

	if !s.Running() {
		return errors.ErrNoRunningProcess
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if len(data) == 0 || data[len(data)-1] != '\n' {
		line := make([]byte, len(data)+1)
		copy(line, data)
		line[len(data)] = '\n'
		data = line
	}

	s.log.Debug("Sending line to process", "data_len", len(data))

	done := make(chan error, 1)

	go func() {
		_, err := s.stdin.Write(data)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			s.log.Error("Failed to write to process stdin", "error", err)

			return fmt.Errorf("write to stdin: %w", err)
		}

		return nil

	case <-ctx.Done():
		s.log.Debug("Context cancelled during write, closing stdin")

		_ = s.stdin.Close()
		s.stdinClosed = true

		select {
		case <-done:
		case <-time.After(writeAbandonTimeout):
			s.log.Warn("Write goroutine did not exit after stdin close, potential leak")
		}

		return ctx.Err()
	}
}

// CloseStdin signals end of input to the child.
func (s *Supervisor) CloseStdin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stdin == nil || s.stdinClosed {
		return nil
	}

	s.stdinClosed = true

	return s.stdin.Close()
}

// Terminate sends the graceful stop signal and waits up to grace for the
// child to exit, then kills it. It returns once the child has exited or
// ctx is done. Signal delivery failures are returned as ShutdownError; the
// kill is still attempted.
func (s *Supervisor) Terminate(ctx context.Context, grace time.Duration) error {
	if !s.Running() {
		return nil
	}

	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	s.log.Info("Terminating process", "pid", s.pid, "grace_period", grace)

	var termErr error

	if err := signalGroup(s.cmd.Process, stopSignal); err != nil && !isProcessGone(err) {
		s.log.Warn("Failed to send stop signal", "pid", s.pid, "error", err)
		termErr = &errors.ShutdownError{PID: s.pid, Err: err}
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-s.done:
		return termErr
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	s.log.Warn("Process did not exit within grace period, killing", "pid", s.pid)

	if err := s.Kill(); err != nil {
		return stderrors.Join(termErr, err)
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return termErr
}

// Kill forcefully stops the child and its process group.
func (s *Supervisor) Kill() error {
	if !s.Running() {
		return nil
	}

	if err := signalGroup(s.cmd.Process, killSignal); err != nil && !isProcessGone(err) {
		return &errors.ShutdownError{PID: s.pid, Err: fmt.Errorf("kill: %w", err)}
	}

	return nil
}

// Close releases the pipe handles. Readers blocked on the output streams
// return. It is safe to call Close multiple times.
func (s *Supervisor) Close() error {
	var err error

	s.closeOnce.Do(func() {
		s.mu.Lock()
		if !s.stdinClosed {
			s.stdinClosed = true
			_ = s.stdin.Close()
		}
		s.mu.Unlock()

		err = stderrors.Join(s.stdout.Close(), s.stderr.Close())
	})

	return err
}

func isProcessGone(err error) bool {
	return stderrors.Is(err, os.ErrProcessDone) || stderrors.Is(err, syscall.ESRCH)
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
