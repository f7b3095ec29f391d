//go:build integration

package integration

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/wagiedev/procbridge"
)

const frameTimeout = 15 * time.Second

// skipIfPythonNotInstalled skips the test when no python3 interpreter is on PATH.
func skipIfPythonNotInstalled(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not installed")
	}
}

// writeScript writes a worker script into a temp dir and returns its path.
func writeScript(t *testing.T, source string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "worker.py")
	require.NoError(t, os.WriteFile(path, []byte(source), 0o600))

	return path
}

// bridgeRun is a running bridge with a parent-side view of both channels.
type bridgeRun struct {
	t       *testing.T
	control io.WriteCloser
	frames  chan string
	result  chan int
}

// startBridge runs a bridge over a python3 worker script.
func startBridge(t *testing.T, ctx context.Context, script string, opts ...procbridge.Option) *bridgeRun {
	t.Helper()
	skipIfPythonNotInstalled(t)

	controlR, controlW := io.Pipe()
	outputR, outputW := io.Pipe()

	run := &bridgeRun{
		t:       t,
		control: controlW,
		frames:  make(chan string, 1024),
		result:  make(chan int, 1),
	}

	opts = append([]procbridge.Option{
		procbridge.WithExecutable(writeScript(t, script)),
		procbridge.WithInterpreter("python3"),
		procbridge.WithEnv(map[string]string{"PYTHONUNBUFFERED": "1"}),
	}, opts...)

	go func() {
		defer outputW.Close()

		code, err := procbridge.Run(ctx, controlR, outputW, opts...)
		if err != nil {
			t.Logf("bridge returned error: %v", err)
		}

		run.result <- code
	}()

	var readerDone sync.WaitGroup

	readerDone.Go(func() {
		defer close(run.frames)

		scanner := bufio.NewScanner(outputR)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)

		for scanner.Scan() {
			run.frames <- scanner.Text()
		}
	})

	t.Cleanup(func() {
		_ = controlW.Close()
		readerDone.Wait()
	})

	return run
}

func (r *bridgeRun) send(line string) {
	r.t.Helper()

	_, err := io.WriteString(r.control, line+"\n")
	require.NoError(r.t, err)
}

// next returns the first frame satisfying match, discarding the rest.
func (r *bridgeRun) next(match func(frame string) bool) string {
	r.t.Helper()

	timeout := time.After(frameTimeout)

	for {
		select {
		case frame, ok := <-r.frames:
			if !ok {
				r.t.Fatal("bridge output closed before expected frame")
			}

			if match(frame) {
				return frame
			}
		case <-timeout:
			r.t.Fatal("timed out waiting for frame")
		}
	}
}

func (r *bridgeRun) exitCode() int {
	r.t.Helper()

	select {
	case code := <-r.result:
		return code
	case <-time.After(frameTimeout):
		r.t.Fatal("bridge did not exit")

		return -1
	}
}

func hasType(frameType string) func(string) bool {
	return func(frame string) bool {
		return gjson.Get(frame, "type").String() == frameType
	}
}

func hasStatus(status string) func(string) bool {
	return func(frame string) bool {
		return gjson.Get(frame, "type").String() == "status" &&
			gjson.Get(frame, "payload.status").String() == status
	}
}

func isFinalStatus(frame string) bool {
	return gjson.Get(frame, "type").String() == "status" &&
		gjson.Get(frame, "payload.running").Exists() &&
		!gjson.Get(frame, "payload.running").Bool()
}

func contains(substr string) func(string) bool {
	return func(frame string) bool {
		return strings.Contains(frame, substr)
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	return ctx
}
