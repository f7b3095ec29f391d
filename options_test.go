package procbridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyOptions(t *testing.T) {
	t.Parallel()

	logger := NopLogger()

	opts := applyOptions([]Option{
		WithLogger(logger),
		WithExecutable("agent.py", "--fast"),
		WithInterpreter("python3"),
		WithDir("/tmp"),
		WithEnv(map[string]string{"A": "1"}),
		WithEnv(map[string]string{"B": "2"}),
		WithGracePeriod(time.Second),
		WithJoinTimeout(2 * time.Second),
		WithSignalHandling(true),
		WithChunkSize(1024),
		WithChunkDelay(0),
		WithChunkIdleTimeout(time.Minute),
		WithMaxLineSize(4096),
	})

	require.Same(t, logger, opts.Logger)
	require.Equal(t, "agent.py", opts.Executable)
	require.Equal(t, []string{"--fast"}, opts.Args)
	require.Equal(t, "python3", opts.Interpreter)
	require.Equal(t, "/tmp", opts.Dir)
	require.Equal(t, map[string]string{"A": "1", "B": "2"}, opts.Env)
	require.Equal(t, time.Second, opts.GracePeriod)
	require.Equal(t, 2*time.Second, opts.JoinTimeout)
	require.True(t, opts.HandleSignals)
	require.Equal(t, 1024, opts.ChunkSize)
	require.Zero(t, opts.ChunkDelay)
	require.Equal(t, time.Minute, opts.ChunkIdleTimeout)
	require.Equal(t, 4096, opts.MaxLineSize)
}

func TestApplyOptions_Defaults(t *testing.T) {
	t.Parallel()

	opts := applyOptions(nil)

	require.Equal(t, 5*time.Second, opts.GracePeriod)
	require.Equal(t, 16384, opts.ChunkSize)
	require.Nil(t, opts.Logger)
}

func TestWithOptions_CopiesBase(t *testing.T) {
	t.Parallel()

	base := DefaultOptions()
	base.Executable = "/bin/worker"
	base.Env = map[string]string{"A": "1"}

	opts := applyOptions([]Option{
		WithOptions(base),
		WithEnv(map[string]string{"B": "2"}),
	})

	require.Equal(t, "/bin/worker", opts.Executable)
	require.Equal(t, map[string]string{"A": "1", "B": "2"}, opts.Env)
	require.Equal(t, map[string]string{"A": "1"}, base.Env, "base must not be mutated")
}
