package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "procbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDefault(t *testing.T) {
	t.Parallel()

	opts := Default()

	require.Equal(t, 5*time.Second, opts.GracePeriod)
	require.Equal(t, time.Second, opts.JoinTimeout)
	require.Equal(t, 16384, opts.ChunkSize)
	require.Equal(t, 10*time.Millisecond, opts.ChunkDelay)
	require.Zero(t, opts.ChunkIdleTimeout)
}

func TestLoadFile_MergesOverDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
executable: /usr/bin/agent
args: [--verbose, run]
interpreter: python3
env:
  MODE: test
grace_period: 2s
chunk_idle_timeout: 1m
log:
  level: debug
`)

	opts := Default()
	require.NoError(t, opts.LoadFile(path))

	require.Equal(t, "/usr/bin/agent", opts.Executable)
	require.Equal(t, []string{"--verbose", "run"}, opts.Args)
	require.Equal(t, "python3", opts.Interpreter)
	require.Equal(t, map[string]string{"MODE": "test"}, opts.Env)
	require.Equal(t, 2*time.Second, opts.GracePeriod)
	require.Equal(t, time.Minute, opts.ChunkIdleTimeout)
	require.Equal(t, "debug", opts.Log.Level)

	// Untouched keys keep their defaults.
	require.Equal(t, time.Second, opts.JoinTimeout)
	require.Equal(t, "text", opts.Log.Format)
}

func TestLoadFile_Errors(t *testing.T) {
	t.Parallel()

	opts := Default()
	require.Error(t, opts.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))

	path := writeConfig(t, "grace_period: [not, a, duration]\n")
	err := opts.LoadFile(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse config file")
}

func TestLoadEnv(t *testing.T) {
	t.Parallel()

	opts := Default()
	opts.Executable = "/from/file"

	require.NoError(t, opts.loadEnv(map[string]string{
		"PROCBRIDGE_EXECUTABLE":   "/from/env",
		"PROCBRIDGE_GRACE_PERIOD": "250ms",
		"PROCBRIDGE_ENV":          "A:1,B:2",
		"PROCBRIDGE_LOG_FORMAT":   "json",
		"UNRELATED":               "x",
	}))

	require.Equal(t, "/from/env", opts.Executable)
	require.Equal(t, 250*time.Millisecond, opts.GracePeriod)
	require.Equal(t, map[string]string{"A": "1", "B": "2"}, opts.Env)
	require.Equal(t, "json", opts.Log.Format)
	require.Equal(t, time.Second, opts.JoinTimeout)
}

func TestLoadEnv_InvalidValue(t *testing.T) {
	t.Parallel()

	opts := Default()
	err := opts.loadEnv(map[string]string{"PROCBRIDGE_CHUNK_SIZE": "lots"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse environment")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "executable: /from/file\njoin_timeout: 3s\n")

	t.Setenv("PROCBRIDGE_EXECUTABLE", "/from/env")

	opts, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/from/env", opts.Executable)
	require.Equal(t, 3*time.Second, opts.JoinTimeout)
}

func TestLoad_ConfigFileFromEnvironment(t *testing.T) {
	path := writeConfig(t, "executable: /named/by/env\n")

	t.Setenv(ConfigFileEnv, path)

	opts, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "/named/by/env", opts.Executable)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(o *Options)
		wantErr string
	}{
		{name: "valid", mutate: func(*Options) {}},
		{name: "no executable", mutate: func(o *Options) { o.Executable = "" }, wantErr: "executable is required"},
		{name: "zero grace", mutate: func(o *Options) { o.GracePeriod = 0 }, wantErr: "grace period"},
		{name: "negative join", mutate: func(o *Options) { o.JoinTimeout = -time.Second }, wantErr: "join timeout"},
		{name: "zero chunk size", mutate: func(o *Options) { o.ChunkSize = 0 }, wantErr: "chunk size"},
		{name: "negative delay", mutate: func(o *Options) { o.ChunkDelay = -1 }, wantErr: "chunk delay"},
		{name: "negative idle", mutate: func(o *Options) { o.ChunkIdleTimeout = -1 }, wantErr: "chunk idle timeout"},
		{name: "bad format", mutate: func(o *Options) { o.Log.Format = "xml" }, wantErr: "unknown log format"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			opts := Default()
			opts.Executable = "/bin/true"
			tc.mutate(opts)

			err := opts.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestLogOptions_NewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	log, err := LogOptions{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown", "k", "v")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = LogOptions{Level: "loud"}.NewLogger(&buf)
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	level, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, level)
}
