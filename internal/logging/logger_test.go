package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/diemark/dmd/backend/internal/config"
)

func TestNewRejectsInvalidSettings(t *testing.T) {
	_, _, err := New("dmd", config.LogConfig{Level: "loud"})
	require.ErrorContains(t, err, "invalid log level")

	_, _, err = New("dmd", config.LogConfig{Format: "xml"})
	require.ErrorContains(t, err, "invalid log format")

	_, _, err = New("dmd", config.LogConfig{Output: "syslog"})
	require.ErrorContains(t, err, "invalid log output")
}

func TestNewConsoleAndStderrOutputs(t *testing.T) {
	for _, output := range []string{"", "console", "stderr"} {
		logger, closeLogger, err := New("api-server", config.LogConfig{Output: output})
		require.NoError(t, err, output)
		require.NotNil(t, logger)
		require.NoError(t, closeLogger())
	}
}

func TestNewFileOutputCreatesLogFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "relay", "dmd.log")
	logger, closeLogger, err := New("api-server", config.LogConfig{
		Output:   "file",
		Format:   "json",
		Level:    "debug",
		FilePath: logPath,
	})
	require.NoError(t, err)
	logger.Debug("startup")
	require.NoError(t, closeLogger())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(data), `"service":"api-server"`)
	require.Contains(t, string(data), "startup")
}

func TestParseLevel(t *testing.T) {
	for raw, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
	} {
		level, err := parseLevel(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, level, raw)
	}
}
