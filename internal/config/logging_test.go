package config

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("request", "path", "/generate")

	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, stderr.String(), "path=/generate")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &entry))
	assert.Equal(t, "request", entry["msg"])
	assert.Equal(t, "/generate", entry["path"])
}

func TestSetupLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pluisje.log")
	logger, cleanup := SetupLogger(Config{LogFile: path, LogLevel: slog.LevelInfo})
	logger.Info("started")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"started"`)
}

func TestSetupLoggerStderrOnly(t *testing.T) {
	logger, cleanup := SetupLogger(Config{LogLevel: slog.LevelWarn})
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.NoError(t, cleanup())
}

func TestDebugLowersLevel(t *testing.T) {
	opts := handlerOptions(slog.LevelError, true)
	assert.Equal(t, slog.LevelDebug, opts.Level)
	assert.True(t, opts.AddSource)
}
