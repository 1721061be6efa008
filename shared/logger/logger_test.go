package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		config    *Config
		checkFunc func(t *testing.T, logger *Logger, output *bytes.Buffer)
	}{
		{
			name: "json format with debug level",
			config: &Config{
				Level:  "debug",
				Format: "json",
				Output: "stdout",
			},
			checkFunc: func(t *testing.T, logger *Logger, output *bytes.Buffer) {
				logger.Debug("test debug message", slog.String("key", "value"))

				var logEntry map[string]interface{}
				err := json.Unmarshal(output.Bytes(), &logEntry)
				require.NoError(t, err)

				assert.Equal(t, "DEBUG", logEntry["level"])
				assert.Equal(t, "test debug message", logEntry["msg"])
				assert.Equal(t, "value", logEntry["key"])
				assert.Contains(t, logEntry, "time")
			},
		},
		{
			name: "info level filters debug",
			config: &Config{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
			checkFunc: func(t *testing.T, logger *Logger, output *bytes.Buffer) {
				logger.Debug("debug message")
				logger.Info("info message", slog.String("type", "test"))

				lines := strings.Split(strings.TrimSpace(output.String()), "\n")
				assert.Len(t, lines, 1)

				var logEntry map[string]interface{}
				err := json.Unmarshal([]byte(lines[0]), &logEntry)
				require.NoError(t, err)

				assert.Equal(t, "INFO", logEntry["level"])
				assert.Equal(t, "info message", logEntry["msg"])
			},
		},
		{
			name: "console format writes output",
			config: &Config{
				Level:      "info",
				Format:     "console",
				Output:     "stdout",
				TimeFormat: time.RFC3339,
			},
			checkFunc: func(t *testing.T, logger *Logger, output *bytes.Buffer) {
				logger.Info("console message")
				assert.Contains(t, output.String(), "console message")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := &bytes.Buffer{}

			cfg := *tt.config
			cfg.writer = output

			logger, err := New(&cfg)
			require.NoError(t, err)
			require.NotNil(t, logger)

			tt.checkFunc(t, logger, output)
		})
	}
}

func TestNewDefault(t *testing.T) {
	logger := NewDefault()
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Logger)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected slog.Level
	}{
		{name: "debug level", level: "debug", expected: slog.LevelDebug},
		{name: "info level", level: "info", expected: slog.LevelInfo},
		{name: "warn level", level: "warn", expected: slog.LevelWarn},
		{name: "warning alias", level: "warning", expected: slog.LevelWarn},
		{name: "error level", level: "error", expected: slog.LevelError},
		{name: "invalid level defaults to info", level: "invalid", expected: slog.LevelInfo},
		{name: "empty string defaults to info", level: "", expected: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}

func TestLogger_WithGroup(t *testing.T) {
	output := &bytes.Buffer{}

	logger, err := New(&Config{
		Level:  "info",
		Format: "json",
		writer: output,
	})
	require.NoError(t, err)

	logger.WithGroup("mygroup").Info("test message", slog.String("key", "value"))

	var logEntry map[string]interface{}
	err = json.Unmarshal(output.Bytes(), &logEntry)
	require.NoError(t, err)

	group, ok := logEntry["mygroup"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "value", group["key"])
}

func TestLogger_WithAttrs(t *testing.T) {
	output := &bytes.Buffer{}

	logger, err := New(&Config{
		Level:  "info",
		Format: "json",
		writer: output,
	})
	require.NoError(t, err)

	logger.WithAttrs(
		slog.String("job_id", "12345"),
		slog.String("worker_id", "worker-1"),
	).Info("test message")

	var logEntry map[string]interface{}
	err = json.Unmarshal(output.Bytes(), &logEntry)
	require.NoError(t, err)

	assert.Equal(t, "12345", logEntry["job_id"])
	assert.Equal(t, "worker-1", logEntry["worker_id"])
}
