package slogging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected LogLevel
	}{
		{"debug lowercase", "debug", LogLevelDebug},
		{"debug uppercase", "DEBUG", LogLevelDebug},
		{"info lowercase", "info", LogLevelInfo},
		{"warn lowercase", "warn", LogLevelWarn},
		{"warning lowercase", "warning", LogLevelWarn},
		{"error lowercase", "error", LogLevelError},
		{"unknown defaults to info", "unknown", LogLevelInfo},
		{"empty defaults to info", "", LogLevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLogLevel(tt.input))
		})
	}
}

func TestLogLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected slog.Level
	}{
		{LogLevelDebug, slog.LevelDebug},
		{LogLevelInfo, slog.LevelInfo},
		{LogLevelWarn, slog.LevelWarn},
		{LogLevelError, slog.LevelError},
		{LogLevel(99), slog.LevelInfo}, // Unknown defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.toSlogLevel())
		})
	}
}

func TestNewLogger(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "slogging_test")
	require.NoError(t, err)
	defer func() { _ = os.RemoveAll(tempDir) }()

	t.Run("creates logger and log file", func(t *testing.T) {
		logger, err := NewLogger(Config{
			Level:  LogLevelDebug,
			LogDir: tempDir,
		})
		require.NoError(t, err)
		defer func() { _ = logger.Close() }()

		logger.Info("hello %s", "world")

		_, err = os.Stat(filepath.Join(tempDir, "drawsync.log"))
		assert.NoError(t, err)
	})

	t.Run("level filtering suppresses lower levels", func(t *testing.T) {
		logger, err := NewLogger(Config{
			Level:  LogLevelError,
			LogDir: tempDir,
		})
		require.NoError(t, err)
		defer func() { _ = logger.Close() }()

		// Should be no-ops, not panics
		logger.Debug("suppressed")
		logger.Info("suppressed")
		logger.Warn("suppressed")
	})
}

func TestSanitizeLogMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain message", "plain message", "plain message"},
		{"newline removed", "line1\nline2", "line1 line2"},
		{"crlf removed", "line1\r\nline2", "line1 line2"},
		{"tabs collapsed", "a\tb", "a b"},
		{"whitespace trimmed", "  padded  ", "padded"},
		{"only whitespace", " \n\t ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeLogMessage(tt.input))
		})
	}
}
