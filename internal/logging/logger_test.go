package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbook/internal/config"
)

var appCfg = config.AppConfig{
	Name:        "slotbook",
	Environment: "test",
	Version:     "1.0.0",
}

func TestNewLogger(t *testing.T) {
	t.Run("DefaultStdout", func(t *testing.T) {
		logger, closer, err := New(config.LoggingConfig{}, appCfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Nil(t, closer)
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	})

	t.Run("Stderr", func(t *testing.T) {
		logger, closer, err := New(config.LoggingConfig{Level: "debug", Output: "stderr"}, appCfg)
		require.NoError(t, err)
		assert.Nil(t, closer)
		assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
	})

	t.Run("Console", func(t *testing.T) {
		logger, closer, err := New(config.LoggingConfig{Level: "warn", Format: "console"}, appCfg)
		require.NoError(t, err)
		assert.Nil(t, closer)
		assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
	})

	t.Run("FileInNewDirectory", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "logs", "slotbook.log")
		logger, closer, err := New(config.LoggingConfig{Level: "error", Output: "file", FilePath: logPath}, appCfg)
		require.NoError(t, err)
		require.NotNil(t, closer)

		logger.Error().Msg("disk check")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), "disk check")
	})

	t.Run("FileMissingPath", func(t *testing.T) {
		_, _, err := New(config.LoggingConfig{Output: "file"}, appCfg)
		assert.Error(t, err)
	})

	t.Run("UnknownOutput", func(t *testing.T) {
		_, _, err := New(config.LoggingConfig{Output: "syslog"}, appCfg)
		assert.Error(t, err)
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("invalid"))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
}

func TestFieldsAndComponent(t *testing.T) {
	var buf bytes.Buffer
	base := newLogger(&buf, zerolog.InfoLevel, appCfg)

	Component(&base, "booking_service").Info().Str("booking_id", "b-1").Msg("Booking created")
	Component(&base, "booking_service").Debug().Msg("filtered")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "slotbook", entry["app"])
	assert.Equal(t, "test", entry["env"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Equal(t, "booking_service", entry["component"])
	assert.Equal(t, "b-1", entry["booking_id"])

	assert.NotPanics(t, func() {
		Component(nil, "x").Info().Msg("dropped")
	})
}
