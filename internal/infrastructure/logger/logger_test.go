package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"", zapcore.InfoLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := parseLevel(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}

	t.Run("unknown level", func(t *testing.T) {
		_, err := parseLevel("verbose")
		assert.Error(t, err)
	})
}

func TestNew(t *testing.T) {
	t.Run("console logger", func(t *testing.T) {
		log, err := New(DefaultConfig())
		require.NoError(t, err)
		assert.NotNil(t, log)
	})

	t.Run("json logger to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "app.log")
		cfg := ProductionConfig()
		cfg.Output = path

		log, err := New(cfg)
		require.NoError(t, err)
		log.Info("migration finished")
		require.NoError(t, log.Sync())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"migration finished"`)
	})

	t.Run("unwritable file", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Output = filepath.Join(t.TempDir(), "missing", "app.log")

		_, err := New(cfg)
		assert.Error(t, err)
	})

	t.Run("invalid level", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Level = "loud"

		_, err := New(cfg)
		assert.Error(t, err)
	})
}

func TestNewForEnvironment(t *testing.T) {
	log, err := NewForEnvironment("production", "debug", "", "stderr")
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log, err = NewForEnvironment("development", "", "", "")
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
}
