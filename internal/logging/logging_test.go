package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesToFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "deckhand.log")

	logger, _, err := New("debug", file)
	require.NoError(t, err)
	logger.Info("hello")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, _, err := New("loud", filepath.Join(t.TempDir(), "x.log"))
	assert.Error(t, err)
}

func TestSetLevel(t *testing.T) {
	_, atomic, err := New("info", filepath.Join(t.TempDir(), "x.log"))
	require.NoError(t, err)

	SetLevel(atomic, "error")
	assert.Equal(t, zapcore.ErrorLevel, atomic.Level())

	// Unknown names leave the level alone.
	SetLevel(atomic, "shout")
	assert.Equal(t, zapcore.ErrorLevel, atomic.Level())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"info", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		lvl, err := parseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, lvl)
	}
}
