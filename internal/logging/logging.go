// Package logging builds the process-wide zap logger. A terminal UI owns
// stdout and stderr, so logs go to a file under the config directory.
package logging

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"deckhand/config"
)

// New builds a logger writing to file at the named level. An empty file
// defaults to deckhand.log in the logs directory; level defaults to
// info. The returned AtomicLevel allows live level changes on config
// reload.
func New(level, file string) (*zap.Logger, zap.AtomicLevel, error) {
	if file == "" {
		logsDir, err := config.GetLogsDir()
		if err != nil {
			return nil, zap.AtomicLevel{}, fmt.Errorf("resolve logs dir: %w", err)
		}
		file = filepath.Join(logsDir, "deckhand.log")
	}

	lvl, err := parseLevel(level)
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	atomic := zap.NewAtomicLevelAt(lvl)

	cfg := zap.NewProductionConfig()
	cfg.Level = atomic
	cfg.OutputPaths = []string{file}
	cfg.ErrorOutputPaths = []string{file}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("build logger: %w", err)
	}
	return logger, atomic, nil
}

// SetLevel applies a level name to the atomic handle; unknown names are
// ignored so a bad config edit cannot silence logging.
func SetLevel(atomic zap.AtomicLevel, level string) {
	if lvl, err := parseLevel(level); err == nil {
		atomic.SetLevel(lvl)
	}
}

func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}
