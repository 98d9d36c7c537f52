package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

// Settings is the process configuration, layered defaults < yaml file <
// DECKHAND_* environment variables.
type Settings struct {
	API    APISettings    `koanf:"api"`
	Stream StreamSettings `koanf:"stream"`
	Log    LogSettings    `koanf:"log"`
	Voice  VoiceSettings  `koanf:"voice"`
}

type APISettings struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

type StreamSettings struct {
	// Address accepts unix:///path or tcp://host:port; a bare path is
	// treated as a unix socket.
	Address string `koanf:"address"`
}

type LogSettings struct {
	Level string `koanf:"level"`
	File  string `koanf:"file"`
}

type VoiceSettings struct {
	SampleRate    int           `koanf:"sample_rate"`
	ChunkInterval time.Duration `koanf:"chunk_interval"`
}

func defaults() map[string]interface{} {
	socket, _ := GetSocketPath()
	return map[string]interface{}{
		"api.base_url":         "http://localhost:8200",
		"api.timeout":          15 * time.Second,
		"stream.address":       socket,
		"log.level":            "info",
		"log.file":             "",
		"voice.sample_rate":    16000,
		"voice.chunk_interval": 100 * time.Millisecond,
	}
}

// Load reads settings from path. A missing file is not an error; the
// defaults and environment still apply. Pass "" to use the standard
// config file location.
func Load(path string) (Settings, error) {
	if path == "" {
		var err error
		path, err = GetConfigFile()
		if err != nil {
			return Settings{}, err
		}
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Settings{}, fmt.Errorf("load defaults: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Settings{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	// Double underscore nests: DECKHAND_API__BASE_URL -> api.base_url.
	if err := k.Load(env.Provider("DECKHAND_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "DECKHAND_")), "__", ".")
	}), nil); err != nil {
		return Settings{}, fmt.Errorf("load env vars: %w", err)
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return Settings{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return s, nil
}

// Watch re-reads path whenever it changes and hands the fresh settings
// to onChange. Runs until ctx is done. Errors reloading keep the old
// settings and log a warning.
func Watch(ctx context.Context, path string, log *zap.Logger, onChange func(Settings)) error {
	if log == nil {
		log = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which drops a
	// watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch config directory: %w", err)
	}

	var lastMod time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			stat, err := os.Stat(path)
			if err != nil {
				continue
			}
			if !stat.ModTime().After(lastMod) {
				continue
			}
			lastMod = stat.ModTime()

			// Let the editor finish writing before reading.
			time.Sleep(100 * time.Millisecond)

			settings, err := Load(path)
			if err != nil {
				log.Warn("config reload failed", zap.Error(err))
				continue
			}
			log.Info("config reloaded", zap.String("path", path))
			onChange(settings)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", zap.Error(err))
		}
	}
}
