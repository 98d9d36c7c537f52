package prefs

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"deckhand/pkg/migration"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Preference keys for the ui_preferences table.
const (
	KeyTheme           = "theme"
	KeyTerminalHeight  = "terminal_height"
	KeyShowHiddenFiles = "show_hidden_files"
	KeyGrid            = "grid"
	KeySidebarLayout   = "sidebar_layout"
	KeyLastSyncedAt    = "last_synced_at"
)

// Store persists UI preferences and input history to sqlite.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the preferences database under the user's
// config directory.
func Open() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return OpenPath(filepath.Join(home, ".config", "deckhand", "deckhand.db"))
}

// OpenPath opens the database at dbPath, creating directories as needed.
func OpenPath(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	// busy_timeout waits up to 10 seconds for a competing writer.
	db, err := sql.Open("sqlite", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=10000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	schema, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := migration.NewRunner(db, schema).Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB exposes the underlying handle for sibling stores sharing the file.
func (s *Store) DB() *sql.DB { return s.db }

// Get returns the stored value for key, or "" when unset.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM ui_preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	ts := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ui_preferences(key, value, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = ?`,
		key, value, ts, value, ts)
	return err
}

func (s *Store) GetBool(ctx context.Context, key string) (bool, error) {
	value, err := s.Get(ctx, key)
	if err != nil || value == "" {
		return false, err
	}
	return strconv.ParseBool(value)
}

func (s *Store) SetBool(ctx context.Context, key string, value bool) error {
	return s.Set(ctx, key, strconv.FormatBool(value))
}

// GetInt returns 0 for an unset key.
func (s *Store) GetInt(ctx context.Context, key string) (int, error) {
	value, err := s.Get(ctx, key)
	if err != nil || value == "" {
		return 0, err
	}
	return strconv.Atoi(value)
}

func (s *Store) SetInt(ctx context.Context, key string, value int) error {
	return s.Set(ctx, key, strconv.Itoa(value))
}
