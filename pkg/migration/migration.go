package migration

import (
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

// Migration is one schema step. Files are named NNNN_name.up.sql and
// optionally NNNN_name.down.sql; only the up direction is applied by Run.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// Runner applies pending migrations from a filesystem of .sql files.
type Runner struct {
	db   *sql.DB
	fsys fs.FS
}

// NewRunner builds a runner over fsys, whose root must contain the
// migration files directly.
func NewRunner(db *sql.DB, fsys fs.FS) *Runner {
	return &Runner{db: db, fsys: fsys}
}

// Run applies every migration newer than the recorded schema version,
// each inside its own transaction. A dirty version row means an earlier
// run died mid-migration and needs manual repair.
func (r *Runner) Run() error {
	if err := r.ensureSchemaTable(); err != nil {
		return fmt.Errorf("create schema table: %w", err)
	}

	migrations, err := r.load()
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	current, dirty, err := r.currentVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state, manual intervention required")
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := r.apply(m); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func (r *Runner) ensureSchemaTable() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			dirty BOOLEAN NOT NULL DEFAULT FALSE,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (r *Runner) load() ([]Migration, error) {
	entries, err := fs.ReadDir(r.fsys, ".")
	if err != nil {
		return nil, err
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, name, direction, err := parseFilename(entry.Name())
		if err != nil {
			continue
		}

		content, err := fs.ReadFile(r.fsys, entry.Name())
		if err != nil {
			return nil, err
		}

		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		switch direction {
		case "up":
			m.UpSQL = string(content)
		case "down":
			m.DownSQL = string(content)
		}
	}

	var migrations []Migration
	for _, m := range byVersion {
		if m.UpSQL != "" {
			migrations = append(migrations, *m)
		}
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func parseFilename(filename string) (version int, name, direction string, err error) {
	base := strings.TrimSuffix(filename, ".sql")
	parts := strings.Split(base, ".")
	if len(parts) != 2 {
		return 0, "", "", fmt.Errorf("invalid migration filename %q", filename)
	}

	direction = parts[1]
	if direction != "up" && direction != "down" {
		return 0, "", "", fmt.Errorf("invalid direction %q", direction)
	}

	nameParts := strings.Split(parts[0], "_")
	if len(nameParts) < 2 {
		return 0, "", "", fmt.Errorf("invalid migration name %q", parts[0])
	}

	version, err = strconv.Atoi(nameParts[0])
	if err != nil {
		return 0, "", "", fmt.Errorf("invalid version number: %w", err)
	}
	return version, strings.Join(nameParts[1:], "_"), direction, nil
}

func (r *Runner) currentVersion() (version int, dirty bool, err error) {
	row := r.db.QueryRow(`
		SELECT version, dirty
		FROM schema_migrations
		ORDER BY version DESC
		LIMIT 1
	`)
	err = row.Scan(&version, &dirty)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return version, dirty, nil
}

func (r *Runner) apply(m Migration) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO schema_migrations (version, dirty) VALUES (?, TRUE)`,
		m.Version); err != nil {
		return err
	}
	if _, err := tx.Exec(m.UpSQL); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`UPDATE schema_migrations SET dirty = FALSE WHERE version = ?`,
		m.Version); err != nil {
		return err
	}
	return tx.Commit()
}

// Force clears the dirty flag on version after manual repair.
func (r *Runner) Force(version int) error {
	_, err := r.db.Exec(
		`UPDATE schema_migrations SET dirty = FALSE WHERE version = ?`,
		version)
	return err
}
