package prefs

import (
	"context"
	"database/sql"
	"time"
)

// History persists accepted CLI input lines per session.
type History struct {
	db  *sql.DB
	cap int
}

// NewHistory builds a history service over the preferences database.
// cap bounds how many entries List returns and Add keeps per session.
func NewHistory(store *Store, cap int) *History {
	if cap <= 0 {
		cap = 100
	}
	return &History{db: store.DB(), cap: cap}
}

// Add records one accepted input line. Empty text is ignored. Entries
// beyond the cap are pruned oldest-first.
func (h *History) Add(ctx context.Context, sessionID, text string) error {
	if text == "" {
		return nil
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO input_history(session_id, text, created_at) VALUES(?, ?, ?)`,
		sessionID, text, time.Now().UnixNano())
	if err != nil {
		return err
	}

	_, err = h.db.ExecContext(ctx,
		`DELETE FROM input_history
		 WHERE session_id = ?
		   AND id NOT IN (
		     SELECT id FROM input_history
		     WHERE session_id = ?
		     ORDER BY id DESC
		     LIMIT ?
		   )`,
		sessionID, sessionID, h.cap)
	return err
}

// List returns the session's entries newest-first, up to the cap.
func (h *History) List(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT text FROM input_history
		 WHERE session_id = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		sessionID, h.cap)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
