package state

import (
	"database/sql"
	"fmt"
	"time"
)

// SessionRecord is one row of the sessions table.
type SessionRecord struct {
	ID        string    `json:"id"`
	RepoID    string    `json:"repo_id"`
	DestDir   string    `json:"dest_dir"`
	Status    string    `json:"status"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Note      string    `json:"note,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// FileRecord is one completed file of a session.
type FileRecord struct {
	SessionID   string    `json:"session_id"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	MIME        string    `json:"mime,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// RecordSessionStart inserts a running session.
func RecordSessionStart(rec SessionRecord) error {
	return withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO sessions (id, repo_id, dest_dir, status, total, completed, note, started_at, ended_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
			rec.ID, rec.RepoID, rec.DestDir, rec.Status, rec.Total, rec.Completed, rec.Note, rec.StartedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// RecordFileComplete stores a finished file and bumps the session counter.
func RecordFileComplete(rec FileRecord) error {
	return withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO files (session_id, path, size, mime, completed_at)
			VALUES (?, ?, ?, ?, ?)`,
			rec.SessionID, rec.Path, rec.Size, rec.MIME, rec.CompletedAt.Unix()); err != nil {
			return fmt.Errorf("failed to insert file: %w", err)
		}
		if _, err := tx.Exec(`UPDATE sessions SET completed = completed + 1 WHERE id = ?`, rec.SessionID); err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		return nil
	})
}

// RecordSessionEnd stores the terminal outcome of a session.
func RecordSessionEnd(id, status string, completed int, note string, endedAt time.Time) error {
	return withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE sessions SET status = ?, completed = ?, note = ?, ended_at = ?
			WHERE id = ?`,
			status, completed, note, endedAt.Unix(), id)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("session %s not found", id)
		}
		return nil
	})
}

// LoadHistory returns the newest sessions first. limit <= 0 means all.
func LoadHistory(limit int) ([]SessionRecord, error) {
	d, err := GetDB()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, repo_id, dest_dir, status, total, completed, note, started_at, ended_at
		FROM sessions ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var (
			rec     SessionRecord
			note    sql.NullString
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.RepoID, &rec.DestDir, &rec.Status, &rec.Total, &rec.Completed, &note, &started, &ended); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		rec.Note = note.String
		rec.StartedAt = time.Unix(started, 0)
		if ended.Valid {
			rec.EndedAt = time.Unix(ended.Int64, 0)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LoadSessionFiles returns the completed files of a session in completion order.
func LoadSessionFiles(sessionID string) ([]FileRecord, error) {
	d, err := GetDB()
	if err != nil {
		return nil, err
	}

	rows, err := d.Query(`
		SELECT session_id, path, size, mime, completed_at
		FROM files WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		var (
			rec  FileRecord
			size sql.NullInt64
			mime sql.NullString
			at   sql.NullInt64
		)
		if err := rows.Scan(&rec.SessionID, &rec.Path, &size, &mime, &at); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		rec.Size = size.Int64
		rec.MIME = mime.String
		if at.Valid {
			rec.CompletedAt = time.Unix(at.Int64, 0)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkInterrupted flags sessions left running by a process that died, so the
// history does not show them as live forever.
func MarkInterrupted() (int64, error) {
	d, err := GetDB()
	if err != nil {
		return 0, err
	}
	res, err := d.Exec(`
		UPDATE sessions SET status = 'interrupted', ended_at = ?
		WHERE status IN ('running', 'paused', 'cancelling')`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted sessions: %w", err)
	}
	return res.RowsAffected()
}
