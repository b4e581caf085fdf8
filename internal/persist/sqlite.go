package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/surveyforge/schema"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	document TEXT NOT NULL,
	previous_prompt TEXT NOT NULL DEFAULT '',
	messages_json TEXT,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS prompt_history (
	project_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	prompt TEXT NOT NULL,
	PRIMARY KEY (project_id, seq)
);
`

// SQLiteStore persists project snapshots in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	log  pslog.Logger
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(ctx context.Context, path string, logger pslog.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	if logger != nil {
		logger = logger.With("sqlite_path", path)
	}
	return &SQLiteStore{db: db, path: path, log: logger}, nil
}

// Load reads a project snapshot.
func (s *SQLiteStore) Load(ctx context.Context, projectID schema.ProjectID) (ProjectSnapshot, bool, error) {
	var (
		snapshot ProjectSnapshot
		messages sql.NullString
		updated  string
	)
	row := s.db.QueryRowContext(ctx, `SELECT id, document, previous_prompt, messages_json, updated_at FROM projects WHERE id = ?`, string(projectID))
	if err := row.Scan(&snapshot.ID, &snapshot.Document, &snapshot.PreviousPrompt, &messages, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if s.log != nil {
				s.log.Debug("state load miss", "project", projectID)
			}
			return ProjectSnapshot{}, false, nil
		}
		s.warn("state load failed", projectID, err)
		return ProjectSnapshot{}, false, err
	}
	if messages.Valid && messages.String != "" {
		if err := json.Unmarshal([]byte(messages.String), &snapshot.Messages); err != nil {
			s.warn("state load failed", projectID, err)
			return ProjectSnapshot{}, false, err
		}
	}
	if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		snapshot.UpdatedAt = ts
	}
	rows, err := s.db.QueryContext(ctx, `SELECT prompt FROM prompt_history WHERE project_id = ? ORDER BY seq`, string(projectID))
	if err != nil {
		s.warn("state load failed", projectID, err)
		return ProjectSnapshot{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var prompt string
		if err := rows.Scan(&prompt); err != nil {
			return ProjectSnapshot{}, false, err
		}
		snapshot.History = append(snapshot.History, prompt)
	}
	if err := rows.Err(); err != nil {
		return ProjectSnapshot{}, false, err
	}
	if s.log != nil {
		s.log.Debug("state load ok", "project", projectID, "document_len", len(snapshot.Document))
	}
	return snapshot, true, nil
}

// Save replaces a project snapshot in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, projectID schema.ProjectID, snapshot ProjectSnapshot) (err error) {
	messages, err := json.Marshal(snapshot.Messages)
	if err != nil {
		s.warn("state save failed", projectID, err)
		return err
	}
	updated := snapshot.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.warn("state save failed", projectID, err)
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			s.warn("state save failed", projectID, err)
		}
	}()
	if _, err = tx.ExecContext(ctx, `INSERT INTO projects (id, document, previous_prompt, messages_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET document = excluded.document, previous_prompt = excluded.previous_prompt,
			messages_json = excluded.messages_json, updated_at = excluded.updated_at`,
		string(projectID), snapshot.Document, snapshot.PreviousPrompt, string(messages), updated.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM prompt_history WHERE project_id = ?`, string(projectID)); err != nil {
		return err
	}
	for i, prompt := range snapshot.History {
		if _, err = tx.ExecContext(ctx, `INSERT INTO prompt_history (project_id, seq, prompt) VALUES (?, ?, ?)`, string(projectID), i, prompt); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Trace("state save ok", "project", projectID, "history", len(snapshot.History))
	}
	return nil
}

// List returns stored project ids in lexical order.
func (s *SQLiteStore) List(ctx context.Context) ([]schema.ProjectID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM projects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []schema.ProjectID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, schema.ProjectID(id))
	}
	return ids, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) warn(msg string, projectID schema.ProjectID, err error) {
	if s.log != nil {
		s.log.Warn(msg, "project", projectID, "err", err)
	}
}
