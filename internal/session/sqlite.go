package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	key        TEXT PRIMARY KEY,
	summary    TEXT NOT NULL DEFAULT '',
	turns      TEXT NOT NULL DEFAULT '[]',
	updated_at TEXT NOT NULL
);`

// SQLiteStore persists sessions in a local SQLite database so memory
// survives restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	// The driver is in-process; a single connection avoids writer lock
	// contention.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create session schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT summary, turns FROM sessions WHERE key = ?`, key)

	var summary, turnsJSON string
	switch err := row.Scan(&summary, &turnsJSON); {
	case errors.Is(err, sql.ErrNoRows):
		return &Session{}, nil
	case err != nil:
		return nil, fmt.Errorf("load session %q: %w", key, err)
	}

	sess := &Session{Summary: summary}
	if err := json.Unmarshal([]byte(turnsJSON), &sess.Turns); err != nil {
		return nil, fmt.Errorf("decode session %q turns: %w", key, err)
	}
	return sess, nil
}

func (s *SQLiteStore) Save(ctx context.Context, key string, sess *Session) error {
	turns := sess.Turns
	if turns == nil {
		turns = []Turn{}
	}
	turnsJSON, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("encode session %q turns: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (key, summary, turns, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			summary = excluded.summary,
			turns = excluded.turns,
			updated_at = excluded.updated_at`,
		key, sess.Summary, string(turnsJSON), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save session %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE key = ?`, key); err != nil {
		return fmt.Errorf("clear session %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
