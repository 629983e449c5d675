package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tailored-agentic-units/polyglot/kernel"
)

const schema = `
CREATE TABLE IF NOT EXISTS document_state (
	id         TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLiteStore keeps every document's state as a YAML row in one SQLite
// database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads the state of document id.
func (s *SQLiteStore) Load(ctx context.Context, id string) (kernel.DocumentState, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM document_state WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return kernel.DocumentState{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return kernel.DocumentState{}, fmt.Errorf("%w: %s: %v", ErrLoadFailed, id, err)
	}
	return decode(id, []byte(data))
}

// Save writes the state of document id, replacing any previous state.
func (s *SQLiteStore) Save(ctx context.Context, id string, state kernel.DocumentState) error {
	data, err := encode(id, state)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO document_state (id, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		id, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, id, err)
	}
	return nil
}

// Delete removes the state of document id. Missing state is ignored.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM document_state WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete failed: %s: %w", id, err)
	}
	return nil
}

// List returns the ids of documents with saved state, sorted.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM document_state ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	return ids, nil
}
