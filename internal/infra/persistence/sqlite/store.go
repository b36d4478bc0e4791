// Package sqlite persists curation sessions to an embedded SQLite file, one
// JSON payload per session.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"virsift/internal/infra/persistence/schema"
	"virsift/pkg/domain"
)

var _ domain.SessionStore = (*Store)(nil)

// DefaultPath is used when no path is configured.
const DefaultPath = "virsift.db"

// Store is a SQLite-backed session store.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (creating if needed) the database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, stmt := range schema.SplitStatements(schema.SQLite()) {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// DB exposes the handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

// SaveSession upserts the snapshot inside a transaction.
func (s *Store) SaveSession(ctx context.Context, snapshot domain.SessionSnapshot) (retErr error) {
	if snapshot.ID == "" {
		return fmt.Errorf("save session: empty id")
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", snapshot.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO sessions(id,updated_at,payload) VALUES(?,?,?) ON CONFLICT(id) DO UPDATE SET updated_at=excluded.updated_at, payload=excluded.payload`,
		snapshot.ID, snapshot.UpdatedAt.UnixNano(), data); err != nil {
		return fmt.Errorf("upsert session %s: %w", snapshot.ID, err)
	}
	return tx.Commit()
}

// LoadSession decodes one session.
func (s *Store) LoadSession(ctx context.Context, id string) (domain.SessionSnapshot, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM sessions WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionSnapshot{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	if err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("select session %s: %w", id, err)
	}
	var snap domain.SessionSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return snap, nil
}

// ListSessions summarizes every stored session, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]domain.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.SessionSummary
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var snap domain.SessionSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		out = append(out, snap.Summary())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	domain.SortSummaries(out)
	return out, nil
}

// DeleteSession removes a session and reports whether it existed.
func (s *Store) DeleteSession(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
