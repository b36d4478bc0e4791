// Package postgres persists curation sessions to PostgreSQL as JSONB
// documents through the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"virsift/internal/infra/persistence/schema"
	"virsift/pkg/domain"
)

var _ domain.SessionStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/virsift?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store is a Postgres-backed session store.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore connects using dsn (or a local default), verifies the connection
// and ensures the sessions table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSessionsTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for integration hooks.
func (s *Store) DB() *sql.DB { return s.db }

func ensureSessionsTable(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema.SplitStatements(schema.Postgres()) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure sessions table: %w", err)
		}
	}
	return nil
}

// SaveSession upserts the snapshot inside a transaction.
func (s *Store) SaveSession(ctx context.Context, snapshot domain.SessionSnapshot) error {
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
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `INSERT INTO sessions(id,payload) VALUES($1,$2) ON CONFLICT(id) DO UPDATE SET payload=EXCLUDED.payload`, snapshot.ID, data); err != nil {
		return fmt.Errorf("upsert session %s: %w", snapshot.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// LoadSession decodes one session.
func (s *Store) LoadSession(ctx context.Context, id string) (domain.SessionSnapshot, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM sessions WHERE id = $1`, id).Scan(&payload)
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

// ListSessions summarizes every session, newest first.
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
			return nil, fmt.Errorf("scan session: %w", err)
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
