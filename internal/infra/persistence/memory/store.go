// Package memory provides an in-memory session store used for tests and
// ephemeral runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"virsift/pkg/domain"
)

var _ domain.SessionStore = (*Store)(nil)

// Store keeps deep copies of session snapshots in a map.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]domain.SessionSnapshot
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]domain.SessionSnapshot)}
}

// SaveSession inserts or replaces a snapshot.
func (s *Store) SaveSession(_ context.Context, snapshot domain.SessionSnapshot) error {
	if snapshot.ID == "" {
		return fmt.Errorf("save session: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[snapshot.ID] = snapshot.Clone()
	return nil
}

// LoadSession returns a copy of the stored snapshot.
func (s *Store) LoadSession(_ context.Context, id string) (domain.SessionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.sessions[id]
	if !ok {
		return domain.SessionSnapshot{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return snap.Clone(), nil
}

// ListSessions summarizes every session, newest first.
func (s *Store) ListSessions(_ context.Context) ([]domain.SessionSummary, error) {
	s.mu.RLock()
	out := make([]domain.SessionSummary, 0, len(s.sessions))
	for _, snap := range s.sessions {
		out = append(out, snap.Summary())
	}
	s.mu.RUnlock()
	domain.SortSummaries(out)
	return out, nil
}

// DeleteSession removes a session and reports whether it existed.
func (s *Store) DeleteSession(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false, nil
	}
	delete(s.sessions, id)
	return true, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
