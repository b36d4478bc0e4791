package domain

import (
	"context"
	"sort"
	"time"
)

// Action is one entry of a session's operation history.
type Action struct {
	Operation  string         `json:"operation"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Before     int            `json:"before"`
	After      int            `json:"after"`
	Notes      []string       `json:"notes,omitempty"`
	At         time.Time      `json:"at"`
}

// SessionSnapshot is the persisted form of a curation session. Current holds
// ordinals into Original in working-set order.
type SessionSnapshot struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Sources   []string  `json:"sources,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Original  []Record  `json:"original"`
	Current   []int     `json:"current"`
	History   []Action  `json:"history,omitempty"`
}

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Original  int       `json:"original"`
	Current   int       `json:"current"`
	Actions   int       `json:"actions"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary returns the listing view of s.
func (s SessionSnapshot) Summary() SessionSummary {
	return SessionSummary{
		ID:        s.ID,
		Name:      s.Name,
		Original:  len(s.Original),
		Current:   len(s.Current),
		Actions:   len(s.History),
		UpdatedAt: s.UpdatedAt,
	}
}

// Clone returns a deep copy of s.
func (s SessionSnapshot) Clone() SessionSnapshot {
	dup := s
	dup.Sources = append([]string(nil), s.Sources...)
	dup.Original = append([]Record(nil), s.Original...)
	dup.Current = append([]int(nil), s.Current...)
	dup.History = make([]Action, len(s.History))
	for i, a := range s.History {
		cp := a
		if a.Parameters != nil {
			cp.Parameters = make(map[string]any, len(a.Parameters))
			for k, v := range a.Parameters {
				cp.Parameters[k] = v
			}
		}
		cp.Notes = append([]string(nil), a.Notes...)
		dup.History[i] = cp
	}
	return dup
}

// SessionStore persists curation sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, snapshot SessionSnapshot) error
	LoadSession(ctx context.Context, id string) (SessionSnapshot, error)
	ListSessions(ctx context.Context) ([]SessionSummary, error)
	DeleteSession(ctx context.Context, id string) (bool, error)
	Close() error
}

// SortSummaries orders summaries newest first, then by id.
func SortSummaries(out []SessionSummary) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
}
