package core

import (
	"time"

	"virsift/pkg/domain"
)

// Session pairs the write-once Original set with the Current working set.
// Both are immutable datasets; operations swap Current for a new value and
// Reset points Current back at Original.
type Session struct {
	ID        string
	Name      string
	Sources   []string
	CreatedAt time.Time
	UpdatedAt time.Time

	original Dataset
	current  Dataset
	history  []Action
}

// NewSession assigns ordinals 0..n-1 in input order and starts with Current
// equal to Original.
func NewSession(id, name string, sources []string, records []Record, now time.Time) *Session {
	cp := make([]Record, len(records))
	for i, r := range records {
		r.Ordinal = i
		cp[i] = r
	}
	original := domain.NewDataset(cp)
	return &Session{
		ID:        id,
		Name:      name,
		Sources:   append([]string(nil), sources...),
		CreatedAt: now,
		UpdatedAt: now,
		original:  original,
		current:   original,
	}
}

// Original returns the unmodified ingested records.
func (s *Session) Original() Dataset { return s.original }

// Current returns the working set.
func (s *Session) Current() Dataset { return s.current }

// History returns the applied actions, oldest first.
func (s *Session) History() []Action { return append([]Action(nil), s.history...) }

// commit replaces Current and appends history entries.
func (s *Session) commit(next Dataset, actions ...Action) {
	s.current = next
	s.history = append(s.history, actions...)
	if n := len(actions); n > 0 {
		s.UpdatedAt = actions[n-1].At
	}
}

// Reset discards curation by pointing Current back at Original.
func (s *Session) Reset(at time.Time) Action {
	action := Action{Operation: "reset", Before: s.current.Len(), After: s.original.Len(), At: at}
	s.commit(s.original, action)
	return action
}

// Snapshot returns the persisted form of s.
func (s *Session) Snapshot() domain.SessionSnapshot {
	return domain.SessionSnapshot{
		ID:        s.ID,
		Name:      s.Name,
		Sources:   append([]string(nil), s.Sources...),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Original:  s.original.Records(),
		Current:   s.current.Ordinals(),
		History:   s.History(),
	}
}

// SessionFromSnapshot rebuilds a session. Current ordinals missing from
// Original are dropped.
func SessionFromSnapshot(snap domain.SessionSnapshot) *Session {
	original := domain.NewDataset(snap.Original)
	return &Session{
		ID:        snap.ID,
		Name:      snap.Name,
		Sources:   append([]string(nil), snap.Sources...),
		CreatedAt: snap.CreatedAt,
		UpdatedAt: snap.UpdatedAt,
		original:  original,
		current:   original.Pick(snap.Current),
		history:   append([]Action(nil), snap.History...),
	}
}
