package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"virsift/pkg/domain"
)

// ErrSessionNotFound is returned for unknown session identifiers.
var ErrSessionNotFound = domain.ErrSessionNotFound

// Scope selects which record set an analysis runs on.
type Scope string

const (
	ScopeCurrent  Scope = "current"
	ScopeOriginal Scope = "original"
)

// ParseScope resolves a scope name; empty means current.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeCurrent:
		return ScopeCurrent, nil
	case ScopeOriginal:
		return ScopeOriginal, nil
	}
	return "", fmt.Errorf("unknown scope %q", s)
}

// Service runs curation operations against persisted sessions. Writes to
// one session are serialized; different sessions proceed independently.
type Service struct {
	store   domain.SessionStore
	clock   Clock
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	workers int

	partitions *lru.Cache[partitionKey, Partition]

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type partitionKey struct {
	session string
	version int64
	actions int
	scope   Scope
	qualify bool
}

// NewService constructs a service over store.
func NewService(store domain.SessionStore, opts ...ServiceOption) *Service {
	cfg := defaultServiceOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	cache, err := lru.New[partitionKey, Partition](cfg.cacheSize)
	if err != nil {
		panic(fmt.Errorf("partition cache: %w", err))
	}
	return &Service{
		store:      store,
		clock:      cfg.clock,
		logger:     cfg.logger,
		audit:      cfg.audit,
		metrics:    cfg.metrics,
		tracer:     cfg.tracer,
		workers:    cfg.workers,
		partitions: cache,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Store returns the backing session store.
func (s *Service) Store() domain.SessionStore { return s.store }

// Workers returns the configured hashing parallelism.
func (s *Service) Workers() int { return s.workers }

func (s *Service) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// run wraps an operation with tracing, metrics, audit and logging.
func (s *Service) run(ctx context.Context, op, sessionID string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	err := fn(ctx)
	elapsed := time.Since(started)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	span.End(err)
	entry := AuditEntry{Operation: op, SessionID: sessionID, Status: AuditStatusSuccess, Duration: elapsed, At: s.clock.Now()}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.logger.Error("operation failed", "operation", op, "session", sessionID, "error", err)
	} else {
		s.logger.Debug("operation completed", "operation", op, "session", sessionID, "duration", elapsed)
	}
	s.audit.Record(ctx, entry)
	return err
}

// CreateSession stores records as a new session's Original set.
func (s *Service) CreateSession(ctx context.Context, name string, sources []string, records []Record) (domain.SessionSummary, error) {
	var summary domain.SessionSummary
	id := uuid.NewString()
	err := s.run(ctx, "create_session", id, func(ctx context.Context) error {
		if strings.TrimSpace(name) == "" {
			name = id[:8]
		}
		sess := NewSession(id, name, sources, records, s.clock.Now())
		snap := sess.Snapshot()
		if err := s.store.SaveSession(ctx, snap); err != nil {
			return err
		}
		summary = snap.Summary()
		s.logger.Info("session created", "session", id, "name", name, "records", len(records))
		return nil
	})
	return summary, err
}

// Session loads a session.
func (s *Service) Session(ctx context.Context, id string) (*Session, error) {
	snap, err := s.store.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return SessionFromSnapshot(snap), nil
}

// ListSessions lists stored sessions, newest first.
func (s *Service) ListSessions(ctx context.Context) ([]domain.SessionSummary, error) {
	var out []domain.SessionSummary
	err := s.run(ctx, "list_sessions", "", func(ctx context.Context) error {
		var err error
		out, err = s.store.ListSessions(ctx)
		return err
	})
	return out, err
}

// DeleteSession removes a session.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	return s.run(ctx, "delete_session", id, func(ctx context.Context) error {
		defer s.lock(id)()
		removed, err := s.store.DeleteSession(ctx, id)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil
	})
}

// ApplyResult reports the effect of Apply.
type ApplyResult struct {
	Before  int
	After   int
	Actions []Action
}

// Apply runs ops in order against the session's Current set. Either every
// operation succeeds and Current is replaced once, or nothing changes.
func (s *Service) Apply(ctx context.Context, id string, ops ...Operation) (ApplyResult, error) {
	var res ApplyResult
	err := s.run(ctx, "apply", id, func(ctx context.Context) error {
		defer s.lock(id)()
		sess, err := s.Session(ctx, id)
		if err != nil {
			return err
		}
		current := sess.Current()
		res.Before = current.Len()
		var actions []Action
		for _, op := range ops {
			out, err := op.Apply(ctx, current)
			if err != nil {
				return fmt.Errorf("%s: %w", op.Name(), err)
			}
			action := Action{
				Operation:  op.Name(),
				Parameters: op.Parameters(),
				Before:     current.Len(),
				After:      out.Dataset.Len(),
				Notes:      out.Notes,
				At:         s.clock.Now(),
			}
			for _, n := range out.Notes {
				s.logger.Warn("operation note", "session", id, "operation", op.Name(), "note", n)
			}
			s.logger.Info("operation applied", "session", id, "operation", op.Name(), "before", action.Before, "after", action.After)
			actions = append(actions, action)
			current = out.Dataset
		}
		sess.commit(current, actions...)
		if err := s.store.SaveSession(ctx, sess.Snapshot()); err != nil {
			return err
		}
		res.After = current.Len()
		res.Actions = actions
		return nil
	})
	return res, err
}

// Reset restores Current to Original.
func (s *Service) Reset(ctx context.Context, id string) (Action, error) {
	var action Action
	err := s.run(ctx, "reset", id, func(ctx context.Context) error {
		defer s.lock(id)()
		sess, err := s.Session(ctx, id)
		if err != nil {
			return err
		}
		action = sess.Reset(s.clock.Now())
		s.logger.Info("session reset", "session", id, "records", action.After)
		return s.store.SaveSession(ctx, sess.Snapshot())
	})
	return action, err
}

func (s *Service) scoped(sess *Session, scope Scope) Dataset {
	if scope == ScopeOriginal {
		return sess.Original()
	}
	return sess.Current()
}

func (s *Service) partition(sess *Session, scope Scope, qualify bool) Partition {
	key := partitionKey{session: sess.ID, version: sess.UpdatedAt.UnixNano(), actions: len(sess.history), scope: scope, qualify: qualify}
	if p, ok := s.partitions.Get(key); ok {
		return p
	}
	p := Cluster(s.scoped(sess, scope), ClusterOptions{QualifyBySubtype: qualify, Workers: s.workers})
	s.partitions.Add(key, p)
	return p
}

// Cluster partitions a session's records into clones.
func (s *Service) Cluster(ctx context.Context, id string, scope Scope, qualify bool) (Partition, error) {
	var p Partition
	err := s.run(ctx, "cluster", id, func(ctx context.Context) error {
		sess, err := s.Session(ctx, id)
		if err != nil {
			return err
		}
		p = s.partition(sess, scope, qualify)
		s.logger.Info("clustered", "session", id, "scope", scope, "records", p.Dataset().Len(), "clones", p.Len())
		return nil
	})
	return p, err
}

// TimelineRequest configures a timeline build and its cell selection.
type TimelineRequest struct {
	Scope            Scope
	QualifyBySubtype bool
	Options          TimelineOptions
	// SelectAll selects every active cell; otherwise Cells is used, and an
	// empty Cells selects each row's anchor months.
	SelectAll bool
	Cells     []string
}

// TimelineResult carries a matrix, its selection and the curated preview.
type TimelineResult struct {
	Matrix      TimelineMatrix
	Selection   Selection
	Preview     ImpactPreview
	Methodology Methodology
}

// Timeline builds the matrix and previews the curated set.
func (s *Service) Timeline(ctx context.Context, id string, req TimelineRequest) (TimelineResult, error) {
	var res TimelineResult
	err := s.run(ctx, "timeline", id, func(ctx context.Context) error {
		sess, err := s.Session(ctx, id)
		if err != nil {
			return err
		}
		res, err = s.timeline(sess, req)
		return err
	})
	return res, err
}

func (s *Service) timeline(sess *Session, req TimelineRequest) (TimelineResult, error) {
	p := s.partition(sess, req.Scope, req.QualifyBySubtype)
	matrix := BuildTimeline(p, req.Options)
	for _, a := range matrix.Adjustments {
		s.logger.Warn("parameter adjusted", "session", sess.ID, "parameter", a.Parameter, "detail", a.String())
	}
	var sel Selection
	switch {
	case req.SelectAll:
		sel = FullSelection(matrix)
	case len(req.Cells) > 0:
		var err error
		if sel, err = ParseSelection(req.Cells); err != nil {
			return TimelineResult{}, err
		}
	default:
		sel = AnchorSelection(matrix)
	}
	preview := PreviewImpact(matrix, sel)
	if preview.Delta > 0 {
		s.logger.Warn("curated set exceeds input", "session", sess.ID, "delta", preview.Delta)
	}
	s.logger.Info("timeline built",
		"session", sess.ID,
		"rows", len(matrix.Rows),
		"excluded", len(matrix.Excluded),
		"months", len(matrix.Months),
		"curated", preview.Curated.Len(),
		"compression_percent", preview.CompressionPercent,
		"coverage_percent", preview.CoveragePercent,
	)
	return TimelineResult{
		Matrix:      matrix,
		Selection:   sel,
		Preview:     preview,
		Methodology: NewMethodology(matrix, sel, preview, s.clock.Now()),
	}, nil
}

// ApplyTimeline replaces Current with the curated set of a timeline run.
func (s *Service) ApplyTimeline(ctx context.Context, id string, req TimelineRequest) (TimelineResult, error) {
	var res TimelineResult
	err := s.run(ctx, "apply_timeline", id, func(ctx context.Context) error {
		defer s.lock(id)()
		sess, err := s.Session(ctx, id)
		if err != nil {
			return err
		}
		if res, err = s.timeline(sess, req); err != nil {
			return err
		}
		m := res.Methodology
		action := Action{
			Operation: "timeline_curation",
			Parameters: map[string]any{
				"scope":              string(req.Scope),
				"min_cluster_size":   m.MinClusterSize,
				"representative":     m.RepresentativeLogic,
				"qualify_by_subtype": m.QualifyBySubtype,
				"selected_cells":     len(m.SelectedCells),
			},
			Before: sess.Current().Len(),
			After:  res.Preview.Curated.Len(),
			Notes:  res.Preview.Notes,
			At:     s.clock.Now(),
		}
		sess.commit(res.Preview.Curated, action)
		return s.store.SaveSession(ctx, sess.Snapshot())
	})
	return res, err
}

// IsNotFound reports whether err denotes a missing session.
func IsNotFound(err error) bool { return errors.Is(err, ErrSessionNotFound) }
