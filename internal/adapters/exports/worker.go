package exports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"virsift/internal/blob"
	"virsift/internal/core"
	"virsift/pkg/domain"
)

// Status describes the lifecycle stage of an export.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// DefaultQueueSize bounds pending exports per worker.
const DefaultQueueSize = 32

// Artifact is a stored export file.
type Artifact struct {
	Name        string    `json:"name"`
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	ETag        string    `json:"etag"`
	Records     int       `json:"records"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks an export request and its artifacts.
type Record struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	Scope       core.Scope `json:"scope"`
	Formats     []Format   `json:"formats"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	RequestedBy string     `json:"requested_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (r *Record) copy() Record {
	out := *r
	out.Formats = append([]Format(nil), r.Formats...)
	out.Artifacts = append([]Artifact(nil), r.Artifacts...)
	if r.CompletedAt != nil {
		at := *r.CompletedAt
		out.CompletedAt = &at
	}
	return out
}

// Input is an enqueue request. Timeline is required by the timeline
// formats; when set, the record formats render the curated set of that
// timeline instead of the scoped dataset.
type Input struct {
	SessionID   string
	Scope       core.Scope
	Formats     []Format
	Timeline    *core.TimelineRequest
	SplitBy     domain.FieldKey
	RequestedBy string
}

// Source loads sessions and timelines.
type Source interface {
	Session(ctx context.Context, id string) (*core.Session, error)
	Timeline(ctx context.Context, id string, req core.TimelineRequest) (core.TimelineResult, error)
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the worker logger.
func WithLogger(l core.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithAuditRecorder records an entry for every finished export.
func WithAuditRecorder(a core.AuditRecorder) Option {
	return func(w *Worker) {
		if a != nil {
			w.audit = a
		}
	}
}

// WithClock overrides the worker time source.
func WithClock(c core.Clock) Option {
	return func(w *Worker) {
		if c != nil {
			w.clock = c
		}
	}
}

// WithQueueSize overrides DefaultQueueSize.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// Worker renders and stores exports asynchronously.
type Worker struct {
	source    Source
	store     blob.Store
	logger    core.Logger
	audit     core.AuditRecorder
	clock     core.Clock
	queueSize int

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id    string
	input Input
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}

type discardAudit struct{}

func (discardAudit) Record(context.Context, core.AuditEntry) {}

// NewWorker constructs an export worker; call Start before enqueueing.
func NewWorker(source Source, store blob.Store, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		source:    source,
		store:     store,
		logger:    discardLogger{},
		audit:     discardAudit{},
		clock:     core.ClockFunc(func() time.Time { return time.Now().UTC() }),
		queueSize: DefaultQueueSize,
		jobs:      make(map[string]*Record),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.queue = make(chan task, w.queueSize)
	return w
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop halts the worker and waits for the running export, if any.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

// Enqueue validates input and schedules an export.
func (w *Worker) Enqueue(ctx context.Context, input Input) (Record, error) {
	if w.source == nil || w.store == nil {
		return Record{}, errors.New("export worker not configured")
	}
	if strings.TrimSpace(input.SessionID) == "" {
		return Record{}, errors.New("session id required")
	}
	if input.Scope == "" {
		input.Scope = core.ScopeCurrent
	}
	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatFASTA, FormatMetadataCSV}
	}
	uniq := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{})
	for _, f := range formats {
		if _, err := ParseFormat(string(f)); err != nil {
			return Record{}, err
		}
		if _, dup := seen[f]; dup {
			continue
		}
		if f.NeedsTimeline() && input.Timeline == nil {
			return Record{}, fmt.Errorf("format %s requires a timeline request", f)
		}
		if f == FormatSplitZip && !input.SplitBy.Valid() {
			return Record{}, fmt.Errorf("format %s requires a split field", f)
		}
		seen[f] = struct{}{}
		uniq = append(uniq, f)
	}
	input.Formats = uniq

	now := w.clock.Now()
	rec := Record{
		ID:          uuid.NewString(),
		SessionID:   input.SessionID,
		Scope:       input.Scope,
		Formats:     uniq,
		Status:      StatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	select {
	case w.queue <- task{id: rec.ID, input: input}:
	default:
		w.mu.Unlock()
		return Record{}, errors.New("export queue full")
	}
	w.jobs[rec.ID] = &rec
	snapshot := rec.copy()
	w.mu.Unlock()

	w.logger.Info("export queued", "export", rec.ID, "session", input.SessionID, "formats", len(uniq))
	return snapshot, nil
}

// Get returns a snapshot of an export record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	rec, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return rec.copy(), true
}

// Wait polls until the export finishes or ctx ends.
func (w *Worker) Wait(ctx context.Context, id string) (Record, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		rec, ok := w.Get(id)
		if !ok {
			return Record{}, fmt.Errorf("export %s not found", id)
		}
		if rec.Status == StatusSucceeded || rec.Status == StatusFailed {
			return rec, nil
		}
		select {
		case <-ctx.Done():
			return rec, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Worker) process(t task) {
	// Queued records are registered right after the send, under the same lock.
	w.mu.RLock()
	_, ok := w.jobs[t.id]
	w.mu.RUnlock()
	if !ok {
		return
	}
	started := w.clock.Now()
	w.setStatus(t.id, StatusRunning, "")
	rendered, err := w.render(w.ctx, t.input)
	if err != nil {
		w.finish(t, nil, err, started)
		return
	}
	artifacts := make([]Artifact, 0, len(rendered))
	for _, r := range rendered {
		a, err := w.put(w.ctx, t, r)
		if err != nil {
			if left := w.discard(t, artifacts); len(left) > 0 {
				err = fmt.Errorf("%w; partial artifacts left in store: %s", err, strings.Join(left, ", "))
			}
			w.finish(t, nil, err, started)
			return
		}
		artifacts = append(artifacts, a)
	}
	w.finish(t, artifacts, nil, started)
}

// discard deletes the artifacts of a failed export and returns the keys it
// could not remove.
func (w *Worker) discard(t task, artifacts []Artifact) []string {
	var left []string
	for _, a := range artifacts {
		if _, err := w.store.Delete(w.ctx, a.Key); err != nil {
			w.logger.Warn("partial artifact not removed", "export", t.id, "key", a.Key, "error", err)
			left = append(left, a.Key)
		}
	}
	return left
}

func (w *Worker) render(ctx context.Context, in Input) ([]Rendered, error) {
	sess, err := w.source.Session(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	ds := sess.Current()
	if in.Scope == core.ScopeOriginal {
		ds = sess.Original()
	}
	var tl core.TimelineResult
	if in.Timeline != nil {
		req := *in.Timeline
		req.Scope = in.Scope
		if tl, err = w.source.Timeline(ctx, in.SessionID, req); err != nil {
			return nil, err
		}
		ds = tl.Preview.Curated
	}

	out := make([]Rendered, 0, len(in.Formats))
	for _, f := range in.Formats {
		var r Rendered
		switch f {
		case FormatFASTA:
			r, err = RenderFASTA("curated.fasta", ds)
		case FormatMetadataCSV:
			r, err = RenderMetadataCSV("metadata.csv", ds)
		case FormatClusterCSV:
			r, err = RenderClusterCSV("clusters.csv", tl.Matrix)
		case FormatMatrixCSV:
			r, err = RenderMatrixCSV("timeline_matrix.csv", tl.Matrix)
		case FormatMethodology:
			r, err = RenderMethodology("methodology.json", tl.Methodology)
		case FormatAccessions:
			r, err = RenderAccessions("accessions.txt", ds)
		case FormatSplitZip:
			r, err = RenderSplitZip("split_by_"+in.SplitBy.String()+".zip", ds, in.SplitBy)
		case FormatActionLog:
			r, err = RenderActionLog("actions.json", sess.History())
		}
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", f, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (w *Worker) put(ctx context.Context, t task, r Rendered) (Artifact, error) {
	key := path.Join("exports", t.input.SessionID, t.id, r.Name)
	sum := r.SHA256()
	info, err := w.store.Put(ctx, key, bytes.NewReader(r.Body), blob.PutOptions{
		ContentType: r.ContentType,
		Metadata: map[string]string{
			blob.MetaSHA256: sum,
			"session":       t.input.SessionID,
			"format":        string(r.Format),
			"records":       strconv.Itoa(r.Records),
		},
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("store %s: %w", r.Name, err)
	}
	url, err := w.store.PresignURL(ctx, key, blob.SignedURLOptions{})
	if err != nil && !errors.Is(err, blob.ErrUnsupported) {
		if _, derr := w.store.Delete(ctx, key); derr != nil {
			return Artifact{}, fmt.Errorf("presign %s: %w; partial artifacts left in store: %s", r.Name, err, key)
		}
		return Artifact{}, fmt.Errorf("presign %s: %w", r.Name, err)
	}
	created := info.LastModified
	if created.IsZero() {
		created = w.clock.Now()
	}
	return Artifact{
		Name:        r.Name,
		Key:         key,
		Format:      r.Format,
		ContentType: r.ContentType,
		SizeBytes:   int64(len(r.Body)),
		ETag:        sum,
		Records:     r.Records,
		URL:         url,
		CreatedAt:   created,
	}, nil
}

func (w *Worker) setStatus(id string, status Status, message string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec, ok := w.jobs[id]; ok {
		rec.Status = status
		rec.Error = message
		rec.UpdatedAt = w.clock.Now()
	}
}

func (w *Worker) finish(t task, artifacts []Artifact, err error, started time.Time) {
	now := w.clock.Now()
	status := StatusSucceeded
	entry := core.AuditEntry{Operation: "export", SessionID: t.input.SessionID, Status: core.AuditStatusSuccess, Duration: now.Sub(started), At: now}
	if err != nil {
		status = StatusFailed
		entry.Status = core.AuditStatusError
		entry.Error = err.Error()
	}
	w.mu.Lock()
	if rec, ok := w.jobs[t.id]; ok {
		rec.Status = status
		rec.Artifacts = artifacts
		rec.UpdatedAt = now
		rec.CompletedAt = &now
		if err != nil {
			rec.Error = err.Error()
		}
	}
	w.mu.Unlock()
	w.audit.Record(w.ctx, entry)

	if err != nil {
		w.logger.Error("export failed", "export", t.id, "session", t.input.SessionID, "error", err)
		return
	}
	var total int64
	for _, a := range artifacts {
		total += a.SizeBytes
	}
	w.logger.Info("export stored",
		"export", t.id,
		"session", t.input.SessionID,
		"artifacts", len(artifacts),
		"size", humanize.Bytes(uint64(total)),
		"driver", string(w.store.Driver()),
	)
}
