package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"virsift/internal/infra/persistence/memory"
)

type captureAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			return true
		}
	}
	return false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	mu    sync.Mutex
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	mu    sync.Mutex
	ended []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type captureLogger struct {
	mu    sync.Mutex
	calls []string
}

func (l *captureLogger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, level+":"+msg)
}

func (l *captureLogger) Debug(msg string, _ ...any) { l.log("debug", msg) }
func (l *captureLogger) Info(msg string, _ ...any)  { l.log("info", msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.log("warn", msg) }
func (l *captureLogger) Error(msg string, _ ...any) { l.log("error", msg) }

func (l *captureLogger) count(entry string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		if c == entry {
			n++
		}
	}
	return n
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, string) {
	t.Helper()
	clock := &stepClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	svc := NewService(memory.NewStore(), append([]ServiceOption{WithClock(clock)}, opts...)...)
	records := timelineFixture().Records()
	for i := range records {
		records[i].Ordinal = 100 + i
	}
	summary, err := svc.CreateSession(context.Background(), "h5 survey", []string{"fixture.fasta"}, records)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return svc, summary.ID
}

func TestServiceCreateAndList(t *testing.T) {
	svc, id := newTestService(t)
	ctx := context.Background()
	sess, err := svc.Session(ctx, id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sess.Original().Len() != 7 || sess.Current().Len() != 7 {
		t.Fatalf("unexpected sizes %d/%d", sess.Original().Len(), sess.Current().Len())
	}
	for i := 0; i < sess.Original().Len(); i++ {
		if sess.Original().At(i).Ordinal != i {
			t.Fatalf("ordinals not reassigned: %d at %d", sess.Original().At(i).Ordinal, i)
		}
	}
	anon, err := svc.CreateSession(ctx, "  ", nil, nil)
	if err != nil {
		t.Fatalf("create empty: %v", err)
	}
	if anon.Name != anon.ID[:8] || anon.Original != 0 {
		t.Fatalf("unexpected anonymous session %+v", anon)
	}
	list, err := svc.ListSessions(ctx)
	if err != nil || len(list) != 2 || list[0].ID != anon.ID {
		t.Fatalf("unexpected listing %+v %v", list, err)
	}
}

func TestServiceApplyIsAtomic(t *testing.T) {
	logger := &captureLogger{}
	svc, id := newTestService(t, WithLogger(logger))
	ctx := context.Background()

	res, err := svc.Apply(ctx, id, NewQualityFilter(-3, 0), Deduplicator{})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Before != 7 || res.After != 4 || len(res.Actions) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Actions[0].Notes == nil || logger.count("warn:operation note") != 1 {
		t.Fatalf("expected clamp note logged once")
	}

	if _, err := svc.Apply(ctx, id, SubtypeFilter{Subtypes: []string{"H3N2"}}, failingOp{}); err == nil || !strings.Contains(err.Error(), "failing") {
		t.Fatalf("expected failing op error, got %v", err)
	}
	sess, _ := svc.Session(ctx, id)
	if sess.Current().Len() != 4 || len(sess.History()) != 2 {
		t.Fatalf("failed apply must not change the session: %d records %d actions", sess.Current().Len(), len(sess.History()))
	}
	if logger.count("error:operation failed") != 1 {
		t.Fatalf("expected failure logged")
	}
}

func TestServiceResetRestoresOriginal(t *testing.T) {
	svc, id := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Apply(ctx, id, AccessionFilter{Set: NewAccessionSet("A1")}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	action, err := svc.Reset(ctx, id)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if action.Before != 1 || action.After != 7 || action.Operation != "reset" {
		t.Fatalf("unexpected reset action %+v", action)
	}
	sess, _ := svc.Session(ctx, id)
	if sess.Current().Len() != 7 || len(sess.History()) != 2 {
		t.Fatalf("unexpected session after reset")
	}
}

func TestServiceTimelineAndApplyTimeline(t *testing.T) {
	svc, id := newTestService(t)
	ctx := context.Background()
	req := TimelineRequest{Options: TimelineOptions{MinClusterSize: 2, Policy: Earliest}}

	preview, err := svc.Timeline(ctx, id, req)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if preview.Preview.Curated.Len() != 5 || preview.Methodology.OutputSequenceCount != 5 {
		t.Fatalf("unexpected preview %+v", preview.Preview)
	}
	sess, _ := svc.Session(ctx, id)
	if sess.Current().Len() != 7 {
		t.Fatalf("timeline preview must not modify the session")
	}

	applied, err := svc.ApplyTimeline(ctx, id, req)
	if err != nil {
		t.Fatalf("apply timeline: %v", err)
	}
	sess, _ = svc.Session(ctx, id)
	if !equalStrings(accessions(sess.Current()), accessions(applied.Preview.Curated)) {
		t.Fatalf("current %v != curated %v", accessions(sess.Current()), accessions(applied.Preview.Curated))
	}
	history := sess.History()
	if len(history) != 1 || history[0].Operation != "timeline_curation" || history[0].After != 5 {
		t.Fatalf("unexpected history %+v", history)
	}

	original, err := svc.Timeline(ctx, id, TimelineRequest{Scope: ScopeOriginal, Options: req.Options, SelectAll: true})
	if err != nil {
		t.Fatalf("timeline original: %v", err)
	}
	if original.Preview.InputCount != 7 {
		t.Fatalf("original scope should cluster every record, got %d", original.Preview.InputCount)
	}

	if _, err := svc.Timeline(ctx, id, TimelineRequest{Cells: []string{"not-a-cell"}}); err == nil {
		t.Fatalf("expected cell parse error")
	}
}

func TestServiceClusterUsesCache(t *testing.T) {
	svc, id := newTestService(t, WithPartitionCache(4), WithWorkers(2))
	ctx := context.Background()
	first, err := svc.Cluster(ctx, id, ScopeCurrent, false)
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	if svc.partitions.Len() != 1 {
		t.Fatalf("expected cached partition")
	}
	second, _ := svc.Cluster(ctx, id, ScopeCurrent, false)
	if first.Len() != 4 || second.Len() != first.Len() {
		t.Fatalf("unexpected clone counts %d/%d", first.Len(), second.Len())
	}
	if _, err := svc.Cluster(ctx, id, ScopeCurrent, true); err != nil {
		t.Fatalf("cluster qualified: %v", err)
	}
	if svc.partitions.Len() != 2 || svc.Workers() != 2 {
		t.Fatalf("expected separate cache entries, got %d", svc.partitions.Len())
	}
}

func TestServiceUnknownSession(t *testing.T) {
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	svc, _ := newTestService(t, WithAuditRecorder(audit), WithMetricsRecorder(metrics), WithTracer(tracer))
	ctx := context.Background()

	if _, err := svc.Apply(ctx, "missing", Deduplicator{}); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Timeline(ctx, "missing", TimelineRequest{}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := svc.DeleteSession(ctx, "missing"); !IsNotFound(err) {
		t.Fatalf("expected not found on delete, got %v", err)
	}
	if !audit.has("apply", AuditStatusError) || !audit.has("create_session", AuditStatusSuccess) {
		t.Fatalf("expected audit entries, got %+v", audit.entries)
	}
	if !metrics.has("timeline", false) || !metrics.has("create_session", true) {
		t.Fatalf("expected metrics calls, got %+v", metrics.calls)
	}
	if len(tracer.ended) != 4 || tracer.ended[3].op != "delete_session" || tracer.ended[3].err == nil {
		t.Fatalf("unexpected spans %+v", tracer.ended)
	}
}

func TestServiceDeleteSession(t *testing.T) {
	svc, id := newTestService(t)
	ctx := context.Background()
	if err := svc.DeleteSession(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Session(ctx, id); !IsNotFound(err) {
		t.Fatalf("expected deleted session to be gone, got %v", err)
	}
}

func TestServiceConcurrentAppliesSerialize(t *testing.T) {
	svc, id := newTestService(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Apply(ctx, id, NewQualityFilter(i%3, 0))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	sess, _ := svc.Session(ctx, id)
	if got := len(sess.History()); got != 8 {
		t.Fatalf("expected every apply recorded, got %d", got)
	}
}

func TestParseScope(t *testing.T) {
	for in, want := range map[string]Scope{"": ScopeCurrent, "Original": ScopeOriginal, "current": ScopeCurrent} {
		if got, err := ParseScope(in); err != nil || got != want {
			t.Fatalf("%q: got %s %v", in, got, err)
		}
	}
	if _, err := ParseScope("both"); err == nil {
		t.Fatalf("expected scope error")
	}
}
