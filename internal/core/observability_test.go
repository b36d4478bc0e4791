package core

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"expvar"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"virsift/internal/infra/persistence/memory"
	"virsift/internal/infra/persistence/postgres"
	pgstub "virsift/internal/infra/persistence/postgres/testutil"
	"virsift/internal/infra/persistence/sqlite"
)

func TestExpvarMetricsRecorderPublishesTotals(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	rec.Observe(context.Background(), "apply", true, 2*time.Millisecond)
	rec.Observe(context.Background(), "apply", false, 3*time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Second)

	snap := rec.Snapshot()
	if snap.Results["apply"]["success"] != 1 || snap.Results["apply"]["error"] != 1 {
		t.Fatalf("unexpected results %+v", snap.Results)
	}
	if snap.DurationsMS["apply"] != 5 || len(snap.DurationsMS) != 1 {
		t.Fatalf("unexpected durations %+v", snap.DurationsMS)
	}
	published := expvar.Get(rec.Name())
	if published == nil || !strings.Contains(published.String(), `"durations_ms_total"`) {
		t.Fatalf("expected expvar publication under %s", rec.Name())
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	rec := NewPrometheusMetricsRecorder()
	svc := NewService(memory.NewStore(), WithMetricsRecorder(MultiMetricsRecorder{rec, NewExpvarMetricsRecorder("")}))
	ctx := context.Background()
	if _, err := svc.CreateSession(ctx, "s", nil, timelineFixture().Records()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Reset(ctx, "missing"); err == nil {
		t.Fatalf("expected error")
	}
	if got := testutil.ToFloat64(rec.results.WithLabelValues("create_session", "success")); got != 1 {
		t.Fatalf("expected one create_session success, got %v", got)
	}
	if got := testutil.ToFloat64(rec.results.WithLabelValues("reset", "error")); got != 1 {
		t.Fatalf("expected one reset error, got %v", got)
	}
	if n := testutil.CollectAndCount(rec.duration); n != 2 {
		t.Fatalf("expected two histogram series, got %d", n)
	}

	path := filepath.Join(t.TempDir(), "virsift.prom")
	if err := rec.WriteTextfile(path); err != nil {
		t.Fatalf("textfile: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(raw), "virsift_operations_total") {
		t.Fatalf("textfile missing counter:\n%s", raw)
	}
}

func TestJSONTracerWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	svc := NewService(memory.NewStore(), WithTracer(tracer))
	ctx := context.Background()
	if _, err := svc.ListSessions(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := svc.DeleteSession(ctx, "missing"); err == nil {
		t.Fatalf("expected error")
	}
	entries := tracer.Entries()
	if len(entries) != 2 || entries[0].Status != "success" || entries[1].Status != "error" || entries[1].Error == "" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two JSON lines, got %q", buf.String())
	}
	var decoded JSONTraceEntry
	if err := json.Unmarshal([]byte(lines[1]), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Operation != "delete_session" {
		t.Fatalf("unexpected span %+v", decoded)
	}
	if len(NewJSONTracer(nil).Entries()) != 0 {
		t.Fatalf("fresh tracer should be empty")
	}
}

func TestServiceOptionsIgnoreNil(t *testing.T) {
	cfg := defaultServiceOptions()
	for _, opt := range []ServiceOption{WithClock(nil), WithLogger(nil), WithAuditRecorder(nil), WithMetricsRecorder(nil), WithTracer(nil), WithPartitionCache(0), WithWorkers(-4)} {
		opt(&cfg)
	}
	if cfg.clock == nil || cfg.logger == nil || cfg.audit == nil || cfg.metrics == nil || cfg.tracer == nil {
		t.Fatalf("nil options should keep defaults")
	}
	if cfg.cacheSize != 16 || cfg.workers != 0 {
		t.Fatalf("unexpected sizes %d/%d", cfg.cacheSize, cfg.workers)
	}
}

func TestOpenSessionStoreDrivers(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSessionStore(ctx, StorageConfig{Driver: "Memory"})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}

	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err = OpenSessionStore(ctx, StorageConfig{SQLitePath: path})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer store.Close()
	if s, ok := store.(*sqlite.Store); !ok || s.Path() != path {
		t.Fatalf("expected sqlite store at %s, got %T", path, store)
	}

	db, _ := pgstub.NewStubDB()
	restore := postgres.OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	store, err = OpenSessionStore(ctx, StorageConfig{Driver: StoragePostgres, PostgresDSN: "postgres://example/virsift"})
	if err != nil {
		t.Fatalf("postgres: %v", err)
	}
	if _, ok := store.(*postgres.Store); !ok {
		t.Fatalf("expected postgres store, got %T", store)
	}

	if _, err := OpenSessionStore(ctx, StorageConfig{Driver: "redis"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	restoreFail := postgres.OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("dial") })
	defer restoreFail()
	if _, err := OpenSessionStore(ctx, StorageConfig{Driver: StoragePostgres}); err == nil {
		t.Fatalf("expected postgres open error")
	}
}
