package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"virsift/pkg/domain"
)

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "virsift.db")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	snap := domain.SessionSnapshot{
		ID:        "s1",
		Name:      "h5 batch",
		CreatedAt: time.Unix(10, 0).UTC(),
		UpdatedAt: time.Unix(20, 0).UTC(),
		Original: []domain.Record{{
			Ordinal:  0,
			Header:   "A/duck/Omsk/1/2023|H5N1|HA|2023-05-01|EPI_1|2.3.4.4b",
			Sequence: "ACGT",
			Fields:   domain.Fields{Name: "A/duck/Omsk/1/2023", Accession: "EPI_1", Date: domain.MustParseDate("2023-05-01")},
		}, {Ordinal: 1, Header: "x", Sequence: "TT"}},
		Current: []int{0},
		History: []domain.Action{{Operation: "quality_filter", Before: 2, After: 1}},
	}
	if err := store.SaveSession(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap.Current = []int{0, 1}
	snap.UpdatedAt = time.Unix(30, 0).UTC()
	if err := store.SaveSession(ctx, snap); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	got, err := reopened.LoadSession(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Current) != 2 || got.Original[0].Fields.Date != domain.MustParseDate("2023-05-01") {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	list, err := reopened.ListSessions(ctx)
	if err != nil || len(list) != 1 || list[0].Actions != 1 {
		t.Fatalf("unexpected listing %+v %v", list, err)
	}
}

func TestStoreDeleteAndMissing(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(filepath.Join(t.TempDir(), "s.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()
	if _, err := store.LoadSession(ctx, "nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_ = store.SaveSession(ctx, domain.SessionSnapshot{ID: "a"})
	removed, err := store.DeleteSession(ctx, "a")
	if err != nil || !removed {
		t.Fatalf("delete: %v %v", removed, err)
	}
	if removed, _ := store.DeleteSession(ctx, "a"); removed {
		t.Fatalf("expected missing on second delete")
	}
}

func TestSaveAfterCloseFails(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "closed.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_ = store.Close()
	if err := store.SaveSession(context.Background(), domain.SessionSnapshot{ID: "x"}); err == nil {
		t.Fatalf("expected error after close")
	}
}
