package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"virsift/pkg/domain"
)

func snapshot(id string, updated time.Time) domain.SessionSnapshot {
	return domain.SessionSnapshot{
		ID:        id,
		Name:      "session " + id,
		CreatedAt: updated,
		UpdatedAt: updated,
		Original:  []domain.Record{{Ordinal: 0, Header: "a", Sequence: "ACGT"}, {Ordinal: 1, Header: "b", Sequence: "TTTT"}},
		Current:   []int{1},
		History:   []domain.Action{{Operation: "quality_filter", Parameters: map[string]any{"min_length": 4}, Before: 2, After: 1}},
	}
}

func TestStoreRoundTripIsolatesCopies(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	in := snapshot("s1", time.Unix(100, 0).UTC())
	if err := store.SaveSession(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	in.Current[0] = 0
	in.History[0].Parameters["min_length"] = 99

	got, err := store.LoadSession(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Current[0] != 1 || got.History[0].Parameters["min_length"] != 4 {
		t.Fatalf("stored snapshot aliased caller memory: %+v", got)
	}
	got.Original[0].Header = "mutated"
	again, _ := store.LoadSession(ctx, "s1")
	if again.Original[0].Header != "a" {
		t.Fatalf("loaded snapshot aliased store memory")
	}
}

func TestStoreListDeleteAndMissing(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.SaveSession(ctx, snapshot("old", time.Unix(100, 0)))
	_ = store.SaveSession(ctx, snapshot("new", time.Unix(200, 0)))

	list, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "new" || list[0].Current != 1 || list[0].Original != 2 {
		t.Fatalf("unexpected listing %+v", list)
	}
	removed, err := store.DeleteSession(ctx, "old")
	if err != nil || !removed {
		t.Fatalf("delete: %v %v", removed, err)
	}
	if removed, _ := store.DeleteSession(ctx, "old"); removed {
		t.Fatalf("expected second delete to report missing")
	}
	if _, err := store.LoadSession(ctx, "old"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := store.SaveSession(ctx, domain.SessionSnapshot{}); err == nil {
		t.Fatalf("expected empty id to be rejected")
	}
}
