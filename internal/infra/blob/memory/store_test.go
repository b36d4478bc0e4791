package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"virsift/internal/blob/core"
)

func TestStoreLifecycle(t *testing.T) {
	store := New()
	ctx := context.Background()
	if _, err := store.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	info, err := store.Put(ctx, "exports/s/j/a.csv", strings.NewReader("abc"), core.PutOptions{Metadata: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	// sha256("abc")
	if info.ETag != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("unexpected etag %s", info.ETag)
	}
	if _, err := store.Put(ctx, "exports/s/j/a.csv", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	info.Metadata["k"] = "mutated"
	got, rc, err := store.Get(ctx, "exports/s/j/a.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if string(body) != "abc" || got.Metadata["k"] != "v" {
		t.Fatalf("stored blob should be isolated from callers: %q %+v", body, got)
	}
	if list, _ := store.List(ctx, "exports/s/"); len(list) != 1 {
		t.Fatalf("expected one listed blob, got %d", len(list))
	}
	if ok, _ := store.Delete(ctx, "exports/s/j/a.csv"); !ok {
		t.Fatalf("expected delete to report existing blob")
	}
	if ok, _ := store.Delete(ctx, "exports/s/j/a.csv"); ok {
		t.Fatalf("second delete should report false")
	}
	if _, err := store.PresignURL(ctx, "k", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported presign")
	}
	if _, err := store.Put(ctx, "../x", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected invalid key")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("fail") }

func TestStorePutReadError(t *testing.T) {
	store := New()
	if _, err := store.Put(context.Background(), "bad", failingReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected read error")
	}
	if store.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver")
	}
}
