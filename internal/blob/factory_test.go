package blob

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "artifacts")
	cases := []struct {
		cfg  Config
		want Driver
	}{
		{Config{FSRoot: root}, DriverFilesystem},
		{Config{Driver: "FS", FSRoot: root}, DriverFilesystem},
		{Config{Driver: "memory"}, DriverMemory},
		{Config{Driver: "s3", S3: S3Config{Bucket: "b", Region: "eu-west-1"}}, DriverS3},
	}
	for _, tc := range cases {
		store, err := Open(ctx, tc.cfg)
		if err != nil {
			t.Fatalf("open %+v: %v", tc.cfg, err)
		}
		if store.Driver() != tc.want {
			t.Fatalf("expected %s, got %s", tc.want, store.Driver())
		}
	}
	if _, err := Open(ctx, Config{Driver: "gcs"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(ctx, Config{Driver: "s3"}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}

func TestStoresShareSemantics(t *testing.T) {
	ctx := context.Background()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("fs: %v", err)
	}
	for _, store := range []Store{NewMemory(), fsStore, NewMockS3ForTests()} {
		if _, err := store.Put(ctx, "exports/s/j/a.txt", bytes.NewReader([]byte("abc")), PutOptions{ContentType: "text/plain"}); err != nil {
			t.Fatalf("%s put: %v", store.Driver(), err)
		}
		if _, err := store.Put(ctx, "exports/s/j/a.txt", bytes.NewReader([]byte("abc")), PutOptions{}); !errors.Is(err, ErrExists) {
			t.Fatalf("%s: expected ErrExists, got %v", store.Driver(), err)
		}
		if _, err := store.Head(ctx, "exports/s/j/missing.txt"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", store.Driver(), err)
		}
		info, err := store.Head(ctx, "exports/s/j/a.txt")
		if err != nil || info.Size != 3 {
			t.Fatalf("%s head: %+v %v", store.Driver(), info, err)
		}
	}
}
