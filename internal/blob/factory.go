package blob

import (
	"context"
	"fmt"
	"strings"

	infraFS "virsift/internal/infra/blob/fs"
	infraMemory "virsift/internal/infra/blob/memory"
	infraS3 "virsift/internal/infra/blob/s3"
)

// S3Config configures the S3 driver.
type S3Config = infraS3.Config

// Config selects and configures an artifact store.
type Config struct {
	Driver string   `mapstructure:"driver"`
	FSRoot string   `mapstructure:"fs_root"`
	S3     S3Config `mapstructure:"s3"`
}

// Open returns the store named by cfg.Driver (fs when empty).
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch Driver(strings.ToLower(strings.TrimSpace(cfg.Driver))) {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewFilesystem stores artifacts under root.
func NewFilesystem(root string) (Store, error) { return infraFS.New(root) }

// NewMemory keeps artifacts in process memory.
func NewMemory() Store { return infraMemory.New() }

// NewS3 publishes artifacts to an S3-compatible bucket.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) { return infraS3.New(ctx, cfg) }

// NewMockS3ForTests exposes the in-memory fake bucket for cross-package tests.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
