package core

import (
	"context"
	"fmt"
	"strings"

	"virsift/internal/infra/persistence/memory"
	"virsift/internal/infra/persistence/postgres"
	"virsift/internal/infra/persistence/sqlite"
	"virsift/pkg/domain"
)

// StorageDriver identifies a session store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / one-shot runs)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and configures the session store.
type StorageConfig struct {
	Driver      StorageDriver `mapstructure:"driver"`
	SQLitePath  string        `mapstructure:"sqlite_path"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
}

// OpenSessionStore opens the configured store. An empty driver means sqlite.
func OpenSessionStore(ctx context.Context, cfg StorageConfig) (domain.SessionStore, error) {
	driver := StorageDriver(strings.ToLower(strings.TrimSpace(string(cfg.Driver))))
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}
