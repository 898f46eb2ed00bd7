package core

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"

	"vivarium/internal/blob"
	blobfs "vivarium/internal/infra/blob/fs"
	blobmem "vivarium/internal/infra/blob/memory"
	blobs3 "vivarium/internal/infra/blob/s3"
	"vivarium/internal/infra/persistence/memory"
	"vivarium/internal/infra/persistence/postgres"
	"vivarium/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and parameterizes the persistence backend.
type StorageConfig struct {
	Driver      StorageDriver `env:"VIVARIUM_STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string        `env:"VIVARIUM_SQLITE_PATH" envDefault:"./vivarium.db"`
	PostgresDSN string        `env:"VIVARIUM_POSTGRES_DSN"`
}

// ParseStorageConfig loads storage configuration from environment variables.
func ParseStorageConfig() (StorageConfig, error) {
	var cfg StorageConfig
	if err := env.Parse(&cfg); err != nil {
		return StorageConfig{}, fmt.Errorf("parse storage env: %w", err)
	}
	return cfg, nil
}

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	cfg, err := ParseStorageConfig()
	if err != nil {
		return nil, err
	}
	return OpenPersistentStoreWithConfig(cfg, engine)
}

// OpenPersistentStoreWithConfig builds a store from explicit configuration.
func OpenPersistentStoreWithConfig(cfg StorageConfig, engine *RulesEngine) (PersistentStore, error) {
	switch cfg.Driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite, "":
		return sqlite.NewStore(cfg.SQLitePath, engine)
	case StoragePostgres:
		return postgres.NewStore(cfg.PostgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

// OpenArchiveStore selects a snapshot archive backend using environment
// variables. Defaults to the local filesystem.
func OpenArchiveStore(ctx context.Context) (blob.Store, error) {
	cfg, err := blob.ParseConfig()
	if err != nil {
		return nil, err
	}
	return OpenArchiveStoreWithConfig(ctx, cfg)
}

// OpenArchiveStoreWithConfig builds an archive backend from explicit
// configuration.
func OpenArchiveStoreWithConfig(ctx context.Context, cfg blob.Config) (blob.Store, error) {
	switch cfg.Driver {
	case blob.DriverFilesystem, "":
		return blobfs.New(cfg.FSRoot)
	case blob.DriverS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("VIVARIUM_BLOB_S3_BUCKET required for s3 driver")
		}
		return blobs3.New(ctx, blobs3.Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	case blob.DriverMemory:
		return blobmem.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}
