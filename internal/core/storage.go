package core

import (
	"fmt"
	"os"

	"silocore/internal/infra/persistence/memory"
	"silocore/internal/infra/persistence/postgres"
	"silocore/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete snapshot store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenSnapshotStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	SILOCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	SILOCORE_SQLITE_PATH: path to sqlite file (default ./silocore.db)
//	SILOCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenSnapshotStore() (SnapshotStore, error) {
	driver := os.Getenv("SILOCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		path := os.Getenv("SILOCORE_SQLITE_PATH")
		return sqlite.NewStore(path)
	case StoragePostgres:
		dsn := os.Getenv("SILOCORE_POSTGRES_DSN")
		return postgres.NewStore(dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
