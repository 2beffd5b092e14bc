package core

import (
	"os"
	"path/filepath"
	"testing"

	"silocore/internal/infra/persistence/memory"
	"silocore/internal/infra/persistence/sqlite"
)

func withEnv(key, value string, fn func()) {
	prev, had := os.LookupEnv(key)
	_ = os.Setenv(key, value)
	defer func() {
		if had {
			_ = os.Setenv(key, prev)
		} else {
			_ = os.Unsetenv(key)
		}
	}()
	fn()
}

func TestOpenSnapshotStoreMemory(t *testing.T) {
	withEnv("SILOCORE_STORAGE_DRIVER", "memory", func() {
		store, err := OpenSnapshotStore()
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		defer func() { _ = store.Close() }()
		if _, ok := store.(*memory.Store); !ok {
			t.Fatalf("expected memory store, got %T", store)
		}
	})
}

func TestOpenSnapshotStoreDefaultSQLite(t *testing.T) {
	dir := t.TempDir()
	withEnv("SILOCORE_STORAGE_DRIVER", "", func() {
		withEnv("SILOCORE_SQLITE_PATH", filepath.Join(dir, "state.db"), func() {
			store, err := OpenSnapshotStore()
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer func() { _ = store.Close() }()
			ss, ok := store.(*sqlite.Store)
			if !ok {
				t.Fatalf("expected sqlite store, got %T", store)
			}
			if ss.Path() != filepath.Join(dir, "state.db") {
				t.Fatalf("unexpected path %s", ss.Path())
			}
		})
	})
}

func TestOpenSnapshotStoreUnknownDriver(t *testing.T) {
	withEnv("SILOCORE_STORAGE_DRIVER", "gibberish", func() {
		if _, err := OpenSnapshotStore(); err == nil {
			t.Fatalf("expected unknown driver error")
		}
	})
}
