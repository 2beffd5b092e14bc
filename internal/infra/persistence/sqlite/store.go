// Package sqlite persists snapshots to a single SQLite table as JSON blobs.
package sqlite

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"database/sql"

	"silocore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.SnapshotStore = (*Store)(nil)

var buckets = []string{"containers", "pool", "statistics"}

// Store writes the full snapshot after every Save. One row per bucket keeps
// the schema stable while the payload shape evolves.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database at path and ensures the state
// table exists. An empty path falls back to ./silocore.db.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "silocore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Load reads all buckets and assembles the snapshot. A missing or empty
// table yields the zero snapshot.
func (s *Store) Load() (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot domain.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return domain.Snapshot{}, fmt.Errorf("scan state: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		switch bucket {
		case "containers":
			if err := json.Unmarshal(payload, &snapshot.Containers); err != nil {
				return domain.Snapshot{}, fmt.Errorf("decode containers: %w", err)
			}
		case "pool":
			if err := json.Unmarshal(payload, &snapshot.Pool); err != nil {
				return domain.Snapshot{}, fmt.Errorf("decode pool: %w", err)
			}
		case "statistics":
			if err := json.Unmarshal(payload, &snapshot.Statistics); err != nil {
				return domain.Snapshot{}, fmt.Errorf("decode statistics: %w", err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, nil
}

// Save upserts every bucket inside one transaction.
func (s *Store) Save(snapshot domain.Snapshot) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range buckets {
		var data []byte
		switch bucket {
		case "containers":
			data, err = json.Marshal(snapshot.Containers)
		case "pool":
			data, err = json.Marshal(snapshot.Pool)
		case "statistics":
			data, err = json.Marshal(snapshot.Statistics)
		}
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	return tx.Commit()
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
