// Package memory provides the in-memory snapshot store used by tests and
// ephemeral deployments.
package memory

import (
	"sync"

	"silocore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.SnapshotStore = (*Store)(nil)

// Store keeps the latest snapshot in process memory. Load and Save deep-copy
// so callers can never alias internal state.
type Store struct {
	mu       sync.Mutex
	snapshot domain.Snapshot
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{}
}

// Load returns a deep copy of the last saved snapshot.
func (s *Store) Load() (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneSnapshot(s.snapshot), nil
}

// Save replaces the held snapshot with a deep copy of the argument.
func (s *Store) Save(snapshot domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = domain.CloneSnapshot(snapshot)
	return nil
}

// Close implements domain.SnapshotStore.
func (s *Store) Close() error { return nil }
