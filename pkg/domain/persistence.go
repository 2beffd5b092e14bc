package domain

// Snapshot is the unit of persistence: active containers, unreconciled pool
// entries, and accumulated loss statistics. Runtime bindings and resolved
// content-type handles are never part of a snapshot; they are re-resolved
// lazily after load.
type Snapshot struct {
	Containers []Container `json:"containers"`
	Pool       []Container `json:"pool"`
	Statistics Statistics  `json:"statistics"`
}

// CloneSnapshot returns a deep copy of the snapshot.
func CloneSnapshot(s Snapshot) Snapshot {
	cp := Snapshot{Statistics: CloneStatistics(s.Statistics)}
	if s.Containers != nil {
		cp.Containers = make([]Container, len(s.Containers))
		for i, c := range s.Containers {
			cp.Containers[i] = CloneContainer(c)
		}
	}
	if s.Pool != nil {
		cp.Pool = make([]Container, len(s.Pool))
		for i, c := range s.Pool {
			cp.Pool[i] = CloneContainer(c)
		}
	}
	return cp
}

// SnapshotStore is the persistence collaborator contract. Implementations
// must round-trip identity matches and full batch lists losslessly.
type SnapshotStore interface {
	// Load returns the last saved snapshot. A store with no prior state
	// returns an empty snapshot and no error.
	Load() (Snapshot, error)
	// Save replaces the stored snapshot.
	Save(Snapshot) error
	// Close releases any underlying resources.
	Close() error
}
