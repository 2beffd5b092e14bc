package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"silocore/internal/blob"
)

// ArchiveSnapshot marshals the current state and writes it to the archive
// store under key. Archived snapshots are immutable; writing an existing key
// fails.
func (s *Service) ArchiveSnapshot(ctx context.Context, store blob.Store, key string) (blob.Info, error) {
	var info blob.Info
	err := s.instrument(ctx, "archive_snapshot", func() error {
		snapshot := s.SnapshotState()
		raw, err := json.MarshalIndent(snapshot, "", "  ")
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		info, err = store.Put(ctx, key, bytes.NewReader(raw), blob.PutOptions{
			ContentType: "application/json",
			Metadata: map[string]string{
				"containers": strconv.Itoa(len(snapshot.Containers)),
				"pool":       strconv.Itoa(len(snapshot.Pool)),
			},
		})
		if err != nil {
			return fmt.Errorf("archive snapshot %s: %w", key, err)
		}
		return nil
	})
	return info, err
}

// LoadArchivedSnapshot fetches and decodes a previously archived snapshot.
func LoadArchivedSnapshot(ctx context.Context, store blob.Store, key string) (Snapshot, error) {
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch snapshot %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	var snapshot Snapshot
	if err := json.NewDecoder(rc).Decode(&snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return snapshot, nil
}
