package core

import (
	"sync"

	"silocore/pkg/domain"
)

// Broadcaster receives container change events for replication to observing
// replicas. Observers are read-only and eventually consistent; nothing they
// do feeds back into core state.
type Broadcaster interface {
	Publish(change domain.Change)
}

// LossReporter receives spoilage notifications. Pure observer.
type LossReporter interface {
	ReportLoss(container domain.Container, removedQuantity float64, location string)
}

type noopBroadcaster struct{}

func (noopBroadcaster) Publish(domain.Change) {}

type noopLossReporter struct{}

func (noopLossReporter) ReportLoss(domain.Container, float64, string) {}

// MemoryBroadcaster retains published changes for inspection. Used by tests
// and as a staging buffer for transports that batch on their own cadence.
type MemoryBroadcaster struct {
	mu      sync.Mutex
	changes []domain.Change
}

// Publish implements Broadcaster.
func (b *MemoryBroadcaster) Publish(change domain.Change) {
	b.mu.Lock()
	b.changes = append(b.changes, change)
	b.mu.Unlock()
}

// Changes returns a copy of all published changes.
func (b *MemoryBroadcaster) Changes() []domain.Change {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Change, len(b.changes))
	copy(out, b.changes)
	return out
}

// Reset clears retained changes.
func (b *MemoryBroadcaster) Reset() {
	b.mu.Lock()
	b.changes = nil
	b.mu.Unlock()
}

func (s *Service) emitChange(action domain.EntityAction, before, after *domain.Container) {
	change := domain.Change{Action: action}
	if before != nil {
		change.ID = before.ID
		if payload, err := domain.NewChangePayloadFromContainer(*before); err == nil {
			change.Before = payload
		}
	}
	if after != nil {
		change.ID = after.ID
		if payload, err := domain.NewChangePayloadFromContainer(*after); err == nil {
			change.After = payload
		}
	}
	s.broadcaster.Publish(change)
}
