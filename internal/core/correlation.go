package core

import (
	"context"
	"math"

	"silocore/pkg/domain"
)

// Correlation window constants, in simulation time units. These are the
// only two timeouts bounding how long uncorrelated transfer state may
// persist.
const (
	// typeFallbackTTL bounds the content-type fallback store (tier 2).
	typeFallbackTTL SimTime = 2
	// correctionWindow bounds retroactive age correction (tier 3).
	correctionWindow SimTime = 50
)

// bulkQuantityTolerance is the relative slack when matching a decrease
// against a queued bulk increase.
const bulkQuantityTolerance = 0.01

type stagedTransfer struct {
	batches []domain.Batch
	at      SimTime
}

type correctionPointer struct {
	containerID string
	at          SimTime
}

type queuedIncrease struct {
	containerID string
	amount      float64
	at          SimTime
}

// correlator infers age-preserving transfers between containers from
// otherwise uncorrelated increase/decrease notifications. Three tiers are
// tried in order for every destination increase: a direct stage keyed by
// destination id, a short-lived fallback keyed by content type, and a
// retroactive correction of the freshest batch once the source decrease
// shows up. State is ephemeral and never persisted.
type correlator struct {
	direct      map[string]stagedTransfer
	byType      map[string]stagedTransfer
	corrections map[string]correctionPointer
	bulk        map[string][]queuedIncrease
	bulkDepth   int
}

func newCorrelator() *correlator {
	return &correlator{
		direct:      make(map[string]stagedTransfer),
		byType:      make(map[string]stagedTransfer),
		corrections: make(map[string]correctionPointer),
		bulk:        make(map[string][]queuedIncrease),
	}
}

func (c *correlator) prune(now SimTime) {
	for key, st := range c.byType {
		if now-st.at > typeFallbackTTL {
			delete(c.byType, key)
		}
	}
	for key, ptr := range c.corrections {
		if now-ptr.at > correctionWindow {
			delete(c.corrections, key)
		}
	}
}

func (c *correlator) clearContainer(id string) {
	delete(c.direct, id)
	for key, ptr := range c.corrections {
		if ptr.containerID == id {
			delete(c.corrections, key)
		}
	}
	for key, queue := range c.bulk {
		kept := queue[:0]
		for _, q := range queue {
			if q.containerID != id {
				kept = append(kept, q)
			}
		}
		if len(kept) == 0 {
			delete(c.bulk, key)
		} else {
			c.bulk[key] = kept
		}
	}
}

// transferRecords replays consumed batch records into dst, bounded by
// limit, preserving per-batch ages. Returns the quantity moved.
func transferRecords(dst *domain.Ledger, records []domain.Batch, limit float64) float64 {
	var moved float64
	for _, r := range records {
		if moved >= limit {
			break
		}
		q := math.Min(r.Quantity, limit-moved)
		if q <= 0 {
			break
		}
		dst.Add(q, r.Age)
		moved += q
	}
	return moved
}

// weightedAge is the quantity-weighted average age of the records.
func weightedAge(records []domain.Batch) float64 {
	var total, sum float64
	for _, r := range records {
		total += r.Quantity
		sum += r.Quantity * r.Age
	}
	if total <= 0 {
		return 0
	}
	return sum / total
}

// onIncrease routes a destination increase through the three correlation
// tiers. Returns true when the container's ledger changed.
func (c *correlator) onIncrease(dst *domain.Container, contentType string, delta float64, now SimTime) bool {
	c.prune(now)

	if c.bulkDepth > 0 && dst.CanReceive != domain.CapabilityDisabled {
		c.bulk[contentType] = append(c.bulk[contentType], queuedIncrease{containerID: dst.ID, amount: delta, at: now})
		return false
	}

	// Tier 1: direct stage keyed by our own id. Consumed exactly,
	// quantity-bounded against the reported delta; the stage is discarded
	// even when only partially used.
	if st, ok := c.direct[dst.ID]; ok {
		delete(c.direct, dst.ID)
		moved := transferRecords(&dst.Ledger, st.batches, delta)
		if moved < delta {
			dst.Ledger.Add(delta-moved, 0)
		}
		return true
	}

	// Tiers 2 and 3 are skipped for containers whose fill side is
	// non-interactive: internally produced content must not absorb stale
	// cross-flow correlation data.
	if dst.CanReceive != domain.CapabilityDisabled {
		if st, ok := c.byType[contentType]; ok && now-st.at <= typeFallbackTTL {
			delete(c.byType, contentType)
			moved := transferRecords(&dst.Ledger, st.batches, delta)
			if moved < delta {
				dst.Ledger.Add(delta-moved, 0)
			}
			return true
		}
	}

	// No discoverable source yet: materialize fresh and leave a correction
	// pointer so a late source decrease can retrofit the true age.
	dst.Ledger.Add(delta, 0)
	if dst.CanReceive != domain.CapabilityDisabled {
		c.corrections[contentType] = correctionPointer{containerID: dst.ID, at: now}
	}
	return true
}

// onDecrease handles the source side: bulk matching, retroactive
// correction, or staging the consumed records in the content-type fallback.
func (c *correlator) onDecrease(s *Service, src *domain.Container, contentType string, records []domain.Batch, delta float64, now SimTime) {
	c.prune(now)

	if src.CanRelease == domain.CapabilityDisabled {
		return
	}

	if c.bulkDepth > 0 {
		queue := c.bulk[contentType]
		for i, q := range queue {
			if math.Abs(q.amount-delta) > bulkQuantityTolerance*delta {
				continue
			}
			if dst, ok := s.containers[q.containerID]; ok {
				transferRecords(&dst.Ledger, records, q.amount)
				dst.UpdatedAt = s.nowFn()
				after := domain.CloneContainer(*dst)
				s.emitChange(domain.ActionUpdate, nil, &after)
			}
			c.bulk[contentType] = append(queue[:i], queue[i+1:]...)
			return
		}
		return
	}

	// Tier 3: a fresh batch was already created for this content type by an
	// early destination increase. Retrofit the true source age onto that
	// container's most recent batch and re-broadcast it. Only the single
	// most recent fresh batch is corrected per source event.
	if ptr, ok := c.corrections[contentType]; ok && now-ptr.at <= correctionWindow {
		delete(c.corrections, contentType)
		if dst, ok := s.containers[ptr.containerID]; ok && len(dst.Ledger) > 0 {
			dst.Ledger[len(dst.Ledger)-1].Age = weightedAge(records)
			dst.Ledger.MergeSimilar(domain.DefaultMergeAgeTolerance)
			dst.UpdatedAt = s.nowFn()
			after := domain.CloneContainer(*dst)
			s.emitChange(domain.ActionUpdate, nil, &after)
		}
		return
	}

	// Tier 2: stage the exact consumed records for a destination increase
	// that cannot be resolved ahead of time.
	if len(records) > 0 {
		c.byType[contentType] = stagedTransfer{batches: records, at: now}
	}
}

// ReportIncrease processes a "quantity increased" notification for the
// container bound to (handle, contentType). The correlation protocol
// decides whether the increase carries aged material from a known source or
// materializes fresh.
func (s *Service) ReportIncrease(ctx context.Context, handle EntityHandle, contentType string, delta float64) error {
	return s.instrument(ctx, "report_increase", func() error {
		if delta <= 0 {
			return nil
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		id, ok := s.byHandle[handle][contentType]
		if !ok {
			s.logger.Debugf("increase for untracked binding (handle %d, %s)", handle, contentType)
			return nil
		}
		c := s.containers[id]
		s.contentTypeFor(c)
		if s.correlator.onIncrease(c, contentType, delta, s.clock.Now()) {
			c.UpdatedAt = s.nowFn()
			after := domain.CloneContainer(*c)
			s.emitChange(domain.ActionUpdate, nil, &after)
		}
		return nil
	})
}

// ReportDecrease processes a "quantity decreased" notification. The ledger
// is consumed oldest-first; the consumed records feed the correlation
// protocol unless the decrease originates from the scheduler's own
// expiration subtraction (suppressed).
func (s *Service) ReportDecrease(ctx context.Context, handle EntityHandle, contentType string, delta float64) error {
	return s.instrument(ctx, "report_decrease", func() error {
		if delta <= 0 {
			return nil
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.suppress {
			// The scheduler already removed the expired batches; the echoed
			// engine notification must not be read as a transfer.
			return nil
		}
		id, ok := s.byHandle[handle][contentType]
		if !ok {
			s.logger.Debugf("decrease for untracked binding (handle %d, %s)", handle, contentType)
			return nil
		}
		c := s.containers[id]
		s.contentTypeFor(c)
		consumed, records := c.Ledger.ConsumeFIFO(delta)
		s.correlator.onDecrease(s, c, contentType, records, delta, s.clock.Now())
		if consumed > 0 {
			c.UpdatedAt = s.nowFn()
			after := domain.CloneContainer(*c)
			s.emitChange(domain.ActionUpdate, nil, &after)
		}
		return nil
	})
}

// StageTransfer is called by the move coordinator immediately before a
// known move operation executes, while both endpoints can still be
// resolved. It previews the source ledger for the amount about to move and
// stages the result keyed by the destination container id (tier 1).
func (s *Service) StageTransfer(ctx context.Context, srcHandle, dstHandle EntityHandle, contentType string, amount float64) error {
	return s.instrument(ctx, "stage_transfer", func() error {
		if amount <= 0 {
			return nil
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		srcID, okSrc := s.byHandle[srcHandle][contentType]
		dstID, okDst := s.byHandle[dstHandle][contentType]
		if !okSrc || !okDst {
			s.logger.Debugf("stage skipped: unresolved endpoint (src %v, dst %v)", okSrc, okDst)
			return nil
		}
		_, records := s.containers[srcID].Ledger.Peek(amount)
		if len(records) == 0 {
			return nil
		}
		s.correlator.direct[dstID] = stagedTransfer{batches: records, at: s.clock.Now()}
		return nil
	})
}

// BeginBulkTransfer opens a bracket around an operation known to perform
// many uncorrelated increase/decrease pairs in a burst. While the bracket
// is active, increases are queued instead of materialized. Brackets nest.
func (s *Service) BeginBulkTransfer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.correlator.bulkDepth++
}

// EndBulkTransfer closes the bracket. Queued increases still unmatched are
// materialized as fresh age-0 batches: no discoverable source remains.
func (s *Service) EndBulkTransfer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.correlator.bulkDepth == 0 {
		return
	}
	s.correlator.bulkDepth--
	if s.correlator.bulkDepth > 0 {
		return
	}
	for contentType, queue := range s.correlator.bulk {
		for _, q := range queue {
			dst, ok := s.containers[q.containerID]
			if !ok {
				continue
			}
			dst.Ledger.Add(q.amount, 0)
			dst.UpdatedAt = s.nowFn()
			after := domain.CloneContainer(*dst)
			s.emitChange(domain.ActionUpdate, nil, &after)
		}
		delete(s.correlator.bulk, contentType)
	}
}
