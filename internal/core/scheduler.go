package core

import (
	"context"

	"silocore/pkg/domain"
)

// DefaultDriftTolerance is the allowed gap between a ledger total and the
// live authoritative quantity before self-healing kicks in.
const DefaultDriftTolerance = 0.5

// SchedulerConfig tunes the aging sweep.
type SchedulerConfig struct {
	// AgeUnitsPerTimeUnit converts elapsed simulation time into ledger age
	// units (spoilage periods).
	AgeUnitsPerTimeUnit float64
	// DriftTolerance overrides DefaultDriftTolerance when positive.
	DriftTolerance float64
}

// FindingKind classifies per-container scheduler observations.
type FindingKind string

const (
	FindingExpired        FindingKind = "expired"
	FindingNearExpiry     FindingKind = "near_expiry"
	FindingDriftCorrected FindingKind = "drift_corrected"
	FindingAdapterError   FindingKind = "adapter_error"
	FindingUnresolved     FindingKind = "unresolved_content_type"
)

// Finding is a single per-container observation from a sweep. No finding is
// fatal; failures mean "skip this container this cycle".
type Finding struct {
	ContainerID string      `json:"container_id"`
	Kind        FindingKind `json:"kind"`
	Message     string      `json:"message,omitempty"`
	Quantity    float64     `json:"quantity,omitempty"`
}

// TickReport summarizes one scheduler sweep.
type TickReport struct {
	Aged             int       `json:"aged"`
	Skipped          int       `json:"skipped"`
	RemovedTotal     float64   `json:"removed_total"`
	OrphansDiscarded int       `json:"orphans_discarded"`
	Findings         []Finding `json:"findings,omitempty"`
}

// ActiveContainersObserver is an optional metrics extension updated with
// the registry size after every sweep.
type ActiveContainersObserver interface {
	SetActiveContainers(n int)
}

// Scheduler drives aging, expiration, loss accounting, and drift
// self-healing over every active container. It runs once per periodic tick
// in production and on demand for an arbitrary elapsed duration on the
// administrative/test path.
type Scheduler struct {
	svc      *Service
	cfg      SchedulerConfig
	lastTick SimTime
	started  bool
}

// NewScheduler constructs a scheduler over the given registry.
func NewScheduler(svc *Service, cfg SchedulerConfig) *Scheduler {
	if cfg.DriftTolerance <= 0 {
		cfg.DriftTolerance = DefaultDriftTolerance
	}
	return &Scheduler{svc: svc, cfg: cfg}
}

// Tick runs a sweep for the simulation time elapsed since the previous
// tick. The first tick establishes the baseline and also finalizes
// reconciliation: every integration has had its window to register.
func (sch *Scheduler) Tick(ctx context.Context) TickReport {
	now := sch.svc.clock.Now()
	var elapsed SimTime
	if sch.started {
		elapsed = now - sch.lastTick
	}
	sch.started = true
	sch.lastTick = now
	return sch.Run(ctx, elapsed)
}

// Run performs one sweep for an explicit elapsed duration.
func (sch *Scheduler) Run(ctx context.Context, elapsed SimTime) TickReport {
	var report TickReport
	_ = sch.svc.instrument(ctx, "scheduler_sweep", func() error {
		report = sch.run(elapsed)
		return nil
	})
	return report
}

type emptiedCallback struct {
	hook EmptiedHook
	id   string
}

func (sch *Scheduler) run(elapsed SimTime) TickReport {
	svc := sch.svc
	var report TickReport

	if !svc.Finalized() {
		report.OrphansDiscarded = svc.FinalizeReconciliation()
	}
	if !svc.settings.Enabled() {
		return report
	}

	ageInc := float64(elapsed) * sch.cfg.AgeUnitsPerTimeUnit
	if ageInc < 0 {
		ageInc = 0
	}

	svc.mu.Lock()
	ids := make([]string, 0, len(svc.containers))
	for id := range svc.containers {
		ids = append(ids, id)
	}
	svc.mu.Unlock()

	// Deferred so entity deletion cannot destabilize the sweep itself.
	var emptied []emptiedCallback

	for _, id := range ids {
		sch.sweepContainer(id, ageInc, &report, &emptied)
	}

	for _, cb := range emptied {
		cb.hook.OnContainerEmptied(cb.id)
	}

	if obs, ok := svc.metrics.(ActiveContainersObserver); ok {
		svc.mu.Lock()
		n := len(svc.containers)
		svc.mu.Unlock()
		obs.SetActiveContainers(n)
	}
	return report
}

// sweepContainer ages, expires, and drift-heals one container. The
// registry lock is never held across adapter calls; a container failing
// any adapter interaction is skipped for this cycle only.
func (sch *Scheduler) sweepContainer(id string, ageInc float64, report *TickReport, emptied *[]emptiedCallback) {
	svc := sch.svc

	svc.mu.Lock()
	c, ok := svc.containers[id]
	if !ok {
		svc.mu.Unlock()
		return
	}
	handle := svc.handleOf[id]
	contentType := svc.contentTypeFor(c)
	adapter, hasAdapter := svc.adapterFor(handle)
	svc.mu.Unlock()

	if !hasAdapter {
		report.Skipped++
		return
	}
	if ager, ok := adapter.(Ager); ok && !ager.ShouldAge(handle) {
		report.Skipped++
		return
	}
	if contentType == "" {
		report.Skipped++
		report.Findings = append(report.Findings, Finding{ContainerID: id, Kind: FindingUnresolved})
		return
	}

	threshold := svc.settings.ExpirationThreshold(contentType)
	warnAt := svc.settings.WarnThreshold(contentType)

	svc.mu.Lock()
	c, ok = svc.containers[id]
	if !ok {
		svc.mu.Unlock()
		return
	}
	c.Ledger.AgeAll(ageInc)
	removed := c.Ledger.RemoveExpired(threshold)
	if removed > 0 {
		svc.stats.RecordLoss(contentType, removed)
	}
	oldest := c.Ledger.OldestAge()
	snapshot := domain.CloneContainer(*c)
	svc.mu.Unlock()

	report.Aged++

	location := snapshot.Metadata["location"]
	if location == "" {
		location = snapshot.OwnerID
	}

	if removed > 0 {
		report.RemovedTotal += removed
		report.Findings = append(report.Findings, Finding{ContainerID: id, Kind: FindingExpired, Quantity: removed})
		svc.loss.ReportLoss(snapshot, removed, location)
		if lo, ok := svc.metrics.(LossObserver); ok {
			lo.ObserveLoss(contentType, removed)
		}
		svc.setSuppress(true)
		err := adapter.AdjustQuantity(handle, contentType, -removed)
		svc.setSuppress(false)
		if err != nil {
			svc.logger.Warnf("container %s: expiration subtract failed, retry next cycle: %v", id, err)
			report.Findings = append(report.Findings, Finding{ContainerID: id, Kind: FindingAdapterError, Message: err.Error()})
			sch.finishContainer(id)
			return
		}
	} else if oldest >= warnAt && oldest < threshold {
		report.Findings = append(report.Findings, Finding{ContainerID: id, Kind: FindingNearExpiry, Quantity: snapshot.Ledger.Total()})
	}

	live, err := adapter.Quantity(handle, contentType)
	if err != nil {
		svc.logger.Warnf("container %s: quantity probe failed, retry next cycle: %v", id, err)
		report.Findings = append(report.Findings, Finding{ContainerID: id, Kind: FindingAdapterError, Message: err.Error()})
		sch.finishContainer(id)
		return
	}

	svc.mu.Lock()
	if c, ok = svc.containers[id]; ok {
		drift := live - c.Ledger.Total()
		if drift > sch.cfg.DriftTolerance {
			// Under-tracked: a missed increase notification. Attach the
			// surplus to the newest batch.
			if n := len(c.Ledger); n > 0 {
				c.Ledger[n-1].Quantity += drift
			} else {
				c.Ledger.Add(drift, 0)
			}
			report.Findings = append(report.Findings, Finding{ContainerID: id, Kind: FindingDriftCorrected, Quantity: drift})
		} else if drift < -sch.cfg.DriftTolerance {
			c.Ledger.ConsumeFIFO(-drift)
			report.Findings = append(report.Findings, Finding{ContainerID: id, Kind: FindingDriftCorrected, Quantity: drift})
		}
	}
	svc.mu.Unlock()

	if live <= 0 {
		if hook, ok := adapter.(EmptiedHook); ok {
			*emptied = append(*emptied, emptiedCallback{hook: hook, id: id})
		}
	}

	sch.finishContainer(id)
}

// finishContainer re-broadcasts the container after a sweep touched it.
func (sch *Scheduler) finishContainer(id string) {
	svc := sch.svc
	svc.mu.Lock()
	defer svc.mu.Unlock()
	c, ok := svc.containers[id]
	if !ok {
		return
	}
	c.UpdatedAt = svc.nowFn()
	after := domain.CloneContainer(*c)
	svc.emitChange(domain.ActionUpdate, nil, &after)
}

func (s *Service) setSuppress(v bool) {
	s.mu.Lock()
	s.suppress = v
	s.mu.Unlock()
}
