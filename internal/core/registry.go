package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"silocore/pkg/domain"
)

// ErrInvalidRegistration is returned when registration input is missing an
// anchor or descriptor or names an unknown family. Callers must treat the
// entity as untracked.
var ErrInvalidRegistration = errors.New("invalid registration")

// ErrNotFound is returned when a container id does not resolve.
type ErrNotFound struct {
	ID string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("container %s not found", e.ID)
}

// Service is the container registry. It owns all containers, the
// reconciliation pool, the entity index, and the transfer correlation
// state. One Service is constructed per session with injected settings,
// persistence, and clock; there is no ambient global instance.
//
// All mutation happens on the single authoritative execution context. The
// mutex only guards against accidental cross-goroutine use by embedders.
type Service struct {
	mu          sync.Mutex
	settings    Settings
	store       domain.SnapshotStore
	clock       Clock
	logger      Logger
	metrics     MetricsRecorder
	tracer      Tracer
	broadcaster Broadcaster
	loss        LossReporter
	nowFn       func() time.Time

	containers   map[string]*domain.Container
	pool         map[string]*domain.Container
	adapters     map[domain.EntityFamily]Adapter
	handleFamily map[EntityHandle]domain.EntityFamily
	byHandle     map[EntityHandle]map[string]string
	handleOf     map[string]EntityHandle
	correlator   *correlator
	stats        domain.Statistics

	nextHandle uint64
	finalized  bool
	suppress   bool
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithLogger injects a logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics injects a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer injects a tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithBroadcaster injects the replication observer.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) {
		if b != nil {
			s.broadcaster = b
		}
	}
}

// WithLossReporter injects the loss-accounting collaborator.
func WithLossReporter(l LossReporter) Option {
	return func(s *Service) {
		if l != nil {
			s.loss = l
		}
	}
}

// WithClock injects the simulation clock.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewService constructs the registry, hydrating the reconciliation pool
// from the persistence collaborator. A nil store yields an ephemeral
// registry (tests, throwaway sessions).
func NewService(store domain.SnapshotStore, settings Settings, opts ...Option) (*Service, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings collaborator required")
	}
	s := &Service{
		settings:     settings,
		store:        store,
		clock:        &ManualClock{},
		logger:       NoopLogger{},
		metrics:      noopMetrics{},
		tracer:       noopTracer{},
		broadcaster:  noopBroadcaster{},
		loss:         noopLossReporter{},
		nowFn:        func() time.Time { return time.Now().UTC() },
		containers:   make(map[string]*domain.Container),
		pool:         make(map[string]*domain.Container),
		adapters:     make(map[domain.EntityFamily]Adapter),
		handleFamily: make(map[EntityHandle]domain.EntityFamily),
		byHandle:     make(map[EntityHandle]map[string]string),
		handleOf:     make(map[string]EntityHandle),
		correlator:   newCorrelator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if store != nil {
		snapshot, err := store.Load()
		if err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		for _, c := range append(snapshot.Containers, snapshot.Pool...) {
			cp := domain.CloneContainer(c)
			// Resolved handles are never persisted; every loaded container
			// waits in the pool for its live entity to register.
			cp.ContentType = ""
			s.pool[cp.ID] = &cp
		}
		s.stats = domain.CloneStatistics(snapshot.Statistics)
	}
	return s, nil
}

// Register tracks a live (entity, content-type) pairing. It first attempts
// to reconcile against the pool of persisted containers; live state always
// wins over persisted state on a match. The returned bool reports whether a
// persisted container was reconciled.
func (s *Service) Register(ctx context.Context, family domain.EntityFamily, identity domain.IdentityMatch, handle EntityHandle, metadata map[string]string) (string, bool, error) {
	var id string
	var reconciled bool
	err := s.instrument(ctx, "register", func() error {
		if !domain.KnownFamily(family) {
			s.logger.Warnf("registration refused: unknown family %q", family)
			return fmt.Errorf("%w: unknown family %q", ErrInvalidRegistration, family)
		}
		if !identity.Complete() {
			s.logger.Warnf("registration refused: incomplete identity for family %q", family)
			return fmt.Errorf("%w: anchor and descriptor required", ErrInvalidRegistration)
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		contentKey := identity.Descriptor.ContentType

		// At most one container per (entity, content-type) pair while live.
		if handle != NoHandle {
			if existing, ok := s.byHandle[handle][contentKey]; ok {
				s.logger.Debugf("register: handle %d already tracks %q as %s", handle, contentKey, existing)
				id = existing
				return nil
			}
		}

		if matched := s.findMatchingContainer(family, identity); matched != nil {
			delete(s.pool, matched.ID)
			before := domain.CloneContainer(*matched)
			s.adoptLiveState(matched, identity, handle, metadata)
			s.containers[matched.ID] = matched
			s.bind(matched.ID, contentKey, handle)
			after := domain.CloneContainer(*matched)
			s.emitChange(domain.ActionUpdate, &before, &after)
			id = matched.ID
			reconciled = true
			return nil
		}

		c := &domain.Container{
			ID:        uuid.NewString(),
			Family:    family,
			CreatedAt: s.nowFn(),
		}
		s.adoptLiveState(c, identity, handle, metadata)
		s.containers[c.ID] = c
		s.bind(c.ID, contentKey, handle)
		after := domain.CloneContainer(*c)
		s.emitChange(domain.ActionCreate, nil, &after)
		id = c.ID
		return nil
	})
	return id, reconciled, err
}

// adoptLiveState overwrites a container's identity, content type,
// capabilities, owner, and metadata with freshly supplied live values.
func (s *Service) adoptLiveState(c *domain.Container, identity domain.IdentityMatch, handle EntityHandle, metadata map[string]string) {
	c.Identity = domain.CloneIdentityMatch(identity)
	c.ContentType = s.resolveContentType(identity.Descriptor.ContentType)
	if c.ContentType == "" {
		s.logger.Warnf("container %s: content type %q unresolved, will retry lazily", c.ID, identity.Descriptor.ContentType)
	}
	c.CanReceive, c.CanRelease = domain.CapabilityUnknown, domain.CapabilityUnknown
	liveOwner := ""
	if handle != NoHandle {
		if a, ok := s.adapterFor(handle); ok {
			if prober, ok := a.(CapabilityProber); ok {
				c.CanReceive, c.CanRelease = prober.ProbeCapabilities(handle)
			}
			if owner, ok := a.(OwnerProvider); ok {
				liveOwner = owner.Owner(handle)
			}
		}
	}
	if liveOwner == "" {
		liveOwner = metadata["owner"]
	}
	// Live values overwrite persisted ones; a persisted owner survives only
	// when the live side supplies none.
	if liveOwner != "" {
		c.OwnerID = liveOwner
	}
	if metadata != nil {
		if c.Metadata == nil {
			c.Metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			c.Metadata[k] = v
		}
	}
	c.UpdatedAt = s.nowFn()
}

// findMatchingContainer scans the pool, filtered by family first, then full
// identity match. The first match wins; no tie-break is applied when
// several pool entries would match (documented limitation).
func (s *Service) findMatchingContainer(family domain.EntityFamily, incoming domain.IdentityMatch) *domain.Container {
	for _, c := range s.pool {
		if c.Family != family {
			continue
		}
		if domain.IdentityMatches(c.Identity, incoming) {
			return c
		}
	}
	return nil
}

func (s *Service) bind(id, contentKey string, handle EntityHandle) {
	if handle == NoHandle {
		return
	}
	if s.byHandle[handle] == nil {
		s.byHandle[handle] = make(map[string]string)
	}
	s.byHandle[handle][contentKey] = id
	s.handleOf[id] = handle
}

// Unregister removes a container whose backing entity was deleted. It
// clears the reverse lookup and any correlation state referencing the
// container, then emits a delete change.
func (s *Service) Unregister(ctx context.Context, id string) error {
	return s.instrument(ctx, "unregister", func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		c, ok := s.containers[id]
		if !ok {
			return ErrNotFound{ID: id}
		}
		delete(s.containers, id)
		if handle, ok := s.handleOf[id]; ok {
			delete(s.handleOf, id)
			if index := s.byHandle[handle]; index != nil {
				for key, cid := range index {
					if cid == id {
						delete(index, key)
					}
				}
				if len(index) == 0 {
					delete(s.byHandle, handle)
				}
			}
		}
		s.correlator.clearContainer(id)
		before := domain.CloneContainer(*c)
		s.emitChange(domain.ActionDelete, &before, nil)
		return nil
	})
}

// FinalizeReconciliation discards the remaining pool entries as orphans.
// It is invoked on the first scheduler tick after load, once every
// integration has had a window to register. Orphans represent expected
// data loss (the backing entity no longer exists) and are never retried.
func (s *Service) FinalizeReconciliation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return 0
	}
	s.finalized = true
	discarded := 0
	for id, c := range s.pool {
		s.logger.Infof("reconciliation: discarding orphan container %s (%s, %s, %.1f units)",
			id, c.Family, c.Identity.Descriptor.ContentType, c.Ledger.Total())
		delete(s.pool, id)
		discarded++
	}
	return discarded
}

// Finalized reports whether reconciliation finalization has run.
func (s *Service) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized
}

// Container returns a copy of the identified active container.
func (s *Service) Container(id string) (domain.Container, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.containers[id]
	if !ok {
		return domain.Container{}, false
	}
	return domain.CloneContainer(*c), true
}

// ContainerByBinding resolves the container tracking (handle, content type).
func (s *Service) ContainerByBinding(handle EntityHandle, contentType string) (domain.Container, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byHandle[handle][contentType]
	if !ok {
		return domain.Container{}, false
	}
	return domain.CloneContainer(*s.containers[id]), true
}

// ListContainers returns copies of all active containers, ordered by id.
func (s *Service) ListContainers() []domain.Container {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Container, 0, len(s.containers))
	for _, c := range s.containers {
		out = append(out, domain.CloneContainer(*c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PoolSize returns the number of persisted containers still awaiting
// reconciliation.
func (s *Service) PoolSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pool)
}

// Statistics returns a copy of the accumulated loss statistics.
func (s *Service) Statistics() domain.Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneStatistics(s.stats)
}

// SnapshotState exports the registry for persistence: active containers,
// any pool entries not yet finalized, and statistics.
func (s *Service) SnapshotState() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Service) snapshotLocked() domain.Snapshot {
	snap := domain.Snapshot{Statistics: domain.CloneStatistics(s.stats)}
	for _, c := range s.containers {
		snap.Containers = append(snap.Containers, domain.CloneContainer(*c))
	}
	for _, c := range s.pool {
		snap.Pool = append(snap.Pool, domain.CloneContainer(*c))
	}
	sort.Slice(snap.Containers, func(i, j int) bool { return snap.Containers[i].ID < snap.Containers[j].ID })
	sort.Slice(snap.Pool, func(i, j int) bool { return snap.Pool[i].ID < snap.Pool[j].ID })
	return snap
}

// SaveSnapshot persists the current registry state through the persistence
// collaborator.
func (s *Service) SaveSnapshot(ctx context.Context) error {
	return s.instrument(ctx, "save_snapshot", func() error {
		if s.store == nil {
			return fmt.Errorf("no persistence collaborator configured")
		}
		s.mu.Lock()
		snap := s.snapshotLocked()
		s.mu.Unlock()
		if err := s.store.Save(snap); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		return nil
	})
}

// resolveContentType checks the descriptor name against the settings
// collaborator. Unknown names stay unresolved and are retried on next use.
func (s *Service) resolveContentType(name string) string {
	if s.settings.KnownContentType(name) {
		return name
	}
	return ""
}

// contentTypeFor lazily re-resolves a container's content type.
func (s *Service) contentTypeFor(c *domain.Container) string {
	if c.ContentType != "" {
		return c.ContentType
	}
	if c.Identity.Descriptor == nil {
		return ""
	}
	c.ContentType = s.resolveContentType(c.Identity.Descriptor.ContentType)
	return c.ContentType
}
