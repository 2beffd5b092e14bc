package core

import (
	"fmt"

	"silocore/pkg/domain"
)

// EntityHandle is an opaque arena handle assigned to every live entity at
// adapter-registration time. The registry indexes containers by handle
// instead of relying on reference identity of engine objects. Zero means
// "no runtime binding".
type EntityHandle uint64

// NoHandle is the absent runtime binding.
const NoHandle EntityHandle = 0

// Adapter is the integration contract implemented once per entity family.
// All calls are made from the authoritative execution context; failures are
// isolated per container per cycle and never propagate.
type Adapter interface {
	// Family returns the entity family this adapter serves.
	Family() domain.EntityFamily
	// Quantity returns the live authoritative quantity for the bound entity
	// and content type.
	Quantity(handle EntityHandle, contentType string) (float64, error)
	// AdjustQuantity changes the live quantity by delta (negative to remove).
	AdjustQuantity(handle EntityHandle, contentType string, delta float64) error
}

// Ager is an optional adapter hook vetoing aging for entities that must not
// age right now (for example a container mid-processing).
type Ager interface {
	ShouldAge(handle EntityHandle) bool
}

// EmptiedHook is an optional adapter hook invoked after a sweep for
// containers whose live quantity reached zero. Invocation is deferred until
// iteration has finished so the hook may delete entities.
type EmptiedHook interface {
	OnContainerEmptied(containerID string)
}

// CapabilityProber is an optional adapter hook reporting whether the bound
// entity can receive and release content.
type CapabilityProber interface {
	ProbeCapabilities(handle EntityHandle) (canReceive, canRelease domain.Capability)
}

// OwnerProvider is an optional adapter hook exposing the owner of the bound
// entity.
type OwnerProvider interface {
	Owner(handle EntityHandle) string
}

// RegisterAdapter wires an integration adapter for its family. Registering
// a second adapter for the same family is a programming error.
func (s *Service) RegisterAdapter(a Adapter) error {
	if a == nil {
		return fmt.Errorf("adapter cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	family := a.Family()
	if !domain.KnownFamily(family) {
		return fmt.Errorf("unknown entity family %q", family)
	}
	if _, ok := s.adapters[family]; ok {
		return fmt.Errorf("adapter for family %q already registered", family)
	}
	s.adapters[family] = a
	return nil
}

// BindEntity allocates a fresh handle for a live entity of the given family.
// Handles are never reused within a session.
func (s *Service) BindEntity(family domain.EntityFamily) EntityHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandle++
	h := EntityHandle(s.nextHandle)
	s.handleFamily[h] = family
	return h
}

// ReleaseEntity drops a handle and its container index entries. Containers
// bound to the handle stay registered until explicitly unregistered; they
// simply lose their runtime binding.
func (s *Service) ReleaseEntity(handle EntityHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.byHandle[handle] {
		delete(s.handleOf, id)
	}
	delete(s.byHandle, handle)
	delete(s.handleFamily, handle)
}

func (s *Service) adapterFor(handle EntityHandle) (Adapter, bool) {
	family, ok := s.handleFamily[handle]
	if !ok {
		return nil, false
	}
	a, ok := s.adapters[family]
	return a, ok
}
