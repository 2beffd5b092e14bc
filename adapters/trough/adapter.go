// Package trough provides the reference integration adapter for the trough
// entity family. It doubles as the worked example other integrations copy:
// entities are plain records owned by the adapter, quantities are adjusted
// through the core-facing contract, and the optional hooks are all
// implemented.
package trough

import (
	"fmt"
	"sync"

	"silocore/internal/core"
	"silocore/pkg/domain"
)

// Entity is one simulated trough. Content is a single content type with a
// quantity, the common case for the family.
type Entity struct {
	ContentType string
	Quantity    float64
	Owner       string
	// Frozen vetoes aging while the trough participates in an action that
	// must not spoil mid-flight.
	Frozen bool
	// Sealed troughs cannot be filled by other entities.
	Sealed bool
}

// Adapter implements core.Adapter plus every optional hook for trough
// entities held in process memory.
type Adapter struct {
	mu       sync.Mutex
	entities map[core.EntityHandle]*Entity
	emptied  []string
}

var (
	_ core.Adapter          = (*Adapter)(nil)
	_ core.Ager             = (*Adapter)(nil)
	_ core.EmptiedHook      = (*Adapter)(nil)
	_ core.CapabilityProber = (*Adapter)(nil)
	_ core.OwnerProvider    = (*Adapter)(nil)
)

// New returns an adapter with no entities.
func New() *Adapter {
	return &Adapter{entities: make(map[core.EntityHandle]*Entity)}
}

// Family implements core.Adapter.
func (a *Adapter) Family() domain.EntityFamily { return domain.FamilyTrough }

// Attach records the live entity behind a handle obtained from
// Service.BindEntity.
func (a *Adapter) Attach(handle core.EntityHandle, e Entity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	copied := e
	a.entities[handle] = &copied
}

// Detach forgets the entity behind handle.
func (a *Adapter) Detach(handle core.EntityHandle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entities, handle)
}

// Entity returns a copy of the entity behind handle.
func (a *Adapter) Entity(handle core.EntityHandle) (Entity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entities[handle]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// Quantity implements core.Adapter.
func (a *Adapter) Quantity(handle core.EntityHandle, contentType string) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entities[handle]
	if !ok {
		return 0, fmt.Errorf("trough: no entity for handle %d", handle)
	}
	if e.ContentType != contentType {
		return 0, nil
	}
	return e.Quantity, nil
}

// AdjustQuantity implements core.Adapter. The result is clamped at zero;
// troughs cannot hold negative content.
func (a *Adapter) AdjustQuantity(handle core.EntityHandle, contentType string, delta float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entities[handle]
	if !ok {
		return fmt.Errorf("trough: no entity for handle %d", handle)
	}
	if e.ContentType != contentType && e.ContentType != "" && delta > 0 {
		return fmt.Errorf("trough: holds %s, cannot accept %s", e.ContentType, contentType)
	}
	if e.ContentType == "" && delta > 0 {
		e.ContentType = contentType
	}
	e.Quantity += delta
	if e.Quantity < 0 {
		e.Quantity = 0
	}
	return nil
}

// ShouldAge implements core.Ager. Frozen troughs do not age.
func (a *Adapter) ShouldAge(handle core.EntityHandle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entities[handle]
	return ok && !e.Frozen
}

// OnContainerEmptied implements core.EmptiedHook.
func (a *Adapter) OnContainerEmptied(containerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.emptied = append(a.emptied, containerID)
}

// Emptied returns the container ids reported empty, in order.
func (a *Adapter) Emptied() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.emptied))
	copy(out, a.emptied)
	return out
}

// ProbeCapabilities implements core.CapabilityProber. Troughs always release
// (animals eat from them); sealed troughs do not receive.
func (a *Adapter) ProbeCapabilities(handle core.EntityHandle) (canReceive, canRelease domain.Capability) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entities[handle]
	if !ok {
		return domain.CapabilityUnknown, domain.CapabilityUnknown
	}
	if e.Sealed {
		return domain.CapabilityDisabled, domain.CapabilityEnabled
	}
	return domain.CapabilityEnabled, domain.CapabilityEnabled
}

// Owner implements core.OwnerProvider.
func (a *Adapter) Owner(handle core.EntityHandle) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.entities[handle]; ok {
		return e.Owner
	}
	return ""
}
