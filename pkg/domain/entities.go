// Package domain defines the core persistent entities, value types, and
// ledger primitives used by silocore.
package domain

import "time"

// EntityFamily identifies the integration family that owns a tracked entity.
type EntityFamily string

// Supported entity families. Each family has its own integration adapter
// supplying identity data and quantity probes.
const (
	// FamilyVehicle covers mobile vehicles with fill units.
	FamilyVehicle EntityFamily = "vehicle"
	// FamilyBale covers bales lying on the ground.
	FamilyBale EntityFamily = "bale"
	// FamilyStorage covers stationary building storage.
	FamilyStorage EntityFamily = "storage"
	// FamilyTrough covers animal feed troughs.
	FamilyTrough EntityFamily = "trough"
	// FamilyStoredObject covers objects parked inside another storage entity.
	FamilyStoredObject EntityFamily = "stored_object"
)

// KnownFamily reports whether the family is one of the supported
// integration families.
func KnownFamily(f EntityFamily) bool {
	switch f {
	case FamilyVehicle, FamilyBale, FamilyStorage, FamilyTrough, FamilyStoredObject:
		return true
	}
	return false
}

// Capability is a tri-state probe result for a container's ability to
// receive or release content.
type Capability string

// Capability states. Unknown means the owning integration has not probed
// the entity yet.
const (
	CapabilityUnknown  Capability = "unknown"
	CapabilityEnabled  Capability = "enabled"
	CapabilityDisabled Capability = "disabled"
)

// EntityAction describes the kind of mutation applied to a container.
type EntityAction string

// Actions recorded in Change entries and pushed to replication observers.
const (
	ActionCreate EntityAction = "create"
	ActionUpdate EntityAction = "update"
	ActionDelete EntityAction = "delete"
)

// Container is a tracked (entity, content-type) pairing with its own batch
// ledger. The runtime binding to the live entity is held by the registry's
// entity index and is never part of the persisted record.
type Container struct {
	ID          string            `json:"id"`
	Family      EntityFamily      `json:"family"`
	Identity    IdentityMatch     `json:"identity"`
	ContentType string            `json:"content_type,omitempty"`
	Ledger      Ledger            `json:"ledger"`
	OwnerID     string            `json:"owner_id,omitempty"`
	CanReceive  Capability        `json:"can_receive"`
	CanRelease  Capability        `json:"can_release"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Resolved reports whether the container's content type has been resolved
// against the settings collaborator. Unresolved containers are corrected
// lazily on next use.
func (c Container) Resolved() bool {
	return c.ContentType != ""
}

// CloneContainer returns a deep copy so callers cannot mutate shared state.
func CloneContainer(c Container) Container {
	cp := c
	cp.Identity = CloneIdentityMatch(c.Identity)
	cp.Ledger = append(Ledger(nil), c.Ledger...)
	if c.Metadata != nil {
		cp.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

// Change captures a single container mutation for replication observers.
type Change struct {
	Action EntityAction  `json:"action"`
	ID     string        `json:"id"`
	Before ChangePayload `json:"before,omitempty"`
	After  ChangePayload `json:"after,omitempty"`
}

// Statistics accumulates spoilage losses per content type. Persisted and
// restored alongside the container snapshot.
type Statistics struct {
	ExpiredByType map[string]float64 `json:"expired_by_type,omitempty"`
	ExpiredTotal  float64            `json:"expired_total"`
}

// RecordLoss adds removed quantity to the per-type and total counters.
func (s *Statistics) RecordLoss(contentType string, quantity float64) {
	if quantity <= 0 {
		return
	}
	if s.ExpiredByType == nil {
		s.ExpiredByType = make(map[string]float64)
	}
	s.ExpiredByType[contentType] += quantity
	s.ExpiredTotal += quantity
}

// CloneStatistics returns an independent copy.
func CloneStatistics(s Statistics) Statistics {
	cp := s
	if s.ExpiredByType != nil {
		cp.ExpiredByType = make(map[string]float64, len(s.ExpiredByType))
		for k, v := range s.ExpiredByType {
			cp.ExpiredByType[k] = v
		}
	}
	return cp
}
