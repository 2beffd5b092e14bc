package core

import "silocore/pkg/domain"

type (
	EntityFamily  = domain.EntityFamily
	Capability    = domain.Capability
	Container     = domain.Container
	Batch         = domain.Batch
	Ledger        = domain.Ledger
	IdentityMatch = domain.IdentityMatch
	Anchor        = domain.Anchor
	Descriptor    = domain.Descriptor
	Change        = domain.Change
	Snapshot      = domain.Snapshot
	Statistics    = domain.Statistics
	SnapshotStore = domain.SnapshotStore
)

const (
	FamilyVehicle      = domain.FamilyVehicle
	FamilyBale         = domain.FamilyBale
	FamilyStorage      = domain.FamilyStorage
	FamilyTrough       = domain.FamilyTrough
	FamilyStoredObject = domain.FamilyStoredObject
)

const (
	CapabilityUnknown  = domain.CapabilityUnknown
	CapabilityEnabled  = domain.CapabilityEnabled
	CapabilityDisabled = domain.CapabilityDisabled
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
