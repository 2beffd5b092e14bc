package trough

import (
	"context"
	"testing"

	"silocore/internal/core"
	"silocore/pkg/domain"
)

func TestQuantityAndAdjust(t *testing.T) {
	a := New()
	h := core.EntityHandle(1)
	a.Attach(h, Entity{ContentType: "grass", Quantity: 50, Owner: "farm-1"})

	if got, err := a.Quantity(h, "grass"); err != nil || got != 50 {
		t.Fatalf("quantity wrong: %v %v", got, err)
	}
	if got, err := a.Quantity(h, "milk"); err != nil || got != 0 {
		t.Fatalf("mismatched content type must read zero: %v %v", got, err)
	}

	if err := a.AdjustQuantity(h, "grass", -20); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if e, _ := a.Entity(h); e.Quantity != 30 {
		t.Fatalf("quantity after adjust wrong: %v", e.Quantity)
	}

	if err := a.AdjustQuantity(h, "grass", -100); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if e, _ := a.Entity(h); e.Quantity != 0 {
		t.Fatalf("quantity must clamp at zero, got %v", e.Quantity)
	}

	if err := a.AdjustQuantity(core.EntityHandle(99), "grass", 1); err == nil {
		t.Fatalf("unknown handle must error")
	}
}

func TestAdjustContentTypeRules(t *testing.T) {
	a := New()
	h := core.EntityHandle(1)
	a.Attach(h, Entity{})

	if err := a.AdjustQuantity(h, "milk", 10); err != nil {
		t.Fatalf("empty trough must adopt content type: %v", err)
	}
	if e, _ := a.Entity(h); e.ContentType != "milk" || e.Quantity != 10 {
		t.Fatalf("entity wrong after fill: %+v", e)
	}
	if err := a.AdjustQuantity(h, "grass", 5); err == nil {
		t.Fatalf("cross-type fill must be rejected")
	}
}

func TestShouldAgeRespectsFrozen(t *testing.T) {
	a := New()
	a.Attach(1, Entity{ContentType: "grass", Quantity: 5})
	a.Attach(2, Entity{ContentType: "grass", Quantity: 5, Frozen: true})

	if !a.ShouldAge(1) {
		t.Fatalf("unfrozen trough must age")
	}
	if a.ShouldAge(2) {
		t.Fatalf("frozen trough must not age")
	}
	if a.ShouldAge(99) {
		t.Fatalf("unknown handle must not age")
	}
}

func TestProbeCapabilitiesAndOwner(t *testing.T) {
	a := New()
	a.Attach(1, Entity{Owner: "farm-1"})
	a.Attach(2, Entity{Sealed: true})

	if recv, rel := a.ProbeCapabilities(1); recv != domain.CapabilityEnabled || rel != domain.CapabilityEnabled {
		t.Fatalf("open trough capabilities wrong: %v %v", recv, rel)
	}
	if recv, rel := a.ProbeCapabilities(2); recv != domain.CapabilityDisabled || rel != domain.CapabilityEnabled {
		t.Fatalf("sealed trough capabilities wrong: %v %v", recv, rel)
	}
	if recv, rel := a.ProbeCapabilities(99); recv != domain.CapabilityUnknown || rel != domain.CapabilityUnknown {
		t.Fatalf("unknown handle capabilities wrong: %v %v", recv, rel)
	}
	if got := a.Owner(1); got != "farm-1" {
		t.Fatalf("owner wrong: %q", got)
	}
	if got := a.Owner(99); got != "" {
		t.Fatalf("unknown handle owner wrong: %q", got)
	}
}

func TestEmptiedHookRecordsOrder(t *testing.T) {
	a := New()
	a.OnContainerEmptied("c-2")
	a.OnContainerEmptied("c-1")

	got := a.Emptied()
	if len(got) != 2 || got[0] != "c-2" || got[1] != "c-1" {
		t.Fatalf("emptied order wrong: %v", got)
	}
}

func TestServiceIntegration(t *testing.T) {
	settings := core.StaticSettings{Types: map[string]core.ContentTypeSetting{
		"grass": {ExpirationThreshold: 3.0, WarnThreshold: 2.5},
	}}
	svc, err := core.NewService(nil, settings)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	a := New()
	if err := svc.RegisterAdapter(a); err != nil {
		t.Fatalf("register adapter: %v", err)
	}

	handle := svc.BindEntity(domain.FamilyTrough)
	a.Attach(handle, Entity{ContentType: "grass", Quantity: 40, Owner: "farm-1"})

	id, _, err := svc.Register(context.Background(), domain.FamilyTrough, domain.IdentityMatch{
		Anchor:     &domain.Anchor{UniqueID: "trough-1"},
		Descriptor: &domain.Descriptor{ContentType: "grass", Amount: 40},
	}, handle, nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.ReportIncrease(context.Background(), handle, "grass", 40); err != nil {
		t.Fatalf("report increase: %v", err)
	}

	c, ok := svc.Container(id)
	if !ok {
		t.Fatalf("container %s not found", id)
	}
	if c.OwnerID != "farm-1" {
		t.Fatalf("owner not adopted from adapter: %q", c.OwnerID)
	}
	if c.CanReceive != domain.CapabilityEnabled || c.CanRelease != domain.CapabilityEnabled {
		t.Fatalf("capabilities not probed: %v %v", c.CanReceive, c.CanRelease)
	}
	if total := c.Ledger.Total(); total != 40 {
		t.Fatalf("ledger total wrong: %v", total)
	}
}
