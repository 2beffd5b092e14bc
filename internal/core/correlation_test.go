package core

import (
	"context"
	"math"
	"testing"
)

// registerBound registers a container bound to a fresh handle and returns
// both. The identity amount mirrors the initial ledger total.
func registerBound(t *testing.T, svc *Service, family EntityFamily, uniqueID, contentType string, ledger Ledger) (string, EntityHandle) {
	t.Helper()
	handle := svc.BindEntity(family)
	id, _, err := svc.Register(context.Background(), family, identityFor(uniqueID, contentType, ledger.Total()), handle, nil)
	if err != nil {
		t.Fatalf("register %s: %v", uniqueID, err)
	}
	if len(ledger) > 0 {
		setLedger(svc, id, ledger)
	}
	return id, handle
}

func ledgerOf(t *testing.T, svc *Service, id string) Ledger {
	t.Helper()
	c, ok := svc.Container(id)
	if !ok {
		t.Fatalf("container %s not found", id)
	}
	return c.Ledger
}

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestStagedTransferPreservesAges(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	srcID, srcHandle := registerBound(t, svc, FamilyVehicle, "trailer-1", "grass", Ledger{{Quantity: 50, Age: 1.5}, {Quantity: 30, Age: 0.2}})
	dstID, dstHandle := registerBound(t, svc, FamilyStorage, "silo-1", "grass", nil)

	if err := svc.StageTransfer(ctx, srcHandle, dstHandle, "grass", 60); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := svc.ReportDecrease(ctx, srcHandle, "grass", 60); err != nil {
		t.Fatalf("decrease: %v", err)
	}
	if err := svc.ReportIncrease(ctx, dstHandle, "grass", 60); err != nil {
		t.Fatalf("increase: %v", err)
	}

	src := ledgerOf(t, svc, srcID)
	if !almost(src.Total(), 20) {
		t.Fatalf("source should hold 20, got %v", src)
	}
	dst := ledgerOf(t, svc, dstID)
	// Oldest-first consumption: 50 at age 1.5, then 10 at age 0.2.
	if len(dst) != 2 || !almost(dst[0].Quantity, 50) || !almost(dst[0].Age, 1.5) || !almost(dst[1].Quantity, 10) || !almost(dst[1].Age, 0.2) {
		t.Fatalf("destination ledger wrong: %v", dst)
	}
}

func TestStagedTransferPartialUseDiscardsStage(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, srcHandle := registerBound(t, svc, FamilyVehicle, "trailer-2", "grass", Ledger{{Quantity: 100, Age: 2.0}})
	dstID, dstHandle := registerBound(t, svc, FamilyStorage, "silo-2", "grass", nil)

	if err := svc.StageTransfer(ctx, srcHandle, dstHandle, "grass", 100); err != nil {
		t.Fatalf("stage: %v", err)
	}
	// Destination only confirms 40; the stage is bounded and then discarded.
	if err := svc.ReportIncrease(ctx, dstHandle, "grass", 40); err != nil {
		t.Fatalf("increase: %v", err)
	}
	dst := ledgerOf(t, svc, dstID)
	if len(dst) != 1 || !almost(dst[0].Quantity, 40) || !almost(dst[0].Age, 2.0) {
		t.Fatalf("bounded replay wrong: %v", dst)
	}
	svc.mu.Lock()
	_, staged := svc.correlator.direct[dstID]
	svc.mu.Unlock()
	if staged {
		t.Fatalf("stage must be discarded after first use")
	}
}

func TestTypeFallbackWithinWindow(t *testing.T) {
	clock := &ManualClock{}
	svc := newTestService(t, WithClock(clock))
	ctx := context.Background()

	// An uncoordinated unload: the source decrease arrives before any
	// destination is resolvable, then the destination increase follows.
	_, srcHandle := registerBound(t, svc, FamilyVehicle, "trailer-3", "grass", Ledger{{Quantity: 40, Age: 40}})
	dstID, dstHandle := registerBound(t, svc, FamilyTrough, "trough-3", "grass", nil)

	if err := svc.ReportDecrease(ctx, srcHandle, "grass", 40); err != nil {
		t.Fatalf("decrease: %v", err)
	}
	clock.Advance(1) // inside the fallback window
	if err := svc.ReportIncrease(ctx, dstHandle, "grass", 40); err != nil {
		t.Fatalf("increase: %v", err)
	}
	dst := ledgerOf(t, svc, dstID)
	if len(dst) != 1 || !almost(dst[0].Age, 40) {
		t.Fatalf("fallback must preserve source age, got %v", dst)
	}
}

func TestTypeFallbackExpires(t *testing.T) {
	clock := &ManualClock{}
	svc := newTestService(t, WithClock(clock))
	ctx := context.Background()

	_, srcHandle := registerBound(t, svc, FamilyVehicle, "trailer-4", "grass", Ledger{{Quantity: 40, Age: 40}})
	dstID, dstHandle := registerBound(t, svc, FamilyTrough, "trough-4", "grass", nil)

	if err := svc.ReportDecrease(ctx, srcHandle, "grass", 40); err != nil {
		t.Fatalf("decrease: %v", err)
	}
	clock.Advance(typeFallbackTTL + 1)
	if err := svc.ReportIncrease(ctx, dstHandle, "grass", 40); err != nil {
		t.Fatalf("increase: %v", err)
	}
	dst := ledgerOf(t, svc, dstID)
	if len(dst) != 1 || !almost(dst[0].Age, 0) {
		t.Fatalf("expired fallback must materialize fresh, got %v", dst)
	}
}

func TestTypeFallbackLongDelay(t *testing.T) {
	clock := &ManualClock{}
	svc := newTestService(t, WithClock(clock))
	ctx := context.Background()

	// A pairing separated by a long gap: the by-type stage is deliberately
	// short-lived so it cannot misattribute unrelated same-type flows, and
	// long gaps in the decrease-then-increase direction are not bridged by
	// the correction window either (that only runs increase-then-decrease).
	// The delayed increase materializes fresh and the stage is pruned.
	_, srcHandle := registerBound(t, svc, FamilyVehicle, "trailer-7", "grass", Ledger{{Quantity: 50, Age: 12}})
	dstID, dstHandle := registerBound(t, svc, FamilyStorage, "silo-7", "grass", nil)

	if err := svc.ReportDecrease(ctx, srcHandle, "grass", 50); err != nil {
		t.Fatalf("decrease: %v", err)
	}
	clock.Advance(40)
	if err := svc.ReportIncrease(ctx, dstHandle, "grass", 50); err != nil {
		t.Fatalf("increase: %v", err)
	}

	dst := ledgerOf(t, svc, dstID)
	if len(dst) != 1 || !almost(dst[0].Quantity, 50) || !almost(dst[0].Age, 0) {
		t.Fatalf("long-delayed increase must materialize fresh, got %v", dst)
	}
	svc.mu.Lock()
	_, staged := svc.correlator.byType["grass"]
	svc.mu.Unlock()
	if staged {
		t.Fatalf("expired by-type stage must be pruned")
	}
}

func TestDirectStageTakesPrecedence(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, srcHandle := registerBound(t, svc, FamilyVehicle, "trailer-8", "grass", Ledger{{Quantity: 80, Age: 3.0}})
	dstID, dstHandle := registerBound(t, svc, FamilyStorage, "silo-8", "grass", nil)
	otherID, _ := registerBound(t, svc, FamilyStorage, "silo-8b", "grass", Ledger{{Quantity: 5, Age: 0}})

	if err := svc.StageTransfer(ctx, srcHandle, dstHandle, "grass", 30); err != nil {
		t.Fatalf("stage: %v", err)
	}
	// Arm the two lower tiers as well; an increase with a direct stage must
	// consume only that stage and leave the others untouched.
	svc.mu.Lock()
	svc.correlator.byType["grass"] = stagedTransfer{batches: []Batch{{Quantity: 30, Age: 1.0}}}
	svc.correlator.corrections["grass"] = correctionPointer{containerID: otherID}
	svc.mu.Unlock()

	if err := svc.ReportIncrease(ctx, dstHandle, "grass", 30); err != nil {
		t.Fatalf("increase: %v", err)
	}

	dst := ledgerOf(t, svc, dstID)
	if len(dst) != 1 || !almost(dst[0].Quantity, 30) || !almost(dst[0].Age, 3.0) {
		t.Fatalf("direct stage must win, got %v", dst)
	}
	svc.mu.Lock()
	_, fallbackKept := svc.correlator.byType["grass"]
	ptr, pointerKept := svc.correlator.corrections["grass"]
	svc.mu.Unlock()
	if !fallbackKept {
		t.Fatalf("by-type stage must survive a direct-stage hit")
	}
	if !pointerKept || ptr.containerID != otherID {
		t.Fatalf("correction pointer must survive a direct-stage hit, got %+v", ptr)
	}
}

func TestRetroactiveCorrection(t *testing.T) {
	clock := &ManualClock{}
	svc := newTestService(t, WithClock(clock))
	ctx := context.Background()

	// Increase first: no source discoverable, fresh batch plus a correction
	// pointer. The late source decrease retrofits the true age.
	srcID, srcHandle := registerBound(t, svc, FamilyVehicle, "trailer-5", "milk", Ledger{{Quantity: 25, Age: 0.8}})
	dstID, dstHandle := registerBound(t, svc, FamilyStorage, "tank-5", "milk", nil)

	if err := svc.ReportIncrease(ctx, dstHandle, "milk", 25); err != nil {
		t.Fatalf("increase: %v", err)
	}
	if dst := ledgerOf(t, svc, dstID); len(dst) != 1 || !almost(dst[0].Age, 0) {
		t.Fatalf("expected fresh batch before correction, got %v", dst)
	}
	clock.Advance(10) // inside the correction window
	if err := svc.ReportDecrease(ctx, srcHandle, "milk", 25); err != nil {
		t.Fatalf("decrease: %v", err)
	}
	dst := ledgerOf(t, svc, dstID)
	if len(dst) != 1 || !almost(dst[0].Age, 0.8) {
		t.Fatalf("correction must retrofit age 0.8, got %v", dst)
	}
	if src := ledgerOf(t, svc, srcID); !almost(src.Total(), 0) {
		t.Fatalf("source should be drained, got %v", src)
	}
}

func TestCorrectionWindowExpires(t *testing.T) {
	clock := &ManualClock{}
	svc := newTestService(t, WithClock(clock))
	ctx := context.Background()

	_, srcHandle := registerBound(t, svc, FamilyVehicle, "trailer-6", "milk", Ledger{{Quantity: 25, Age: 0.8}})
	dstID, dstHandle := registerBound(t, svc, FamilyStorage, "tank-6", "milk", nil)

	if err := svc.ReportIncrease(ctx, dstHandle, "milk", 25); err != nil {
		t.Fatalf("increase: %v", err)
	}
	clock.Advance(correctionWindow + 1)
	if err := svc.ReportDecrease(ctx, srcHandle, "milk", 25); err != nil {
		t.Fatalf("decrease: %v", err)
	}
	if dst := ledgerOf(t, svc, dstID); !almost(dst[0].Age, 0) {
		t.Fatalf("expired correction must leave the fresh batch alone, got %v", dst)
	}
}

func TestBulkTransferMatchesByQuantity(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// Three destinations receive in a burst; only the 20-unit increase has a
	// matching source decrease (20.1, within 1%). The rest materialize fresh
	// at bracket close.
	srcID, srcHandle := registerBound(t, svc, FamilyStorage, "bunker-1", "grass", Ledger{{Quantity: 100, Age: 3.0}})
	aID, aHandle := registerBound(t, svc, FamilyTrough, "trough-a", "grass", nil)
	bID, bHandle := registerBound(t, svc, FamilyTrough, "trough-b", "grass", nil)
	cID, cHandle := registerBound(t, svc, FamilyTrough, "trough-c", "grass", nil)

	svc.BeginBulkTransfer()
	for _, step := range []struct {
		h EntityHandle
		q float64
	}{{aHandle, 30}, {bHandle, 20}, {cHandle, 10}} {
		if err := svc.ReportIncrease(ctx, step.h, "grass", step.q); err != nil {
			t.Fatalf("increase %v: %v", step.q, err)
		}
	}
	if err := svc.ReportDecrease(ctx, srcHandle, "grass", 20.1); err != nil {
		t.Fatalf("decrease: %v", err)
	}
	svc.EndBulkTransfer()

	if b := ledgerOf(t, svc, bID); len(b) != 1 || !almost(b[0].Age, 3.0) || !almost(b[0].Quantity, 20) {
		t.Fatalf("matched bulk destination must carry source age, got %v", b)
	}
	for _, id := range []string{aID, cID} {
		l := ledgerOf(t, svc, id)
		if len(l) != 1 || !almost(l[0].Age, 0) {
			t.Fatalf("unmatched bulk destination %s must be fresh, got %v", id, l)
		}
	}
	if src := ledgerOf(t, svc, srcID); !almost(src.Total(), 100-20.1) {
		t.Fatalf("source total wrong: %v", src)
	}
}

func TestBulkBracketsNest(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	dstID, dstHandle := registerBound(t, svc, FamilyTrough, "trough-n", "grass", nil)

	svc.BeginBulkTransfer()
	svc.BeginBulkTransfer()
	if err := svc.ReportIncrease(ctx, dstHandle, "grass", 5); err != nil {
		t.Fatalf("increase: %v", err)
	}
	svc.EndBulkTransfer()
	if l := ledgerOf(t, svc, dstID); len(l) != 0 {
		t.Fatalf("inner close must not materialize, got %v", l)
	}
	svc.EndBulkTransfer()
	if l := ledgerOf(t, svc, dstID); len(l) != 1 || !almost(l[0].Quantity, 5) {
		t.Fatalf("outer close must materialize, got %v", l)
	}
	// Unbalanced extra close is a no-op.
	svc.EndBulkTransfer()
}

func setCapabilities(svc *Service, id string, canReceive, canRelease Capability) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	c := svc.containers[id]
	c.CanReceive, c.CanRelease = canReceive, canRelease
}

func TestFallbackGatedByReceiveCapability(t *testing.T) {
	clock := &ManualClock{}
	svc := newTestService(t, WithClock(clock))
	ctx := context.Background()

	_, srcHandle := registerBound(t, svc, FamilyVehicle, "trailer-7", "grass", Ledger{{Quantity: 40, Age: 40}})
	dstID, dstHandle := registerBound(t, svc, FamilyStorage, "press-7", "grass", nil)
	// A producer that cannot be filled from outside: its increases are
	// internal production and must never absorb cross-flow state.
	setCapabilities(svc, dstID, CapabilityDisabled, CapabilityEnabled)

	if err := svc.ReportDecrease(ctx, srcHandle, "grass", 40); err != nil {
		t.Fatalf("decrease: %v", err)
	}
	clock.Advance(1)
	if err := svc.ReportIncrease(ctx, dstHandle, "grass", 40); err != nil {
		t.Fatalf("increase: %v", err)
	}
	if dst := ledgerOf(t, svc, dstID); len(dst) != 1 || !almost(dst[0].Age, 0) {
		t.Fatalf("gated destination must materialize fresh, got %v", dst)
	}
	svc.mu.Lock()
	_, pointer := svc.correlator.corrections["grass"]
	svc.mu.Unlock()
	if pointer {
		t.Fatalf("gated destination must not leave a correction pointer")
	}
}

func TestDecreaseGatedByReleaseCapability(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	srcID, srcHandle := registerBound(t, svc, FamilyTrough, "feeder-8", "grass", Ledger{{Quantity: 40, Age: 2.0}})
	// Consumed in place (eaten), never released to another container.
	setCapabilities(svc, srcID, CapabilityEnabled, CapabilityDisabled)
	dstID, dstHandle := registerBound(t, svc, FamilyStorage, "silo-8", "grass", nil)

	if err := svc.ReportDecrease(ctx, srcHandle, "grass", 40); err != nil {
		t.Fatalf("decrease: %v", err)
	}
	if err := svc.ReportIncrease(ctx, dstHandle, "grass", 40); err != nil {
		t.Fatalf("increase: %v", err)
	}
	if dst := ledgerOf(t, svc, dstID); len(dst) != 1 || !almost(dst[0].Age, 0) {
		t.Fatalf("gated source must not feed the fallback, got %v", dst)
	}
}

func TestSuppressedDecreaseBypassesLedger(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	srcID, srcHandle := registerBound(t, svc, FamilyStorage, "silo-9", "grass", Ledger{{Quantity: 40, Age: 2.0}})
	svc.setSuppress(true)
	if err := svc.ReportDecrease(ctx, srcHandle, "grass", 10); err != nil {
		t.Fatalf("decrease: %v", err)
	}
	svc.setSuppress(false)
	if src := ledgerOf(t, svc, srcID); !almost(src.Total(), 40) {
		t.Fatalf("suppressed echo must not consume the ledger, got %v", src)
	}
}

func TestNotificationsForUntrackedBindingAreIgnored(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if err := svc.ReportIncrease(ctx, EntityHandle(999), "grass", 10); err != nil {
		t.Fatalf("increase: %v", err)
	}
	if err := svc.ReportDecrease(ctx, EntityHandle(999), "grass", 10); err != nil {
		t.Fatalf("decrease: %v", err)
	}
	if err := svc.ReportIncrease(ctx, EntityHandle(1), "grass", -5); err != nil {
		t.Fatalf("non-positive delta: %v", err)
	}
}
