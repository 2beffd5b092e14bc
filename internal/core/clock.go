package core

// SimTime is a point on the simulation timeline, in engine time units.
// Correlation windows and scheduler elapsed durations are expressed in the
// same units.
type SimTime float64

// Clock supplies the current simulation time. The production clock is owned
// by the embedding application; tests drive a ManualClock.
type Clock interface {
	Now() SimTime
}

// ManualClock is a hand-advanced clock for tests and deterministic replays.
type ManualClock struct {
	Current SimTime
}

// Now returns the manually set time.
func (c *ManualClock) Now() SimTime { return c.Current }

// Advance moves the clock forward by d time units.
func (c *ManualClock) Advance(d SimTime) { c.Current += d }
