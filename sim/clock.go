package sim

import "sync/atomic"

// CycleTeller can tell the current cycle of a cycle-stepped model.
type CycleTeller interface {
	CurrentCycle() uint64
}

// TimeTeller can be used to get the current time.
type TimeTeller interface {
	CurrentTime() VTimeInSec
}

// A Clock is the discrete time axis shared by the components of a
// cycle-stepped model. Only the owner of the clock advances it; everyone else
// reads it through CycleTeller or TimeTeller.
type Clock struct {
	freq  Freq
	cycle atomic.Uint64
}

// NewClock creates a clock that starts at cycle 0.
func NewClock(freq Freq) *Clock {
	if freq <= 0 {
		freq = 1 * GHz
	}

	return &Clock{freq: freq}
}

// Freq returns the frequency of the clock.
func (c *Clock) Freq() Freq {
	return c.freq
}

// CurrentCycle returns the current cycle.
func (c *Clock) CurrentCycle() uint64 {
	return c.cycle.Load()
}

// CurrentTime returns the simulated time of the current cycle.
func (c *Clock) CurrentTime() VTimeInSec {
	return c.freq.CycleTime(c.CurrentCycle())
}

// Tick advances the clock by one cycle.
func (c *Clock) Tick() {
	c.cycle.Add(1)
}

// SetCycle moves the clock to the given cycle. It is meant for tests and for
// restoring a model to a known point in time.
func (c *Clock) SetCycle(cycle uint64) {
	c.cycle.Store(cycle)
}
