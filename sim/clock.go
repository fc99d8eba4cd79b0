// Package sim provides the logical time used across the cache simulator.
package sim

import "fmt"

// Cycle is a point in logical time, counted in clock cycles since the start
// of the simulation.
type Cycle uint64

// A TimeTeller can tell the current logical time.
type TimeTeller interface {
	Now() Cycle
}

// Clock is a monotonically increasing logical-time counter. It replaces any
// ambient global simulator clock: components receive the current cycle as an
// argument instead of reading it.
type Clock struct {
	now Cycle
}

// NewClock creates a clock that starts at cycle 0.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current cycle.
func (c *Clock) Now() Cycle {
	return c.now
}

// Advance moves the clock forward by n cycles and returns the new time.
func (c *Clock) Advance(n Cycle) Cycle {
	c.now += n
	return c.now
}

// AdvanceTo moves the clock to t. Moving backward is a programming error.
func (c *Clock) AdvanceTo(t Cycle) Cycle {
	if t < c.now {
		panic(fmt.Sprintf("clock cannot go back from %d to %d", c.now, t))
	}

	c.now = t

	return c.now
}
