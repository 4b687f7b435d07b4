package connector

import "sync/atomic"

// state packs the connector's lifecycle, write, read and flow dimensions.
// Only the owning loop writes it; diagnostics may load it from anywhere.
type state uint32

const (
	stateClosed state = 1 << iota
	stateDropWrites
	stateErrored
	statePaused
)

func (s state) has(f state) bool { return s&f != 0 }

// watching is true when a readable watch must be armed.
// Errored wins over paused: an errored connector never reads again.
func (s state) watching() bool {
	return s&(stateClosed|stateErrored|statePaused) == 0
}

type stateCell struct{ v atomic.Uint32 }

func (c *stateCell) load() state { return state(c.v.Load()) }

func (c *stateCell) set(f state) {
	c.v.Store(c.v.Load() | uint32(f))
}

func (c *stateCell) clear(f state) {
	c.v.Store(c.v.Load() &^ uint32(f))
}
