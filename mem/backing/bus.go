package backing

import (
	"github.com/sarchlab/cachesim/mem/mem"
	"github.com/sarchlab/cachesim/sim"
)

// Bus is the shared memory bus. Every transfer pays a fixed latency on top of
// whatever the level below takes. Requests are serialized by the single-core
// request loop, so no contention is modeled.
type Bus struct {
	name    string
	Latency sim.Cycle
	lower   mem.LowerLevel

	transfers uint64
}

// NewBus creates a bus in front of lower.
func NewBus(name string, latency sim.Cycle, lower mem.LowerLevel) *Bus {
	if lower == nil {
		panic("bus requires a lower level")
	}

	return &Bus{
		name:    name,
		Latency: latency,
		lower:   lower,
	}
}

// Name returns the name of the bus.
func (b *Bus) Name() string {
	return b.name
}

// Transfers returns the number of requests that crossed the bus.
func (b *Bus) Transfers() uint64 {
	return b.transfers
}

// Fetch forwards a block read to the lower level.
func (b *Bus) Fetch(
	now sim.Cycle,
	blockAddr, size uint64,
) ([]byte, sim.Cycle, error) {
	data, latency, err := b.lower.Fetch(now+b.Latency, blockAddr, size)
	if err != nil {
		return nil, 0, err
	}

	b.transfers++

	return data, b.Latency + latency, nil
}

// WriteBack forwards a block write to the lower level.
func (b *Bus) WriteBack(
	now sim.Cycle,
	blockAddr uint64,
	data []byte,
) (sim.Cycle, error) {
	latency, err := b.lower.WriteBack(now+b.Latency, blockAddr, data)
	if err != nil {
		return 0, err
	}

	b.transfers++

	return b.Latency + latency, nil
}
