package backing

import (
	"fmt"

	"github.com/sarchlab/cachesim/mem/mem"
	"github.com/sarchlab/cachesim/sim"
)

// Builder can build Memory objects.
type Builder struct {
	addrRange mem.AddrRange
	latency   sim.Cycle
	storage   *mem.Storage
}

// MakeBuilder returns a new Builder. The defaults follow a SimpleMemory
// behind a 2GHz core: 512MB starting at 0 and 30ns (60 cycles) latency.
func MakeBuilder() Builder {
	return Builder{
		addrRange: mem.AddrRange{Start: 0, Size: 512 * mem.MB},
		latency:   60,
	}
}

// WithRange sets the physical address range the memory answers to.
func (b Builder) WithRange(r mem.AddrRange) Builder {
	b.addrRange = r
	return b
}

// WithLatency sets the fixed access latency, in cycles.
func (b Builder) WithLatency(latency sim.Cycle) Builder {
	b.latency = latency
	return b
}

// WithStorage sets the storage that backs the memory. The storage is indexed
// by offset from the start of the range.
func (b Builder) WithStorage(storage *mem.Storage) Builder {
	b.storage = storage
	return b
}

// Build creates a Memory.
func (b Builder) Build(name string) (*Memory, error) {
	if b.addrRange.Size == 0 {
		return nil, fmt.Errorf("%w: %s: empty address range",
			mem.ErrInvalidConfiguration, name)
	}

	if b.addrRange.End() < b.addrRange.Start {
		return nil, fmt.Errorf("%w: %s: address range overflows",
			mem.ErrInvalidConfiguration, name)
	}

	storage := b.storage
	if storage == nil {
		storage = mem.NewStorage(b.addrRange.Size)
	}

	if storage.Capacity() < b.addrRange.Size {
		return nil, fmt.Errorf(
			"%w: %s: storage capacity %d smaller than range size %d",
			mem.ErrInvalidConfiguration, name,
			storage.Capacity(), b.addrRange.Size)
	}

	m := &Memory{
		name:    name,
		Range:   b.addrRange,
		Latency: b.latency,
		Storage: storage,
	}

	return m, nil
}
