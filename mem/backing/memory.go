// Package backing provides the terminal responder of the memory hierarchy: a
// flat, fixed-latency memory and the bus in front of it.
package backing

import (
	"fmt"

	"github.com/sarchlab/cachesim/mem/mem"
	"github.com/sarchlab/cachesim/sim"
)

// Memory is an ideal memory controller. It always responds after a fixed
// number of cycles and has no limit on concurrency.
type Memory struct {
	name    string
	Range   mem.AddrRange
	Latency sim.Cycle
	Storage *mem.Storage

	stats Statistics
}

// Statistics counts the traffic a Memory has served.
type Statistics struct {
	Reads        uint64 `json:"reads"`
	Writes       uint64 `json:"writes"`
	BytesRead    uint64 `json:"bytes_read"`
	BytesWritten uint64 `json:"bytes_written"`
}

// Name returns the name of the memory.
func (m *Memory) Name() string {
	return m.name
}

// Stats returns a copy of the traffic counters.
func (m *Memory) Stats() Statistics {
	return m.stats
}

// Access reads size bytes at addr. It fails with mem.ErrOutOfRange if any
// byte of the access falls outside of the configured range.
func (m *Memory) Access(
	now sim.Cycle,
	addr, size uint64,
) (sim.Cycle, []byte, error) {
	data, latency, err := m.Fetch(now, addr, size)

	return latency, data, err
}

// Fetch reads size bytes at addr.
func (m *Memory) Fetch(
	_ sim.Cycle,
	addr, size uint64,
) ([]byte, sim.Cycle, error) {
	if err := m.Range.Check(addr, size); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", m.name, err)
	}

	data, err := m.Storage.Read(addr-m.Range.Start, size)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", m.name, err)
	}

	m.stats.Reads++
	m.stats.BytesRead += size

	return data, m.Latency, nil
}

// WriteBack stores data at addr.
func (m *Memory) WriteBack(
	_ sim.Cycle,
	addr uint64,
	data []byte,
) (sim.Cycle, error) {
	size := uint64(len(data))
	if err := m.Range.Check(addr, size); err != nil {
		return 0, fmt.Errorf("%s: %w", m.name, err)
	}

	if err := m.Storage.Write(addr-m.Range.Start, data); err != nil {
		return 0, fmt.Errorf("%s: %w", m.name, err)
	}

	m.stats.Writes++
	m.stats.BytesWritten += size

	return m.Latency, nil
}

// Read returns memory content without timing or statistics. It is the
// functional view used by loaders and checkers.
func (m *Memory) Read(addr, size uint64) ([]byte, error) {
	if err := m.Range.Check(addr, size); err != nil {
		return nil, err
	}

	return m.Storage.Read(addr-m.Range.Start, size)
}

// Write updates memory content without timing or statistics.
func (m *Memory) Write(addr uint64, data []byte) error {
	if err := m.Range.Check(addr, uint64(len(data))); err != nil {
		return err
	}

	return m.Storage.Write(addr-m.Range.Start, data)
}
