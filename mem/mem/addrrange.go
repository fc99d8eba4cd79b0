package mem

import "fmt"

// AddrRange is a contiguous range of physical addresses [Start, Start+Size).
type AddrRange struct {
	Start uint64
	Size  uint64
}

// End returns the first address after the range.
func (r AddrRange) End() uint64 {
	return r.Start + r.Size
}

// Contains returns true if all of [addr, addr+size) falls inside the range.
// A zero-size access is treated as a one-byte access.
func (r AddrRange) Contains(addr, size uint64) bool {
	if size == 0 {
		size = 1
	}

	if addr < r.Start {
		return false
	}

	last := addr + size - 1
	if last < addr {
		// wrapped around
		return false
	}

	return last < r.End()
}

// Check returns ErrOutOfRange wrapped with the offending access when the
// access does not fit in the range.
func (r AddrRange) Check(addr, size uint64) error {
	if r.Contains(addr, size) {
		return nil
	}

	return fmt.Errorf("%w: [0x%x, 0x%x) not in [0x%x, 0x%x)",
		ErrOutOfRange, addr, addr+size, r.Start, r.End())
}

func (r AddrRange) String() string {
	return fmt.Sprintf("[0x%x, 0x%x)", r.Start, r.End())
}
