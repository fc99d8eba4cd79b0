package mem

import "errors"

// Errors reported by the memory hierarchy. They are wrapped with more context
// when returned, so test them with errors.Is.
var (
	// ErrOutOfRange is fatal. The access is aborted.
	ErrOutOfRange = errors.New("address out of range")

	// ErrNoFreeMSHR is a structural stall. Retry after an MSHR retires.
	ErrNoFreeMSHR = errors.New("no free MSHR entry")

	// ErrTooManyTargets is a structural stall. The MSHR tracking the block
	// cannot take more requesters.
	ErrTooManyTargets = errors.New("too many targets in MSHR entry")

	// ErrNoVictim is a structural stall. Every way of the set is reserved
	// by in-flight misses.
	ErrNoVictim = errors.New("no evictable block in set")

	// ErrCrossBlock is returned by a single cache level when an access spans
	// two blocks. The hierarchy splits such accesses before they get here.
	ErrCrossBlock = errors.New("access crosses a block boundary")

	// ErrInvalidConfiguration is only returned while building components.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// IsStall returns true if err is a flow-control signal that the caller should
// handle by retrying later.
func IsStall(err error) bool {
	return errors.Is(err, ErrNoFreeMSHR) ||
		errors.Is(err, ErrTooManyTargets) ||
		errors.Is(err, ErrNoVictim)
}
