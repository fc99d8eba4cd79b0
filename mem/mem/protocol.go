// Package mem defines the requests, responses, errors and storage shared by
// every level of the memory hierarchy.
package mem

import (
	"fmt"
	"strings"

	"github.com/sarchlab/cachesim/sim"
)

// For capacity calculations.
const (
	_       = iota
	KB uint64 = 1 << (10 * iota)
	MB
	GB
)

// AccessKind tells what a CPU request wants to do.
type AccessKind int

// The kinds of accesses a core can issue.
const (
	Fetch AccessKind = iota
	Load
	Store
)

func (k AccessKind) String() string {
	switch k {
	case Fetch:
		return "fetch"
	case Load:
		return "load"
	case Store:
		return "store"
	default:
		return fmt.Sprintf("AccessKind(%d)", int(k))
	}
}

// IsWrite returns true if the access modifies memory.
func (k AccessKind) IsWrite() bool {
	return k == Store
}

// ParseAccessKind accepts the long names ("load") and the one-letter forms
// used in trace files (F/I, L/R, S/W).
func ParseAccessKind(s string) (AccessKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "f", "i", "fetch", "ifetch":
		return Fetch, nil
	case "l", "r", "load", "read":
		return Load, nil
	case "s", "w", "store", "write":
		return Store, nil
	}

	return 0, fmt.Errorf("unknown access kind %q", s)
}

// Level names the place where a request was finally served.
type Level int

// Levels a request can be served by.
const (
	LevelL1 Level = iota
	LevelMSHR
	LevelVictim
	LevelMemory
)

func (l Level) String() string {
	switch l {
	case LevelL1:
		return "L1"
	case LevelMSHR:
		return "MSHR"
	case LevelVictim:
		return "Victim"
	case LevelMemory:
		return "Memory"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// A Request is a single memory access issued by a core.
type Request struct {
	ID      string
	Address uint64
	Kind    AccessKind
	Size    uint64

	// Data holds the bytes to store. It is ignored for fetches and loads.
	Data []byte
}

// A Response is what the hierarchy returns for a Request.
type Response struct {
	// Latency is the number of cycles between issue and completion,
	// including any structural stall.
	Latency sim.Cycle

	// Data is the value read. Stores get the stored bytes back.
	Data []byte

	Hit      bool
	ServedBy Level

	// StallCycles is the part of Latency spent waiting for a free MSHR.
	StallCycles sim.Cycle
}

// A LowerLevel is the next storage level a cache forwards misses and
// write-backs to. It works on whole blocks.
type LowerLevel interface {
	// Fetch reads size bytes starting at the block-aligned address and
	// reports how long that took.
	Fetch(now sim.Cycle, blockAddr, size uint64) ([]byte, sim.Cycle, error)

	// WriteBack stores an evicted block.
	WriteBack(now sim.Cycle, blockAddr uint64, data []byte) (sim.Cycle, error)
}

// RequestBuilder can build requests.
type RequestBuilder struct {
	id      string
	address uint64
	kind    AccessKind
	size    uint64
	data    []byte
}

// WithID sets the ID of the request to build.
func (b RequestBuilder) WithID(id string) RequestBuilder {
	b.id = id
	return b
}

// WithAddress sets the address of the request to build.
func (b RequestBuilder) WithAddress(address uint64) RequestBuilder {
	b.address = address
	return b
}

// WithKind sets the access kind of the request to build.
func (b RequestBuilder) WithKind(kind AccessKind) RequestBuilder {
	b.kind = kind
	return b
}

// WithByteSize sets the byte size of the request to build.
func (b RequestBuilder) WithByteSize(size uint64) RequestBuilder {
	b.size = size
	return b
}

// WithData sets the data to store. It also sets the byte size.
func (b RequestBuilder) WithData(data []byte) RequestBuilder {
	b.data = data
	b.size = uint64(len(data))

	return b
}

// Build creates a new request.
func (b RequestBuilder) Build() Request {
	return Request{
		ID:      b.id,
		Address: b.address,
		Kind:    b.kind,
		Size:    b.size,
		Data:    b.data,
	}
}
