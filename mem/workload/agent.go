package workload

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand"

	"github.com/sarchlab/cachesim/mem/mem"
	"github.com/sarchlab/cachesim/sim/id"
)

// ErrDataMismatch is returned when a load does not see the last value stored
// to its address.
var ErrDataMismatch = errors.New("read data mismatch")

// An Agent generates random 4-byte loads and stores and checks that every
// load returns the value last stored at that address.
type Agent struct {
	MaxAddress uint64

	WriteLeft     int
	ReadLeft      int
	KnownMemValue map[uint64]uint32

	rand        *rand.Rand
	idGenerator id.IDGenerator
}

// AgentBuilder can build agents.
type AgentBuilder struct {
	maxAddress uint64
	writeLeft  int
	readLeft   int
	seed       int64
}

// MakeAgentBuilder creates a builder with 1000 reads and 1000 writes over the
// first 1MB.
func MakeAgentBuilder() AgentBuilder {
	return AgentBuilder{
		maxAddress: 1 * mem.MB,
		writeLeft:  1000,
		readLeft:   1000,
		seed:       1,
	}
}

// WithMaxAddress sets the end of the address range used.
func (b AgentBuilder) WithMaxAddress(addr uint64) AgentBuilder {
	b.maxAddress = addr
	return b
}

// WithWriteLeft sets the number of stores to issue.
func (b AgentBuilder) WithWriteLeft(n int) AgentBuilder {
	b.writeLeft = n
	return b
}

// WithReadLeft sets the number of loads to issue.
func (b AgentBuilder) WithReadLeft(n int) AgentBuilder {
	b.readLeft = n
	return b
}

// WithSeed sets the random seed.
func (b AgentBuilder) WithSeed(seed int64) AgentBuilder {
	b.seed = seed
	return b
}

// Build creates the agent.
func (b AgentBuilder) Build() *Agent {
	if b.maxAddress < 4 {
		panic("max address must cover at least one word")
	}

	return &Agent{
		MaxAddress:    b.maxAddress,
		WriteLeft:     b.writeLeft,
		ReadLeft:      b.readLeft,
		KnownMemValue: make(map[uint64]uint32),
		rand:          rand.New(rand.NewSource(b.seed)),
		idGenerator:   id.NewIDGenerator(),
	}
}

// Next issues a load of a known address or a store to a random address.
func (a *Agent) Next() (mem.Request, error) {
	if a.ReadLeft == 0 && a.WriteLeft == 0 {
		return mem.Request{}, io.EOF
	}

	if a.shouldRead() {
		return a.doRead(), nil
	}

	if a.WriteLeft == 0 {
		// Nothing was ever written, so there is nothing to check.
		a.ReadLeft = 0
		return mem.Request{}, io.EOF
	}

	return a.doWrite(), nil
}

func (a *Agent) shouldRead() bool {
	if len(a.KnownMemValue) == 0 || a.ReadLeft == 0 {
		return false
	}

	if a.WriteLeft == 0 {
		return true
	}

	return a.rand.Float64() > 0.5
}

func (a *Agent) randomAddress() uint64 {
	return a.rand.Uint64() % (a.MaxAddress / 4) * 4
}

func (a *Agent) randomReadAddress() uint64 {
	for {
		addr := a.randomAddress()
		if _, written := a.KnownMemValue[addr]; written {
			return addr
		}
	}
}

func (a *Agent) doRead() mem.Request {
	a.ReadLeft--

	return mem.RequestBuilder{}.
		WithID(a.idGenerator.Generate()).
		WithAddress(a.randomReadAddress()).
		WithKind(mem.Load).
		WithByteSize(4).
		Build()
}

func (a *Agent) doWrite() mem.Request {
	a.WriteLeft--

	address := a.randomAddress()
	data := a.rand.Uint32()
	a.KnownMemValue[address] = data

	return mem.RequestBuilder{}.
		WithID(a.idGenerator.Generate()).
		WithAddress(address).
		WithKind(mem.Store).
		WithData(uint32ToBytes(data)).
		Build()
}

// Check verifies that a load returned the last value stored.
func (a *Agent) Check(req mem.Request, rsp mem.Response) error {
	if req.Kind != mem.Load {
		return nil
	}

	expected, known := a.KnownMemValue[req.Address]
	if !known {
		return nil
	}

	if len(rsp.Data) != 4 {
		return fmt.Errorf("%w: load 0x%x returned %d bytes",
			ErrDataMismatch, req.Address, len(rsp.Data))
	}

	actual := binary.LittleEndian.Uint32(rsp.Data)
	if actual != expected {
		return fmt.Errorf("%w: load 0x%x expected 0x%08x, got 0x%08x",
			ErrDataMismatch, req.Address, expected, actual)
	}

	return nil
}

func uint32ToBytes(data uint32) []byte {
	bytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(bytes, data)

	return bytes
}
