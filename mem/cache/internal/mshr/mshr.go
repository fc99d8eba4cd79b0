// Package mshr tracks the misses a cache has in flight.
package mshr

import (
	"fmt"
	"sort"

	"github.com/google/btree"
	"github.com/sarchlab/cachesim/mem/mem"
	"github.com/sarchlab/cachesim/sim"
)

// MSHR records the cache's in-flight requests to the lower level. Each entry
// covers one block and carries every requester waiting for it.
type MSHR interface {
	Lookup(blockAddr uint64) (*Entry, bool)
	AddEntry(entry *Entry) error
	AddTarget(blockAddr uint64, target Target) error
	Remove(blockAddr uint64) (*Entry, bool)
	Retire(now sim.Cycle) []*Entry
	NextReadyTime() (sim.Cycle, bool)
	Entries() []*Entry
	IsFull() bool
	Len() int
	Capacity() int
	Reset()
}

// A Target is a requester waiting for an in-flight block.
type Target struct {
	ReqID    string
	Kind     mem.AccessKind
	Offset   uint64
	Size     uint64
	IssuedAt sim.Cycle
}

// Entry is an entry in MSHR.
type Entry struct {
	BlockAddr  uint64
	IsPrefetch bool
	IssuedAt   sim.Cycle
	ReadyAt    sim.Cycle
	Targets    []Target

	// Data is the block as it will be installed. Stores that coalesce into
	// the entry update it and set IsDirty.
	Data    []byte
	IsDirty bool

	// The way reserved for the fill.
	SetID int
	WayID int

	// Source tells where the block came from.
	Source mem.Level

	seq uint64
}

type readyItem struct {
	entry *Entry
}

func (i readyItem) Less(than btree.Item) bool {
	other := than.(readyItem).entry
	if i.entry.ReadyAt != other.ReadyAt {
		return i.entry.ReadyAt < other.ReadyAt
	}

	return i.entry.seq < other.seq
}

// NewMSHR creates a new MSHR.
func NewMSHR(capacity, targetsPerEntry int) MSHR {
	if capacity <= 0 || targetsPerEntry <= 0 {
		panic(fmt.Sprintf("invalid MSHR size %d x %d",
			capacity, targetsPerEntry))
	}

	return &mshrImpl{
		capacity:        capacity,
		targetsPerEntry: targetsPerEntry,
		entries:         make(map[uint64]*Entry),
		readyQueue:      btree.New(2),
	}
}

type mshrImpl struct {
	capacity        int
	targetsPerEntry int
	entries         map[uint64]*Entry
	readyQueue      *btree.BTree
	nextSeq         uint64
}

func (m *mshrImpl) Lookup(blockAddr uint64) (*Entry, bool) {
	e, ok := m.entries[blockAddr]
	return e, ok
}

func (m *mshrImpl) AddEntry(entry *Entry) error {
	if _, found := m.entries[entry.BlockAddr]; found {
		panic(fmt.Sprintf("block 0x%x is already in MSHR", entry.BlockAddr))
	}

	if m.IsFull() {
		return fmt.Errorf("%w: %d entries in use", mem.ErrNoFreeMSHR, m.capacity)
	}

	if len(entry.Targets) > m.targetsPerEntry {
		return fmt.Errorf("%w: %d targets, limit %d",
			mem.ErrTooManyTargets, len(entry.Targets), m.targetsPerEntry)
	}

	m.nextSeq++
	entry.seq = m.nextSeq
	m.entries[entry.BlockAddr] = entry
	m.readyQueue.ReplaceOrInsert(readyItem{entry: entry})

	return nil
}

func (m *mshrImpl) AddTarget(blockAddr uint64, target Target) error {
	e, found := m.entries[blockAddr]
	if !found {
		panic(fmt.Sprintf("block 0x%x is not in MSHR", blockAddr))
	}

	if len(e.Targets) >= m.targetsPerEntry {
		return fmt.Errorf("%w: block 0x%x has %d targets",
			mem.ErrTooManyTargets, blockAddr, len(e.Targets))
	}

	e.Targets = append(e.Targets, target)

	return nil
}

// Remove drops the entry of a block before it is ready.
func (m *mshrImpl) Remove(blockAddr uint64) (*Entry, bool) {
	e, found := m.entries[blockAddr]
	if !found {
		return nil, false
	}

	delete(m.entries, blockAddr)
	m.readyQueue.Delete(readyItem{entry: e})

	return e, true
}

// Retire removes and returns all the entries that are ready at now, in the
// order they become ready.
func (m *mshrImpl) Retire(now sim.Cycle) []*Entry {
	var retired []*Entry

	for m.readyQueue.Len() > 0 {
		item := m.readyQueue.Min().(readyItem)
		if item.entry.ReadyAt > now {
			break
		}

		m.readyQueue.DeleteMin()
		delete(m.entries, item.entry.BlockAddr)
		retired = append(retired, item.entry)
	}

	return retired
}

func (m *mshrImpl) NextReadyTime() (sim.Cycle, bool) {
	if m.readyQueue.Len() == 0 {
		return 0, false
	}

	return m.readyQueue.Min().(readyItem).entry.ReadyAt, true
}

// Entries returns the entries ordered by block address.
func (m *mshrImpl) Entries() []*Entry {
	entries := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].BlockAddr < entries[j].BlockAddr
	})

	return entries
}

func (m *mshrImpl) IsFull() bool {
	return len(m.entries) >= m.capacity
}

func (m *mshrImpl) Len() int {
	return len(m.entries)
}

func (m *mshrImpl) Capacity() int {
	return m.capacity
}

func (m *mshrImpl) Reset() {
	m.entries = make(map[uint64]*Entry)
	m.readyQueue = btree.New(2)
}
