// Package tagging keeps track of which blocks a cache holds and which block
// to evict.
package tagging

import (
	"fmt"
	"math/bits"
)

// TagArray is the directory of a cache. It knows which blocks are stored,
// where they are stored, and in which order they have been used.
type TagArray interface {
	Lookup(addr uint64) (Block, bool)
	Update(block Block)
	Visit(block Block)
	GetSet(addr uint64) (set *Set, setID int)
	GetSets() []Set
	Lock(setID, wayID int)
	Unlock(setID, wayID int)
	Decompose(addr uint64) (tag uint64, setID int, offset uint64)
	BlockAddr(block Block) uint64
	NumSets() int
	NumWays() int
	BlockSize() uint64
	TotalSize() uint64
	Reset()
}

// NewTagArray creates a tag array. All three parameters must be powers of
// two; callers validate their configuration before getting here.
func NewTagArray(
	numSets int,
	numWays int,
	blockSize uint64,
) TagArray {
	if !isPowerOfTwo(uint64(numSets)) || !isPowerOfTwo(uint64(numWays)) ||
		!isPowerOfTwo(blockSize) {
		panic(fmt.Sprintf("invalid tag array geometry %d sets x %d ways x %dB",
			numSets, numWays, blockSize))
	}

	t := &tagArrayImpl{
		numSets:       numSets,
		numWays:       numWays,
		blockSize:     blockSize,
		log2BlockSize: bits.TrailingZeros64(blockSize),
		log2NumSets:   bits.TrailingZeros64(uint64(numSets)),
	}

	t.Reset()

	return t
}

func isPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

// A Block of a cache is the information that is associated with a cache line.
type Block struct {
	Tag          uint64
	SetID        int
	WayID        int
	CacheAddress uint64
	IsValid      bool
	IsDirty      bool
	IsLocked     bool

	// IsPrefetched is set when a prefetch brought the block in and no demand
	// access has touched it yet.
	IsPrefetched bool

	// LastAccess is the access order stamp of the last visit. Larger is
	// more recent.
	LastAccess uint64
}

// A Set is a list of blocks where a certain piece memory can be stored at.
// LRUQueue holds way IDs, least recently used first.
type Set struct {
	Blocks   []Block
	LRUQueue []int
}

type tagArrayImpl struct {
	numSets       int
	numWays       int
	blockSize     uint64
	log2BlockSize int
	log2NumSets   int
	accessOrder   uint64
	sets          []Set
}

func (d *tagArrayImpl) NumSets() int {
	return d.numSets
}

func (d *tagArrayImpl) NumWays() int {
	return d.numWays
}

func (d *tagArrayImpl) BlockSize() uint64 {
	return d.blockSize
}

// TotalSize returns the maximum number of bytes can be stored in the cache
func (d *tagArrayImpl) TotalSize() uint64 {
	return uint64(d.numSets) * uint64(d.numWays) * d.blockSize
}

// Decompose splits an address into tag, set index and block offset.
func (d *tagArrayImpl) Decompose(addr uint64) (
	tag uint64,
	setID int,
	offset uint64,
) {
	offset = addr & (d.blockSize - 1)
	setID = int((addr >> d.log2BlockSize) & uint64(d.numSets-1))
	tag = addr >> (d.log2BlockSize + d.log2NumSets)

	return
}

// BlockAddr rebuilds the block-aligned address of a block.
func (d *tagArrayImpl) BlockAddr(block Block) uint64 {
	return (block.Tag<<d.log2NumSets | uint64(block.SetID)) << d.log2BlockSize
}

// GetSet returns the set that a certain address should store at.
func (d *tagArrayImpl) GetSet(addr uint64) (set *Set, setID int) {
	_, setID, _ = d.Decompose(addr)
	set = &d.sets[setID]

	return
}

// GetSets returns all the sets.
func (d *tagArrayImpl) GetSets() []Set {
	return d.sets
}

// Lookup finds the valid block that holds addr.
func (d *tagArrayImpl) Lookup(addr uint64) (Block, bool) {
	tag, setID, _ := d.Decompose(addr)

	for _, block := range d.sets[setID].Blocks {
		if block.IsValid && block.Tag == tag {
			return block, true
		}
	}

	return Block{}, false
}

// Update updates the block information.
func (d *tagArrayImpl) Update(block Block) {
	d.sets[block.SetID].Blocks[block.WayID] = block
}

// Visit moves the block to the end of the LRUQueue and stamps it with a new
// access order.
func (d *tagArrayImpl) Visit(block Block) {
	set := &d.sets[block.SetID]

	newLRUQueue := make([]int, 0, d.numWays)
	for _, wayID := range set.LRUQueue {
		if wayID != block.WayID {
			newLRUQueue = append(newLRUQueue, wayID)
		}
	}

	newLRUQueue = append(newLRUQueue, block.WayID)
	set.LRUQueue = newLRUQueue

	d.accessOrder++
	set.Blocks[block.WayID].LastAccess = d.accessOrder
}

// Reset will mark all the blocks in the directory invalid.
func (d *tagArrayImpl) Reset() {
	d.accessOrder = 0
	d.sets = make([]Set, d.numSets)

	for i := 0; i < d.numSets; i++ {
		d.sets[i].Blocks = make([]Block, 0, d.numWays)
		d.sets[i].LRUQueue = make([]int, 0, d.numWays)

		for j := 0; j < d.numWays; j++ {
			block := Block{
				SetID: i,
				WayID: j,
				CacheAddress: (uint64(i)*uint64(d.numWays) + uint64(j)) *
					d.blockSize,
			}

			d.sets[i].Blocks = append(d.sets[i].Blocks, block)
			d.sets[i].LRUQueue = append(d.sets[i].LRUQueue, j)
		}
	}
}

func (d *tagArrayImpl) Lock(setID, wayID int) {
	d.sets[setID].Blocks[wayID].IsLocked = true
}

func (d *tagArrayImpl) Unlock(setID, wayID int) {
	d.sets[setID].Blocks[wayID].IsLocked = false
}
