package tagging

// A VictimFinder decides which block should be evicted.
type VictimFinder interface {
	FindVictim(tags TagArray, addr uint64) (Block, bool)
}

// LRUVictimFinder evicts the least recently used block.
type LRUVictimFinder struct {
}

// NewLRUVictimFinder returns a newly constructed lru evictor
func NewLRUVictimFinder() *LRUVictimFinder {
	return &LRUVictimFinder{}
}

// FindVictim returns the least recently used unlocked block in the set of
// addr. Empty blocks are used first. Locked blocks are being filled by an
// in-flight miss and are never chosen; if every block is locked, no victim
// is returned.
func (e *LRUVictimFinder) FindVictim(tags TagArray, addr uint64) (Block, bool) {
	set, _ := tags.GetSet(addr)

	for _, wayID := range set.LRUQueue {
		block := set.Blocks[wayID]
		if !block.IsValid && !block.IsLocked {
			return block, true
		}
	}

	for _, wayID := range set.LRUQueue {
		block := set.Blocks[wayID]
		if !block.IsLocked {
			return block, true
		}
	}

	return Block{}, false
}
