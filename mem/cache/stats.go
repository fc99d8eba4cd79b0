package cache

import "github.com/sarchlab/cachesim/sim/hooking"

// Statistics counts what happened in a cache.
type Statistics struct {
	Accesses uint64 `json:"accesses"`
	Reads    uint64 `json:"reads"`
	Writes   uint64 `json:"writes"`
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`

	// MSHRHits are misses that merged into an in-flight block.
	MSHRHits uint64 `json:"mshr_hits"`

	VictimHits   uint64 `json:"victim_hits"`
	VictimMisses uint64 `json:"victim_misses"`

	Fills      uint64 `json:"fills"`
	Evictions  uint64 `json:"evictions"`
	Writebacks uint64 `json:"writebacks"`

	// VictimWritebacks are evicted lines handed to the victim cache.
	VictimWritebacks uint64 `json:"victim_writebacks"`

	PrefetchIssued  uint64 `json:"prefetch_issued"`
	PrefetchDropped uint64 `json:"prefetch_dropped"`
	PrefetchUseful  uint64 `json:"prefetch_useful"`

	// PrefetchCancelled are in-flight prefetches given up so that a demand
	// miss could take their MSHR entry or way.
	PrefetchCancelled uint64 `json:"prefetch_cancelled"`

	// Stalls counts accesses turned away for lack of an MSHR, a target slot
	// or an evictable way.
	Stalls uint64 `json:"stalls"`
}

// HitRate returns hits over accesses, or 0 before the first access.
func (s Statistics) HitRate() float64 {
	if s.Accesses == 0 {
		return 0
	}

	return float64(s.Hits) / float64(s.Accesses)
}

// VictimStatistics counts what happened in a victim cache.
type VictimStatistics struct {
	Lookups    uint64 `json:"lookups"`
	Hits       uint64 `json:"hits"`
	Misses     uint64 `json:"misses"`
	Inserts    uint64 `json:"inserts"`
	Evictions  uint64 `json:"evictions"`
	Writebacks uint64 `json:"writebacks"`

	// Dropped counts dirty evictions lost because no write-back target is
	// attached.
	Dropped uint64 `json:"dropped"`
}

// HitRate returns hits over lookups, or 0 before the first lookup.
func (s VictimStatistics) HitRate() float64 {
	if s.Lookups == 0 {
		return 0
	}

	return float64(s.Hits) / float64(s.Lookups)
}

var (
	// HookPosEvict marks a block leaving a cache. The item is a BlockEvent.
	HookPosEvict = &hooking.HookPos{Name: "Cache Evict"}

	// HookPosFill marks a block being installed. The item is a BlockEvent.
	HookPosFill = &hooking.HookPos{Name: "Cache Fill"}

	// HookPosPrefetch marks a prefetch sent to the next level. The item is a
	// BlockEvent.
	HookPosPrefetch = &hooking.HookPos{Name: "Cache Prefetch"}
)

// BlockEvent describes the block that a cache hook is about.
type BlockEvent struct {
	BlockAddr uint64
	Dirty     bool
	Prefetch  bool
}
