package cache

import (
	"fmt"
	"log"

	"github.com/sarchlab/cachesim/mem/cache/internal/tagging"
	"github.com/sarchlab/cachesim/mem/mem"
	"github.com/sarchlab/cachesim/sim"
	"github.com/sarchlab/cachesim/sim/hooking"
)

// A Line is a block moving between a cache and its victim cache.
type Line struct {
	BlockAddr uint64
	Data      []byte
	Dirty     bool
}

// A WritebackTarget takes the dirty lines a victim cache evicts.
type WritebackTarget interface {
	WriteBack(now sim.Cycle, blockAddr uint64, data []byte) (sim.Cycle, error)
}

// A VictimCache holds lines evicted from the caches above it. It is only
// filled by AcceptWriteback and gives lines back with Extract, so a block
// never lives in both the victim cache and a primary cache.
type VictimCache struct {
	hooking.HookableBase

	name         string
	config       Config
	tags         tagging.TagArray
	victimFinder tagging.VictimFinder
	storage      *mem.Storage
	target       WritebackTarget
	stats        VictimStatistics
}

// Name returns the name of the victim cache.
func (v *VictimCache) Name() string {
	return v.name
}

// Config returns the configuration the victim cache was built with.
func (v *VictimCache) Config() Config {
	return v.config
}

// BlockSize returns the line size.
func (v *VictimCache) BlockSize() uint64 {
	return v.config.BlockSize
}

// SetWritebackTarget sets where dirty evictions go. Nil drops them.
func (v *VictimCache) SetWritebackTarget(t WritebackTarget) {
	v.target = t
}

// HitLatency is the time the victim cache takes to return a line.
func (v *VictimCache) HitLatency() sim.Cycle {
	return v.config.HitLatency()
}

// TagLatency is the time a primary cache waits to learn it missed the victim
// cache.
func (v *VictimCache) TagLatency() sim.Cycle {
	return v.config.TagLatency
}

// Stats returns a copy of the counters.
func (v *VictimCache) Stats() VictimStatistics {
	return v.stats
}

// ResetStats clears the counters.
func (v *VictimCache) ResetStats() {
	v.stats = VictimStatistics{}
}

// Lookup tells if the block holding addr is in the victim cache. It does not
// change any state.
func (v *VictimCache) Lookup(addr uint64) bool {
	_, found := v.tags.Lookup(addr)
	return found
}

// Extract removes the block holding addr and returns it.
func (v *VictimCache) Extract(addr uint64) (Line, bool) {
	v.stats.Lookups++

	block, found := v.tags.Lookup(addr)
	if !found {
		v.stats.Misses++
		return Line{}, false
	}

	v.stats.Hits++

	line := Line{
		BlockAddr: v.tags.BlockAddr(block),
		Data:      v.mustRead(block),
		Dirty:     block.IsDirty,
	}

	block.IsValid = false
	block.IsDirty = false
	v.tags.Update(block)

	return line, true
}

// AcceptWriteback inserts an evicted line, pushing out the least recently
// inserted line of the set if needed.
func (v *VictimCache) AcceptWriteback(now sim.Cycle, line Line) error {
	if uint64(len(line.Data)) != v.config.BlockSize {
		return fmt.Errorf("%s: line of %d bytes, block size is %d",
			v.name, len(line.Data), v.config.BlockSize)
	}

	block, found := v.tags.Lookup(line.BlockAddr)
	if !found {
		var ok bool

		block, ok = v.victimFinder.FindVictim(v.tags, line.BlockAddr)
		if !ok {
			return fmt.Errorf("%s: %w", v.name, mem.ErrNoVictim)
		}

		if block.IsValid {
			if err := v.evict(now, block); err != nil {
				return err
			}
		}
	}

	tag, _, _ := v.tags.Decompose(line.BlockAddr)
	block.Tag = tag
	block.IsValid = true
	block.IsDirty = line.Dirty || (found && block.IsDirty)

	if err := v.storage.Write(block.CacheAddress, line.Data); err != nil {
		return err
	}

	v.tags.Update(block)
	v.tags.Visit(block)
	v.stats.Inserts++

	return nil
}

func (v *VictimCache) evict(now sim.Cycle, block tagging.Block) error {
	blockAddr := v.tags.BlockAddr(block)

	v.stats.Evictions++
	v.InvokeHook(hooking.HookCtx{
		Domain: v,
		Now:    now,
		Pos:    HookPosEvict,
		Item:   BlockEvent{BlockAddr: blockAddr, Dirty: block.IsDirty},
	})

	if !block.IsDirty {
		return nil
	}

	if v.target == nil {
		v.stats.Dropped++
		return nil
	}

	if _, err := v.target.WriteBack(now, blockAddr, v.mustRead(block)); err != nil {
		return fmt.Errorf("%s: write back 0x%x: %w", v.name, blockAddr, err)
	}

	v.stats.Writebacks++

	return nil
}

// Flush evicts every line. Dirty lines go to the write-back target, or are
// dropped without one.
func (v *VictimCache) Flush(now sim.Cycle) error {
	for _, set := range v.tags.GetSets() {
		for _, block := range set.Blocks {
			if !block.IsValid {
				continue
			}

			if err := v.evict(now, block); err != nil {
				return err
			}

			block.IsValid = false
			block.IsDirty = false
			v.tags.Update(block)
		}
	}

	return nil
}

// NumValidLines returns how many lines the victim cache holds.
func (v *VictimCache) NumValidLines() int {
	n := 0

	for _, set := range v.tags.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid {
				n++
			}
		}
	}

	return n
}

func (v *VictimCache) mustRead(block tagging.Block) []byte {
	data, err := v.storage.Read(block.CacheAddress, v.config.BlockSize)
	if err != nil {
		log.Panicf("%s: data array read: %v", v.name, err)
	}

	return data
}
