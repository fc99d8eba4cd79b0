// Package cache implements a write-back, write-allocate set-associative cache
// with non-blocking misses, and the victim cache that can sit below it.
package cache

import (
	"fmt"
	"log"

	"github.com/sarchlab/cachesim/mem/cache/internal/mshr"
	"github.com/sarchlab/cachesim/mem/cache/internal/tagging"
	"github.com/sarchlab/cachesim/mem/cache/prefetch"
	"github.com/sarchlab/cachesim/mem/mem"
	"github.com/sarchlab/cachesim/sim"
	"github.com/sarchlab/cachesim/sim/hooking"
)

// A Result is what a cache returns for one access.
type Result struct {
	Hit      bool
	Latency  sim.Cycle
	Data     []byte
	ServedBy mem.Level
}

// A Cache is one level of set-associative cache.
//
// A miss reserves a way, takes the block from the victim cache or the lower
// level, and records the fill in an MSHR entry that becomes ready after the
// miss latency. The fill is installed when Tick reaches that time. Later
// accesses to the same block merge into the entry until then.
type Cache struct {
	hooking.HookableBase

	name         string
	config       Config
	tags         tagging.TagArray
	victimFinder tagging.VictimFinder
	mshr         mshr.MSHR
	storage      *mem.Storage
	lower        mem.LowerLevel
	victimCache  *VictimCache
	prefetcher   *prefetch.StridePrefetcher
	logger       *log.Logger
	stats        Statistics
}

// Name returns the name of the cache.
func (c *Cache) Name() string {
	return c.name
}

// Config returns the configuration the cache was built with.
func (c *Cache) Config() Config {
	return c.config
}

// VictimCache returns the attached victim cache, or nil.
func (c *Cache) VictimCache() *VictimCache {
	return c.victimCache
}

// Prefetcher returns the attached prefetcher, or nil.
func (c *Cache) Prefetcher() *prefetch.StridePrefetcher {
	return c.prefetcher
}

// Stats returns a copy of the counters.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// ResetStats clears the counters.
func (c *Cache) ResetStats() {
	c.stats = Statistics{}
}

// NumInFlight returns the number of MSHR entries in use.
func (c *Cache) NumInFlight() int {
	return c.mshr.Len()
}

// NextReadyTime returns when the earliest in-flight miss completes.
func (c *Cache) NextReadyTime() (sim.Cycle, bool) {
	return c.mshr.NextReadyTime()
}

// BlockAddr aligns addr to the start of its block.
func (c *Cache) BlockAddr(addr uint64) uint64 {
	return addr &^ (c.config.BlockSize - 1)
}

// Lookup tells if the block holding addr is resident. In-flight blocks are
// not resident yet.
func (c *Cache) Lookup(addr uint64) bool {
	_, found := c.tags.Lookup(addr)
	return found
}

// Tick installs the fills of every miss that completes at or before now.
func (c *Cache) Tick(now sim.Cycle) {
	for _, e := range c.mshr.Retire(now) {
		c.fill(e.ReadyAt, e)
	}
}

func (c *Cache) fill(now sim.Cycle, e *mshr.Entry) {
	set := c.tags.GetSets()[e.SetID]
	block := set.Blocks[e.WayID]

	tag, _, _ := c.tags.Decompose(e.BlockAddr)
	block.Tag = tag
	block.IsValid = true
	block.IsLocked = false
	block.IsDirty = e.IsDirty
	block.IsPrefetched = e.IsPrefetch && len(e.Targets) == 0

	c.mustWrite(block.CacheAddress, e.Data)
	c.tags.Update(block)
	c.tags.Visit(block)
	c.stats.Fills++

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Now:    now,
		Pos:    HookPosFill,
		Item: BlockEvent{
			BlockAddr: e.BlockAddr,
			Dirty:     e.IsDirty,
			Prefetch:  e.IsPrefetch,
		},
	})
}

// Access serves one request that fits in a single block. Structural stalls
// are returned as errors that satisfy mem.IsStall; no state is changed in
// that case and the request can be retried once NextReadyTime has passed.
func (c *Cache) Access(now sim.Cycle, req mem.Request) (Result, error) {
	size := req.Size
	if size == 0 {
		size = 1
	}

	offset := req.Address & (c.config.BlockSize - 1)
	if offset+size > c.config.BlockSize {
		return Result{}, fmt.Errorf("%s: [0x%x, +%d): %w",
			c.name, req.Address, size, mem.ErrCrossBlock)
	}

	if req.Kind.IsWrite() && uint64(len(req.Data)) != size {
		return Result{}, fmt.Errorf("%s: store of %d bytes carries %d bytes of data",
			c.name, size, len(req.Data))
	}

	c.Tick(now)

	res, err := c.serve(now, req, offset, size)
	if err != nil {
		if mem.IsStall(err) {
			c.stats.Stalls++
		}

		return Result{}, err
	}

	c.stats.Accesses++
	if req.Kind.IsWrite() {
		c.stats.Writes++
	} else {
		c.stats.Reads++
	}

	if res.Hit {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}

	if c.prefetcher != nil {
		c.prefetcher.Observe(now, req.Address, req.Kind)
	}

	return res, nil
}

func (c *Cache) serve(
	now sim.Cycle,
	req mem.Request,
	offset, size uint64,
) (Result, error) {
	blockAddr := c.BlockAddr(req.Address)

	if block, found := c.tags.Lookup(blockAddr); found {
		return c.serveHit(req, block, offset, size), nil
	}

	target := mshr.Target{
		ReqID:    req.ID,
		Kind:     req.Kind,
		Offset:   offset,
		Size:     size,
		IssuedAt: now,
	}

	if e, found := c.mshr.Lookup(blockAddr); found {
		return c.serveInFlight(now, req, e, target)
	}

	e, err := c.startMiss(now, blockAddr, false, []mshr.Target{target})
	if err != nil {
		return Result{}, err
	}

	return Result{
		Latency:  e.ReadyAt - now + c.config.ResponseLatency,
		Data:     c.accessEntry(e, req, offset, size),
		ServedBy: e.Source,
	}, nil
}

func (c *Cache) serveHit(
	req mem.Request,
	block tagging.Block,
	offset, size uint64,
) Result {
	if block.IsPrefetched {
		c.stats.PrefetchUseful++
		block.IsPrefetched = false
	}

	var data []byte
	if req.Kind.IsWrite() {
		c.mustWrite(block.CacheAddress+offset, req.Data)
		block.IsDirty = true
		data = req.Data
	} else {
		data = c.mustRead(block.CacheAddress+offset, size)
	}

	c.tags.Update(block)
	c.tags.Visit(block)

	return Result{
		Hit:      true,
		Latency:  c.config.HitLatency(),
		Data:     data,
		ServedBy: mem.LevelL1,
	}
}

func (c *Cache) serveInFlight(
	now sim.Cycle,
	req mem.Request,
	e *mshr.Entry,
	target mshr.Target,
) (Result, error) {
	if err := c.mshr.AddTarget(e.BlockAddr, target); err != nil {
		return Result{}, fmt.Errorf("%s: %w", c.name, err)
	}

	c.stats.MSHRHits++

	if e.IsPrefetch && len(e.Targets) == 1 {
		c.stats.PrefetchUseful++
	}

	ready := max(e.ReadyAt, now+c.config.TagLatency)

	return Result{
		Latency:  ready - now + c.config.ResponseLatency,
		Data:     c.accessEntry(e, req, target.Offset, target.Size),
		ServedBy: mem.LevelMSHR,
	}, nil
}

// accessEntry applies a load or a store to the block buffered in an MSHR
// entry.
func (c *Cache) accessEntry(
	e *mshr.Entry,
	req mem.Request,
	offset, size uint64,
) []byte {
	if req.Kind.IsWrite() {
		copy(e.Data[offset:offset+size], req.Data)
		e.IsDirty = true

		return req.Data
	}

	data := make([]byte, size)
	copy(data, e.Data[offset:offset+size])

	return data
}

// startMiss reserves a way, gets the block and records the miss. A demand
// miss that finds no free MSHR entry or way takes them from an in-flight
// prefetch nobody waits for. It changes nothing if it stalls.
func (c *Cache) startMiss(
	now sim.Cycle,
	blockAddr uint64,
	isPrefetch bool,
	targets []mshr.Target,
) (*mshr.Entry, error) {
	victim, victimFound := c.victimFinder.FindVictim(c.tags, blockAddr)
	_, setID := c.tags.GetSet(blockAddr)

	var cancelled *mshr.Entry

	if c.mshr.IsFull() || !victimFound {
		if !isPrefetch {
			cancelled = c.prefetchToCancel(setID, !victimFound)
		}

		if cancelled == nil {
			return nil, c.stallError(blockAddr)
		}
	}

	reuseWay := cancelled != nil && cancelled.SetID == setID
	if reuseWay {
		victim = c.tags.GetSets()[cancelled.SetID].Blocks[cancelled.WayID]
	}

	e := &mshr.Entry{
		BlockAddr:  blockAddr,
		IsPrefetch: isPrefetch,
		IssuedAt:   now,
		Targets:    targets,
		SetID:      victim.SetID,
		WayID:      victim.WayID,
	}

	if err := c.fetchBlock(now, e); err != nil {
		return nil, err
	}

	if cancelled != nil {
		if err := c.cancelPrefetch(now, cancelled, reuseWay); err != nil {
			return nil, err
		}
	}

	if victim.IsValid {
		if err := c.evict(now, victim); err != nil {
			return nil, err
		}
	}

	victim.IsValid = false
	victim.IsDirty = false
	victim.IsPrefetched = false
	victim.IsLocked = true
	c.tags.Update(victim)

	if err := c.mshr.AddEntry(e); err != nil {
		log.Panicf("%s: MSHR rejected a checked entry: %v", c.name, err)
	}

	return e, nil
}

func (c *Cache) stallError(blockAddr uint64) error {
	if c.mshr.IsFull() {
		return fmt.Errorf("%s: %w", c.name, mem.ErrNoFreeMSHR)
	}

	return fmt.Errorf("%s: block 0x%x: %w", c.name, blockAddr, mem.ErrNoVictim)
}

// prefetchToCancel picks the in-flight prefetch without targets that lands
// last. With sameSet, only prefetches holding a way of set setID qualify.
func (c *Cache) prefetchToCancel(setID int, sameSet bool) *mshr.Entry {
	var picked *mshr.Entry

	for _, e := range c.mshr.Entries() {
		if !e.IsPrefetch || len(e.Targets) > 0 {
			continue
		}

		if sameSet && e.SetID != setID {
			continue
		}

		if picked == nil || e.ReadyAt > picked.ReadyAt {
			picked = e
		}
	}

	return picked
}

// cancelPrefetch drops an in-flight prefetch. A block it took out of the
// victim cache goes back there. The reserved way is released unless the
// caller takes it over.
func (c *Cache) cancelPrefetch(now sim.Cycle, e *mshr.Entry, keepWay bool) error {
	c.mshr.Remove(e.BlockAddr)
	c.stats.PrefetchCancelled++

	if e.Source == mem.LevelVictim {
		err := c.victimCache.AcceptWriteback(now, Line{
			BlockAddr: e.BlockAddr,
			Data:      e.Data,
			Dirty:     e.IsDirty,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}

	if !keepWay {
		block := c.tags.GetSets()[e.SetID].Blocks[e.WayID]
		block.IsLocked = false
		c.tags.Update(block)
	}

	return nil
}

// fetchBlock fills the data, source and ready time of a new MSHR entry.
func (c *Cache) fetchBlock(now sim.Cycle, e *mshr.Entry) error {
	latency := c.config.TagLatency

	if c.victimCache != nil {
		line, found := c.victimCache.Extract(e.BlockAddr)
		if found {
			c.stats.VictimHits++
			e.Data = line.Data
			e.IsDirty = line.Dirty
			e.Source = mem.LevelVictim
			e.ReadyAt = now + latency + c.victimCache.HitLatency()

			return nil
		}

		c.stats.VictimMisses++
		latency += c.victimCache.TagLatency()
	}

	data, lowerLatency, err := c.lower.Fetch(
		now+latency, e.BlockAddr, c.config.BlockSize)
	if err != nil {
		return fmt.Errorf("%s: fetch 0x%x: %w", c.name, e.BlockAddr, err)
	}

	e.Data = data
	e.Source = mem.LevelMemory
	e.ReadyAt = now + latency + lowerLatency

	return nil
}

// evict writes a valid block out of the cache. Dirty blocks, and clean blocks
// when WritebackClean is set, go to the victim cache if there is one.
// Otherwise dirty blocks go to the lower level and clean blocks are dropped.
func (c *Cache) evict(now sim.Cycle, block tagging.Block) error {
	blockAddr := c.tags.BlockAddr(block)
	data := c.mustRead(block.CacheAddress, c.config.BlockSize)

	c.stats.Evictions++
	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Now:    now,
		Pos:    HookPosEvict,
		Item: BlockEvent{
			BlockAddr: blockAddr,
			Dirty:     block.IsDirty,
			Prefetch:  block.IsPrefetched,
		},
	})

	if c.victimCache != nil && (block.IsDirty || c.config.WritebackClean) {
		err := c.victimCache.AcceptWriteback(now, Line{
			BlockAddr: blockAddr,
			Data:      data,
			Dirty:     block.IsDirty,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}

		c.stats.VictimWritebacks++

		return nil
	}

	if !block.IsDirty {
		return nil
	}

	if _, err := c.lower.WriteBack(now, blockAddr, data); err != nil {
		return fmt.Errorf("%s: write back 0x%x: %w", c.name, blockAddr, err)
	}

	c.stats.Writebacks++

	return nil
}

// Prefetch brings a block in without a requester waiting for it. Blocks that
// are resident or in flight are skipped, and a prefetch never waits for an
// MSHR or a way. Demand misses may cancel it while it is in flight. It
// returns whether the prefetch was sent.
func (c *Cache) Prefetch(now sim.Cycle, addr uint64) bool {
	blockAddr := c.BlockAddr(addr)

	if _, found := c.tags.Lookup(blockAddr); found {
		c.stats.PrefetchDropped++
		return false
	}

	if _, found := c.mshr.Lookup(blockAddr); found {
		c.stats.PrefetchDropped++
		return false
	}

	if _, err := c.startMiss(now, blockAddr, true, nil); err != nil {
		if c.logger != nil && !mem.IsStall(err) {
			c.logger.Printf("%s: prefetch 0x%x dropped: %v", c.name, blockAddr, err)
		}

		c.stats.PrefetchDropped++

		return false
	}

	c.stats.PrefetchIssued++
	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Now:    now,
		Pos:    HookPosPrefetch,
		Item:   BlockEvent{BlockAddr: blockAddr, Prefetch: true},
	})

	return true
}

// Insert installs a whole block right away. A resident copy is overwritten.
func (c *Cache) Insert(now sim.Cycle, blockAddr uint64, data []byte, dirty bool) error {
	if uint64(len(data)) != c.config.BlockSize {
		return fmt.Errorf("%s: block of %d bytes, block size is %d",
			c.name, len(data), c.config.BlockSize)
	}

	blockAddr = c.BlockAddr(blockAddr)
	if _, found := c.mshr.Lookup(blockAddr); found {
		return fmt.Errorf("%s: block 0x%x is in flight", c.name, blockAddr)
	}

	block, found := c.tags.Lookup(blockAddr)
	if !found {
		var ok bool

		block, ok = c.victimFinder.FindVictim(c.tags, blockAddr)
		if !ok {
			return fmt.Errorf("%s: block 0x%x: %w",
				c.name, blockAddr, mem.ErrNoVictim)
		}

		if block.IsValid {
			if err := c.evict(now, block); err != nil {
				return err
			}
		}

		block.IsDirty = false
	}

	tag, _, _ := c.tags.Decompose(blockAddr)
	block.Tag = tag
	block.IsValid = true
	block.IsDirty = block.IsDirty || dirty
	block.IsPrefetched = false

	c.mustWrite(block.CacheAddress, data)
	c.tags.Update(block)
	c.tags.Visit(block)
	c.stats.Fills++

	return nil
}

// Evict writes the block holding addr out of the cache, following the same
// path as a replacement. It returns false if the block is not resident.
func (c *Cache) Evict(now sim.Cycle, addr uint64) (bool, error) {
	block, found := c.tags.Lookup(addr)
	if !found {
		return false, nil
	}

	if err := c.evict(now, block); err != nil {
		return false, err
	}

	block.IsValid = false
	block.IsDirty = false
	block.IsPrefetched = false
	c.tags.Update(block)

	return true, nil
}

// Invalidate drops the block holding addr without writing it back.
func (c *Cache) Invalidate(addr uint64) bool {
	block, found := c.tags.Lookup(addr)
	if !found {
		return false
	}

	block.IsValid = false
	block.IsDirty = false
	block.IsPrefetched = false
	c.tags.Update(block)

	return true
}

// Flush completes every in-flight miss, writes dirty blocks straight to the
// lower level and empties the cache.
func (c *Cache) Flush(now sim.Cycle) error {
	for _, e := range c.mshr.Retire(^sim.Cycle(0)) {
		c.fill(max(now, e.ReadyAt), e)
	}

	for _, set := range c.tags.GetSets() {
		for _, block := range set.Blocks {
			if !block.IsValid {
				continue
			}

			if block.IsDirty {
				blockAddr := c.tags.BlockAddr(block)
				data := c.mustRead(block.CacheAddress, c.config.BlockSize)

				if _, err := c.lower.WriteBack(now, blockAddr, data); err != nil {
					return fmt.Errorf("%s: flush 0x%x: %w", c.name, blockAddr, err)
				}

				c.stats.Writebacks++
			}

			block.IsValid = false
			block.IsDirty = false
			block.IsPrefetched = false
			c.tags.Update(block)
		}
	}

	return nil
}

// Reset drops all contents, in-flight misses and counters.
func (c *Cache) Reset() {
	c.tags.Reset()
	c.mshr.Reset()
	c.stats = Statistics{}

	if c.prefetcher != nil {
		c.prefetcher.Reset()
	}
}

// Blocks lists the block addresses of the valid lines in each set.
func (c *Cache) Blocks() [][]uint64 {
	sets := c.tags.GetSets()
	res := make([][]uint64, len(sets))

	for i, set := range sets {
		for _, block := range set.Blocks {
			if block.IsValid {
				res[i] = append(res[i], c.tags.BlockAddr(block))
			}
		}
	}

	return res
}

func (c *Cache) mustRead(addr, size uint64) []byte {
	data, err := c.storage.Read(addr, size)
	if err != nil {
		log.Panicf("%s: data array read: %v", c.name, err)
	}

	return data
}

func (c *Cache) mustWrite(addr uint64, data []byte) {
	if err := c.storage.Write(addr, data); err != nil {
		log.Panicf("%s: data array write: %v", c.name, err)
	}
}
