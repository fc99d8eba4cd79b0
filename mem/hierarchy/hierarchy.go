// Package hierarchy composes the L1 caches, the victim cache, the memory bus
// and the backing memory into the memory system seen by one core.
package hierarchy

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sarchlab/cachesim/mem/backing"
	"github.com/sarchlab/cachesim/mem/cache"
	"github.com/sarchlab/cachesim/mem/mem"
	"github.com/sarchlab/cachesim/sim"
	"github.com/sarchlab/cachesim/sim/hooking"
	"github.com/sarchlab/cachesim/sim/id"
)

var (
	// HookPosReqStart marks a request entering the hierarchy. The item is
	// the mem.Request.
	HookPosReqStart = &hooking.HookPos{Name: "Hierarchy Req Start"}

	// HookPosReqEnd marks a request leaving the hierarchy. The item is the
	// mem.Request and the detail is the mem.Response.
	HookPosReqEnd = &hooking.HookPos{Name: "Hierarchy Req End"}
)

// ErrNoProgress is returned if a cache keeps stalling while nothing is in
// flight to free it.
var ErrNoProgress = errors.New("stalled with no miss in flight")

// Statistics is a snapshot of the whole hierarchy.
type Statistics struct {
	Now sim.Cycle `json:"now"`

	Requests uint64 `json:"requests"`
	Fetches  uint64 `json:"fetches"`
	Loads    uint64 `json:"loads"`
	Stores   uint64 `json:"stores"`
	Errors   uint64 `json:"errors"`

	// Splits counts requests that spanned more than one block.
	Splits uint64 `json:"splits"`

	TotalLatency sim.Cycle `json:"total_latency"`
	StallCycles  sim.Cycle `json:"stall_cycles"`

	ICache       cache.Statistics        `json:"icache"`
	DCache       cache.Statistics        `json:"dcache"`
	VictimCache  *cache.VictimStatistics `json:"victim_cache,omitempty"`
	Memory       backing.Statistics      `json:"memory"`
	BusTransfers uint64                  `json:"bus_transfers"`
}

// AverageLatency returns the mean request latency in cycles.
func (s Statistics) AverageLatency() float64 {
	if s.Requests == 0 {
		return 0
	}

	return float64(s.TotalLatency) / float64(s.Requests)
}

// Hierarchy services the requests of one core. Requests are served one at a
// time; each one moves the clock forward by its latency.
type Hierarchy struct {
	hooking.HookableBase
	sync.Mutex

	name        string
	config      Config
	clock       *sim.Clock
	idGenerator id.IDGenerator

	memory      *backing.Memory
	bus         *backing.Bus
	victimCache *cache.VictimCache
	icache      *cache.Cache
	dcache      *cache.Cache

	stats Statistics
}

// Name returns the name of the hierarchy.
func (h *Hierarchy) Name() string {
	return h.name
}

// Config returns the configuration the hierarchy was built with.
func (h *Hierarchy) Config() Config {
	return h.config
}

// ICache returns the instruction cache.
func (h *Hierarchy) ICache() *cache.Cache {
	return h.icache
}

// DCache returns the data cache.
func (h *Hierarchy) DCache() *cache.Cache {
	return h.dcache
}

// VictimCache returns the victim cache, or nil.
func (h *Hierarchy) VictimCache() *cache.VictimCache {
	return h.victimCache
}

// Memory returns the backing memory.
func (h *Hierarchy) Memory() *backing.Memory {
	return h.memory
}

// Bus returns the memory bus.
func (h *Hierarchy) Bus() *backing.Bus {
	return h.bus
}

// Now returns the current cycle.
func (h *Hierarchy) Now() sim.Cycle {
	h.Lock()
	defer h.Unlock()

	return h.clock.Now()
}

// Stats returns a snapshot of the counters of every level.
func (h *Hierarchy) Stats() Statistics {
	h.Lock()
	defer h.Unlock()

	s := h.stats
	s.Now = h.clock.Now()
	s.ICache = h.icache.Stats()
	s.DCache = h.dcache.Stats()
	s.Memory = h.memory.Stats()
	s.BusTransfers = h.bus.Transfers()

	if h.victimCache != nil {
		vs := h.victimCache.Stats()
		s.VictimCache = &vs
	}

	return s
}

// Service serves one request and advances the clock by its latency.
//
// Fetches go to the instruction cache, loads and stores to the data cache.
// Requests that span several blocks are served block by block. A cache that
// stalls is retried once its earliest miss completes, and the wait is
// reported in StallCycles. Out-of-range requests fail before any cache is
// touched.
func (h *Hierarchy) Service(req mem.Request) (mem.Response, error) {
	h.Lock()
	defer h.Unlock()

	if req.ID == "" {
		req.ID = h.idGenerator.Generate()
	}

	if req.Kind.IsWrite() && req.Size == 0 {
		req.Size = uint64(len(req.Data))
	}

	now := h.clock.Now()
	h.InvokeHook(hooking.HookCtx{
		Domain: h,
		Now:    now,
		Pos:    HookPosReqStart,
		Item:   req,
	})

	rsp, err := h.service(now, req)
	if err != nil {
		h.stats.Errors++
		h.InvokeHook(hooking.HookCtx{
			Domain: h,
			Now:    now,
			Pos:    HookPosReqEnd,
			Item:   req,
			Detail: err,
		})

		return mem.Response{}, err
	}

	h.clock.AdvanceTo(now + rsp.Latency)
	h.countRequest(req, rsp)

	h.InvokeHook(hooking.HookCtx{
		Domain: h,
		Now:    h.clock.Now(),
		Pos:    HookPosReqEnd,
		Item:   req,
		Detail: rsp,
	})

	return rsp, nil
}

func (h *Hierarchy) service(now sim.Cycle, req mem.Request) (mem.Response, error) {
	if err := h.memory.Range.Check(req.Address, req.Size); err != nil {
		return mem.Response{}, fmt.Errorf("%s: request %s: %w", h.name, req.ID, err)
	}

	if req.Kind.IsWrite() && uint64(len(req.Data)) != req.Size {
		return mem.Response{}, fmt.Errorf("%s: store of %d bytes carries %d bytes",
			h.name, req.Size, len(req.Data))
	}

	c := h.dcache
	if req.Kind == mem.Fetch {
		c = h.icache
	}

	pieces := h.split(req, c.Config().BlockSize)
	if len(pieces) > 1 {
		h.stats.Splits++
	}

	rsp := mem.Response{Hit: true}
	t := now

	for _, p := range pieces {
		res, stall, err := h.accessWithRetry(c, t, p)
		if err != nil {
			return mem.Response{}, err
		}

		t += stall + res.Latency
		rsp.StallCycles += stall
		rsp.Hit = rsp.Hit && res.Hit
		rsp.ServedBy = max(rsp.ServedBy, res.ServedBy)
		rsp.Data = append(rsp.Data, res.Data...)
	}

	rsp.Latency = t - now

	return rsp, nil
}

func (h *Hierarchy) accessWithRetry(
	c *cache.Cache,
	now sim.Cycle,
	req mem.Request,
) (res cache.Result, stall sim.Cycle, err error) {
	t := now

	for {
		res, err = c.Access(t, req)
		if err == nil {
			return res, t - now, nil
		}

		if !mem.IsStall(err) {
			return res, 0, err
		}

		next, ok := c.NextReadyTime()
		if !ok {
			return res, 0, fmt.Errorf("%s: %w: %w", c.Name(), ErrNoProgress, err)
		}

		t = max(next, t+1)
	}
}

// split cuts a request at block boundaries.
func (h *Hierarchy) split(req mem.Request, blockSize uint64) []mem.Request {
	size := max(req.Size, 1)
	offset := req.Address & (blockSize - 1)

	if offset+size <= blockSize {
		return []mem.Request{req}
	}

	var pieces []mem.Request

	addr := req.Address
	end := req.Address + size

	for addr < end {
		blockEnd := (addr &^ (blockSize - 1)) + blockSize
		pieceEnd := min(blockEnd, end)

		p := mem.Request{
			ID:      req.ID,
			Address: addr,
			Kind:    req.Kind,
			Size:    pieceEnd - addr,
		}

		if req.Kind.IsWrite() {
			p.Data = req.Data[addr-req.Address : pieceEnd-req.Address]
		}

		pieces = append(pieces, p)
		addr = pieceEnd
	}

	return pieces
}

func (h *Hierarchy) countRequest(req mem.Request, rsp mem.Response) {
	h.stats.Requests++
	h.stats.TotalLatency += rsp.Latency
	h.stats.StallCycles += rsp.StallCycles

	switch req.Kind {
	case mem.Fetch:
		h.stats.Fetches++
	case mem.Load:
		h.stats.Loads++
	case mem.Store:
		h.stats.Stores++
	}
}

// Flush completes every in-flight miss and writes all dirty data out of the
// caches. Dirty lines of the victim cache reach memory only if the victim
// cache is connected to the bus.
func (h *Hierarchy) Flush() error {
	h.Lock()
	defer h.Unlock()

	now := h.clock.Now()

	for _, c := range []*cache.Cache{h.icache, h.dcache} {
		if err := c.Flush(now); err != nil {
			return err
		}
	}

	if h.victimCache != nil {
		if err := h.victimCache.Flush(now); err != nil {
			return err
		}
	}

	return nil
}

// ReadMemory reads the backing memory directly, skipping the caches.
func (h *Hierarchy) ReadMemory(addr, size uint64) ([]byte, error) {
	h.Lock()
	defer h.Unlock()

	return h.memory.Read(addr, size)
}
