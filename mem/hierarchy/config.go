package hierarchy

import (
	"fmt"
	"sort"

	"github.com/sarchlab/cachesim/mem/cache"
	"github.com/sarchlab/cachesim/mem/cache/prefetch"
	"github.com/sarchlab/cachesim/mem/mem"
	"github.com/sarchlab/cachesim/sim"
)

// Config describes a whole single-core memory system.
type Config struct {
	Name  string   `json:"name"`
	Clock sim.Freq `json:"clock"`

	MemRange   mem.AddrRange `json:"mem_range"`
	MemLatency sim.Cycle     `json:"mem_latency"`
	BusLatency sim.Cycle     `json:"bus_latency"`

	ICache cache.Config `json:"icache"`
	DCache cache.Config `json:"dcache"`

	// VictimCache is shared by every L1 whose UseVictimCache is set.
	VictimCache *cache.Config `json:"victim_cache,omitempty"`

	// DropVictimWritebacks disconnects the victim cache from the bus, so its
	// dirty evictions are lost instead of written to memory.
	DropVictimWritebacks bool `json:"drop_victim_writebacks"`
}

// Validate checks every level and how the levels fit together.
func (c Config) Validate() error {
	if c.Clock <= 0 {
		return fmt.Errorf("%w: clock must be positive",
			mem.ErrInvalidConfiguration)
	}

	if c.MemRange.Size == 0 || c.MemRange.End() < c.MemRange.Start {
		return fmt.Errorf("%w: memory range %s",
			mem.ErrInvalidConfiguration, c.MemRange)
	}

	if err := c.ICache.Validate(); err != nil {
		return fmt.Errorf("icache: %w", err)
	}

	if err := c.DCache.Validate(); err != nil {
		return fmt.Errorf("dcache: %w", err)
	}

	if c.VictimCache == nil {
		if c.ICache.UseVictimCache || c.DCache.UseVictimCache {
			return fmt.Errorf("%w: victim cache requested but not configured",
				mem.ErrInvalidConfiguration)
		}

		return nil
	}

	vc := *c.VictimCache
	vc.Prefetcher = nil

	if err := vc.Validate(); err != nil {
		return fmt.Errorf("victim cache: %w", err)
	}

	for _, l1 := range []cache.Config{c.ICache, c.DCache} {
		if l1.UseVictimCache && l1.BlockSize != vc.BlockSize {
			return fmt.Errorf("%w: victim cache block size %d, L1 %d",
				mem.ErrInvalidConfiguration, vc.BlockSize, l1.BlockSize)
		}
	}

	return nil
}

func l1Config(size uint64) cache.Config {
	return cache.Config{
		Size:            size,
		Assoc:           2,
		BlockSize:       64,
		TagLatency:      2,
		DataLatency:     2,
		ResponseLatency: 2,
		MSHRs:           4,
		TargetsPerMSHR:  20,
	}
}

// BaselineConfig has 16KB L1 caches connected straight to the memory bus.
func BaselineConfig() Config {
	return Config{
		Name:       "baseline",
		Clock:      2 * sim.GHz,
		MemRange:   mem.AddrRange{Start: 0, Size: 512 * mem.MB},
		MemLatency: 60,
		BusLatency: 4,
		ICache:     l1Config(16 * mem.KB),
		DCache:     l1Config(16 * mem.KB),
	}
}

// PrefetchVictimConfig has 64KB L1 caches with stride prefetchers. The data
// cache evicts into a 4KB 4-way victim cache; instruction misses go straight
// to the bus.
func PrefetchVictimConfig() Config {
	icache := l1Config(64 * mem.KB)
	dcache := l1Config(64 * mem.KB)

	ipf := prefetch.DefaultConfig()
	dpf := prefetch.DefaultConfig()
	icache.Prefetcher = &ipf
	dcache.Prefetcher = &dpf

	dcache.UseVictimCache = true
	dcache.WritebackClean = true

	return Config{
		Name:       "prefetch-victim",
		Clock:      2 * sim.GHz,
		MemRange:   mem.AddrRange{Start: 0, Size: 512 * mem.MB},
		MemLatency: 60,
		BusLatency: 4,
		ICache:     icache,
		DCache:     dcache,
		VictimCache: &cache.Config{
			Size:            4 * mem.KB,
			Assoc:           4,
			BlockSize:       64,
			TagLatency:      1,
			DataLatency:     1,
			ResponseLatency: 1,
			MSHRs:           2,
			TargetsPerMSHR:  12,
		},
	}
}

var presets = map[string]func() Config{
	"baseline":        BaselineConfig,
	"prefetch-victim": PrefetchVictimConfig,
}

// ConfigNames lists the names accepted by ConfigByName.
func ConfigNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// ConfigByName returns one of the canonical configurations.
func ConfigByName(name string) (Config, error) {
	f, ok := presets[name]
	if !ok {
		return Config{}, fmt.Errorf("%w: unknown configuration %q",
			mem.ErrInvalidConfiguration, name)
	}

	return f(), nil
}
