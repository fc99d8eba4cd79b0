package cache

import (
	"fmt"

	"github.com/sarchlab/cachesim/mem/cache/prefetch"
	"github.com/sarchlab/cachesim/mem/mem"
	"github.com/sarchlab/cachesim/sim"
)

// Config holds the parameters of one cache level.
type Config struct {
	Size      uint64 `yaml:"size" json:"size"`
	Assoc     int    `yaml:"assoc" json:"assoc"`
	BlockSize uint64 `yaml:"block_size" json:"block_size"`

	TagLatency      sim.Cycle `yaml:"tag_latency" json:"tag_latency"`
	DataLatency     sim.Cycle `yaml:"data_latency" json:"data_latency"`
	ResponseLatency sim.Cycle `yaml:"response_latency" json:"response_latency"`

	MSHRs          int `yaml:"mshrs" json:"mshrs"`
	TargetsPerMSHR int `yaml:"tgts_per_mshr" json:"tgts_per_mshr"`

	// WritebackClean also sends clean evicted lines to the victim cache.
	// Without a victim cache, clean lines are always discarded.
	WritebackClean bool `yaml:"writeback_clean" json:"writeback_clean"`

	// Prefetcher attaches a stride prefetcher when set.
	Prefetcher *prefetch.Config `yaml:"prefetcher,omitempty" json:"prefetcher,omitempty"`

	// UseVictimCache tells the hierarchy to put the shared victim cache
	// between this cache and the bus.
	UseVictimCache bool `yaml:"use_victim_cache" json:"use_victim_cache"`
}

// Validate checks that the cache geometry can be built.
func (c Config) Validate() error {
	if !isPowerOfTwo(c.Size) {
		return fmt.Errorf("%w: cache size %d is not a power of two",
			mem.ErrInvalidConfiguration, c.Size)
	}

	if !isPowerOfTwo(c.BlockSize) {
		return fmt.Errorf("%w: block size %d is not a power of two",
			mem.ErrInvalidConfiguration, c.BlockSize)
	}

	if c.Assoc <= 0 || !isPowerOfTwo(uint64(c.Assoc)) {
		return fmt.Errorf("%w: associativity %d is not a power of two",
			mem.ErrInvalidConfiguration, c.Assoc)
	}

	if c.BlockSize > c.Size || uint64(c.Assoc) > c.Size/c.BlockSize {
		return fmt.Errorf("%w: %d ways of %dB do not fit in %dB",
			mem.ErrInvalidConfiguration, c.Assoc, c.BlockSize, c.Size)
	}

	if c.MSHRs < 1 {
		return fmt.Errorf("%w: at least one MSHR is required",
			mem.ErrInvalidConfiguration)
	}

	if c.TargetsPerMSHR < 1 {
		return fmt.Errorf("%w: at least one target per MSHR is required",
			mem.ErrInvalidConfiguration)
	}

	if c.Prefetcher != nil {
		if err := c.Prefetcher.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// NumSets returns the number of sets. The config must be valid.
func (c Config) NumSets() int {
	return int(c.Size / c.BlockSize / uint64(c.Assoc))
}

// HitLatency is the latency of a request served by this cache.
func (c Config) HitLatency() sim.Cycle {
	return c.TagLatency + c.DataLatency + c.ResponseLatency
}

func isPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}
