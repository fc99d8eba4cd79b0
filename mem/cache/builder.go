package cache

import (
	"fmt"
	"log"

	"github.com/sarchlab/cachesim/mem/cache/internal/mshr"
	"github.com/sarchlab/cachesim/mem/cache/internal/tagging"
	"github.com/sarchlab/cachesim/mem/cache/prefetch"
	"github.com/sarchlab/cachesim/mem/mem"
	"github.com/sarchlab/cachesim/sim"
)

// Builder can build caches.
type Builder struct {
	config          Config
	lower           mem.LowerLevel
	victimCache     *VictimCache
	writebackTarget WritebackTarget
	logger          *log.Logger
}

// MakeBuilder creates a new builder with the parameters of a 16KB, 2-way L1.
func MakeBuilder() Builder {
	return Builder{
		config: Config{
			Size:            16 * mem.KB,
			Assoc:           2,
			BlockSize:       64,
			TagLatency:      2,
			DataLatency:     2,
			ResponseLatency: 2,
			MSHRs:           4,
			TargetsPerMSHR:  20,
		},
	}
}

// WithConfig replaces all the cache parameters.
func (b Builder) WithConfig(config Config) Builder {
	b.config = config
	return b
}

// WithSize sets the capacity in bytes.
func (b Builder) WithSize(size uint64) Builder {
	b.config.Size = size
	return b
}

// WithAssoc sets the number of ways per set.
func (b Builder) WithAssoc(assoc int) Builder {
	b.config.Assoc = assoc
	return b
}

// WithBlockSize sets the line size in bytes.
func (b Builder) WithBlockSize(blockSize uint64) Builder {
	b.config.BlockSize = blockSize
	return b
}

// WithLatencies sets the tag, data and response latencies.
func (b Builder) WithLatencies(tag, data, response sim.Cycle) Builder {
	b.config.TagLatency = tag
	b.config.DataLatency = data
	b.config.ResponseLatency = response

	return b
}

// WithMSHRs sets the number of MSHR entries and the number of requesters each
// entry can hold.
func (b Builder) WithMSHRs(entries, targetsPerEntry int) Builder {
	b.config.MSHRs = entries
	b.config.TargetsPerMSHR = targetsPerEntry

	return b
}

// WithWritebackClean makes evictions of clean lines go to the victim cache.
func (b Builder) WithWritebackClean(writebackClean bool) Builder {
	b.config.WritebackClean = writebackClean
	return b
}

// WithPrefetcher attaches a stride prefetcher.
func (b Builder) WithPrefetcher(config prefetch.Config) Builder {
	b.config.Prefetcher = &config
	return b
}

// WithLowerLevel sets where misses and write-backs go.
func (b Builder) WithLowerLevel(lower mem.LowerLevel) Builder {
	b.lower = lower
	return b
}

// WithVictimCache puts a victim cache between the cache and the lower level.
func (b Builder) WithVictimCache(vc *VictimCache) Builder {
	b.victimCache = vc
	b.config.UseVictimCache = vc != nil

	return b
}

// WithWritebackTarget sets where a victim cache sends its dirty evictions.
// It only affects BuildVictimCache.
func (b Builder) WithWritebackTarget(t WritebackTarget) Builder {
	b.writebackTarget = t
	return b
}

// WithLogger sets the logger that reports unusual events such as failed
// prefetches.
func (b Builder) WithLogger(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

// Build creates a cache.
func (b Builder) Build(name string) (*Cache, error) {
	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	if b.lower == nil {
		return nil, fmt.Errorf("%s: %w: no lower level",
			name, mem.ErrInvalidConfiguration)
	}

	if b.victimCache != nil &&
		b.victimCache.BlockSize() != b.config.BlockSize {
		return nil, fmt.Errorf("%s: %w: victim cache block size %d, cache %d",
			name, mem.ErrInvalidConfiguration,
			b.victimCache.BlockSize(), b.config.BlockSize)
	}

	c := &Cache{
		name:   name,
		config: b.config,
		tags: tagging.NewTagArray(
			b.config.NumSets(), b.config.Assoc, b.config.BlockSize),
		victimFinder: tagging.NewLRUVictimFinder(),
		mshr:         mshr.NewMSHR(b.config.MSHRs, b.config.TargetsPerMSHR),
		storage:      mem.NewStorage(b.config.Size),
		lower:        b.lower,
		victimCache:  b.victimCache,
		logger:       b.logger,
	}

	if b.config.Prefetcher != nil {
		pf, err := prefetch.NewStridePrefetcher(
			*b.config.Prefetcher, b.config.BlockSize)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		pf.SetTarget(c)
		c.prefetcher = pf
	}

	return c, nil
}

// BuildVictimCache creates a victim cache from the size, associativity, block
// size and latencies. MSHR parameters are not used.
func (b Builder) BuildVictimCache(name string) (*VictimCache, error) {
	config := b.config
	config.MSHRs = max(config.MSHRs, 1)
	config.TargetsPerMSHR = max(config.TargetsPerMSHR, 1)
	config.Prefetcher = nil
	config.UseVictimCache = false

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return &VictimCache{
		name:   name,
		config: config,
		tags: tagging.NewTagArray(
			config.NumSets(), config.Assoc, config.BlockSize),
		victimFinder: tagging.NewLRUVictimFinder(),
		storage:      mem.NewStorage(config.Size),
		target:       b.writebackTarget,
	}, nil
}
