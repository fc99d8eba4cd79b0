package hierarchy

import (
	"fmt"
	"log"

	"github.com/sarchlab/cachesim/mem/backing"
	"github.com/sarchlab/cachesim/mem/cache"
	"github.com/sarchlab/cachesim/sim"
	"github.com/sarchlab/cachesim/sim/id"
)

// Builder can build memory hierarchies.
type Builder struct {
	config      Config
	logger      *log.Logger
	idGenerator id.IDGenerator
}

// MakeBuilder creates a builder for the baseline configuration.
func MakeBuilder() Builder {
	return Builder{
		config: BaselineConfig(),
	}
}

// WithConfig sets the configuration to build.
func (b Builder) WithConfig(config Config) Builder {
	b.config = config
	return b
}

// WithLogger sets the logger passed to the caches.
func (b Builder) WithLogger(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

// WithIDGenerator sets how requests without an ID get one.
func (b Builder) WithIDGenerator(g id.IDGenerator) Builder {
	b.idGenerator = g
	return b
}

// MustBuild is Build that panics on invalid configurations.
func (b Builder) MustBuild(name string) *Hierarchy {
	h, err := b.Build(name)
	if err != nil {
		panic(err)
	}

	return h
}

// Build creates the memory, the bus, the victim cache and the L1 caches, in
// that order, each holding a reference to the level below.
func (b Builder) Build(name string) (*Hierarchy, error) {
	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	h := &Hierarchy{
		name:        name,
		config:      b.config,
		clock:       sim.NewClock(),
		idGenerator: b.idGenerator,
	}

	if h.idGenerator == nil {
		h.idGenerator = id.NewIDGenerator()
	}

	memory, err := backing.MakeBuilder().
		WithRange(b.config.MemRange).
		WithLatency(b.config.MemLatency).
		Build(name + ".Memory")
	if err != nil {
		return nil, err
	}

	h.memory = memory
	h.bus = backing.NewBus(name+".MemBus", b.config.BusLatency, memory)

	if b.config.VictimCache != nil {
		vb := cache.MakeBuilder().WithConfig(*b.config.VictimCache)
		if !b.config.DropVictimWritebacks {
			vb = vb.WithWritebackTarget(h.bus)
		}

		h.victimCache, err = vb.BuildVictimCache(name + ".VCache")
		if err != nil {
			return nil, err
		}
	}

	h.icache, err = b.buildL1(name+".ICache", b.config.ICache, h)
	if err != nil {
		return nil, err
	}

	h.dcache, err = b.buildL1(name+".DCache", b.config.DCache, h)
	if err != nil {
		return nil, err
	}

	return h, nil
}

func (b Builder) buildL1(
	name string,
	config cache.Config,
	h *Hierarchy,
) (*cache.Cache, error) {
	cb := cache.MakeBuilder().
		WithConfig(config).
		WithLowerLevel(h.bus).
		WithLogger(b.logger)

	if config.UseVictimCache {
		cb = cb.WithVictimCache(h.victimCache)
	}

	return cb.Build(name)
}
