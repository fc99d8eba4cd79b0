// Package prefetch provides hardware prefetchers that can be attached to a
// cache.
package prefetch

import (
	"fmt"

	"github.com/sarchlab/cachesim/mem/mem"
	"github.com/sarchlab/cachesim/sim"
)

// Config configures a StridePrefetcher.
type Config struct {
	// Threshold is the confidence at which prefetches start to be issued.
	Threshold int `yaml:"threshold" json:"threshold"`

	// Degree is the number of strides to run ahead of the access stream.
	Degree int `yaml:"degree" json:"degree"`

	// TableSize is the number of streams tracked at the same time.
	TableSize int `yaml:"table_size" json:"table_size"`

	// RegionSize is the granularity, in bytes, that accesses are grouped
	// into streams by.
	RegionSize uint64 `yaml:"region_size" json:"region_size"`
}

// DefaultConfig returns the configuration used when a cache enables a
// prefetcher without tuning it.
func DefaultConfig() Config {
	return Config{
		Threshold:  2,
		Degree:     1,
		TableSize:  16,
		RegionSize: 4 * mem.KB,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Threshold < 1:
		return fmt.Errorf("%w: prefetch threshold must be at least 1",
			mem.ErrInvalidConfiguration)
	case c.Degree < 1:
		return fmt.Errorf("%w: prefetch degree must be at least 1",
			mem.ErrInvalidConfiguration)
	case c.TableSize < 1:
		return fmt.Errorf("%w: prefetch table size must be at least 1",
			mem.ErrInvalidConfiguration)
	case c.RegionSize == 0 || c.RegionSize&(c.RegionSize-1) != 0:
		return fmt.Errorf("%w: prefetch region size %d is not a power of two",
			mem.ErrInvalidConfiguration, c.RegionSize)
	}

	return nil
}

// A Target receives the prefetches. It reports whether the prefetch was
// actually sent to memory; resident or in-flight blocks are not.
type Target interface {
	Prefetch(now sim.Cycle, blockAddr uint64) bool
}

// Statistics counts the prefetcher activity.
type Statistics struct {
	Observed uint64 `json:"observed"`
	Issued   uint64 `json:"issued"`
	Dropped  uint64 `json:"dropped"`
}

type stream struct {
	region     uint64
	lastAddr   uint64
	stride     int64
	confidence int
	lastUse    uint64
	recent     []uint64
}

func (s *stream) recentlyPrefetched(blockAddr uint64) bool {
	for _, a := range s.recent {
		if a == blockAddr {
			return true
		}
	}

	return false
}

func (s *stream) remember(blockAddr uint64, limit int) {
	s.recent = append(s.recent, blockAddr)
	if len(s.recent) > limit {
		s.recent = s.recent[len(s.recent)-limit:]
	}
}

// StridePrefetcher detects constant-stride access streams and prefetches the
// blocks the streams are about to touch.
type StridePrefetcher struct {
	config    Config
	blockSize uint64
	target    Target

	streams    []*stream
	useCounter uint64
	stats      Statistics
}

// NewStridePrefetcher creates a prefetcher for a cache with the given block
// size.
func NewStridePrefetcher(
	config Config,
	blockSize uint64,
) (*StridePrefetcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if blockSize == 0 || blockSize&(blockSize-1) != 0 {
		return nil, fmt.Errorf("%w: block size %d is not a power of two",
			mem.ErrInvalidConfiguration, blockSize)
	}

	p := &StridePrefetcher{
		config:    config,
		blockSize: blockSize,
	}

	return p, nil
}

// SetTarget sets where prefetches are sent. The owning cache sets itself.
func (p *StridePrefetcher) SetTarget(t Target) {
	p.target = t
}

// Config returns the configuration.
func (p *StridePrefetcher) Config() Config {
	return p.config
}

// Stats returns a copy of the counters.
func (p *StridePrefetcher) Stats() Statistics {
	return p.stats
}

// Reset forgets all streams.
func (p *StridePrefetcher) Reset() {
	p.streams = nil
	p.useCounter = 0
	p.stats = Statistics{}
}

// Observe trains the prefetcher with an access and issues prefetches when a
// stream is confident enough.
func (p *StridePrefetcher) Observe(
	now sim.Cycle,
	addr uint64,
	_ mem.AccessKind,
) {
	p.stats.Observed++
	p.useCounter++

	s := p.findStream(addr)
	if s == nil {
		p.allocateStream(addr)
		return
	}

	s.lastUse = p.useCounter
	s.region = addr / p.config.RegionSize

	stride := int64(addr - s.lastAddr)
	if stride != 0 && stride == s.stride {
		s.confidence++
	} else {
		s.confidence = 0
		s.stride = stride
	}

	s.lastAddr = addr

	if s.confidence >= p.config.Threshold {
		p.issue(now, s, addr)
	}
}

func (p *StridePrefetcher) findStream(addr uint64) *stream {
	region := addr / p.config.RegionSize

	for _, s := range p.streams {
		if s.region == region {
			return s
		}
	}

	// A confident stream that walks into the next region keeps its state.
	for _, s := range p.streams {
		if s.confidence > 0 && s.lastAddr+uint64(s.stride) == addr {
			return s
		}
	}

	return nil
}

func (p *StridePrefetcher) allocateStream(addr uint64) {
	s := &stream{
		region:   addr / p.config.RegionSize,
		lastAddr: addr,
		lastUse:  p.useCounter,
	}

	if len(p.streams) < p.config.TableSize {
		p.streams = append(p.streams, s)
		return
	}

	lru := 0
	for i, candidate := range p.streams {
		if candidate.lastUse < p.streams[lru].lastUse {
			lru = i
		}
	}

	p.streams[lru] = s
}

func (p *StridePrefetcher) issue(now sim.Cycle, s *stream, addr uint64) {
	currentBlock := p.alignToBlock(addr)
	limit := 2 * p.config.Degree

	for d := 1; d <= p.config.Degree; d++ {
		predicted := int64(addr) + int64(d)*s.stride
		if predicted < 0 || (s.stride > 0 && uint64(predicted) < addr) {
			return
		}

		blockAddr := p.alignToBlock(uint64(predicted))
		if blockAddr == currentBlock || s.recentlyPrefetched(blockAddr) {
			continue
		}

		s.remember(blockAddr, limit)

		if p.target != nil && p.target.Prefetch(now, blockAddr) {
			p.stats.Issued++
		} else {
			p.stats.Dropped++
		}
	}
}

func (p *StridePrefetcher) alignToBlock(addr uint64) uint64 {
	return addr &^ (p.blockSize - 1)
}
