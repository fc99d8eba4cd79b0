package config

import (
	"fmt"
	"os"

	"github.com/sarchlab/cachesim/mem/cache"
	"github.com/sarchlab/cachesim/mem/cache/prefetch"
	"github.com/sarchlab/cachesim/mem/hierarchy"
	"github.com/sarchlab/cachesim/mem/mem"
	"github.com/sarchlab/cachesim/sim"
	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a configuration file. Every field is optional
// and overrides the preset named by Base.
type File struct {
	Base  string `yaml:"base"`
	Name  string `yaml:"name"`
	Clock string `yaml:"clock"`

	Memory *MemoryFile `yaml:"memory"`

	BusLatency *uint64 `yaml:"bus_latency"`

	ICache      *CacheFile `yaml:"icache"`
	DCache      *CacheFile `yaml:"dcache"`
	VictimCache *CacheFile `yaml:"victim_cache"`

	DropVictimWritebacks *bool `yaml:"drop_victim_writebacks"`
}

// MemoryFile configures the main memory.
type MemoryFile struct {
	Start   *uint64 `yaml:"start"`
	Size    string  `yaml:"size"`
	Latency *uint64 `yaml:"latency"`
}

// CacheFile configures one cache.
type CacheFile struct {
	Size      string  `yaml:"size"`
	Assoc     *int    `yaml:"assoc"`
	BlockSize string  `yaml:"block_size"`
	Latency   *uint64 `yaml:"latency"`

	TagLatency      *uint64 `yaml:"tag_latency"`
	DataLatency     *uint64 `yaml:"data_latency"`
	ResponseLatency *uint64 `yaml:"response_latency"`

	MSHRs          *int `yaml:"mshrs"`
	TargetsPerMSHR *int `yaml:"tgts_per_mshr"`

	WritebackClean *bool `yaml:"writeback_clean"`
	UseVictimCache *bool `yaml:"use_victim_cache"`

	Prefetcher *PrefetcherFile `yaml:"prefetcher"`
}

// PrefetcherFile configures a stride prefetcher. Enabled false removes the
// prefetcher of the base configuration.
type PrefetcherFile struct {
	Enabled    *bool  `yaml:"enabled"`
	Threshold  *int   `yaml:"threshold"`
	Degree     *int   `yaml:"degree"`
	TableSize  *int   `yaml:"table_size"`
	RegionSize string `yaml:"region_size"`
}

// LoadFile reads a YAML configuration and validates the result.
func LoadFile(path string) (hierarchy.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return hierarchy.Config{}, err
	}

	c, err := Parse(data)
	if err != nil {
		return hierarchy.Config{}, fmt.Errorf("%s: %w", path, err)
	}

	return c, nil
}

// Parse decodes a YAML configuration and validates the result.
func Parse(data []byte) (hierarchy.Config, error) {
	var f File

	if err := yaml.Unmarshal(data, &f); err != nil {
		return hierarchy.Config{}, err
	}

	c, err := f.Apply()
	if err != nil {
		return hierarchy.Config{}, err
	}

	if err := c.Validate(); err != nil {
		return hierarchy.Config{}, err
	}

	return c, nil
}

// Apply builds the configuration by overriding the base preset.
func (f File) Apply() (hierarchy.Config, error) {
	base := f.Base
	if base == "" {
		base = "baseline"
	}

	c, err := hierarchy.ConfigByName(base)
	if err != nil {
		return hierarchy.Config{}, err
	}

	if f.Name != "" {
		c.Name = f.Name
	}

	if f.Clock != "" {
		c.Clock, err = sim.ParseFreq(f.Clock)
		if err != nil {
			return hierarchy.Config{}, err
		}
	}

	if err := f.Memory.apply(&c); err != nil {
		return hierarchy.Config{}, fmt.Errorf("memory: %w", err)
	}

	setCycle(&c.BusLatency, f.BusLatency)
	setBool(&c.DropVictimWritebacks, f.DropVictimWritebacks)

	if err := f.ICache.apply(&c.ICache); err != nil {
		return hierarchy.Config{}, fmt.Errorf("icache: %w", err)
	}

	if err := f.DCache.apply(&c.DCache); err != nil {
		return hierarchy.Config{}, fmt.Errorf("dcache: %w", err)
	}

	if f.VictimCache != nil {
		if c.VictimCache == nil {
			vc := hierarchy.PrefetchVictimConfig().VictimCache
			c.VictimCache = vc
		}

		if err := f.VictimCache.apply(c.VictimCache); err != nil {
			return hierarchy.Config{}, fmt.Errorf("victim cache: %w", err)
		}
	}

	return c, nil
}

func (m *MemoryFile) apply(c *hierarchy.Config) error {
	if m == nil {
		return nil
	}

	if m.Start != nil {
		c.MemRange.Start = *m.Start
	}

	if m.Size != "" {
		size, err := ParseSize(m.Size)
		if err != nil {
			return err
		}

		c.MemRange.Size = size
	}

	setCycle(&c.MemLatency, m.Latency)

	return nil
}

func (f *CacheFile) apply(c *cache.Config) error {
	if f == nil {
		return nil
	}

	if err := setSize(&c.Size, f.Size); err != nil {
		return err
	}

	if err := setSize(&c.BlockSize, f.BlockSize); err != nil {
		return err
	}

	setInt(&c.Assoc, f.Assoc)

	if f.Latency != nil {
		c.TagLatency = sim.Cycle(*f.Latency)
		c.DataLatency = sim.Cycle(*f.Latency)
		c.ResponseLatency = sim.Cycle(*f.Latency)
	}

	setCycle(&c.TagLatency, f.TagLatency)
	setCycle(&c.DataLatency, f.DataLatency)
	setCycle(&c.ResponseLatency, f.ResponseLatency)
	setInt(&c.MSHRs, f.MSHRs)
	setInt(&c.TargetsPerMSHR, f.TargetsPerMSHR)
	setBool(&c.WritebackClean, f.WritebackClean)
	setBool(&c.UseVictimCache, f.UseVictimCache)

	return f.Prefetcher.apply(c)
}

func (f *PrefetcherFile) apply(c *cache.Config) error {
	if f == nil {
		return nil
	}

	if f.Enabled != nil && !*f.Enabled {
		c.Prefetcher = nil
		return nil
	}

	pf := prefetch.DefaultConfig()
	if c.Prefetcher != nil {
		pf = *c.Prefetcher
	}

	setInt(&pf.Threshold, f.Threshold)
	setInt(&pf.Degree, f.Degree)
	setInt(&pf.TableSize, f.TableSize)

	if err := setSize(&pf.RegionSize, f.RegionSize); err != nil {
		return err
	}

	c.Prefetcher = &pf

	return nil
}

func setSize(dst *uint64, s string) error {
	if s == "" {
		return nil
	}

	size, err := ParseSize(s)
	if err != nil {
		return fmt.Errorf("%w: %v", mem.ErrInvalidConfiguration, err)
	}

	*dst = size

	return nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setCycle(dst *sim.Cycle, v *uint64) {
	if v != nil {
		*dst = sim.Cycle(*v)
	}
}
