package trace

import (
	"sort"
	"sync"

	"github.com/sarchlab/cachesim/mem/cache"
	"github.com/sarchlab/cachesim/mem/hierarchy"
	"github.com/sarchlab/cachesim/mem/mem"
	"github.com/sarchlab/cachesim/sim"
	"github.com/sarchlab/cachesim/sim/hooking"
)

// LatencySummary is the latency of the requests that ended at one level.
type LatencySummary struct {
	Count        uint64
	TotalLatency sim.Cycle
	MaxLatency   sim.Cycle
}

// AverageLatency returns the mean latency in cycles.
func (s LatencySummary) AverageLatency() float64 {
	if s.Count == 0 {
		return 0
	}

	return float64(s.TotalLatency) / float64(s.Count)
}

// LatencyTracer collects the latency of the requests served, broken down by
// the level that served them.
type LatencyTracer struct {
	lock    sync.Mutex
	byLevel map[mem.Level]LatencySummary
}

// NewLatencyTracer creates a new LatencyTracer.
func NewLatencyTracer() *LatencyTracer {
	return &LatencyTracer{
		byLevel: make(map[mem.Level]LatencySummary),
	}
}

// Func records the end of a request.
func (t *LatencyTracer) Func(ctx hooking.HookCtx) {
	if ctx.Pos != hierarchy.HookPosReqEnd {
		return
	}

	rsp, ok := ctx.Detail.(mem.Response)
	if !ok {
		return
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	s := t.byLevel[rsp.ServedBy]
	s.Count++
	s.TotalLatency += rsp.Latency

	if rsp.Latency > s.MaxLatency {
		s.MaxLatency = rsp.Latency
	}

	t.byLevel[rsp.ServedBy] = s
}

// Levels returns the levels that served at least one request, nearest first.
func (t *LatencyTracer) Levels() []mem.Level {
	t.lock.Lock()
	defer t.lock.Unlock()

	levels := make([]mem.Level, 0, len(t.byLevel))
	for l := range t.byLevel {
		levels = append(levels, l)
	}

	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	return levels
}

// Summary returns the latency of the requests served by a level.
func (t *LatencyTracer) Summary(level mem.Level) LatencySummary {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.byLevel[level]
}

// EventCountTracer counts the block events of each cache.
type EventCountTracer struct {
	lock   sync.Mutex
	counts map[string]map[string]uint64
}

// NewEventCountTracer creates a new EventCountTracer.
func NewEventCountTracer() *EventCountTracer {
	return &EventCountTracer{
		counts: make(map[string]map[string]uint64),
	}
}

// Func counts fills, evictions and prefetches.
func (t *EventCountTracer) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case cache.HookPosEvict, cache.HookPosFill, cache.HookPosPrefetch:
	default:
		return
	}

	where := location(ctx)

	t.lock.Lock()
	defer t.lock.Unlock()

	perCache, ok := t.counts[where]
	if !ok {
		perCache = make(map[string]uint64)
		t.counts[where] = perCache
	}

	perCache[ctx.Pos.Name]++
}

// Locations returns the names of the caches that reported events, sorted.
func (t *EventCountTracer) Locations() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	names := make([]string, 0, len(t.counts))
	for name := range t.counts {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Count returns how many times the event happened at the location.
func (t *EventCountTracer) Count(location string, pos *hooking.HookPos) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.counts[location][pos.Name]
}
