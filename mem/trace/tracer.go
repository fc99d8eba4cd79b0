// Package trace provides hooks that record what the memory hierarchy does,
// either as log lines or as rows of a data recorder.
package trace

import (
	"log"

	"github.com/sarchlab/cachesim/datarecording"
	"github.com/sarchlab/cachesim/mem/cache"
	"github.com/sarchlab/cachesim/mem/hierarchy"
	"github.com/sarchlab/cachesim/mem/mem"
	"github.com/sarchlab/cachesim/sim/hooking"
)

type named interface {
	Name() string
}

func location(ctx hooking.HookCtx) string {
	if n, ok := ctx.Domain.(named); ok {
		return n.Name()
	}

	return ""
}

// memoryTransactionEntry represents a request served by the hierarchy.
type memoryTransactionEntry struct {
	ID          string
	Location    string
	What        string
	StartTime   uint64
	EndTime     uint64
	Address     uint64
	ByteSize    uint64
	ServedBy    string
	Hit         bool
	StallCycles uint64
	Error       string
}

// cacheEventEntry represents a block moving in or out of a cache.
type cacheEventEntry struct {
	Time     uint64
	Location string
	What     string
	Address  uint64
	Dirty    bool
	Prefetch bool
}

// Attach registers the hook on the hierarchy, its caches and its victim
// cache.
func Attach(h *hierarchy.Hierarchy, hook hooking.Hook) {
	h.AcceptHook(hook)
	h.ICache().AcceptHook(hook)
	h.DCache().AcceptHook(hook)

	if vc := h.VictimCache(); vc != nil {
		vc.AcceptHook(hook)
	}
}

// A tracer is a hook that writes the actions of the memory hierarchy into a
// log.
type tracer struct {
	logger *log.Logger
}

// NewLogTracer creates a hook that logs every request and every cache block
// event.
func NewLogTracer(logger *log.Logger) hooking.Hook {
	return &tracer{logger: logger}
}

func (t *tracer) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case hierarchy.HookPosReqStart:
		req := ctx.Item.(mem.Request)
		t.logger.Printf("start, %d, %s, %s, %s, 0x%x, %d\n",
			ctx.Now, location(ctx), req.ID, req.Kind, req.Address, req.Size)
	case hierarchy.HookPosReqEnd:
		req := ctx.Item.(mem.Request)

		switch detail := ctx.Detail.(type) {
		case mem.Response:
			t.logger.Printf("end, %d, %s, %s, hit=%t, latency=%d\n",
				ctx.Now, req.ID, detail.ServedBy, detail.Hit, detail.Latency)
		case error:
			t.logger.Printf("error, %d, %s, %v\n", ctx.Now, req.ID, detail)
		}
	case cache.HookPosEvict, cache.HookPosFill, cache.HookPosPrefetch:
		e := ctx.Item.(cache.BlockEvent)
		t.logger.Printf("%s, %d, %s, 0x%x, dirty=%t\n",
			ctx.Pos.Name, ctx.Now, location(ctx), e.BlockAddr, e.Dirty)
	}
}

// A dbTracer is a hook that records the actions of the memory hierarchy into
// a database using the data recorder.
type dbTracer struct {
	dataRecorder        datarecording.DataRecorder
	pendingTransactions map[string]*memoryTransactionEntry
}

// NewDBTracer creates a hook that writes the memory_transactions and
// cache_events tables.
func NewDBTracer(dataRecorder datarecording.DataRecorder) hooking.Hook {
	t := &dbTracer{
		dataRecorder:        dataRecorder,
		pendingTransactions: make(map[string]*memoryTransactionEntry),
	}

	t.dataRecorder.CreateTable("memory_transactions", memoryTransactionEntry{})
	t.dataRecorder.CreateTable("cache_events", cacheEventEntry{})

	return t
}

func (t *dbTracer) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case hierarchy.HookPosReqStart:
		t.startTransaction(ctx)
	case hierarchy.HookPosReqEnd:
		t.endTransaction(ctx)
	case cache.HookPosEvict, cache.HookPosFill, cache.HookPosPrefetch:
		e := ctx.Item.(cache.BlockEvent)
		t.dataRecorder.InsertData("cache_events", cacheEventEntry{
			Time:     uint64(ctx.Now),
			Location: location(ctx),
			What:     ctx.Pos.Name,
			Address:  e.BlockAddr,
			Dirty:    e.Dirty,
			Prefetch: e.Prefetch,
		})
	}
}

func (t *dbTracer) startTransaction(ctx hooking.HookCtx) {
	req, ok := ctx.Item.(mem.Request)
	if !ok {
		return
	}

	t.pendingTransactions[req.ID] = &memoryTransactionEntry{
		ID:        req.ID,
		Location:  location(ctx),
		What:      req.Kind.String(),
		StartTime: uint64(ctx.Now),
		Address:   req.Address,
		ByteSize:  req.Size,
	}
}

func (t *dbTracer) endTransaction(ctx hooking.HookCtx) {
	req, ok := ctx.Item.(mem.Request)
	if !ok {
		return
	}

	entry, exists := t.pendingTransactions[req.ID]
	if !exists {
		return
	}

	entry.EndTime = uint64(ctx.Now)

	switch detail := ctx.Detail.(type) {
	case mem.Response:
		entry.ServedBy = detail.ServedBy.String()
		entry.Hit = detail.Hit
		entry.StallCycles = uint64(detail.StallCycles)
	case error:
		entry.Error = detail.Error()
	}

	t.dataRecorder.InsertData("memory_transactions", *entry)
	delete(t.pendingTransactions, req.ID)
}
