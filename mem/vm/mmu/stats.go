package mmu

import (
	"github.com/sarchlab/hetmem/mem/vm"
	"github.com/sarchlab/hetmem/sim"
)

// Hook positions of the MMU. The item of the hook context is the uop
// involved, if any.
var (
	HookPosTLBHit       = &sim.HookPos{Name: "TLBHit"}
	HookPosTLBMiss      = &sim.HookPos{Name: "TLBMiss"}
	HookPosPageTableHit = &sim.HookPos{Name: "PageTableHit"}
	HookPosPageFault    = &sim.HookPos{Name: "PageFault"}
	HookPosDefer        = &sim.HookPos{Name: "FaultDeferred"}
	HookPosBatchBegin   = &sim.HookPos{Name: "BatchBegin"}
	HookPosBatchEnd     = &sim.HookPos{Name: "BatchEnd"}
	HookPosPageAssigned = &sim.HookPos{Name: "PageAssigned"}
	HookPosEviction     = &sim.HookPos{Name: "PageEviction"}
	HookPosRetire       = &sim.HookPos{Name: "Retire"}
)

// Stats counts what the MMU has done.
type Stats struct {
	TLBHits         uint64
	TLBMisses       uint64
	Walks           uint64
	Piggybacks      uint64
	PageTableHits   uint64
	PageTableMisses uint64
	Deferrals       uint64
	Batches         uint64
	PagesServiced   uint64
	Evictions       uint64
	Reallocations   uint64
	Retired         uint64
	UniquePages     uint64
}

// Stats returns a snapshot of the counters.
func (c *Comp) Stats() Stats {
	s := c.stats
	s.UniquePages = uint64(len(c.uniquePages))

	return s
}

// Finalize returns the final counters of a run.
func (c *Comp) Finalize() Stats {
	return c.Stats()
}

func (c *Comp) invokeHook(pos *sim.HookPos, uop *vm.Uop, detail any) {
	if c.NumHooks() == 0 {
		return
	}

	ctx := sim.HookCtx{
		Domain: c,
		Pos:    pos,
		Cycle:  c.now(),
		Detail: detail,
	}

	if uop != nil {
		ctx.Item = uop
	}

	c.InvokeHook(ctx)
}
