// Package hierarchy models the cache hierarchy of a heterogeneous processor.
// Every core has a private L1 and L2, and all cores share a last level cache
// that can be partitioned between CPU and GPU lines.
package hierarchy

import (
	"log"

	"github.com/sarchlab/hetmem/mem/cache"
	"github.com/sarchlab/hetmem/mem/vm"
	"github.com/sarchlab/hetmem/sim"
)

// A Translator turns the virtual address of a uop into a physical one.
type Translator interface {
	Translate(uop *vm.Uop) bool
}

// Stats counts the accesses served by each level.
type Stats struct {
	Accesses      uint64
	L1Hits        uint64
	L2Hits        uint64
	LLCHits       uint64
	DRAMAccesses  uint64
	BankConflicts uint64
	WriteBacks    uint64
	Invalidations uint64
}

type port struct {
	cycle uint64
	used  int
}

type core struct {
	id    int
	isGPU bool
	l1    *cache.Engine
	l2    *cache.Engine
	ports []port
}

// acquirePort takes one access slot of the bank in the current cycle.
func (c *core) acquirePort(bank int, now uint64, perBank int) bool {
	if perBank <= 0 {
		return true
	}

	p := &c.ports[bank]
	if p.cycle != now {
		p.cycle = now
		p.used = 0
	}

	if p.used >= perBank {
		return false
	}

	p.used++

	return true
}

// Hierarchy is the memory system that the MMU feeds.
type Hierarchy struct {
	name         string
	translator   Translator
	cycleTeller  sim.CycleTeller
	cores        []*core
	llc          *cache.Engine
	pageSize     uint64
	l1Latency    int
	l2Latency    int
	llcLatency   int
	dramLatency  int
	portsPerBank int
	stats        Stats
}

// Name returns the name of the hierarchy.
func (h *Hierarchy) Name() string {
	return h.name
}

// SetTranslator sets the unit that translates addresses before each access.
// Without a translator, virtual addresses are used as physical ones.
func (h *Hierarchy) SetTranslator(t Translator) {
	h.translator = t
}

// NumCores returns the number of cores.
func (h *Hierarchy) NumCores() int {
	return len(h.cores)
}

// IsGPUCore tells if the core is a GPU core.
func (h *Hierarchy) IsGPUCore(coreID int) bool {
	return h.coreOf(coreID).isGPU
}

// L1 returns the L1 cache of a core.
func (h *Hierarchy) L1(coreID int) *cache.Engine {
	return h.coreOf(coreID).l1
}

// L2 returns the L2 cache of a core.
func (h *Hierarchy) L2(coreID int) *cache.Engine {
	return h.coreOf(coreID).l2
}

// LLC returns the shared last level cache.
func (h *Hierarchy) LLC() *cache.Engine {
	return h.llc
}

// Engines lists every cache, private ones first.
func (h *Hierarchy) Engines() []*cache.Engine {
	engines := make([]*cache.Engine, 0, 2*len(h.cores)+1)
	for _, c := range h.cores {
		engines = append(engines, c.l1, c.l2)
	}

	return append(engines, h.llc)
}

// Stats returns a snapshot of the counters.
func (h *Hierarchy) Stats() Stats {
	return h.stats
}

// Access performs the access of a uop. It returns -1 if the address is not
// translated yet, 0 if the L1 bank has no free port this cycle, and
// otherwise the latency of the access.
func (h *Hierarchy) Access(uop *vm.Uop) int {
	if !h.translate(uop) {
		return -1
	}

	c := h.coreOf(uop.CoreID)
	addr := uop.PAddr

	if !c.acquirePort(c.l1.BankOf(addr), h.now(), h.portsPerBank) {
		h.stats.BankConflicts++
		return 0
	}

	h.stats.Accesses++
	latency := h.l1Latency

	if r := c.l1.Access(addr, true, uop.ApplID); r.Hit {
		h.stats.L1Hits++
		if uop.IsStore {
			r.Line.Dirty = true
		}

		return latency
	}

	latency += h.l2Latency

	if c.l2.Access(addr, true, uop.ApplID).Hit {
		h.stats.L2Hits++
	} else {
		latency += h.llcLatency

		if h.llc.Access(addr, true, uop.ApplID).Hit {
			h.stats.LLCHits++
		} else {
			latency += h.dramLatency
			h.stats.DRAMAccesses++
			h.fill(h.llc, addr, uop)
		}

		h.fill(c.l2, addr, uop)
	}

	line := h.fill(c.l1, addr, uop)
	if uop.IsStore {
		line.Dirty = true
	}

	return latency
}

func (h *Hierarchy) translate(uop *vm.Uop) bool {
	if h.translator != nil {
		return h.translator.Translate(uop)
	}

	uop.PAddr = uop.VAddr
	uop.Translated = true

	return true
}

func (h *Hierarchy) fill(e *cache.Engine, addr uint64, uop *vm.Uop) *cache.Line {
	line, victim := e.Insert(addr, uop.ApplID, uop.IsGPU)
	if victim.Valid && victim.Dirty {
		h.stats.WriteBacks++
	}

	return line
}

// Invalidate drops every line of the physical page in every cache. Dirty
// lines are counted as written back.
func (h *Hierarchy) Invalidate(frameAddr uint64) {
	end := frameAddr + h.pageSize

	for _, e := range h.Engines() {
		step := uint64(e.LineSize())
		for addr := frameAddr; addr < end; addr += step {
			if e.InvalidateLine(addr) {
				h.stats.WriteBacks++
			}
		}
	}

	h.stats.Invalidations++
}

func (h *Hierarchy) coreOf(coreID int) *core {
	if coreID < 0 || coreID >= len(h.cores) {
		log.Panicf("hierarchy %s: core %d does not exist", h.name, coreID)
	}

	return h.cores[coreID]
}

func (h *Hierarchy) now() uint64 {
	return h.cycleTeller.CurrentCycle()
}
