// Package mmu provides the translation unit that turns the virtual
// addresses of uops into physical ones. It walks the page table on TLB
// misses and services page faults in batches.
package mmu

import (
	"log"

	"github.com/sarchlab/hetmem/mem/vm"
	"github.com/sarchlab/hetmem/mem/vm/tlb"
	"github.com/sarchlab/hetmem/sim"
)

// Comp is the translation unit. It is stepped once per cycle by
// HandlePageFaults followed by RunACycle.
type Comp struct {
	*sim.HookableBase

	name   string
	clock  *sim.Clock
	memory MemorySystem

	log2PageSize uint64
	pageTable    vm.PageTable
	tlb          *tlb.Comp
	replacement  *ReplacementUnit

	freeFrames          []bool
	freeFramesRemaining int
	frameToAllocate     uint64

	walkLatency      uint64
	faultLatency     uint64
	evictionLatency  uint64
	batchOverhead    uint64
	minRetireLatency uint64
	faultBufferSize  int

	walkQueue     *walkQueue
	walkQueuePage map[uint64][]*vm.Uop

	retryQueue      []*vm.Uop
	faultRetryQueue []*vm.Uop

	faultBuffer           map[uint64]struct{}
	faultUops             map[uint64][]*vm.Uop
	faultBufferProcessing []uint64
	faultUopsProcessing   map[uint64][]*vm.Uop

	// faultParents holds the split uops that have a child in the fault
	// buffer while other children are still walking.
	faultParents map[*vm.Uop]struct{}

	batch       batchState
	uniquePages map[uint64]struct{}
	stats       Stats
}

// Name returns the name of the MMU.
func (c *Comp) Name() string {
	return c.name
}

// CurrentCycle returns the cycle that the MMU is at.
func (c *Comp) CurrentCycle() uint64 {
	return c.clock.CurrentCycle()
}

// SetMemorySystem connects the MMU to the memory hierarchy.
func (c *Comp) SetMemorySystem(m MemorySystem) {
	c.memory = m
}

// TLB returns the TLB of the MMU.
func (c *Comp) TLB() *tlb.Comp {
	return c.tlb
}

// PageTable returns the page table of the MMU.
func (c *Comp) PageTable() vm.PageTable {
	return c.pageTable
}

// ReplacementUnit returns the page recency order.
func (c *Comp) ReplacementUnit() *ReplacementUnit {
	return c.replacement
}

// Log2PageSize returns the page size as a power of 2.
func (c *Comp) Log2PageSize() uint64 {
	return c.log2PageSize
}

// NumFrames returns the number of physical frames.
func (c *Comp) NumFrames() int {
	return len(c.freeFrames)
}

// NumFreeFrames returns the number of frames not holding any page.
func (c *Comp) NumFreeFrames() int {
	return c.freeFramesRemaining
}

// WalkQueueLen returns the number of pages being walked.
func (c *Comp) WalkQueueLen() int {
	return c.walkQueue.len()
}

// RetryQueueLen returns the number of uops waiting to access memory again.
func (c *Comp) RetryQueueLen() int {
	return len(c.retryQueue)
}

// FaultRetryQueueLen returns the number of uops deferred because the fault
// buffer was full.
func (c *Comp) FaultRetryQueueLen() int {
	return len(c.faultRetryQueue)
}

// FaultBufferLen returns the number of pages in the fault buffer.
func (c *Comp) FaultBufferLen() int {
	return len(c.faultBuffer)
}

// InBatch tells if a fault batch is being serviced.
func (c *Comp) InBatch() bool {
	return c.batch.active
}

// IsIdle tells if no uop is waiting on the MMU.
func (c *Comp) IsIdle() bool {
	return !c.batch.active &&
		c.walkQueue.len() == 0 &&
		len(c.retryQueue) == 0 &&
		len(c.faultRetryQueue) == 0 &&
		len(c.faultBuffer) == 0
}

// Translate tries to translate the address of the uop. It returns true if the
// uop is translated. Otherwise, the uop is queued for a page table walk and
// the caller has to wait for the MMU to retry the access.
func (c *Comp) Translate(uop *vm.Uop) bool {
	if uop.Translated {
		return true
	}

	pageNumber := c.pageNumber(uop.VAddr)
	uop.State = vm.StateTransBegin

	if c.tlb.Lookup(uop.VAddr) {
		frame := c.tlb.Translate(uop.VAddr)
		uop.PAddr = frame<<c.log2PageSize | c.pageOffset(uop.VAddr)
		uop.State = vm.StateTransDone
		uop.Translated = true

		c.stats.TLBHits++
		c.invokeHook(HookPosTLBHit, uop, pageNumber)

		return true
	}

	c.stats.TLBMisses++
	c.invokeHook(HookPosTLBMiss, uop, pageNumber)

	if waiting, ok := c.walkQueuePage[pageNumber]; ok {
		c.walkQueuePage[pageNumber] = append(waiting, uop)
		c.stats.Piggybacks++
	} else {
		c.walkQueue.push(c.now()+c.walkLatency, pageNumber)
		c.walkQueuePage[pageNumber] = []*vm.Uop{uop}
		c.stats.Walks++
	}

	uop.State = vm.StateTransWalkQueue
	if uop.Parent != nil {
		uop.Parent.NumPageTableWalks++
	}

	return false
}

// RunACycle retries the accesses whose translation has completed, retries
// deferred faults and finishes due page table walks. It then advances the
// clock. When pllLocked is set, it only advances the clock.
func (c *Comp) RunACycle(pllLocked bool) {
	if pllLocked {
		c.clock.Tick()
		return
	}

	c.drainRetryQueue()
	c.drainFaultRetryQueue()
	c.doWalks()

	c.clock.Tick()
}

func (c *Comp) drainRetryQueue() {
	if len(c.retryQueue) == 0 {
		return
	}

	c.mustHaveMemorySystem()

	queue := c.retryQueue
	c.retryQueue = nil

	var kept []*vm.Uop

	for _, uop := range queue {
		latency := c.memory.Access(uop)
		if latency == 0 {
			kept = append(kept, uop)
			continue
		}

		if latency > 0 {
			c.retire(uop, uint64(latency))
		}
	}

	c.retryQueue = append(kept, c.retryQueue...)
}

func (c *Comp) retire(uop *vm.Uop, latency uint64) {
	doneCycle := c.now() + max(latency, c.minRetireLatency)

	uop.DoneCycle = doneCycle
	uop.State = vm.StateScheduled
	c.stats.Retired++

	if p := uop.Parent; p != nil {
		p.NumChildUopsDone++
		if p.NumChildUopsDone == p.NumChildUops {
			p.DoneCycle = doneCycle
			p.State = vm.StateScheduled
		}
	}

	c.invokeHook(HookPosRetire, uop, doneCycle)
}

func (c *Comp) drainFaultRetryQueue() {
	if len(c.faultRetryQueue) == 0 {
		return
	}

	deferred := c.faultRetryQueue
	c.faultRetryQueue = nil

	for _, uop := range deferred {
		c.doPageTableWalks(uop, true)
	}
}

func (c *Comp) doWalks() {
	for {
		pages, ok := c.walkQueue.popReady(c.now())
		if !ok {
			return
		}

		for _, pageNumber := range pages {
			uops := c.walkQueuePage[pageNumber]
			delete(c.walkQueuePage, pageNumber)

			for i, uop := range uops {
				c.doPageTableWalks(uop, i == 0)
			}
		}
	}
}

// doPageTableWalks resolves a uop whose walk has completed. The update flag
// is set on the first uop of each page so that the TLB and the replacement
// order are updated once per walk.
func (c *Comp) doPageTableWalks(uop *vm.Uop, update bool) {
	pageNumber := c.pageNumber(uop.VAddr)

	page, found := c.pageTable.Find(pageNumber)
	if found {
		c.pageTableHit(uop, page, update)
		return
	}

	c.stats.PageTableMisses++

	_, pending := c.faultBuffer[pageNumber]
	if !pending &&
		len(c.faultBuffer) >= c.faultBufferSize &&
		!c.hasSiblingInFaultBuffer(uop) {
		uop.State = vm.StateTransFaultRetryQueue
		c.faultRetryQueue = append(c.faultRetryQueue, uop)
		c.stats.Deferrals++
		c.invokeHook(HookPosDefer, uop, pageNumber)

		return
	}

	c.faultBuffer[pageNumber] = struct{}{}
	c.faultUops[pageNumber] = append(c.faultUops[pageNumber], uop)
	c.trackFaultParent(uop)

	uop.State = vm.StateTransFaultBuffer
	c.invokeHook(HookPosPageFault, uop, pageNumber)
}

func (c *Comp) pageTableHit(uop *vm.Uop, page vm.Page, update bool) {
	c.stats.PageTableHits++

	uop.PAddr = page.FrameNumber<<c.log2PageSize | c.pageOffset(uop.VAddr)
	uop.State = vm.StateTransRetryQueue
	uop.Translated = true

	if p := uop.Parent; p != nil && p.NumPageTableWalks > 0 {
		p.NumPageTableWalks--
		if p.NumPageTableWalks == 0 {
			delete(c.faultParents, p)
		}
	}

	if update {
		if !c.tlb.Lookup(uop.VAddr) {
			c.tlb.Insert(uop.VAddr, page.FrameNumber)
		}

		c.tlb.Update(uop.VAddr)
		c.replacement.Update(page.PageNumber)
	}

	c.retryQueue = append(c.retryQueue, uop)
	c.invokeHook(HookPosPageTableHit, uop, page.PageNumber)
}

// hasSiblingInFaultBuffer tells if another piece of the same split access
// already sits in the fault buffer. Such a uop is admitted even when the
// buffer is full so that the access is not spread over two batches.
func (c *Comp) hasSiblingInFaultBuffer(uop *vm.Uop) bool {
	if uop.Parent == nil {
		return false
	}

	_, ok := c.faultParents[uop.Parent]

	return ok
}

func (c *Comp) trackFaultParent(uop *vm.Uop) {
	p := uop.Parent
	if p == nil {
		return
	}

	if p.NumPageTableWalks > 0 {
		p.NumPageTableWalks--
	}

	if p.NumPageTableWalks > 0 {
		c.faultParents[p] = struct{}{}
	} else {
		delete(c.faultParents, p)
	}
}

func (c *Comp) pageNumber(addr uint64) uint64 {
	return addr >> c.log2PageSize
}

func (c *Comp) pageOffset(addr uint64) uint64 {
	return addr & (uint64(1)<<c.log2PageSize - 1)
}

func (c *Comp) now() uint64 {
	return c.clock.CurrentCycle()
}

func (c *Comp) mustHaveMemorySystem() {
	if c.memory == nil {
		log.Panicf("mmu %s: no memory system connected", c.name)
	}
}
