package mmu

import (
	"log"
	"slices"

	"github.com/sarchlab/hetmem/mem/vm"
)

type batchState struct {
	active               bool
	firstTransferStarted bool
	startCycle           uint64
	transferStartCycle   uint64
	nextEventCycle       uint64
}

// HandlePageFaults services the fault buffer. It steps the batch in progress
// and starts a new batch with the faults collected meanwhile once the
// previous one ends.
func (c *Comp) HandlePageFaults() {
	if c.batch.active {
		if !c.doBatchProcessing() {
			return
		}
	}

	if len(c.faultBuffer) == 0 {
		return
	}

	c.beginBatchProcessing()
}

func (c *Comp) beginBatchProcessing() {
	if c.batch.active {
		log.Panicf("mmu %s: batch started while another is active", c.name)
	}

	pages := make([]uint64, 0, len(c.faultBuffer))
	for p := range c.faultBuffer {
		pages = append(pages, p)
	}

	slices.Sort(pages)

	c.faultBufferProcessing = pages
	c.faultUopsProcessing = c.faultUops
	c.faultBuffer = make(map[uint64]struct{})
	c.faultUops = make(map[uint64][]*vm.Uop)

	now := c.now()
	c.batch = batchState{
		active:             true,
		startCycle:         now,
		transferStartCycle: now + c.batchOverhead,
	}

	c.stats.Batches++
	c.invokeHook(HookPosBatchBegin, nil, len(pages))
}

// doBatchProcessing brings in at most one page. It returns true when the
// batch is finished.
func (c *Comp) doBatchProcessing() bool {
	now := c.now()

	if now < c.batch.transferStartCycle {
		return false
	}

	if !c.batch.firstTransferStarted {
		c.scheduleNextTransfer(now)
		c.batch.firstTransferStarted = true

		return false
	}

	if now < c.batch.nextEventCycle {
		return false
	}

	if c.freeFramesRemaining == 0 {
		log.Panicf("mmu %s: no free frame at cycle %d", c.name, now)
	}

	frame := c.findFreeFrame()
	pageNumber := c.faultBufferProcessing[0]
	c.faultBufferProcessing = c.faultBufferProcessing[1:]

	c.pageTable.Insert(vm.Page{PageNumber: pageNumber, FrameNumber: frame})
	c.replacement.Insert(pageNumber)
	c.freeFrames[frame] = false
	c.freeFramesRemaining--

	c.stats.PagesServiced++
	c.invokeHook(HookPosPageAssigned, nil, vm.Page{
		PageNumber:  pageNumber,
		FrameNumber: frame,
	})

	c.releaseWaitingUops(pageNumber)

	if len(c.faultBufferProcessing) > 0 {
		c.scheduleNextTransfer(now)
		return false
	}

	c.batch = batchState{}
	c.faultUopsProcessing = nil
	c.invokeHook(HookPosBatchEnd, nil, nil)

	return true
}

// scheduleNextTransfer decides when the next page arrives. If memory is
// full, a page is evicted right away and the eviction latency is paid.
func (c *Comp) scheduleNextTransfer(now uint64) {
	if c.freeFramesRemaining > 0 {
		c.batch.nextEventCycle = now + c.faultLatency
		return
	}

	c.batch.nextEventCycle = now + c.evictionLatency + c.faultLatency
	c.evictPage()
}

func (c *Comp) evictPage() {
	c.mustHaveMemorySystem()

	victim := c.replacement.Victim()

	page, found := c.pageTable.Find(victim)
	if !found {
		log.Panicf("mmu %s: victim page 0x%x is not in the page table",
			c.name, victim)
	}

	c.pageTable.Remove(victim)
	c.tlb.Invalidate(victim)
	c.memory.Invalidate(page.FrameNumber << c.log2PageSize)

	c.freeFrames[page.FrameNumber] = true
	c.freeFramesRemaining++
	c.frameToAllocate = page.FrameNumber

	c.stats.Evictions++
	c.invokeHook(HookPosEviction, nil, page)
}

// findFreeFrame searches for a free frame starting from the last frame that
// was allocated or freed.
func (c *Comp) findFreeFrame() uint64 {
	if !c.freeFrames[c.frameToAllocate] {
		start := c.frameToAllocate
		n := uint64(len(c.freeFrames))

		for {
			c.frameToAllocate = (c.frameToAllocate + 1) % n
			if c.frameToAllocate == start || c.freeFrames[c.frameToAllocate] {
				break
			}
		}
	}

	if !c.freeFrames[c.frameToAllocate] {
		log.Panicf("mmu %s: free frame count is %d but no frame is free",
			c.name, c.freeFramesRemaining)
	}

	return c.frameToAllocate
}

// releaseWaitingUops moves the uops that wait for a page into the retry
// queue. Those include the uops of the batch and the ones that faulted on
// the same page while the batch was running.
func (c *Comp) releaseWaitingUops(pageNumber uint64) {
	uops, found := c.faultUopsProcessing[pageNumber]
	if !found {
		log.Panicf("mmu %s: page 0x%x has no waiting uop", c.name, pageNumber)
	}

	c.moveToRetryQueue(uops)
	delete(c.faultUopsProcessing, pageNumber)

	if _, seen := c.uniquePages[pageNumber]; seen {
		c.stats.Reallocations++
	} else {
		c.uniquePages[pageNumber] = struct{}{}
	}

	if late, ok := c.faultUops[pageNumber]; ok {
		c.moveToRetryQueue(late)
		delete(c.faultUops, pageNumber)
		delete(c.faultBuffer, pageNumber)
	}
}

func (c *Comp) moveToRetryQueue(uops []*vm.Uop) {
	for _, uop := range uops {
		uop.State = vm.StateTransRetryQueue
		c.retryQueue = append(c.retryQueue, uop)
	}
}
