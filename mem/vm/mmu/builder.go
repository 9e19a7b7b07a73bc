package mmu

import (
	"log"

	"github.com/sarchlab/hetmem/mem/vm"
	"github.com/sarchlab/hetmem/mem/vm/tlb"
	"github.com/sarchlab/hetmem/sim"
)

// A Builder can build MMU component
type Builder struct {
	clock            *sim.Clock
	memory           MemorySystem
	pageTable        vm.PageTable
	log2PageSize     uint64
	memorySize       uint64
	tlbNumSets       int
	tlbNumEntries    int
	walkLatency      uint64
	faultLatency     uint64
	evictionLatency  uint64
	batchOverhead    uint64
	minRetireLatency uint64
	faultBufferSize  int
}

// MakeBuilder creates a new builder
func MakeBuilder() Builder {
	return Builder{
		log2PageSize:     12,
		memorySize:       1 << 30,
		tlbNumSets:       1,
		tlbNumEntries:    64,
		walkLatency:      100,
		faultLatency:     1000,
		evictionLatency:  500,
		batchOverhead:    5000,
		minRetireLatency: 1,
		faultBufferSize:  32,
	}
}

// WithClock sets the clock that the MMU advances every cycle.
func (b Builder) WithClock(clock *sim.Clock) Builder {
	b.clock = clock
	return b
}

// WithMemorySystem sets the memory hierarchy that translated uops access.
func (b Builder) WithMemorySystem(m MemorySystem) Builder {
	b.memory = m
	return b
}

// WithPageTable sets the page table that the MMU uses.
func (b Builder) WithPageTable(pageTable vm.PageTable) Builder {
	b.pageTable = pageTable
	return b
}

// WithLog2PageSize sets the page size that the mmu support.
func (b Builder) WithLog2PageSize(log2PageSize uint64) Builder {
	b.log2PageSize = log2PageSize
	return b
}

// WithMemorySize sets the size of the physical memory in bytes. Together
// with the page size it determines the number of frames.
func (b Builder) WithMemorySize(size uint64) Builder {
	b.memorySize = size
	return b
}

// WithTLBNumEntries sets the total number of TLB entries.
func (b Builder) WithTLBNumEntries(n int) Builder {
	b.tlbNumEntries = n
	return b
}

// WithTLBNumSets sets the number of TLB sets. Use 1 for a fully associative
// TLB.
func (b Builder) WithTLBNumSets(n int) Builder {
	b.tlbNumSets = n
	return b
}

// WithWalkLatency sets the number of cycles required for walking the page
// table.
func (b Builder) WithWalkLatency(cycles uint64) Builder {
	b.walkLatency = cycles
	return b
}

// WithFaultLatency sets the number of cycles to bring one page in.
func (b Builder) WithFaultLatency(cycles uint64) Builder {
	b.faultLatency = cycles
	return b
}

// WithEvictionLatency sets the extra cycles paid when a page has to be
// evicted before another one can be brought in.
func (b Builder) WithEvictionLatency(cycles uint64) Builder {
	b.evictionLatency = cycles
	return b
}

// WithBatchOverhead sets the setup cost paid once per fault batch.
func (b Builder) WithBatchOverhead(cycles uint64) Builder {
	b.batchOverhead = cycles
	return b
}

// WithMinRetireLatency sets the minimum number of cycles between the retry of
// an access and its completion.
func (b Builder) WithMinRetireLatency(cycles uint64) Builder {
	b.minRetireLatency = cycles
	return b
}

// WithFaultBufferSize sets the number of distinct pages the fault buffer can
// hold.
func (b Builder) WithFaultBufferSize(n int) Builder {
	b.faultBufferSize = n
	return b
}

// Build returns a newly created MMU component
func (b Builder) Build(name string) *Comp {
	numFrames := b.memorySize >> b.log2PageSize
	if numFrames == 0 {
		log.Panicf("mmu %s: memory of %d bytes holds no %d-byte page",
			name, b.memorySize, uint64(1)<<b.log2PageSize)
	}

	if b.faultBufferSize <= 0 {
		log.Panicf("mmu %s: fault buffer size must be positive", name)
	}

	mmu := &Comp{
		HookableBase:     sim.NewHookableBase(),
		name:             name,
		clock:            b.clock,
		memory:           b.memory,
		pageTable:        b.pageTable,
		log2PageSize:     b.log2PageSize,
		walkLatency:      b.walkLatency,
		faultLatency:     b.faultLatency,
		evictionLatency:  b.evictionLatency,
		batchOverhead:    b.batchOverhead,
		minRetireLatency: b.minRetireLatency,
		faultBufferSize:  b.faultBufferSize,
	}

	if mmu.clock == nil {
		mmu.clock = sim.NewClock(1 * sim.GHz)
	}

	if mmu.pageTable == nil {
		mmu.pageTable = vm.NewPageTable()
	}

	mmu.tlb = tlb.MakeBuilder().
		WithNumSets(b.tlbNumSets).
		WithNumWays(b.tlbNumEntries / b.tlbNumSets).
		WithLog2PageSize(b.log2PageSize).
		Build(name + ".TLB")

	b.configureInternalStates(mmu, int(numFrames))

	return mmu
}

func (b Builder) configureInternalStates(mmu *Comp, numFrames int) {
	mmu.freeFrames = make([]bool, numFrames)
	for i := range mmu.freeFrames {
		mmu.freeFrames[i] = true
	}

	mmu.freeFramesRemaining = numFrames
	mmu.replacement = NewReplacementUnit(numFrames)

	mmu.walkQueue = newWalkQueue()
	mmu.walkQueuePage = make(map[uint64][]*vm.Uop)
	mmu.faultBuffer = make(map[uint64]struct{})
	mmu.faultUops = make(map[uint64][]*vm.Uop)
	mmu.faultParents = make(map[*vm.Uop]struct{})
	mmu.uniquePages = make(map[uint64]struct{})
}
