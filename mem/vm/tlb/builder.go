package tlb

import (
	"log"

	"github.com/sarchlab/hetmem/mem/vm/internal/ring"
	"github.com/sarchlab/hetmem/sim"
)

// A Builder can build TLBs
type Builder struct {
	numSets      int
	numWays      int
	log2PageSize uint64
}

// MakeBuilder returns a Builder for a fully associative TLB with 32 entries
// and 4KB pages.
func MakeBuilder() Builder {
	return Builder{
		numSets:      1,
		numWays:      32,
		log2PageSize: 12,
	}
}

// WithNumSets sets the number of sets in a TLB. Use 1 for fully associated
// TLBs.
func (b Builder) WithNumSets(n int) Builder {
	b.numSets = n
	return b
}

// WithNumWays sets the number of ways in a TLB. Set this field to the number
// of TLB entries for fully associated TLBs.
func (b Builder) WithNumWays(n int) Builder {
	b.numWays = n
	return b
}

// WithLog2PageSize sets the page size as a power of 2
func (b Builder) WithLog2PageSize(n uint64) Builder {
	b.log2PageSize = n
	return b
}

// Build creates a new TLB
func (b Builder) Build(name string) *Comp {
	if b.numSets <= 0 || b.numWays <= 0 {
		log.Panicf("tlb %s: %d sets and %d ways is not a valid geometry",
			name, b.numSets, b.numWays)
	}

	tlb := &Comp{
		HookableBase: sim.NewHookableBase(),
		name:         name,
		log2PageSize: b.log2PageSize,
		sets:         make([]*ring.Ring, b.numSets),
	}

	for i := range tlb.sets {
		tlb.sets[i] = ring.New(b.numWays)
	}

	return tlb
}
