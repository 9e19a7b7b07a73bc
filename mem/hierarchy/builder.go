package hierarchy

import (
	"fmt"

	"github.com/sarchlab/hetmem/mem/cache"
	"github.com/sarchlab/hetmem/sim"
)

// Geometry describes the shape of one cache level.
type Geometry struct {
	NumSets       int
	Associativity int
	NumBanks      int
}

// A Builder can build memory hierarchies.
type Builder struct {
	cycleTeller     sim.CycleTeller
	numCPUCores     int
	numGPUCores     int
	lineSize        int
	log2PageSize    uint64
	l1, l2, llc     Geometry
	l1Latency       int
	l2Latency       int
	llcLatency      int
	dramLatency     int
	portsPerBank    int
	pseudoLRU       bool
	staticPartition bool
	cpuQuota        int
}

// MakeBuilder creates a builder for one CPU core and one GPU core with
// 32KB L1s, 256KB L2s and a 2MB LLC.
func MakeBuilder() Builder {
	return Builder{
		numCPUCores:  1,
		numGPUCores:  1,
		lineSize:     64,
		log2PageSize: 12,
		l1:           Geometry{NumSets: 64, Associativity: 8, NumBanks: 4},
		l2:           Geometry{NumSets: 512, Associativity: 8, NumBanks: 1},
		llc:          Geometry{NumSets: 2048, Associativity: 16, NumBanks: 4},
		l1Latency:    3,
		l2Latency:    12,
		llcLatency:   30,
		dramLatency:  200,
		portsPerBank: 1,
	}
}

// WithCycleTeller sets where the caches read the current cycle from.
func (b Builder) WithCycleTeller(t sim.CycleTeller) Builder {
	b.cycleTeller = t
	return b
}

// WithNumCPUCores sets the number of CPU cores.
func (b Builder) WithNumCPUCores(n int) Builder {
	b.numCPUCores = n
	return b
}

// WithNumGPUCores sets the number of GPU cores. GPU cores are numbered after
// the CPU cores.
func (b Builder) WithNumGPUCores(n int) Builder {
	b.numGPUCores = n
	return b
}

// WithLineSize sets the line size of every cache.
func (b Builder) WithLineSize(n int) Builder {
	b.lineSize = n
	return b
}

// WithLog2PageSize sets the page size used by Invalidate.
func (b Builder) WithLog2PageSize(n uint64) Builder {
	b.log2PageSize = n
	return b
}

// WithL1 sets the geometry of the private L1 caches.
func (b Builder) WithL1(g Geometry) Builder {
	b.l1 = g
	return b
}

// WithL2 sets the geometry of the private L2 caches.
func (b Builder) WithL2(g Geometry) Builder {
	b.l2 = g
	return b
}

// WithLLC sets the geometry of the shared last level cache.
func (b Builder) WithLLC(g Geometry) Builder {
	b.llc = g
	return b
}

// WithLatencies sets the hit latency of each level and the DRAM latency.
func (b Builder) WithLatencies(l1, l2, llc, dram int) Builder {
	b.l1Latency = l1
	b.l2Latency = l2
	b.llcLatency = llc
	b.dramLatency = dram

	return b
}

// WithPortsPerBank sets how many accesses each L1 bank accepts per cycle. 0
// means unlimited.
func (b Builder) WithPortsPerBank(n int) Builder {
	b.portsPerBank = n
	return b
}

// WithPseudoLRU selects pseudo-LRU replacement in every cache.
func (b Builder) WithPseudoLRU(enabled bool) Builder {
	b.pseudoLRU = enabled
	return b
}

// WithStaticPartition splits the LLC sets between CPU and GPU lines, with
// cpuQuota ways reserved for CPU lines.
func (b Builder) WithStaticPartition(enabled bool, cpuQuota int) Builder {
	b.staticPartition = enabled
	b.cpuQuota = cpuQuota

	return b
}

// Build creates the hierarchy.
func (b Builder) Build(name string) *Hierarchy {
	h := &Hierarchy{
		name:         name,
		pageSize:     uint64(1) << b.log2PageSize,
		l1Latency:    b.l1Latency,
		l2Latency:    b.l2Latency,
		llcLatency:   b.llcLatency,
		dramLatency:  b.dramLatency,
		portsPerBank: b.portsPerBank,
	}

	h.cycleTeller = b.cycleTeller
	if h.cycleTeller == nil {
		h.cycleTeller = sim.NewClock(1 * sim.GHz)
	}

	numCores := b.numCPUCores + b.numGPUCores
	for i := 0; i < numCores; i++ {
		c := &core{
			id:    i,
			isGPU: i >= b.numCPUCores,
			l1: b.engine(b.l1, cache.KindDL1, i, h.cycleTeller).
				Build(fmt.Sprintf("%s.Core[%d].L1", name, i)),
			l2: b.engine(b.l2, cache.KindDL2, i, h.cycleTeller).
				Build(fmt.Sprintf("%s.Core[%d].L2", name, i)),
			ports: make([]port, max(b.l1.NumBanks, 1)),
		}

		h.cores = append(h.cores, c)
	}

	h.llc = b.engine(b.llc, cache.KindLLC, -1, h.cycleTeller).
		WithPartition(true).
		WithStaticPartition(b.staticPartition, b.cpuQuota).
		Build(name + ".LLC")

	return h
}

func (b Builder) engine(
	g Geometry,
	kind cache.Kind,
	coreID int,
	cycleTeller sim.CycleTeller,
) cache.Builder {
	return cache.MakeBuilder().
		WithNumSets(g.NumSets).
		WithAssociativity(g.Associativity).
		WithNumBanks(max(g.NumBanks, 1)).
		WithLineSize(b.lineSize).
		WithKind(kind).
		WithCoreID(coreID).
		WithPseudoLRU(b.pseudoLRU).
		WithCycleTeller(cycleTeller)
}
