package cache

import (
	"log"
	"math/bits"

	"github.com/sarchlab/hetmem/sim"
)

// Builder can build cache engines.
type Builder struct {
	numSets         int
	assoc           int
	lineSize        int
	payloadSize     int
	numBanks        int
	bypass          bool
	coreID          int
	kind            Kind
	partition       bool
	pseudoLRU       bool
	staticPartition bool
	cpuQuota        int
	cycleTeller     sim.CycleTeller
	policy          ReplacementPolicy
}

// MakeBuilder creates a new builder with a 16KB, 4-way, 64B-line geometry.
func MakeBuilder() Builder {
	return Builder{
		numSets:  64,
		assoc:    4,
		lineSize: 64,
		numBanks: 1,
		kind:     KindDL1,
	}
}

// WithNumSets sets the number of sets.
func (b Builder) WithNumSets(n int) Builder {
	b.numSets = n
	return b
}

// WithAssociativity sets the number of lines per set.
func (b Builder) WithAssociativity(n int) Builder {
	b.assoc = n
	return b
}

// WithLineSize sets the line size in bytes.
func (b Builder) WithLineSize(n int) Builder {
	b.lineSize = n
	return b
}

// WithPayloadSize sets the number of bytes of data stored with each line. A
// size of 0 builds a tag-only engine.
func (b Builder) WithPayloadSize(n int) Builder {
	b.payloadSize = n
	return b
}

// WithNumBanks sets the number of banks.
func (b Builder) WithNumBanks(n int) Builder {
	b.numBanks = n
	return b
}

// WithBypass makes every lookup miss.
func (b Builder) WithBypass(bypass bool) Builder {
	b.bypass = bypass
	return b
}

// WithCoreID sets the core that owns the engine.
func (b Builder) WithCoreID(id int) Builder {
	b.coreID = id
	return b
}

// WithKind sets what the engine models.
func (b Builder) WithKind(kind Kind) Builder {
	b.kind = kind
	return b
}

// WithPartition allows the engine to partition its sets between CPU and GPU
// lines. Partitioning only takes effect together with WithStaticPartition.
func (b Builder) WithPartition(enabled bool) Builder {
	b.partition = enabled
	return b
}

// WithPseudoLRU selects the pseudo-LRU victim finder instead of true LRU.
func (b Builder) WithPseudoLRU(enabled bool) Builder {
	b.pseudoLRU = enabled
	return b
}

// WithStaticPartition turns on the static CPU/GPU partition with the given
// number of ways reserved for CPU lines.
func (b Builder) WithStaticPartition(enabled bool, cpuQuota int) Builder {
	b.staticPartition = enabled
	b.cpuQuota = cpuQuota

	return b
}

// WithCycleTeller sets where the engine reads the current cycle from.
func (b Builder) WithCycleTeller(t sim.CycleTeller) Builder {
	b.cycleTeller = t
	return b
}

// WithPolicy replaces the default RecencyPolicy.
func (b Builder) WithPolicy(p ReplacementPolicy) Builder {
	b.policy = p
	return b
}

// Build creates the engine.
func (b Builder) Build(name string) *Engine {
	b.mustBeValid(name)

	e := &Engine{
		HookableBase: sim.NewHookableBase(),
		name:         name,
		kind:         b.kind,
		coreID:       b.coreID,
		numSets:      b.numSets,
		assoc:        b.assoc,
		lineSize:     b.lineSize,
		payloadSize:  b.payloadSize,
		numBanks:     b.numBanks,
		bypass:       b.bypass,
		partition:    b.partition,
		cycleTeller:  b.cycleTeller,
		policy:       b.policy,
	}

	if e.cycleTeller == nil {
		e.cycleTeller = sim.NewClock(1 * sim.GHz)
	}

	if e.policy == nil {
		e.policy = RecencyPolicy{}
	}

	b.computeMasks(e)
	b.createSets(e)
	b.createVictimFinders(e)

	return e
}

func (b Builder) mustBeValid(name string) {
	if !isPowerOfTwo(b.numSets) ||
		!isPowerOfTwo(b.lineSize) ||
		!isPowerOfTwo(b.numBanks) {
		log.Panicf("cache %s: sets (%d), line size (%d) and banks (%d) "+
			"must be powers of two", name, b.numSets, b.lineSize, b.numBanks)
	}

	if b.assoc <= 0 {
		log.Panicf("cache %s: associativity must be positive", name)
	}

	if b.payloadSize < 0 {
		log.Panicf("cache %s: payload size cannot be negative", name)
	}

	if b.staticPartition && (b.cpuQuota < 0 || b.cpuQuota > b.assoc) {
		log.Panicf("cache %s: cpu quota %d out of [0, %d]",
			name, b.cpuQuota, b.assoc)
	}
}

func (b Builder) computeMasks(e *Engine) {
	e.shiftBits = log2(b.lineSize)
	e.setMask = nBitMask(log2(b.numSets))
	e.tagMask = ^e.setMask
	e.offsetMask = nBitMask(e.shiftBits)
	e.bankMask = nBitMask(log2(b.numBanks))
}

func (b Builder) createSets(e *Engine) {
	e.sets = make([]Set, b.numSets)
	e.storage = make([]byte, b.numSets*b.assoc*b.payloadSize)

	for s := 0; s < b.numSets; s++ {
		e.sets[s].Lines = make([]Line, b.assoc)

		for w := 0; w < b.assoc; w++ {
			line := &e.sets[s].Lines[w]
			line.SetID = s
			line.WayID = w

			if b.payloadSize > 0 {
				start := (s*b.assoc + w) * b.payloadSize
				line.Data = e.storage[start : start+b.payloadSize : start+b.payloadSize]
			}
		}
	}
}

func (b Builder) createVictimFinders(e *Engine) {
	if b.pseudoLRU {
		e.victimFinder = NewPseudoLRUVictimFinder()
	} else {
		e.victimFinder = NewLRUVictimFinder()
	}

	if b.partition && b.staticPartition {
		e.partitionFinder = NewPartitionVictimFinder(b.cpuQuota)
	}
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func log2(n int) uint {
	return uint(bits.TrailingZeros(uint(n)))
}

func nBitMask(n uint) uint64 {
	return uint64(1)<<n - 1
}
