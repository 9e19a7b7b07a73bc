package platform

import (
	"log"

	"github.com/sarchlab/hetmem/config"
	"github.com/sarchlab/hetmem/datarecording"
	"github.com/sarchlab/hetmem/mem/hierarchy"
	"github.com/sarchlab/hetmem/mem/vm"
	"github.com/sarchlab/hetmem/mem/vm/mmu"
	"github.com/sarchlab/hetmem/sim"
	"github.com/sarchlab/hetmem/tracing"
)

// Builder can build platforms.
type Builder struct {
	knobs       config.Knobs
	recorder    datarecording.DataRecorder
	logger      *log.Logger
	traceEvents bool
	lookahead   int
}

// MakeBuilder creates a builder with the default knobs.
func MakeBuilder() Builder {
	return Builder{
		knobs:     config.DefaultKnobs(),
		lookahead: 64,
	}
}

// WithKnobs sets the knobs of the platform.
func (b Builder) WithKnobs(k config.Knobs) Builder {
	b.knobs = k
	return b
}

// WithRecorder sets where the results of the run are stored.
func (b Builder) WithRecorder(r datarecording.DataRecorder) Builder {
	b.recorder = r
	return b
}

// WithEventLog prints every MMU event through the logger.
func (b Builder) WithEventLog(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

// WithEventTrace records every MMU event into the recorder.
func (b Builder) WithEventTrace(enabled bool) Builder {
	b.traceEvents = enabled
	return b
}

// WithLookahead sets how many uops may be read from the trace ahead of
// their core.
func (b Builder) WithLookahead(n int) Builder {
	b.lookahead = n
	return b
}

// Build creates the platform. It panics if the knobs are invalid.
func (b Builder) Build(name string) *Platform {
	k := b.knobs
	if err := k.Validate(); err != nil {
		log.Panicf("platform %s: %v", name, err)
	}

	if b.lookahead <= 0 {
		log.Panicf("platform %s: lookahead must be positive", name)
	}

	clock := sim.NewClock(sim.Freq(k.FrequencyMHz) * sim.MHz)

	h := hierarchy.MakeBuilder().
		WithCycleTeller(clock).
		WithNumCPUCores(k.NumCPUCores).
		WithNumGPUCores(k.NumGPUCores).
		WithLineSize(k.LineSize).
		WithLog2PageSize(k.Log2PageSize).
		WithL1(hierarchy.Geometry{
			NumSets: k.L1Sets, Associativity: k.L1Assoc, NumBanks: k.L1Banks,
		}).
		WithL2(hierarchy.Geometry{NumSets: k.L2Sets, Associativity: k.L2Assoc}).
		WithLLC(hierarchy.Geometry{
			NumSets: k.LLCSets, Associativity: k.LLCAssoc, NumBanks: k.LLCBanks,
		}).
		WithLatencies(k.L1Latency, k.L2Latency, k.LLCLatency, k.DRAMLatency).
		WithPortsPerBank(k.PortsPerBank).
		WithPseudoLRU(k.PseudoLRU).
		WithStaticPartition(k.StaticPartition, k.CPUQuota).
		Build(name + ".Memory")

	m := mmu.MakeBuilder().
		WithClock(clock).
		WithMemorySystem(h).
		WithLog2PageSize(k.Log2PageSize).
		WithMemorySize(k.MemorySize).
		WithTLBNumEntries(k.TLBEntries).
		WithTLBNumSets(k.TLBSets).
		WithWalkLatency(k.WalkLatency).
		WithFaultLatency(k.FaultLatency).
		WithEvictionLatency(k.EvictionLatency).
		WithBatchOverhead(k.BatchOverhead).
		WithMinRetireLatency(k.MinRetireLatency).
		WithFaultBufferSize(k.FaultBufferSize).
		Build(name + ".MMU")

	h.SetTranslator(m)

	p := &Platform{
		name:      name,
		knobs:     k,
		clock:     clock,
		memory:    h,
		mmu:       m,
		counter:   tracing.NewEventCounter(),
		recorder:  b.recorder,
		lookahead: b.lookahead,
		queues:    make([][]*vm.Uop, h.NumCores()),
	}

	b.attachTracers(p)

	return p
}

func (b Builder) attachTracers(p *Platform) {
	domains := []sim.Hookable{p.mmu, p.mmu.TLB()}
	for _, e := range p.memory.Engines() {
		domains = append(domains, e)
	}

	tracing.CollectTrace(p.counter, domains...)

	if b.logger != nil {
		tracing.CollectTrace(tracing.NewLogHook(b.logger), p.mmu)
	}

	if b.traceEvents && b.recorder != nil {
		p.dbTracer = tracing.NewDBTracer(p.clock, b.recorder)
		tracing.CollectTrace(p.dbTracer, p.mmu)
	}
}
