package platform

import (
	"github.com/sarchlab/hetmem/mem/hierarchy"
	"github.com/sarchlab/hetmem/mem/vm/mmu"
	"github.com/sarchlab/hetmem/tracing"
)

// Tables written at the end of a run.
const (
	SummaryTable     = "summary"
	MMUStatsTable    = "mmu_stats"
	MemoryStatsTable = "memory_stats"
	EventCountTable  = "event_counts"
)

// SummaryEntry is the row of the summary table.
type SummaryEntry struct {
	Platform      string
	Cycles        uint64
	Accesses      uint64
	Issued        uint64
	Completed     uint64
	ImmediateHits uint64
	Truncated     bool
}

func (p *Platform) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.recorded || p.recorder == nil {
		return
	}

	p.recorded = true

	r := p.result
	r.Cycles = p.clock.CurrentCycle()

	p.recorder.CreateTable(SummaryTable, SummaryEntry{})
	p.recorder.InsertData(SummaryTable, SummaryEntry{
		Platform:      p.name,
		Cycles:        r.Cycles,
		Accesses:      r.Accesses,
		Issued:        r.Issued,
		Completed:     r.Completed,
		ImmediateHits: r.ImmediateHits,
		Truncated:     r.Truncated,
	})

	p.recorder.CreateTable(MMUStatsTable, mmu.Stats{})
	p.recorder.InsertData(MMUStatsTable, p.mmu.Finalize())

	p.recorder.CreateTable(MemoryStatsTable, hierarchy.Stats{})
	p.recorder.InsertData(MemoryStatsTable, p.memory.Stats())

	p.recorder.CreateTable(EventCountTable, tracing.EventCount{})
	for _, c := range p.counter.Snapshot() {
		p.recorder.InsertData(EventCountTable, c)
	}

	p.recorder.Flush()
}
