// Package platform assembles a complete system and drives it cycle by cycle.
package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sarchlab/hetmem/config"
	"github.com/sarchlab/hetmem/datarecording"
	"github.com/sarchlab/hetmem/mem/hierarchy"
	"github.com/sarchlab/hetmem/mem/vm"
	"github.com/sarchlab/hetmem/mem/vm/mmu"
	"github.com/sarchlab/hetmem/sim"
	"github.com/sarchlab/hetmem/tracing"
)

// A Source provides the uops to simulate. It returns io.EOF when there is
// nothing left.
type Source interface {
	Next() (*vm.Uop, error)
}

// Progress is told about accesses entering and leaving the system.
type Progress interface {
	IncrementInProgress(amount uint64)
	MoveInProgressToFinished(amount uint64)
}

// Result summarizes a run.
type Result struct {
	Cycles        uint64
	Accesses      uint64
	Issued        uint64
	Completed     uint64
	ImmediateHits uint64
	Truncated     bool
}

// Status is a snapshot of a running platform.
type Status struct {
	Cycle          uint64
	Paused         bool
	Queued         int
	InFlight       int
	FreeFrames     int
	InBatch        bool
	WalkQueueLen   int
	FaultBufferLen int
	Result         Result
	MMU            mmu.Stats
	Memory         hierarchy.Stats
}

// Platform is a set of CPU and GPU cores sharing one memory hierarchy and one
// translation unit.
type Platform struct {
	mu     sync.Mutex
	paused atomic.Bool

	name     string
	knobs    config.Knobs
	clock    *sim.Clock
	memory   *hierarchy.Hierarchy
	mmu      *mmu.Comp
	counter  *tracing.EventCounter
	dbTracer *tracing.DBTracer
	recorder datarecording.DataRecorder
	progress Progress

	lookahead  int
	queues     [][]*vm.Uop
	numQueued  int
	inFlight   []*vm.Uop
	lastParent *vm.Uop
	lastDone   uint64
	eof        bool
	recorded   bool
	result     Result
}

// Name returns the name of the platform.
func (p *Platform) Name() string {
	return p.name
}

// Knobs returns the knobs the platform was built with.
func (p *Platform) Knobs() config.Knobs {
	return p.knobs
}

// Clock returns the clock of the platform.
func (p *Platform) Clock() *sim.Clock {
	return p.clock
}

// Memory returns the memory hierarchy.
func (p *Platform) Memory() *hierarchy.Hierarchy {
	return p.memory
}

// MMU returns the translation unit.
func (p *Platform) MMU() *mmu.Comp {
	return p.mmu
}

// EventCounter returns the counter attached to every component.
func (p *Platform) EventCounter() *tracing.EventCounter {
	return p.counter
}

// Components returns every named component of the platform.
func (p *Platform) Components() []sim.Named {
	named := []sim.Named{p.mmu, p.mmu.TLB(), p.memory}
	for _, e := range p.memory.Engines() {
		named = append(named, e)
	}

	return named
}

// SetProgress sets who is told about the progress of the run.
func (p *Platform) SetProgress(progress Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.progress = progress
}

// CurrentCycle returns the cycle the platform is about to run.
func (p *Platform) CurrentCycle() uint64 {
	return p.clock.CurrentCycle()
}

// Pause stops the run loop before its next cycle.
func (p *Platform) Pause() {
	p.paused.Store(true)
}

// Continue resumes a paused run loop.
func (p *Platform) Continue() {
	p.paused.Store(false)
}

// IsPaused tells if the run loop is paused.
func (p *Platform) IsPaused() bool {
	return p.paused.Load()
}

// Inspect runs f between two cycles. The state of the platform does not
// change while f runs.
func (p *Platform) Inspect(f func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f()
}

// Status returns a snapshot of the platform.
func (p *Platform) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := p.result
	r.Cycles = p.clock.CurrentCycle()

	return Status{
		Cycle:          p.clock.CurrentCycle(),
		Paused:         p.IsPaused(),
		Queued:         p.numQueued,
		InFlight:       len(p.inFlight),
		FreeFrames:     p.mmu.NumFreeFrames(),
		InBatch:        p.mmu.InBatch(),
		WalkQueueLen:   p.mmu.WalkQueueLen(),
		FaultBufferLen: p.mmu.FaultBufferLen(),
		Result:         r,
		MMU:            p.mmu.Stats(),
		Memory:         p.memory.Stats(),
	}
}

// Run issues the uops of the source until all of them complete, the cycle
// limit is reached or the context is canceled. Each core issues at most one
// uop per cycle.
func (p *Platform) Run(ctx context.Context, src Source) (Result, error) {
	p.mu.Lock()
	p.eof = false
	p.lastParent = nil
	p.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return p.snapshot(), fmt.Errorf("run %s: %w", p.name, err)
		}

		if p.paused.Load() {
			waitWhilePaused(ctx)
			continue
		}

		p.mu.Lock()
		done, err := p.step(src)
		p.mu.Unlock()

		if err != nil {
			return p.snapshot(), err
		}

		if done {
			break
		}

		if p.knobs.MaxCycles > 0 && p.clock.CurrentCycle() >= p.knobs.MaxCycles {
			p.mu.Lock()
			p.result.Truncated = true
			p.mu.Unlock()

			break
		}
	}

	p.finish()

	return p.snapshot(), nil
}

func waitWhilePaused(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(10 * time.Millisecond):
	}
}

func (p *Platform) snapshot() Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := p.result
	r.Cycles = p.clock.CurrentCycle()

	return r
}

// step runs one cycle. It returns true, without running the cycle, once
// every access has completed and the clock has reached the last completion.
func (p *Platform) step(src Source) (bool, error) {
	if err := p.fill(src); err != nil {
		return false, err
	}

	if p.drained() {
		return true, nil
	}

	p.issue()
	p.mmu.HandlePageFaults()
	p.mmu.RunACycle(false)
	p.reap()

	return false, nil
}

func (p *Platform) drained() bool {
	return p.eof && p.numQueued == 0 && len(p.inFlight) == 0 &&
		p.mmu.IsIdle() && p.clock.CurrentCycle() >= p.lastDone
}

// fill reads uops until every core has one to issue, the lookahead window
// is full, or the source is exhausted.
func (p *Platform) fill(src Source) error {
	for !p.eof && p.numQueued < p.lookahead && p.someCoreStarved() {
		uop, err := src.Next()
		if errors.Is(err, io.EOF) {
			p.eof = true
			return nil
		}

		if err != nil {
			return fmt.Errorf("run %s: %w", p.name, err)
		}

		if err := p.enqueue(uop); err != nil {
			return err
		}
	}

	return nil
}

func (p *Platform) someCoreStarved() bool {
	for _, q := range p.queues {
		if len(q) == 0 {
			return true
		}
	}

	return false
}

func (p *Platform) enqueue(uop *vm.Uop) error {
	if uop.CoreID < 0 || uop.CoreID >= len(p.queues) {
		return fmt.Errorf("run %s: uop %d targets core %d of %d",
			p.name, uop.ID, uop.CoreID, len(p.queues))
	}

	if uop.IsGPU != p.memory.IsGPUCore(uop.CoreID) {
		return fmt.Errorf("run %s: uop %d device does not match core %d",
			p.name, uop.ID, uop.CoreID)
	}

	root := uop
	if uop.Parent != nil {
		root = uop.Parent
	}

	if uop.Parent == nil || uop.Parent != p.lastParent {
		p.inFlight = append(p.inFlight, root)
		p.result.Accesses++

		if p.progress != nil {
			p.progress.IncrementInProgress(1)
		}
	}

	p.lastParent = uop.Parent
	p.queues[uop.CoreID] = append(p.queues[uop.CoreID], uop)
	p.numQueued++

	return nil
}

func (p *Platform) issue() {
	now := p.clock.CurrentCycle()

	for i, q := range p.queues {
		if len(q) == 0 {
			continue
		}

		uop := q[0]

		latency := p.memory.Access(uop)
		if latency == 0 {
			continue
		}

		p.queues[i] = q[1:]
		p.numQueued--
		p.result.Issued++

		if latency > 0 {
			p.result.ImmediateHits++
			complete(uop, now+max(uint64(latency), p.knobs.MinRetireLatency))
		}
	}
}

// complete retires a uop that did not need the translation unit. The done
// cycle follows the same minimum latency as the accesses retired by the MMU.
func complete(uop *vm.Uop, doneCycle uint64) {
	uop.DoneCycle = doneCycle
	uop.State = vm.StateScheduled

	if parent := uop.Parent; parent != nil {
		parent.NumChildUopsDone++
		if parent.NumChildUopsDone == parent.NumChildUops {
			parent.DoneCycle = doneCycle
			parent.State = vm.StateScheduled
		}
	}
}

func (p *Platform) reap() {
	kept := p.inFlight[:0]

	var finished uint64

	for _, uop := range p.inFlight {
		if uop.IsDone() {
			finished++
			p.lastDone = max(p.lastDone, uop.DoneCycle)

			continue
		}

		kept = append(kept, uop)
	}

	for i := len(kept); i < len(p.inFlight); i++ {
		p.inFlight[i] = nil
	}

	p.inFlight = kept
	p.result.Completed += finished

	if finished > 0 && p.progress != nil {
		p.progress.MoveInProgressToFinished(finished)
	}
}
