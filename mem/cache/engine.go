// Package cache provides a generic set-associative cache engine with
// pluggable replacement and CPU/GPU partitioning policies.
package cache

import (
	"github.com/sarchlab/hetmem/sim"
)

// Hook positions of an Engine. The Item of the hook context is the address
// being handled.
var (
	HookPosHit        = &sim.HookPos{Name: "CacheHit"}
	HookPosMiss       = &sim.HookPos{Name: "CacheMiss"}
	HookPosInsert     = &sim.HookPos{Name: "CacheInsert"}
	HookPosInvalidate = &sim.HookPos{Name: "CacheInvalidate"}
)

// AccessResult tells the outcome of a lookup.
type AccessResult struct {
	Hit      bool
	LineAddr uint64
	Line     *Line
}

// Data returns the payload of the line that hit, or nil.
func (r AccessResult) Data() []byte {
	if r.Line == nil {
		return nil
	}

	return r.Line.Data
}

// A Victim describes the line that was replaced by an insertion.
type Victim struct {
	Valid  bool
	Base   uint64
	Dirty  bool
	ApplID int
	IsGPU  bool
}

// Engine is a set-associative cache. It only tracks which lines are resident;
// timing and data movement belong to the caller.
type Engine struct {
	*sim.HookableBase

	name        string
	kind        Kind
	coreID      int
	numSets     int
	assoc       int
	lineSize    int
	payloadSize int
	numBanks    int
	bypass      bool
	partition   bool

	shiftBits  uint
	setMask    uint64
	tagMask    uint64
	offsetMask uint64
	bankMask   uint64

	sets    []Set
	storage []byte

	cycleTeller     sim.CycleTeller
	victimFinder    VictimFinder
	partitionFinder VictimFinder
	policy          ReplacementPolicy

	numCPULines int
	numGPULines int
	insertCount uint64
}

// Name returns the name of the engine.
func (e *Engine) Name() string {
	return e.name
}

// Kind returns what the engine models.
func (e *Engine) Kind() Kind {
	return e.kind
}

// CoreID returns the id of the core that owns the engine.
func (e *Engine) CoreID() int {
	return e.coreID
}

// SetCoreID assigns the engine to a core.
func (e *Engine) SetCoreID(id int) {
	e.coreID = id
}

// NumSets returns the number of sets.
func (e *Engine) NumSets() int {
	return e.numSets
}

// Associativity returns the number of lines per set.
func (e *Engine) Associativity() int {
	return e.assoc
}

// LineSize returns the line size in bytes.
func (e *Engine) LineSize() int {
	return e.lineSize
}

// PayloadSize returns the size of the payload buffer of each line.
func (e *Engine) PayloadSize() int {
	return e.payloadSize
}

// IsPartitioned tells if insertions go through the CPU/GPU partition.
func (e *Engine) IsPartitioned() bool {
	return e.partitionFinder != nil
}

// Set returns the set with the given index.
func (e *Engine) Set(setID int) *Set {
	return &e.sets[setID]
}

// NumCPULines returns the number of valid CPU lines in the whole engine.
func (e *Engine) NumCPULines() int {
	return e.numCPULines
}

// NumGPULines returns the number of valid GPU lines in the whole engine.
func (e *Engine) NumGPULines() int {
	return e.numGPULines
}

// InsertCount returns the number of insertions performed so far.
func (e *Engine) InsertCount() uint64 {
	return e.insertCount
}

// FindTagAndSet splits an address into its tag and set index.
func (e *Engine) FindTagAndSet(addr uint64) (tag uint64, setID int) {
	tag = addr >> e.shiftBits & e.tagMask
	setID = int(addr >> e.shiftBits & e.setMask)

	return tag, setID
}

// BaseLineAddr strips the offset bits of an address.
func (e *Engine) BaseLineAddr(addr uint64) uint64 {
	return addr &^ e.offsetMask
}

// BankOf returns the bank that serves the address.
func (e *Engine) BankOf(addr uint64) int {
	return int(addr >> e.shiftBits & e.bankMask)
}

// Access looks the address up. When updateRepl is set, the replacement
// policy is informed of the access and of its outcome.
func (e *Engine) Access(
	addr uint64,
	updateRepl bool,
	applID int,
) AccessResult {
	if e.bypass {
		return AccessResult{}
	}

	tag, setID := e.FindTagAndSet(addr)
	lineAddr := e.BaseLineAddr(addr)

	if updateRepl {
		e.policy.OnAccess(setID, lineAddr, applID)
	}

	set := &e.sets[setID]
	for i := range set.Lines {
		line := &set.Lines[i]
		if !line.Valid || line.Tag != tag {
			continue
		}

		if updateRepl {
			line.Prefetched = false
			line.AccessCounter++
			e.policy.OnHit(line, setID, applID, e.now())
		}

		e.invokeHook(HookPosHit, addr, line)

		return AccessResult{Hit: true, LineAddr: lineAddr, Line: line}
	}

	if updateRepl {
		e.policy.OnMiss(setID, applID)
	}

	e.invokeHook(HookPosMiss, addr, nil)

	return AccessResult{LineAddr: lineAddr}
}

// Insert places the address in the cache, replacing a line if needed. It
// must only be called after Access has reported a miss for the address.
func (e *Engine) Insert(addr uint64, applID int, isGPU bool) (*Line, Victim) {
	return e.InsertSkip(addr, applID, isGPU, false)
}

// InsertSkip is Insert with control over the skip flag of the new line.
func (e *Engine) InsertSkip(
	addr uint64,
	applID int,
	isGPU bool,
	skip bool,
) (*Line, Victim) {
	tag, setID := e.FindTagAndSet(addr)
	set := &e.sets[setID]

	var line *Line
	if e.partitionFinder != nil {
		line = e.partitionFinder.FindVictim(set, applID, isGPU)
	} else {
		line = e.victimFinder.FindVictim(set, applID, isGPU)
	}

	victim := Victim{}
	if line.Valid {
		victim = Victim{
			Valid:  true,
			Base:   line.Base,
			Dirty:  line.Dirty,
			ApplID: line.ApplID,
			IsGPU:  line.IsGPU,
		}
		e.releaseLine(set, line)
	}

	e.initializeLine(set, line, tag, addr, applID, isGPU, skip)
	e.insertCount++

	e.invokeHook(HookPosInsert, addr, victim)

	return line, victim
}

func (e *Engine) initializeLine(
	set *Set,
	line *Line,
	tag, addr uint64,
	applID int,
	isGPU, skip bool,
) {
	line.Valid = true
	line.Tag = tag
	line.Base = e.BaseLineAddr(addr)
	line.AccessCounter = 0
	line.LastAccessTime = e.now()
	line.Prefetched = false
	line.Dirty = false
	line.Skip = skip
	line.ApplID = applID
	line.IsGPU = isGPU

	set.occupy(isGPU)
	if isGPU {
		e.numGPULines++
	} else {
		e.numCPULines++
	}
}

func (e *Engine) releaseLine(set *Set, line *Line) {
	set.release(line.IsGPU)
	if line.IsGPU {
		e.numGPULines--
	} else {
		e.numCPULines--
	}
}

// InvalidateLine drops the line that holds the address. It returns whether
// the line was dirty, in which case the caller owns the write-back.
func (e *Engine) InvalidateLine(addr uint64) bool {
	tag, setID := e.FindTagAndSet(addr)
	set := &e.sets[setID]

	for i := range set.Lines {
		line := &set.Lines[i]
		if line.Valid && line.Tag == tag {
			e.invokeHook(HookPosInvalidate, addr, line.Dirty)
			return e.nullLine(set, line)
		}
	}

	return false
}

// InvalidateAll drops every line of the cache.
func (e *Engine) InvalidateAll() {
	for s := range e.sets {
		set := &e.sets[s]
		for i := range set.Lines {
			e.nullLine(set, &set.Lines[i])
		}

		set.NumCPULines = 0
		set.NumGPULines = 0
	}

	e.numCPULines = 0
	e.numGPULines = 0
}

func (e *Engine) nullLine(set *Set, line *Line) bool {
	if line.Valid {
		e.releaseLine(set, line)
	}

	dirty := line.Dirty

	line.Valid = false
	line.Tag = 0
	line.Base = 0
	line.Dirty = false
	clear(line.Data)

	return dirty
}

// MinLastAccess returns the oldest access time among the valid lines of a
// set, or the current cycle if the set is empty.
func (e *Engine) MinLastAccess(setID int) uint64 {
	set := &e.sets[setID]
	found := false
	minTime := uint64(0)

	for i := range set.Lines {
		line := &set.Lines[i]
		if !line.Valid {
			continue
		}

		if !found || line.LastAccessTime < minTime {
			minTime = line.LastAccessTime
			found = true
		}
	}

	if !found {
		return e.now()
	}

	return minTime
}

func (e *Engine) now() uint64 {
	return e.cycleTeller.CurrentCycle()
}

func (e *Engine) invokeHook(pos *sim.HookPos, addr uint64, detail any) {
	if e.NumHooks() == 0 {
		return
	}

	e.InvokeHook(sim.HookCtx{
		Domain: e,
		Pos:    pos,
		Cycle:  e.now(),
		Item:   addr,
		Detail: detail,
	})
}
