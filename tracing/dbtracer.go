package tracing

import (
	"sync"

	"github.com/sarchlab/hetmem/datarecording"
	"github.com/sarchlab/hetmem/sim"
	"github.com/tebeka/atexit"
)

// EventTable is the table the DBTracer writes into.
const EventTable = "events"

// EventEntry is one row of the event table.
type EventEntry struct {
	Cycle     uint64
	Time      float64
	Component string
	Event     string
	Item      string
	Detail    string
}

// DBTracer is a hook that stores every event it sees into a DataRecorder.
type DBTracer struct {
	mu         sync.Mutex
	timeTeller sim.TimeTeller
	backend    datarecording.DataRecorder

	startCycle, endCycle uint64
	numRecorded          uint64
	terminated           bool
}

// NewDBTracer creates a new DBTracer and its table. The backend is flushed
// when the program exits.
func NewDBTracer(
	timeTeller sim.TimeTeller,
	backend datarecording.DataRecorder,
) *DBTracer {
	backend.CreateTable(EventTable, EventEntry{})

	t := &DBTracer{
		timeTeller: timeTeller,
		backend:    backend,
	}

	atexit.Register(func() {
		t.Terminate()
	})

	return t
}

// SetCycleRange limits recording to the cycles in [start, end]. An end of 0
// leaves the range open.
func (t *DBTracer) SetCycleRange(start, end uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startCycle = start
	t.endCycle = end
}

// Func records the event.
func (t *DBTracer) Func(ctx sim.HookCtx) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.terminated || !t.inRange(ctx.Cycle) {
		return
	}

	t.backend.InsertData(EventTable, EventEntry{
		Cycle:     ctx.Cycle,
		Time:      float64(t.timeTeller.CurrentTime()),
		Component: domainName(ctx),
		Event:     ctx.Pos.Name,
		Item:      describe(ctx.Item),
		Detail:    describe(ctx.Detail),
	})
	t.numRecorded++
}

func (t *DBTracer) inRange(cycle uint64) bool {
	if cycle < t.startCycle {
		return false
	}

	return t.endCycle == 0 || cycle <= t.endCycle
}

// NumRecorded returns the number of events recorded so far.
func (t *DBTracer) NumRecorded() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.numRecorded
}

// Terminate flushes the backend. Later events are dropped.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.terminated {
		return
	}

	t.terminated = true
	t.backend.Flush()
}
