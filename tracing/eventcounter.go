package tracing

import (
	"sort"
	"sync"

	"github.com/sarchlab/hetmem/sim"
)

// EventCount is the number of times a component reached a hook position.
type EventCount struct {
	Component string
	Event     string
	Count     uint64
}

type eventKey struct {
	component string
	event     string
}

// EventCounter counts hook invocations per component and position. It is
// safe to read while the simulation runs.
type EventCounter struct {
	mu     sync.Mutex
	counts map[eventKey]uint64
}

// NewEventCounter creates an empty EventCounter.
func NewEventCounter() *EventCounter {
	return &EventCounter{counts: make(map[eventKey]uint64)}
}

// Func counts the event.
func (c *EventCounter) Func(ctx sim.HookCtx) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counts[eventKey{domainName(ctx), ctx.Pos.Name}]++
}

// Count returns how many times the component reached the position.
func (c *EventCounter) Count(component string, pos *sim.HookPos) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.counts[eventKey{component, pos.Name}]
}

// Snapshot returns all the counts, sorted by component and then event.
func (c *EventCounter) Snapshot() []EventCount {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]EventCount, 0, len(c.counts))
	for k, n := range c.counts {
		out = append(out, EventCount{
			Component: k.component,
			Event:     k.event,
			Count:     n,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Component != out[j].Component {
			return out[i].Component < out[j].Component
		}

		return out[i].Event < out[j].Event
	})

	return out
}

// Reset clears all the counts.
func (c *EventCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counts = make(map[eventKey]uint64)
}
