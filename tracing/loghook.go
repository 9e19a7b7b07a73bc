package tracing

import (
	"log"

	"github.com/sarchlab/hetmem/sim"
)

// LogHook prints every event it sees through a logger, one line per event.
type LogHook struct {
	*log.Logger

	filter map[string]bool
}

// NewLogHook creates a LogHook. When positions are given, only events at
// those positions are printed.
func NewLogHook(logger *log.Logger, positions ...*sim.HookPos) *LogHook {
	h := &LogHook{Logger: logger}

	if len(positions) > 0 {
		h.filter = make(map[string]bool)
		for _, p := range positions {
			h.filter[p.Name] = true
		}
	}

	return h
}

// Func prints the event.
func (h *LogHook) Func(ctx sim.HookCtx) {
	if h.filter != nil && !h.filter[ctx.Pos.Name] {
		return
	}

	h.Printf("%d %s %s %s %s",
		ctx.Cycle, domainName(ctx), ctx.Pos.Name,
		describe(ctx.Item), describe(ctx.Detail))
}
