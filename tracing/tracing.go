// Package tracing provides hooks that observe the components of a simulation.
package tracing

import (
	"fmt"

	"github.com/sarchlab/hetmem/sim"
)

// CollectTrace registers the hook with every domain.
func CollectTrace(hook sim.Hook, domains ...sim.Hookable) {
	for _, d := range domains {
		d.AcceptHook(hook)
	}
}

// describe renders the item or detail of a hook context as text.
func describe(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case fmt.Stringer:
		return v.String()
	case uint64:
		return fmt.Sprintf("0x%x", v)
	default:
		return fmt.Sprint(v)
	}
}

func domainName(ctx sim.HookCtx) string {
	if ctx.Domain == nil {
		return ""
	}

	return ctx.Domain.Name()
}
