package mmu

import "github.com/sarchlab/hetmem/mem/vm"

// MemorySystem is the memory hierarchy that the MMU feeds translated uops
// into.
type MemorySystem interface {
	// Access performs the access of a uop. It returns 0 if the access cannot
	// be issued this cycle, a negative value if the access was issued but
	// completes elsewhere, and otherwise the latency of the access.
	Access(uop *vm.Uop) int

	// Invalidate drops every cached line of the physical page that starts at
	// the given address.
	Invalidate(frameAddr uint64)
}
