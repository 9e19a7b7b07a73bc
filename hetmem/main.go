// Command hetmem simulates the memory hierarchy of a heterogeneous CPU/GPU
// system driven by a memory-access trace.
package main

import (
	"github.com/sarchlab/hetmem/hetmem/cmd"
	"github.com/tebeka/atexit"
)

func main() {
	cmd.Execute()
	atexit.Exit(0)
}
