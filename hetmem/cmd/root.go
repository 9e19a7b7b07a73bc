// Package cmd provides the command-line interface for hetmem.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// NewRootCommand creates the hetmem command with all its subcommands.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use: "hetmem",
		Short: "hetmem simulates the caches and the address translation of " +
			"a heterogeneous CPU/GPU system.",
		Long: `hetmem replays a memory-access trace on CPU and GPU cores that ` +
			`share a last-level cache and a demand-paged physical memory. ` +
			`Knobs come from HETMEM_ variables, a .env file, or --set.`,
		SilenceUsage: true,
	}

	root.AddCommand(newRunCommand())
	root.AddCommand(newReportCommand())
	root.AddCommand(newKnobsCommand())

	return root
}

// Execute runs the command line. It exits the program on errors.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		atexit.Exit(1)
	}
}
