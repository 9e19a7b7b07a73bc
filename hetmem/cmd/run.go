package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/sarchlab/hetmem/config"
	"github.com/sarchlab/hetmem/datarecording"
	"github.com/sarchlab/hetmem/monitoring"
	"github.com/sarchlab/hetmem/platform"
	"github.com/sarchlab/hetmem/workload"
	"github.com/spf13/cobra"
)

type runOptions struct {
	envFile     string
	overrides   []string
	maxCycles   uint64
	dbPath      string
	record      bool
	traceEvents bool
	logEvents   bool
	monitor     bool
	monitorPort int
	openBrowser bool
}

func newRunCommand() *cobra.Command {
	opts := runOptions{}

	c := &cobra.Command{
		Use:   "run <trace>",
		Short: "Simulate a memory-access trace.",
		Long: "Simulate a trace whose lines read " +
			"`<core> <thread> <R|W> <hex vaddr> <size> <cpu|gpu>`.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], opts)
		},
	}

	f := c.Flags()
	f.StringVar(&opts.envFile, "env", "", "Load knobs from a .env file")
	f.StringArrayVar(&opts.overrides, "set", nil,
		"Override a knob, as NAME=VALUE (repeatable)")
	f.Uint64Var(&opts.maxCycles, "max-cycles", 0,
		"Stop after this many cycles (0 means no limit)")
	f.BoolVar(&opts.record, "record", false,
		"Record the results into an SQLite database")
	f.StringVar(&opts.dbPath, "db", "",
		"Database name, without the .sqlite3 suffix (implies --record)")
	f.BoolVar(&opts.traceEvents, "trace-events", false,
		"Record every MMU event (implies --record)")
	f.BoolVar(&opts.logEvents, "log-events", false,
		"Print every MMU event to stderr")
	f.BoolVar(&opts.monitor, "monitor", false,
		"Serve the state of the run over HTTP")
	f.IntVar(&opts.monitorPort, "monitor-port", 0,
		"Port of the monitoring server (0 picks one)")
	f.BoolVar(&opts.openBrowser, "open-browser", false,
		"Open the monitoring server in a browser")

	return c
}

func loadKnobs(opts runOptions) (config.Knobs, error) {
	k, err := config.Load(opts.envFile)
	if err != nil {
		return k, err
	}

	for _, o := range opts.overrides {
		name, value, ok := strings.Cut(o, "=")
		if !ok {
			return k, fmt.Errorf("--set %q: expected NAME=VALUE", o)
		}

		if err := k.Set(name, value); err != nil {
			return k, err
		}
	}

	if opts.maxCycles > 0 {
		k.MaxCycles = opts.maxCycles
	}

	return k, k.Validate()
}

func run(cmd *cobra.Command, tracePath string, opts runOptions) error {
	k, err := loadKnobs(opts)
	if err != nil {
		return err
	}

	reader, err := workload.Open(tracePath, k.Log2PageSize)
	if err != nil {
		return err
	}
	defer reader.Close()

	b := platform.MakeBuilder().WithKnobs(k).WithEventTrace(opts.traceEvents)

	var recorder datarecording.DataRecorder
	if opts.record || opts.dbPath != "" || opts.traceEvents {
		recorder, err = datarecording.New(opts.dbPath)
		if err != nil {
			return err
		}
		defer recorder.Close()

		b = b.WithRecorder(recorder)
	}

	if opts.logEvents {
		b = b.WithEventLog(log.New(cmd.ErrOrStderr(), "", 0))
	}

	p := b.Build("Platform")

	if opts.monitor {
		if err := startMonitor(p, opts); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	result, err := p.Run(ctx, reader)
	if err != nil {
		return err
	}

	printStatus(cmd.OutOrStdout(), p.Status(), result)

	return nil
}

func startMonitor(p *platform.Platform, opts runOptions) error {
	m := monitoring.NewMonitor().
		WithPortNumber(opts.monitorPort).
		WithBrowser(opts.openBrowser)

	m.RegisterSimulation(p)
	m.RegisterStatus(func() any { return p.Status() })

	for _, c := range p.Components() {
		m.RegisterComponent(c)
	}

	p.SetProgress(m.CreateProgressBar("Accesses", 0))

	_, err := m.StartServer()

	return err
}

func printStatus(w io.Writer, s platform.Status, r platform.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	rows := []struct {
		name  string
		value any
	}{
		{"cycles", r.Cycles},
		{"accesses", r.Accesses},
		{"completed", r.Completed},
		{"immediate hits", r.ImmediateHits},
		{"truncated", r.Truncated},
		{"tlb hits", s.MMU.TLBHits},
		{"tlb misses", s.MMU.TLBMisses},
		{"page table walks", s.MMU.Walks},
		{"piggybacked walks", s.MMU.Piggybacks},
		{"page faults", s.MMU.PageTableMisses},
		{"fault batches", s.MMU.Batches},
		{"page evictions", s.MMU.Evictions},
		{"page reallocations", s.MMU.Reallocations},
		{"unique pages", s.MMU.UniquePages},
		{"cache accesses", s.Memory.Accesses},
		{"l1 hits", s.Memory.L1Hits},
		{"l2 hits", s.Memory.L2Hits},
		{"llc hits", s.Memory.LLCHits},
		{"dram accesses", s.Memory.DRAMAccesses},
		{"bank conflicts", s.Memory.BankConflicts},
		{"write-backs", s.Memory.WriteBacks},
	}

	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%v\n", row.name, row.value)
	}

	tw.Flush()
}
