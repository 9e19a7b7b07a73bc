package cmd

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"text/tabwriter"

	"github.com/sarchlab/hetmem/datarecording"
	"github.com/sarchlab/hetmem/mem/hierarchy"
	"github.com/sarchlab/hetmem/mem/vm/mmu"
	"github.com/sarchlab/hetmem/platform"
	"github.com/sarchlab/hetmem/tracing"
	"github.com/spf13/cobra"
)

func newReportCommand() *cobra.Command {
	var numEvents int

	c := &cobra.Command{
		Use:   "report <db.sqlite3>",
		Short: "Print the results recorded by a run.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return report(cmd, args[0], numEvents)
		},
	}

	c.Flags().IntVar(&numEvents, "events", 0,
		"Also print the first N recorded events")

	return c
}

type reportTable struct {
	name   string
	sample any
	params datarecording.QueryParams
}

func report(cmd *cobra.Command, path string, numEvents int) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("report: %w", err)
	}

	reader, err := datarecording.NewReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	ctx := cmd.Context()

	stored, err := reader.ListStoredTables(ctx)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	has := make(map[string]bool)
	for _, t := range stored {
		has[t] = true
	}

	tables := []reportTable{
		{platform.SummaryTable, platform.SummaryEntry{}, datarecording.QueryParams{}},
		{platform.MMUStatsTable, mmu.Stats{}, datarecording.QueryParams{}},
		{platform.MemoryStatsTable, hierarchy.Stats{}, datarecording.QueryParams{}},
		{platform.EventCountTable, tracing.EventCount{},
			datarecording.QueryParams{OrderBy: "Component, Event"}},
	}

	if numEvents > 0 {
		tables = append(tables, reportTable{
			tracing.EventTable, tracing.EventEntry{},
			datarecording.QueryParams{OrderBy: "Cycle", Limit: numEvents},
		})
	}

	out := cmd.OutOrStdout()
	found := false

	for _, t := range tables {
		if !has[t.name] {
			continue
		}

		found = true

		reader.MapTable(t.name, t.sample)

		rows, total, err := reader.Query(ctx, t.name, t.params)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		fmt.Fprintf(out, "== %s (%d rows)\n", t.name, total)
		printRows(out, reflect.TypeOf(t.sample), rows)
	}

	if !found {
		return fmt.Errorf("%s holds no hetmem results", path)
	}

	return nil
}

// printRows prints the rows as a table with one column per field.
func printRows(w io.Writer, t reflect.Type, rows []any) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	for i := 0; i < t.NumField(); i++ {
		fmt.Fprintf(tw, "%s\t", t.Field(i).Name)
	}

	fmt.Fprintln(tw)

	for _, row := range rows {
		v := reflect.ValueOf(row).Elem()
		for i := 0; i < v.NumField(); i++ {
			fmt.Fprintf(tw, "%v\t", v.Field(i).Interface())
		}

		fmt.Fprintln(tw)
	}

	tw.Flush()
}
