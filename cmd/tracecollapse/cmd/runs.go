package cmd

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"tracecollapse/internal/db"
)

// NewRunsCommand returns the command listing stored reports
func NewRunsCommand(g *globalOptions) (cmd *cobra.Command) {
	var limit int

	cmd = &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List stored report runs, or show the rows of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g.bind(cmd.Flags(), map[string]string{"store.path": "db"})

			a, err := g.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				rows, err := store.LoadRows(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					return fmt.Errorf("no rows stored for run %s", args[0])
				}
				writeStoredRows(cmd.OutOrStdout(), rows)
				return nil
			}

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			writeRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list (0 for all)")
	cmd.Flags().String("db", "./data/tracecollapse.db", "path to the SQLite store")
	return cmd
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetColumnSeparator("")
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("  ")
	return table
}

func writeRuns(w io.Writer, runs []db.Run) {
	table := newTable(w, []string{"ID", "Created", "Source", "Traces", "Nodes", "Failures"})
	for _, r := range runs {
		table.Append([]string{
			r.ID,
			r.CreatedAt.Local().Format(time.RFC3339),
			r.Source,
			strconv.Itoa(r.TotalTraces),
			strconv.Itoa(r.NodeCount),
			strconv.Itoa(r.FailureCount),
		})
	}
	table.Render()
}

func writeStoredRows(w io.Writer, rows []db.StoredRow) {
	table := newTable(w, []string{"Name", "Count", "Fraction", "Mean", "StdDev", "Min", "Max", "t50", "t99"})
	for _, r := range rows {
		table.Append([]string{
			r.Name,
			strconv.Itoa(r.SpanCount),
			strconv.FormatFloat(r.Fraction, 'f', 2, 64),
			strconv.FormatFloat(r.Mean, 'f', 2, 64),
			strconv.FormatFloat(r.StdDev, 'f', 2, 64),
			strconv.FormatFloat(r.Min, 'f', 2, 64),
			strconv.FormatFloat(r.Max, 'f', 2, 64),
			nullableFloat(r.T50.Float64, r.T50.Valid),
			nullableFloat(r.T99.Float64, r.T99.Valid),
		})
	}
	table.Render()
}

func nullableFloat(v float64, ok bool) string {
	if !ok {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
