package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

const defaultNameWidth = 45

// TextRenderer prints an aligned table with one row per node.
type TextRenderer struct {
	NameWidth int
}

// Render writes the totals, the root URI tally, the node table and any
// nodes that failed to summarize.
func (t *TextRenderer) Render(w io.Writer, r *Report) error {
	if _, err := fmt.Fprintf(w, "Total traces: %d\n", r.TotalTraces); err != nil {
		return err
	}
	for _, u := range r.RootURIs {
		if _, err := fmt.Fprintf(w, "  %-40s %d\n", u.URI, u.Count); err != nil {
			return err
		}
	}

	header := []string{"name", "# per trace", "avg in ms", "stddev", "min", "max"}
	for _, p := range r.Percentiles {
		header = append(header, percentileHeader(p))
	}
	header = append(header, "sparkline", "total spans")

	alignment := make([]int, len(header))
	for i := range alignment {
		alignment[i] = tablewriter.ALIGN_RIGHT
	}
	alignment[0] = tablewriter.ALIGN_LEFT
	alignment[len(alignment)-2] = tablewriter.ALIGN_LEFT

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetColumnSeparator("")
	table.SetCenterSeparator("")
	table.SetRowSeparator("")
	table.SetTablePadding(" ")
	table.SetNoWhiteSpace(true)
	table.SetColumnAlignment(alignment)

	for _, row := range r.Rows {
		cells := []string{
			indentedLabel(row, t.NameWidth),
			formatFloat(row.PerTrace),
			formatFloat(row.Summary.Mean),
			formatFloat(row.Summary.StdDev),
			formatFloat(row.Summary.Min),
			formatFloat(row.Summary.Max),
		}
		for _, p := range r.Percentiles {
			cells = append(cells, formatFloat(row.Percentile(p)))
		}
		cells = append(cells, Sparkline(row.Histogram), strconv.Itoa(row.SpanCount))
		table.Append(cells)
	}
	table.Render()

	if len(r.Failures) > 0 {
		if _, err := fmt.Fprintf(w, "\n%d node(s) skipped:\n", len(r.Failures)); err != nil {
			return err
		}
		for _, f := range r.Failures {
			if _, err := fmt.Fprintf(w, "  %s: %s\n", f.Name, f.Reason); err != nil {
				return err
			}
		}
	}

	return nil
}

func (t *TextRenderer) ContentType() string {
	return "text/plain; charset=utf-8"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
