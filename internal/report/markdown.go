package report

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// MarkdownRenderer writes the report as a Markdown document with a pipe table.
type MarkdownRenderer struct{}

// Render assembles the document in memory and writes it in one call.
func (m *MarkdownRenderer) Render(w io.Writer, r *Report) error {
	var sb strings.Builder

	sb.WriteString("# Trace latency report\n")
	fmt.Fprintf(&sb, "**Generated:** %s\n", r.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "**Total traces:** %d\n", r.TotalTraces)
	fmt.Fprintf(&sb, "**Aggregated nodes:** %d\n\n", r.NodeCount)

	sb.WriteString("## Root URIs\n")
	if len(r.RootURIs) == 0 {
		sb.WriteString("No root spans carried an http.uri annotation.\n")
	} else {
		for _, u := range r.RootURIs {
			fmt.Fprintf(&sb, "- `%s`: %d\n", u.URI, u.Count)
		}
	}
	sb.WriteString("\n## Call paths\n")

	header := []string{"name", "per trace", "avg ms", "stddev", "min", "max"}
	for _, p := range r.Percentiles {
		header = append(header, percentileHeader(p))
	}
	header = append(header, "histogram", "spans")

	sb.WriteString("| " + strings.Join(header, " | ") + " |\n")
	sb.WriteString("|" + strings.Repeat(" --- |", len(header)) + "\n")

	for _, row := range r.Rows {
		cells := []string{
			strings.Repeat("&nbsp;&nbsp;", row.Depth) + escapePipes(row.Label),
			formatFloat(row.PerTrace),
			formatFloat(row.Summary.Mean),
			formatFloat(row.Summary.StdDev),
			formatFloat(row.Summary.Min),
			formatFloat(row.Summary.Max),
		}
		for _, p := range r.Percentiles {
			cells = append(cells, formatFloat(row.Percentile(p)))
		}
		cells = append(cells, Sparkline(row.Histogram), fmt.Sprintf("%d", row.SpanCount))
		sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	if len(r.Failures) > 0 {
		sb.WriteString("\n## Skipped nodes\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&sb, "- `%s`: %s\n", f.Name, f.Reason)
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func (m *MarkdownRenderer) ContentType() string {
	return "text/markdown; charset=utf-8"
}

// service paths join labels with '|', which would split a table cell.
func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
