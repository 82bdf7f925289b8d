package cmd

import (
	"github.com/spf13/cobra"

	"tracecollapse/internal/report"
)

// NewReportCommand returns the one-shot report command
func NewReportCommand(g *globalOptions) (cmd *cobra.Command) {
	cmd = &cobra.Command{
		Use:   "report [dir]",
		Short: "Aggregate traces once and print the report",
		Example: `tracecollapse report ./traces
tracecollapse report --source tempo --format markdown
tracecollapse report ./traces --on-malformed skip --root-policy first`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g.bind(cmd.Flags(), reportFlagKeys)
			if cmd.Flags().Changed("percentiles") {
				ps, err := cmd.Flags().GetFloat64Slice("percentiles")
				if err != nil {
					return err
				}
				g.v.Set("report.percentiles", ps)
			}
			if len(args) == 1 {
				g.v.Set("source.kind", "dir")
				g.v.Set("source.dir", args[0])
			}

			a, err := g.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			renderer, err := report.NewRenderer(a.cfg.Report.Format)
			if err != nil {
				return err
			}

			w, err := a.buildPipeline()
			if err != nil {
				return err
			}
			defer w.Close()

			result, err := w.pipeline.Run(cmd.Context())
			if err != nil {
				return err
			}

			return renderer.Render(cmd.OutOrStdout(), result.Report)
		},
	}

	cmd.Flags().String("source", "dir", "trace source: dir, tempo or kafka")
	cmd.Flags().String("pattern", "**/*.json", "file pattern for the dir source")
	cmd.Flags().String("format", "text", "output format: text, json or markdown")
	cmd.Flags().Int("buckets", 20, "histogram buckets per node")
	cmd.Flags().Float64Slice("percentiles", []float64{50, 75, 90, 99}, "percentiles to report")
	cmd.Flags().String("root-policy", "all", "roots to report: all or first")
	cmd.Flags().String("on-malformed", "fail", "malformed trace policy: fail or skip")
	cmd.Flags().Bool("store", false, "save the report to the SQLite store")
	cmd.Flags().StringSlice("trace-id", nil, "tempo trace IDs to fetch instead of searching")
	cmd.Flags().String("service", "", "tempo service to search")

	return cmd
}

// reportFlagKeys maps viper keys to report flags. Bindings are applied when
// the command runs since subcommands share flag names.
var reportFlagKeys = map[string]string{
	"source.kind":         "source",
	"source.pattern":      "pattern",
	"report.format":       "format",
	"report.buckets":      "buckets",
	"report.root_policy":  "root-policy",
	"ingest.on_malformed": "on-malformed",
	"store.enabled":       "store",
	"tempo.trace_ids":     "trace-id",
	"tempo.service":       "service",
}
