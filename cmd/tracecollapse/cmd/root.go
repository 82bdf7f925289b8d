// Package cmd implements the tracecollapse command tree.
package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"tracecollapse/internal/aggregate"
	"tracecollapse/internal/config"
	"tracecollapse/internal/db"
	"tracecollapse/internal/logging"
	"tracecollapse/internal/metrics"
	"tracecollapse/internal/orchestrator"
	"tracecollapse/internal/output"
	"tracecollapse/internal/report"
	"tracecollapse/internal/source"
)

// globalOptions is shared by every subcommand.
type globalOptions struct {
	v          *viper.Viper
	configFile string
}

// NewCommand returns the root command for the tracecollapse CLI
func NewCommand() (cmd *cobra.Command) {
	g := &globalOptions{v: viper.New()}

	cmd = &cobra.Command{
		Use:   "tracecollapse",
		Short: "Collapse distributed traces into a latency tree",
		Long: `tracecollapse merges spans that share the same chain of services into one
node per call path and reports span counts, latency statistics, percentiles
and histograms for every node.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&g.configFile, "config", "", "path to a config file (default: config.yaml in ., ./config or /etc/tracecollapse)")
	cmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
	cmd.PersistentFlags().String("log-format", "text", "log format: text or json")
	g.bind(cmd.PersistentFlags(), map[string]string{
		"app.log_level":  "log-level",
		"app.log_format": "log-format",
	})

	cmd.AddCommand(
		NewReportCommand(g),
		NewServeCommand(g),
		NewRunsCommand(g),
	)

	return cmd
}

// bind maps viper keys to flags.
func (g *globalOptions) bind(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := g.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

// app is the loaded configuration plus the ambient services built from it.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func (g *globalOptions) load(logOutput io.Writer) (*app, error) {
	cfg, err := config.Load(g.v, g.configFile)
	if err != nil {
		return nil, err
	}

	logger := logging.Init(logOutput, cfg.App.LogLevel, cfg.App.LogFormat)

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
	}, nil
}

func (a *app) reportOptions() (report.Options, error) {
	policy, err := aggregate.ParseRootPolicy(a.cfg.Report.RootPolicy)
	if err != nil {
		return report.Options{}, err
	}
	return report.Options{
		Buckets:     a.cfg.Report.Buckets,
		Percentiles: a.cfg.Report.Percentiles,
		RootPolicy:  policy,
	}, nil
}

func (a *app) openStore() (*db.DB, error) {
	store, err := db.New(a.cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// wiring is a ready-to-run pipeline and the resources it holds.
type wiring struct {
	pipeline *orchestrator.Pipeline
	store    *db.DB
	closers  []io.Closer
}

func (w *wiring) Close() {
	for _, c := range w.closers {
		c.Close()
	}
}

func (a *app) buildPipeline() (*wiring, error) {
	opts, err := a.reportOptions()
	if err != nil {
		return nil, err
	}

	src, err := source.New(a.cfg, a.logger)
	if err != nil {
		return nil, err
	}

	w := &wiring{}
	if c, ok := src.(io.Closer); ok {
		w.closers = append(w.closers, c)
	}

	var sinks []orchestrator.Sink
	if a.cfg.Store.Enabled {
		store, err := a.openStore()
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("opening report store: %w", err)
		}
		w.store = store
		w.closers = append(w.closers, store)
		sinks = append(sinks, orchestrator.NewStoreSink(store, a.logger))
	}

	if a.cfg.Output.Slack.Enabled {
		if a.cfg.Output.Slack.WebhookURL == "" {
			a.logger.Warn("Slack output enabled but webhook URL is empty", "env", a.cfg.Output.Slack.WebhookURLEnv)
		} else {
			sinks = append(sinks, output.NewSlackSenderFromConfig(a.cfg.Output.Slack))
		}
	}

	w.pipeline = orchestrator.New(src, orchestrator.Options{
		Report:        opts,
		SkipMalformed: a.cfg.Ingest.SkipMalformed(),
		Metrics:       a.metrics,
		Logger:        a.logger,
		Sinks:         sinks,
	})

	return w, nil
}
