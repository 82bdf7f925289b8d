package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tracecollapse/internal/server"
)

// NewServeCommand returns the HTTP server command
func NewServeCommand(g *globalOptions) (cmd *cobra.Command) {
	cmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the latest report over HTTP and rebuild it on POST /refresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g.bind(cmd.Flags(), map[string]string{
				"app.host":      "host",
				"app.port":      "port",
				"source.kind":   "source",
				"store.enabled": "store",
			})

			a, err := g.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			w, err := a.buildPipeline()
			if err != nil {
				return err
			}
			defer w.Close()

			var runs server.RunLister
			if w.store != nil {
				runs = w.store
			}

			handler := server.NewHandler(w.pipeline, runs, a.metrics, a.logger)
			srv := server.New(a.cfg, handler, a.logger)

			ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.Run(ctx)
		},
	}

	cmd.Flags().String("host", "0.0.0.0", "listen host")
	cmd.Flags().Int("port", 8080, "listen port")
	cmd.Flags().String("source", "dir", "trace source: dir, tempo or kafka")
	cmd.Flags().Bool("store", false, "save every report to the SQLite store")
	return cmd
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
