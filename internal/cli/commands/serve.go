package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nexgen-logistics/shipmerge/internal/server"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the merged dataset over a read-only HTTP API",
		Long: `Start a local HTTP server exposing the dashboard figures as JSON.

Endpoints:
  GET /healthz          dataset path, row count and load time
  GET /api/options      filter values for origin, carrier and priority
  GET /api/kpis         delivery KPIs for the filter
  GET /api/warehouses   per-origin performance for the filter
  GET /api/features     delay classifier features for the filter
  GET /api/export.csv   the filtered rows as filtered_data.csv
  GET /api/events       server-sent reload events

Filters are query parameters and may repeat, e.g.
  /api/kpis?origin=Mumbai&origin=Delhi&priority=Express

With --watch the merged file is reloaded whenever a merge replaces it.`,
		Example: `  # Serve on the default port
  shipmerge serve

  # Serve on port 9000 without reloading
  shipmerge serve --port 9000 --watch=false`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}

	cmd.Flags().Int("port", 0, "Port to serve on (default: serve.port)")
	cmd.Flags().Bool("watch", true, "Reload the dataset when the merged file changes")

	return cmd
}

func runServe(cmd *cobra.Command) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	cfg := cc.Cfg

	path := cfg.OutputPath()
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("merged dataset not found: %s\nHint: Run 'shipmerge merge' first", path)
	}

	srv, err := server.NewServer(server.Config{
		DatasetPath: path,
		Port:        cfg.Serve.Port,
		Watch:       cfg.Serve.Watch,
		Logger:      cc.Logger,
	})
	if err != nil {
		return err
	}

	r := cc.Renderer
	r.Printf("Serving %s (%d rows) on http://localhost:%d\n", path, srv.Dataset().Len(), cfg.Serve.Port)
	if cfg.Serve.Watch {
		r.Println(r.Muted("Watching for merges"))
	}
	r.Println("Press Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx)
}
