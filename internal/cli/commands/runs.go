package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nexgen-logistics/shipmerge/internal/cli/output"
	"github.com/nexgen-logistics/shipmerge/internal/state"
	"github.com/spf13/cobra"
)

// RunsOptions holds options for the runs command.
type RunsOptions struct {
	Limit  int
	Latest bool
}

// RunDetail is a run with the sources it read and the warnings it raised.
type RunDetail struct {
	*state.Run
	Sources  []state.RunSource  `json:"sources"`
	Warnings []state.RunWarning `json:"warnings"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	opts := &RunsOptions{}

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show merge run history",
		Long: `List recorded merge runs, newest first, or show one run with the
source files it read and the join fan-out warnings it raised.`,
		Example: `  # Recent runs
  shipmerge runs

  # The latest run in the prod environment
  shipmerge runs --latest --env prod

  # One run in detail
  shipmerge runs 7f9c2b1e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd, opts, args)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to list")
	cmd.Flags().BoolVar(&opts.Latest, "latest", false, "Show the latest run for the environment")

	return cmd
}

func runRuns(cmd *cobra.Command, opts *RunsOptions, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	store, closeStore, err := cc.OpenStore()
	if err != nil {
		return err
	}
	defer closeStore()

	r := cc.Renderer

	var run *state.Run
	switch {
	case len(args) == 1:
		run, err = store.GetRun(args[0])
		if err != nil {
			return err
		}
	case opts.Latest:
		run, err = store.GetLatestRun(cc.Cfg.Environment)
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("no runs recorded for environment %q", cc.Cfg.Environment)
		}
	default:
		runs, err := store.ListRuns(opts.Limit)
		if err != nil {
			return err
		}
		return renderRunList(r, runs)
	}

	detail, err := runDetail(store, run)
	if err != nil {
		return err
	}
	return renderRunDetail(r, detail)
}

func runDetail(store state.Store, run *state.Run) (*RunDetail, error) {
	sources, err := store.GetRunSources(run.ID)
	if err != nil {
		return nil, err
	}
	warnings, err := store.GetRunWarnings(run.ID)
	if err != nil {
		return nil, err
	}
	return &RunDetail{Run: run, Sources: sources, Warnings: warnings}, nil
}

func runStatus(status state.RunStatus) string {
	switch status {
	case state.RunStatusFailed:
		return "failed"
	case state.RunStatusRunning:
		return "warning"
	default:
		return "success"
	}
}

func formatDuration(run *state.Run) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return run.Duration().Round(time.Millisecond).String()
}

func renderRunList(r *output.Renderer, runs []*state.Run) error {
	if r.EffectiveMode() == output.ModeJSON {
		if runs == nil {
			runs = []*state.Run{}
		}
		return r.JSON(runs)
	}

	r.Header(1, fmt.Sprintf("Runs (%d)", len(runs)))
	if len(runs) == 0 {
		r.Println(r.Muted("No runs recorded yet. Run 'shipmerge merge' to create one."))
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Environment,
			run.Backend,
			string(run.Status),
			strconv.Itoa(run.Rows),
			formatDuration(run),
		})
	}
	r.Table([]string{"ID", "Started", "Env", "Backend", "Status", "Rows", "Duration"}, rows)
	return nil
}

func renderRunDetail(r *output.Renderer, d *RunDetail) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(d)
	}

	r.Header(1, "Run "+d.ID)
	r.StatusLine(string(d.Status), runStatus(d.Status), formatDuration(d.Run))
	r.KeyValue("Environment", d.Environment)
	r.KeyValue("Backend", d.Backend)
	r.KeyValue("Started", d.StartedAt.Local().Format(time.RFC3339))
	if d.OutputPath != "" {
		r.KeyValue("Output", d.OutputPath)
		r.KeyValue("Rows", strconv.Itoa(d.Rows))
		r.KeyValue("Columns", strconv.Itoa(d.Columns))
		r.KeyValue("SHA-256", r.Muted(d.OutputSHA256))
	}
	if d.Error != "" {
		r.KeyValue("Error", d.Error)
	}
	r.Println("")

	if len(d.Sources) > 0 {
		r.Header(2, "Sources")
		rows := make([][]string, 0, len(d.Sources))
		for _, s := range d.Sources {
			rows = append(rows, []string{s.Source, strconv.Itoa(s.Rows), s.Path})
		}
		r.Table([]string{"Source", "Rows", "Path"}, rows)
	}

	if len(d.Warnings) > 0 {
		r.Println("")
		r.Header(2, "Warnings")
		for _, w := range d.Warnings {
			r.StatusLine(w.Step, "warning", fmt.Sprintf("%d row(s) matched more than one %s row on %s, adding %d row(s)",
				w.FannedOutRows, w.Source, w.Key, w.ExtraRows))
		}
	}
	return nil
}
