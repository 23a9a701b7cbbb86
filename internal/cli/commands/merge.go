package commands

import (
	"fmt"
	"strconv"

	"github.com/nexgen-logistics/shipmerge/internal/cli/output"
	"github.com/nexgen-logistics/shipmerge/internal/merge"
	"github.com/spf13/cobra"
)

// MergeOptions holds options for the merge command.
type MergeOptions struct {
	Publish   bool
	NoHistory bool
}

// mergeReport is the JSON shape of a merge.
type mergeReport struct {
	*merge.Result
	Published *PublishResult `json:"published,omitempty"`
}

// NewMergeCommand creates the merge command.
func NewMergeCommand() *cobra.Command {
	opts := &MergeOptions{}

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge the seven source files into merged_master_dataset.csv",
		Long: `Load orders.csv and the six supporting extracts from the data directory,
left-join them onto the orders in a fixed order and write the result.

Join order:
  1. delivery_performance  on Order_ID
  2. routes_distance       on Order_ID
  3. customer_feedback     on Order_ID
  4. cost_breakdown        on Order_ID
  5. warehouse_inventory   on Origin = Location
  6. vehicle_fleet         on Origin = Current_Location

Location joins that match an order more than once keep every match and
are reported as warnings. The output file is only replaced when the
whole merge succeeds.`,
		Example: `  # Merge the files in the current directory
  shipmerge merge

  # Merge another directory using DuckDB
  shipmerge merge --data-dir ./exports --backend duckdb

  # Merge and publish to the configured database
  shipmerge merge --publish`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMerge(cmd, opts)
		},
	}

	cmd.Flags().String("backend", "", "Merge backend (memory|duckdb)")
	cmd.Flags().String("database", "", "DuckDB database file for the duckdb backend (empty for in-memory)")
	cmd.Flags().Bool("strict-contract", true, "Fail when a column the dashboard needs is missing")
	cmd.Flags().Bool("canonical-names", false, "Rename suffixed dashboard columns to their logical names")
	cmd.Flags().String("publish-table", "", "Target table when publishing")
	cmd.Flags().BoolVar(&opts.Publish, "publish", false, "Publish the merged file after a successful merge")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "Do not record the run in the state database")

	_ = cmd.RegisterFlagCompletionFunc("backend", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return merge.Backends(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runMerge(cmd *cobra.Command, opts *MergeOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	cfg := cc.Cfg
	r := cc.Renderer

	if err := cfg.ValidateDataDir(); err != nil {
		return err
	}
	if opts.Publish && cfg.Publish == nil {
		return fmt.Errorf("--publish requires a publish section in the configuration")
	}

	backend, err := cc.Backend()
	if err != nil {
		return err
	}

	mopts := merge.Options{
		DataDir:        cfg.DataDir,
		OutputPath:     cfg.OutputPath(),
		Backend:        backend,
		StrictContract: cfg.StrictContract,
		CanonicalNames: cfg.CanonicalNames,
		Environment:    cfg.Environment,
		Logger:         cc.Logger,
	}
	if !opts.NoHistory {
		store, closeStore, err := cc.OpenStore()
		if err != nil {
			return err
		}
		defer closeStore()
		mopts.Store = store
	}

	res, err := merge.New(mopts).Run(cmd.Context())
	if err != nil {
		return err
	}

	report := mergeReport{Result: res}
	if opts.Publish {
		report.Published, err = publishDataset(cmd.Context(), cfg.Publish, res.OutputPath, cc.Logger)
		if err != nil {
			return err
		}
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(report)
	}
	renderMerge(r, report)
	return nil
}

func renderMerge(r *output.Renderer, report mergeReport) {
	res := report.Result

	r.Header(1, "Merge")
	for _, sr := range res.Steps {
		status := "success"
		if sr.Stats.FannedOut() {
			status = "warning"
		}
		detail := fmt.Sprintf("(%s, %d → %d rows, %d unmatched)",
			sr.Step.Key(), sr.Stats.LeftRows, sr.Stats.OutRows, sr.Stats.Unmatched)
		r.StatusLine(fmt.Sprintf("%d. %s", sr.Step.Number, sr.Step.Source), status, detail)
	}
	r.Println("")

	for _, w := range res.Warnings {
		r.Warning(w.String())
	}

	r.KeyValue("Backend", res.Backend)
	r.KeyValue("Output", res.OutputPath)
	r.KeyValue("Rows", strconv.Itoa(res.Rows))
	r.KeyValue("Columns", strconv.Itoa(res.Columns))
	if res.RunID != "" {
		r.KeyValue("Run", r.ID(res.RunID))
	}
	r.Println("")

	if report.Published != nil {
		r.Success(fmt.Sprintf("Merged %d rows and published to %s", res.Rows, report.Published.Table))
		return
	}
	r.Success(fmt.Sprintf("Merged %d rows into %s", res.Rows, res.OutputPath))
}
