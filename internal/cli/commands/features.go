package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nexgen-logistics/shipmerge/internal/cli/output"
	"github.com/nexgen-logistics/shipmerge/internal/dataset"
	"github.com/spf13/cobra"
)

// FeaturesOptions holds options for the features command.
type FeaturesOptions struct {
	Origins    []string
	Carriers   []string
	Priorities []string
	File       string
}

// NewFeaturesCommand creates the features command.
func NewFeaturesCommand() *cobra.Command {
	opts := &FeaturesOptions{}

	cmd := &cobra.Command{
		Use:   "features",
		Short: "Write the delay classifier feature extract",
		Long: `Extract the delay-prediction features from the merged dataset.

Only orders with promised days, actual days, delivery cost and distance
are kept. Each row carries Promised_Delivery_Days, Delivery_Cost_INR,
Distance_KM, Fuel_Consumption_L and Traffic_Delay_Minutes (absent values
become 0) and the label Is_Delayed (1 when actual exceeds promised).

Without --file the extract is written to standard output as CSV.`,
		Example: `  # Print the extract
  shipmerge features

  # Write the extract for Express orders to a file
  shipmerge features --priority Express --file features.csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFeatures(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Origins, "origin", nil, "Only orders from these origins")
	cmd.Flags().StringSliceVar(&opts.Carriers, "carrier", nil, "Only orders shipped by these carriers")
	cmd.Flags().StringSliceVar(&opts.Priorities, "priority", nil, "Only orders with these priorities")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "Write the extract to this CSV file")

	return cmd
}

func runFeatures(cmd *cobra.Command, opts *FeaturesOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	ds, err := loadDataset(cc)
	if err != nil {
		return err
	}

	view := ds.View().Apply(dataset.Filter{
		Origins:    opts.Origins,
		Carriers:   opts.Carriers,
		Priorities: opts.Priorities,
	})
	fs := dataset.Features(view)
	r := cc.Renderer

	if opts.File == "" {
		if r.EffectiveMode() == output.ModeJSON {
			return r.JSON(fs)
		}
		return fs.WriteCSV(r.Writer())
	}

	if err := writeFeatures(fs, opts.File); err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]any{
			"file":    opts.File,
			"rows":    len(fs.Rows),
			"delayed": fs.DelayedCount(),
			"columns": fs.Columns,
		})
	}
	r.Header(2, "Features")
	r.KeyValue("File", opts.File)
	r.KeyValue("Rows", strconv.Itoa(len(fs.Rows)))
	r.KeyValue("Delayed", strconv.Itoa(fs.DelayedCount()))
	r.KeyValue("Dropped", r.Muted(strconv.Itoa(view.Len()-len(fs.Rows))))
	r.Println("")
	r.Success(fmt.Sprintf("Wrote %d feature rows", len(fs.Rows)))
	return nil
}

func writeFeatures(fs *dataset.FeatureSet, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	f, err := os.Create(path) //nolint:gosec // path comes from the user
	if err != nil {
		return fmt.Errorf("failed to create features file: %w", err)
	}
	if err := fs.WriteCSV(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write features: %w", err)
	}
	return f.Close()
}
