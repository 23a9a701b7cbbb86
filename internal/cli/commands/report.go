package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nexgen-logistics/shipmerge/internal/cli/output"
	"github.com/nexgen-logistics/shipmerge/internal/dataset"
	"github.com/nexgen-logistics/shipmerge/internal/server"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ReportOptions holds options for the report command.
type ReportOptions struct {
	Origins    []string
	Carriers   []string
	Priorities []string
	Export     string
}

// ReportResult is the JSON shape of a report.
type ReportResult struct {
	Dataset    string                   `json:"dataset"`
	Filter     dataset.Filter           `json:"filter"`
	KPIs       dataset.KPIs             `json:"kpis"`
	Warehouses []dataset.WarehouseStats `json:"warehouses"`
	Exported   string                   `json:"exported,omitempty"`
}

// NewReportCommand creates the report command.
func NewReportCommand() *cobra.Command {
	opts := &ReportOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show delivery KPIs and warehouse performance",
		Long: `Compute the dashboard KPIs over the merged dataset:

  - average delivery delay (actual minus promised days)
  - on-time percentage (orders delivered no later than promised)
  - average delivery cost in INR
  - average customer rating

followed by the same figures per origin warehouse. Filters narrow the
orders first; repeating a filter flag allows any of the given values.`,
		Example: `  # KPIs over all orders
  shipmerge report

  # Express orders from Mumbai or Delhi
  shipmerge report --origin Mumbai --origin Delhi --priority Express

  # Export the filtered rows to filtered_data.csv
  shipmerge report --carrier BlueDart --export`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReport(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Origins, "origin", nil, "Only orders from these origins")
	cmd.Flags().StringSliceVar(&opts.Carriers, "carrier", nil, "Only orders shipped by these carriers")
	cmd.Flags().StringSliceVar(&opts.Priorities, "priority", nil, "Only orders with these priorities")
	cmd.Flags().StringVar(&opts.Export, "export", "", "Write the filtered rows to a CSV file")
	cmd.Flags().Lookup("export").NoOptDefVal = server.ExportFileName

	return cmd
}

func runReport(cmd *cobra.Command, opts *ReportOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	ds, err := loadDataset(cc)
	if err != nil {
		return err
	}

	filter := dataset.Filter{
		Origins:    opts.Origins,
		Carriers:   opts.Carriers,
		Priorities: opts.Priorities,
	}
	view := ds.View().Apply(filter)

	res := ReportResult{
		Dataset:    ds.Path,
		Filter:     filter,
		KPIs:       dataset.ComputeKPIs(view),
		Warehouses: dataset.WarehousePerformance(view),
	}

	if opts.Export != "" {
		if err := exportView(view, opts.Export); err != nil {
			return err
		}
		res.Exported = opts.Export
		cc.Logger.Info("exported filtered rows", "path", opts.Export, "rows", view.Len())
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(res)
	}
	renderReport(r, res)
	return nil
}

// loadDataset reads the merged file named by the configuration.
func loadDataset(cc *CommandContext) (*dataset.Dataset, error) {
	path := cc.Cfg.OutputPath()
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("merged dataset not found: %s\nHint: Run 'shipmerge merge' first", path)
	}
	return dataset.Load(path)
}

func exportView(v *dataset.View, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}
	f, err := os.Create(path) //nolint:gosec // path comes from the user
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	if err := dataset.Export(v, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export rows: %w", err)
	}
	return f.Close()
}

// formatDecimal renders a nullable figure with two decimals, or "n/a".
func formatDecimal(d decimal.NullDecimal, suffix string) string {
	if !d.Valid {
		return "n/a"
	}
	return d.Decimal.StringFixed(2) + suffix
}

func describeFilter(f dataset.Filter) string {
	if f.IsZero() {
		return "all orders"
	}
	titleCaser := cases.Title(language.English)
	var parts []string
	add := func(name string, values []string) {
		if len(values) > 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", titleCaser.String(name), strings.Join(values, ", ")))
		}
	}
	add("origin", f.Origins)
	add("carrier", f.Carriers)
	add("priority", f.Priorities)
	return strings.Join(parts, "; ")
}

func renderReport(r *output.Renderer, res ReportResult) {
	p := message.NewPrinter(language.English)

	r.Header(1, "Delivery KPIs")
	r.KeyValue("Dataset", res.Dataset)
	r.KeyValue("Filter", describeFilter(res.Filter))
	r.KeyValue("Orders", p.Sprintf("%d", res.KPIs.Orders))
	r.KeyValue("Avg delay", formatDecimal(res.KPIs.AvgDelayDays, " days"))
	r.KeyValue("On time", formatDecimal(res.KPIs.OnTimePercent, "%"))
	r.KeyValue("Avg cost", formatDecimal(res.KPIs.AvgCostINR, " INR"))
	r.KeyValue("Avg rating", formatDecimal(res.KPIs.AvgRating, ""))
	r.Println("")

	r.Header(2, "Warehouse Performance")
	if len(res.Warehouses) == 0 {
		r.Println(r.Muted("No orders match the filter."))
	} else {
		rows := make([][]string, 0, len(res.Warehouses))
		for _, w := range res.Warehouses {
			rows = append(rows, []string{
				w.Origin,
				p.Sprintf("%d", w.Orders),
				formatDecimal(w.AvgDelayDays, ""),
				formatDecimal(w.AvgCostINR, ""),
				formatDecimal(w.AvgRating, ""),
			})
		}
		r.Table([]string{"Origin", "Orders", "Avg Delay (days)", "Avg Cost (INR)", "Avg Rating"}, rows)
	}

	if res.Exported != "" {
		r.Println("")
		r.Success(fmt.Sprintf("Exported %s rows to %s", p.Sprintf("%d", res.KPIs.Orders), res.Exported))
	}
}
