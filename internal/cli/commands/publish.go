package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/nexgen-logistics/shipmerge/internal/adapter"
	"github.com/nexgen-logistics/shipmerge/internal/cli/config"
	"github.com/nexgen-logistics/shipmerge/internal/cli/output"
	"github.com/spf13/cobra"
)

// PublishResult describes a published table.
type PublishResult struct {
	Target  string `json:"target"`
	Table   string `json:"table"`
	Source  string `json:"source"`
	Rows    int64  `json:"rows"`
	Columns int    `json:"columns"`
}

// NewPublishCommand creates the publish command.
func NewPublishCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Copy the merged dataset into the publish database",
		Long: `Copy an existing merged_master_dataset.csv into the configured publish
target, replacing the table. Every column is created as TEXT.

The target is read from the publish section of shipmerge.yaml:

  publish:
    host: localhost
    database: logistics
    user: etl
    password: ${PGPASSWORD}
    table: merged_master_dataset`,
		Example: `  # Publish the merged file to the configured Postgres table
  shipmerge publish

  # Publish to a different table
  shipmerge publish --publish-table staging.master`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPublish(cmd)
		},
	}

	cmd.Flags().String("publish-table", "", "Target table (default: publish.table)")

	return cmd
}

func runPublish(cmd *cobra.Command) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	path := cc.Cfg.OutputPath()
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("merged dataset not found: %s\nHint: Run 'shipmerge merge' first", path)
	}

	res, err := publishDataset(cmd.Context(), cc.Cfg.Publish, path, cc.Logger)
	if err != nil {
		return err
	}
	return renderPublish(cc.Renderer, res)
}

// publishDataset replaces the publish table with the CSV at path and reads
// back its metadata.
func publishDataset(ctx context.Context, pc *config.PublishConfig, path string, logger *slog.Logger) (*PublishResult, error) {
	if pc == nil {
		return nil, fmt.Errorf("no publish target configured\nHint: Add a publish section to shipmerge.yaml")
	}

	db, err := adapter.NewAdapter(pc.AdapterConfig(), logger)
	if err != nil {
		return nil, err
	}
	if err := db.Connect(ctx, pc.AdapterConfig()); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", pc.Type, err)
	}
	defer func() { _ = db.Close() }()

	tableName := pc.QualifiedTable()
	logger.Info("publishing dataset", slog.String("table", tableName), slog.String("path", path))

	if err := db.LoadCSV(ctx, tableName, path); err != nil {
		return nil, fmt.Errorf("failed to publish to %s: %w", tableName, err)
	}

	meta, err := db.GetTableMetadata(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to read back %s: %w", tableName, err)
	}

	columns := 0
	for _, col := range meta.Columns {
		if col.Name != adapter.RowNumberColumn {
			columns++
		}
	}

	return &PublishResult{
		Target:  pc.Type,
		Table:   tableName,
		Source:  path,
		Rows:    meta.RowCount,
		Columns: columns,
	}, nil
}

func renderPublish(r *output.Renderer, res *PublishResult) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(res)
	}
	r.Header(2, "Publish")
	r.KeyValue("Target", res.Target)
	r.KeyValue("Table", res.Table)
	r.KeyValue("Rows", strconv.FormatInt(res.Rows, 10))
	r.KeyValue("Columns", strconv.Itoa(res.Columns))
	r.Println("")
	r.Success(fmt.Sprintf("Published %s", res.Table))
	return nil
}
