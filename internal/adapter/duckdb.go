package adapter

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"strings"

	"github.com/marcboeker/go-duckdb"

	"github.com/nexgen-logistics/shipmerge/internal/table"
)

func init() {
	Register("duckdb", func(logger *slog.Logger) Adapter { return NewDuckDBAdapter(logger) })
}

// DuckDBAdapter implements the Adapter interface for DuckDB.
type DuckDBAdapter struct {
	BaseSQLAdapter
}

// NewDuckDBAdapter creates a new DuckDB adapter instance.
// If logger is nil, a discard logger is used.
func NewDuckDBAdapter(logger *slog.Logger) *DuckDBAdapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DuckDBAdapter{BaseSQLAdapter: BaseSQLAdapter{Logger: logger}}
}

// DialectName returns the SQL dialect for this adapter.
func (a *DuckDBAdapter) DialectName() string {
	return "duckdb"
}

// Connect establishes a connection to DuckDB.
// Use ":memory:" as the path for an in-memory database.
func (a *DuckDBAdapter) Connect(ctx context.Context, cfg Config) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	a.Logger.Debug("connecting to duckdb", slog.String("path", cfg.Path))

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// GetTableMetadata retrieves metadata for a specified table.
func (a *DuckDBAdapter) GetTableMetadata(ctx context.Context, tableName string) (*Metadata, error) {
	schema, name := ParseQualifiedName(tableName, "main")
	return a.tableMetadata(ctx, schema, name, func(int) string { return "?" })
}

// LoadCSV loads a CSV file into tableName with VARCHAR columns.
func (a *DuckDBAdapter) LoadCSV(ctx context.Context, tableName string, filePath string) error {
	t, err := table.ReadCSVFile(filePath, tableName)
	if err != nil {
		return fmt.Errorf("failed to read CSV: %w", err)
	}
	return a.LoadTable(ctx, tableName, t)
}

// LoadTable replaces tableName with t using the DuckDB appender.
func (a *DuckDBAdapter) LoadTable(ctx context.Context, tableName string, t *table.Table) error {
	if !a.IsConnected() {
		return ErrNotConnected
	}

	if err := a.createTextTable(ctx, tableName, t.Columns, "VARCHAR"); err != nil {
		return err
	}

	conn, err := a.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	schema, name := "", tableName
	if s, n, ok := strings.Cut(tableName, "."); ok {
		schema, name = s, n
	}

	err = conn.Raw(func(driverConn any) error {
		dc, ok := driverConn.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}

		appender, err := duckdb.NewAppenderFromConn(dc, schema, name)
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}

		for i, row := range t.Rows {
			args := textValues(i, row)
			values := make([]driver.Value, len(args))
			for j, v := range args {
				values[j] = v
			}
			if err := appender.AppendRow(values...); err != nil {
				_ = appender.Close()
				return fmt.Errorf("failed to append row %d: %w", i, err)
			}
		}

		// Close flushes buffered rows.
		return appender.Close()
	})
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", tableName, err)
	}

	a.Logger.Debug("table loaded", slog.String("table", tableName), slog.Int("rows", t.Len()))
	return nil
}

// Ensure DuckDBAdapter implements Adapter interface
var _ Adapter = (*DuckDBAdapter)(nil)
