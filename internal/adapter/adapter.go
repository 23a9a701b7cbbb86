// Package adapter provides the database adapters shipmerge talks to: an
// in-process DuckDB database used as a merge backend and a PostgreSQL
// target the merged dataset can be published to.
package adapter

import (
	"context"
	"database/sql"
	"strings"

	"github.com/nexgen-logistics/shipmerge/internal/table"
)

// RowNumberColumn is the leading column LoadTable adds to every loaded
// table. It holds the 0-based position of the row in its source so SQL
// consumers can restore file order.
const RowNumberColumn = "__rn"

// Config holds the configuration for connecting to a database.
type Config struct {
	// Type specifies the database type ("duckdb", "postgres")
	Type string

	// Path is the file path for DuckDB. Use ":memory:" for an in-memory database.
	Path string

	Host     string
	Port     int
	Database string
	Username string
	Password string

	// Schema is the default schema to use
	Schema string

	// Options contains additional driver-specific options (e.g. sslmode)
	Options map[string]string
}

// Column represents a column in a database table.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Position int
}

// Metadata holds metadata about a database table.
type Metadata struct {
	Schema   string
	Name     string
	Columns  []Column
	RowCount int64
}

// Rows wraps sql.Rows to provide a consistent interface across adapters.
type Rows struct {
	*sql.Rows
}

// Adapter defines the interface that all database adapters implement.
type Adapter interface {
	// Connect establishes a connection to the database using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the database connection and releases resources.
	Close() error

	// Exec executes a SQL statement that doesn't return rows.
	Exec(ctx context.Context, sql string) error

	// Query executes a SQL statement that returns rows.
	Query(ctx context.Context, sql string) (*Rows, error)

	// GetTableMetadata retrieves metadata for a specified table.
	GetTableMetadata(ctx context.Context, table string) (*Metadata, error)

	// LoadCSV replaces tableName with the contents of a CSV file.
	LoadCSV(ctx context.Context, tableName string, filePath string) error

	// LoadTable replaces tableName with t. Every column is text; absent
	// cells become NULL. The table gets a leading RowNumberColumn.
	LoadTable(ctx context.Context, tableName string, t *table.Table) error

	// DialectName returns the SQL dialect name for this adapter.
	DialectName() string
}

// QuoteIdent quotes a SQL identifier, doubling embedded quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteQualified quotes a possibly schema-qualified table name.
func QuoteQualified(name string) string {
	if schema, table, ok := strings.Cut(name, "."); ok {
		return QuoteIdent(schema) + "." + QuoteIdent(table)
	}
	return QuoteIdent(name)
}

// ParseQualifiedName splits a table reference into schema and name,
// falling back to defaultSchema.
func ParseQualifiedName(table, defaultSchema string) (schema, name string) {
	if s, n, ok := strings.Cut(table, "."); ok {
		return s, n
	}
	return defaultSchema, table
}

// textValues converts a row to driver arguments prefixed by its row number.
func textValues(rn int, row table.Row) []any {
	args := make([]any, 0, len(row)+1)
	args = append(args, int64(rn))
	for _, v := range row {
		if v.Valid {
			args = append(args, v.Text)
		} else {
			args = append(args, nil)
		}
	}
	return args
}
