package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrNotConnected is returned by adapter methods called before Connect.
var ErrNotConnected = errors.New("database connection not established")

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed it in concrete adapters to get Close, Exec and Query.
type BaseSQLAdapter struct {
	DB     *sql.DB
	Cfg    Config
	Logger *slog.Logger
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.IsConnected() {
		if b.Logger != nil {
			b.Logger.Debug("closing database connection")
		}
		return b.DB.Close()
	}
	return nil
}

// Exec executes a SQL statement that doesn't return rows.
func (b *BaseSQLAdapter) Exec(ctx context.Context, sqlStr string) error {
	if !b.IsConnected() {
		return ErrNotConnected
	}
	if _, err := b.DB.ExecContext(ctx, sqlStr); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// Query executes a SQL statement that returns rows.
func (b *BaseSQLAdapter) Query(ctx context.Context, sqlStr string) (*Rows, error) {
	if !b.IsConnected() {
		return nil, ErrNotConnected
	}
	//nolint:rowserrcheck // rows.Err() must be checked by caller after iteration completes
	rows, err := b.DB.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return &Rows{Rows: rows}, nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

// tableMetadata reads column metadata from information_schema and counts
// rows. placeholder formats the n-th bind parameter for the dialect.
func (b *BaseSQLAdapter) tableMetadata(ctx context.Context, schema, tableName string, placeholder func(int) string) (*Metadata, error) {
	if !b.IsConnected() {
		return nil, ErrNotConnected
	}

	//nolint:gosec // placeholders come from the adapter, not user input
	query := fmt.Sprintf(`
		SELECT
			column_name,
			data_type,
			is_nullable,
			ordinal_position
		FROM information_schema.columns
		WHERE table_schema = %s AND table_name = %s
		ORDER BY ordinal_position
	`, placeholder(1), placeholder(2))

	rows, err := b.DB.QueryContext(ctx, query, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []Column
	for rows.Next() {
		var col Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &col.Position); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Nullable = nullable == "YES"
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s.%s not found", schema, tableName)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", QuoteIdent(schema), QuoteIdent(tableName)) //nolint:gosec // identifiers are quoted
	var rowCount int64
	if err := b.DB.QueryRowContext(ctx, countQuery).Scan(&rowCount); err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}

	return &Metadata{
		Schema:   schema,
		Name:     tableName,
		Columns:  columns,
		RowCount: rowCount,
	}, nil
}

// createTextTable drops and recreates tableName with a BIGINT row number
// followed by one textType column per name.
func (b *BaseSQLAdapter) createTextTable(ctx context.Context, tableName string, columns []string, textType string) error {
	if !b.IsConnected() {
		return ErrNotConnected
	}

	quoted := QuoteQualified(tableName)
	if _, err := b.DB.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoted); err != nil {
		return fmt.Errorf("failed to drop %s: %w", tableName, err)
	}

	defs := make([]string, 0, len(columns)+1)
	defs = append(defs, QuoteIdent(RowNumberColumn)+" BIGINT NOT NULL")
	for _, col := range columns {
		defs = append(defs, QuoteIdent(col)+" "+textType)
	}

	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", quoted, strings.Join(defs, ", "))
	if _, err := b.DB.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create %s: %w", tableName, err)
	}
	return nil
}
