package adapter

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/nexgen-logistics/shipmerge/internal/table"
)

func init() {
	Register("postgres", func(logger *slog.Logger) Adapter { return NewPostgresAdapter(logger) })
}

// PostgresAdapter implements the Adapter interface for PostgreSQL.
type PostgresAdapter struct {
	BaseSQLAdapter
}

// NewPostgresAdapter creates a new PostgreSQL adapter instance.
// If logger is nil, a discard logger is used.
func NewPostgresAdapter(logger *slog.Logger) *PostgresAdapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PostgresAdapter{BaseSQLAdapter: BaseSQLAdapter{Logger: logger}}
}

// DialectName returns the SQL dialect for this adapter.
func (a *PostgresAdapter) DialectName() string {
	return "postgres"
}

// Connect establishes a connection to PostgreSQL.
func (a *PostgresAdapter) Connect(ctx context.Context, cfg Config) error {
	dsn := buildPostgresDSN(cfg)

	a.Logger.Debug("connecting to postgres", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// buildPostgresDSN constructs a key=value PostgreSQL connection string.
func buildPostgresDSN(cfg Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	sslmode := "disable"
	if mode, ok := cfg.Options["sslmode"]; ok && mode != "" {
		sslmode = mode
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		host, port, cfg.Database, sslmode)

	if cfg.Username != "" {
		dsn += fmt.Sprintf(" user=%s", cfg.Username)
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.Password)
	}

	return dsn
}

// GetTableMetadata retrieves metadata for a specified table.
func (a *PostgresAdapter) GetTableMetadata(ctx context.Context, tableName string) (*Metadata, error) {
	defaultSchema := a.Cfg.Schema
	if defaultSchema == "" {
		defaultSchema = "public"
	}
	schema, name := ParseQualifiedName(tableName, defaultSchema)
	return a.tableMetadata(ctx, schema, name, func(n int) string { return "$" + strconv.Itoa(n) })
}

// LoadCSV loads a CSV file into tableName with TEXT columns.
func (a *PostgresAdapter) LoadCSV(ctx context.Context, tableName string, filePath string) error {
	t, err := table.ReadCSVFile(filePath, tableName)
	if err != nil {
		return fmt.Errorf("failed to read CSV: %w", err)
	}
	return a.LoadTable(ctx, tableName, t)
}

// LoadTable replaces tableName with t using COPY FROM STDIN.
// Absent cells are sent as unquoted empty fields, which COPY reads as NULL.
func (a *PostgresAdapter) LoadTable(ctx context.Context, tableName string, t *table.Table) error {
	if !a.IsConnected() {
		return ErrNotConnected
	}

	if err := a.createTextTable(ctx, tableName, t.Columns, "TEXT"); err != nil {
		return err
	}

	payload, err := encodeCopyPayload(t)
	if err != nil {
		return fmt.Errorf("failed to encode rows: %w", err)
	}

	conn, err := a.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	copySQL := fmt.Sprintf("COPY %s FROM STDIN WITH (FORMAT csv)", QuoteQualified(tableName))

	err = conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		tag, err := sc.Conn().PgConn().CopyFrom(ctx, bytes.NewReader(payload), copySQL)
		if err != nil {
			return err
		}
		a.Logger.Debug("copy complete", slog.String("table", tableName), slog.Int64("rows", tag.RowsAffected()))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to copy data: %w", err)
	}
	return nil
}

// encodeCopyPayload renders t as header-less CSV with a leading row number.
func encodeCopyPayload(t *table.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	record := make([]string, t.Width()+1)
	for i, row := range t.Rows {
		record[0] = strconv.Itoa(i)
		for j, v := range row {
			record[j+1] = v.String()
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Ensure PostgresAdapter implements Adapter interface
var _ Adapter = (*PostgresAdapter)(nil)
