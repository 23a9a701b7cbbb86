package merge

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/nexgen-logistics/shipmerge/internal/adapter"
	"github.com/nexgen-logistics/shipmerge/internal/source"
	"github.com/nexgen-logistics/shipmerge/internal/table"
)

// DuckDBBackend loads the sources into DuckDB and joins them in SQL.
//
// Each step materialises a table carrying the source row number of every
// input it has consumed (__rn_0 for orders, __rn_k for step k). Ordering
// the final table by those numbers reproduces left-row order with matches
// in right-table order.
//
// Source headers never reach SQL. Every column is named by its position
// (c0, c1, ...) and the Go layout maps positions back to header names, so
// names that differ only in case, or that look like row number columns,
// keep their identity.
type DuckDBBackend struct {
	path   string
	logger *slog.Logger
}

// NewDuckDBBackend creates a DuckDB backend. An empty path uses an
// in-memory database; a file path keeps the intermediate tables for
// inspection after the run.
func NewDuckDBBackend(path string, logger *slog.Logger) *DuckDBBackend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DuckDBBackend{path: path, logger: logger}
}

// Name implements Backend.
func (b *DuckDBBackend) Name() string { return BackendDuckDB }

// Execute implements Backend.
func (b *DuckDBBackend) Execute(ctx context.Context, set source.Set, plan []Step) (*Output, error) {
	layouts, err := layoutPlan(set, plan)
	if err != nil {
		return nil, err
	}

	cfg := adapter.Config{Type: "duckdb", Path: b.path}
	db, err := adapter.NewAdapter(cfg, b.logger)
	if err != nil {
		return nil, err
	}
	if err := db.Connect(ctx, cfg); err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	for _, l := range set.Ordered() {
		if err := db.LoadTable(ctx, sourceTable(l.Name), positional(l.Table)); err != nil {
			return nil, fmt.Errorf("load %s: %w", l.Name, err)
		}
	}

	anchor := set.Table(source.Orders)
	if err := db.Exec(ctx, anchorSQL(len(anchor.Columns))); err != nil {
		return nil, fmt.Errorf("prepare anchor: %w", err)
	}

	leftCols := anchor.Columns
	leftRows := int64(anchor.Len())
	results := make([]StepResult, 0, len(layouts))
	for i, lay := range layouts {
		k := i + 1
		right := set.Table(lay.Step.Source)

		if err := db.Exec(ctx, stepSQL(k, lay, leftCols, right.Columns)); err != nil {
			return nil, fmt.Errorf("%s: %w", lay.Step, err)
		}

		stats, err := b.stepStats(ctx, db, k, leftRows, right.Len())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", lay.Step, err)
		}

		b.logger.Debug("join step complete",
			slog.Int("step", lay.Step.Number),
			slog.String("source", string(lay.Step.Source)),
			slog.Int("rows", stats.OutRows),
			slog.Int("unmatched", stats.Unmatched))

		results = append(results, StepResult{Step: lay.Step, Stats: stats})
		leftCols = lay.Columns
		leftRows = int64(stats.OutRows)
	}

	out, err := b.fetch(ctx, db, len(layouts), leftCols)
	if err != nil {
		return nil, err
	}
	return &Output{Table: out, Steps: results}, nil
}

func sourceTable(name source.Name) string {
	return "src_" + string(name)
}

func stepTable(k int) string {
	return "merge_step_" + strconv.Itoa(k)
}

func rowNumber(k int) string {
	return "__rn_" + strconv.Itoa(k)
}

// colAlias is the SQL name of the column at position i.
func colAlias(i int) string {
	return "c" + strconv.Itoa(i)
}

// positional returns t with its columns renamed by position. Rows are
// shared, not copied.
func positional(t *table.Table) *table.Table {
	cols := make([]string, len(t.Columns))
	for i := range cols {
		cols[i] = colAlias(i)
	}
	return &table.Table{Name: t.Name, Columns: cols, Rows: t.Rows}
}

// anchorSQL builds step 0: orders with its row number renamed to __rn_0.
func anchorSQL(width int) string {
	sel := make([]string, 0, width+1)
	sel = append(sel, adapter.QuoteIdent(adapter.RowNumberColumn)+" AS "+adapter.QuoteIdent(rowNumber(0)))
	for i := 0; i < width; i++ {
		sel = append(sel, colAlias(i))
	}
	return fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT %s FROM %s",
		stepTable(0), strings.Join(sel, ", "), adapter.QuoteIdent(sourceTable(source.Orders)))
}

// stepSQL builds step k as a left join of step k-1 with the step's source.
// leftCols and rightCols are the header names of both inputs; they only
// locate the join keys.
func stepSQL(k int, lay stepLayout, leftCols, rightCols []string) string {
	sel := make([]string, 0, k+1+len(lay.Refs))
	for i := 0; i < k; i++ {
		sel = append(sel, "l."+adapter.QuoteIdent(rowNumber(i)))
	}
	sel = append(sel, "r."+adapter.QuoteIdent(adapter.RowNumberColumn)+" AS "+adapter.QuoteIdent(rowNumber(k)))

	for i, ref := range lay.Refs {
		side := "r."
		if ref.Side == table.LeftSide {
			side = "l."
		}
		sel = append(sel, side+colAlias(ref.Index)+" AS "+colAlias(i))
	}

	return fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT %s FROM %s AS l LEFT JOIN %s AS r ON l.%s = r.%s",
		stepTable(k),
		strings.Join(sel, ", "),
		stepTable(k-1),
		adapter.QuoteIdent(sourceTable(lay.Step.Source)),
		colAlias(slices.Index(leftCols, lay.Step.LeftOn)),
		colAlias(slices.Index(rightCols, lay.Step.RightOn)),
	)
}

// stepStats derives join statistics from the materialised step table.
func (b *DuckDBBackend) stepStats(ctx context.Context, db adapter.Adapter, k int, leftRows int64, rightRows int) (table.JoinStats, error) {
	stats := table.JoinStats{LeftRows: int(leftRows), RightRows: rightRows}

	meta, err := db.GetTableMetadata(ctx, stepTable(k))
	if err != nil {
		return stats, err
	}
	stats.OutRows = int(meta.RowCount)

	group := make([]string, k)
	for i := range group {
		group[i] = adapter.QuoteIdent(rowNumber(i))
	}
	query := fmt.Sprintf(`SELECT
		(SELECT COUNT(*) FROM %[1]s WHERE %[2]s IS NULL),
		(SELECT COUNT(*) FROM (SELECT 1 FROM %[1]s GROUP BY %[3]s HAVING COUNT(*) > 1) AS fanned)`,
		stepTable(k), adapter.QuoteIdent(rowNumber(k)), strings.Join(group, ", "))

	rows, err := db.Query(ctx, query)
	if err != nil {
		return stats, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return stats, fmt.Errorf("no statistics returned for %s", stepTable(k))
	}
	var unmatched, fanned int64
	if err := rows.Scan(&unmatched, &fanned); err != nil {
		return stats, fmt.Errorf("scan statistics: %w", err)
	}
	stats.Unmatched = int(unmatched)
	stats.FannedOutRows = int(fanned)
	return stats, rows.Err()
}

// fetch reads the final step table in source order and restores the
// header names from columns.
func (b *DuckDBBackend) fetch(ctx context.Context, db adapter.Adapter, last int, columns []string) (*table.Table, error) {
	sel := make([]string, len(columns))
	for i := range columns {
		sel[i] = colAlias(i)
	}
	order := make([]string, last+1)
	for i := range order {
		order[i] = adapter.QuoteIdent(rowNumber(i)) + " NULLS FIRST"
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(sel, ", "), stepTable(last), strings.Join(order, ", "))

	rows, err := db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetch merged rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out, err := table.New(string(source.Orders), columns)
	if err != nil {
		return nil, err
	}

	cells := make([]sql.NullString, len(columns))
	dest := make([]any, len(columns))
	for i := range cells {
		dest[i] = &cells[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan merged row: %w", err)
		}
		row := make(table.Row, len(cells))
		for i, c := range cells {
			if c.Valid {
				row[i] = table.Str(c.String)
			} else {
				row[i] = table.Null
			}
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merged rows: %w", err)
	}
	return out, nil
}

var _ Backend = (*DuckDBBackend)(nil)
