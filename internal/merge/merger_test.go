package merge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexgen-logistics/shipmerge/internal/source"
	"github.com/nexgen-logistics/shipmerge/internal/state"
	"github.com/nexgen-logistics/shipmerge/internal/table"
	"github.com/nexgen-logistics/shipmerge/internal/testutil"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	logger := testutil.NewTestLogger(t)
	return map[string]Backend{
		BackendMemory: NewMemoryBackend(logger),
		BackendDuckDB: NewDuckDBBackend("", logger),
	}
}

func runMerge(t *testing.T, dir string, opts Options) (*Result, error) {
	t.Helper()
	opts.DataDir = dir
	if opts.OutputPath == "" {
		opts.OutputPath = filepath.Join(t.TempDir(), DefaultOutputFile)
	}
	if opts.Logger == nil {
		opts.Logger = testutil.NewTestLogger(t)
	}
	return New(opts).Run(context.Background())
}

func orderIDs(t *testing.T, tbl *table.Table) []string {
	t.Helper()
	col, ok := tbl.Column(source.OrderIDColumn)
	require.True(t, ok)
	ids := make([]string, len(col))
	for i, v := range col {
		ids[i] = v.String()
	}
	return ids
}

func cell(t *testing.T, tbl *table.Table, row int, column string) table.Value {
	t.Helper()
	idx := tbl.ColumnIndex(column)
	require.GreaterOrEqual(t, idx, 0, "column %s", column)
	return tbl.Rows[row][idx]
}

func TestMerger_Baseline(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			testutil.WriteSources(t, dir)

			res, err := runMerge(t, dir, Options{Backend: backend, StrictContract: true})
			require.NoError(t, err)

			assert.Equal(t, name, res.Backend)
			assert.Equal(t, 4, res.Rows, "one row per order when location keys are unique")
			assert.Equal(t, testutil.MergedColumnCount, res.Columns)
			assert.Empty(t, res.Warnings)
			require.Len(t, res.Steps, 6)
			require.Len(t, res.Sources, 7)

			assert.Equal(t, []string{"ORD000001", "ORD000002", "ORD000003", "ORD000004"}, orderIDs(t, res.Table))

			data, err := os.ReadFile(res.OutputPath)
			require.NoError(t, err)
			sum := sha256.Sum256(data)
			assert.Equal(t, hex.EncodeToString(sum[:]), res.OutputSHA256)

			written, err := table.ReadCSVFile(res.OutputPath, "merged")
			require.NoError(t, err)
			assert.Equal(t, res.Table.Columns, written.Columns)
			assert.Equal(t, res.Table.Rows, written.Rows)
		})
	}
}

func TestMerger_ColumnNaming(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteSources(t, dir)

	res, err := runMerge(t, dir, Options{StrictContract: true})
	require.NoError(t, err)
	cols := res.Table.Columns

	assert.Equal(t, source.OrderIDColumn, cols[0])
	assert.Equal(t, "Product_Category_x", cols[4], "orders column keeps its position with the left suffix")
	assert.Contains(t, cols, "Product_Category_y")
	assert.NotContains(t, cols, "Product_Category")

	for _, single := range []string{"Carrier", "Distance_KM", "Rating", "Fuel_Cost", "Warehouse_ID", "Vehicle_ID"} {
		assert.Contains(t, cols, single, "single-source column stays unsuffixed")
	}
	for _, key := range []string{"Origin", "Location", "Current_Location"} {
		assert.Contains(t, cols, key, "keys joined under different names are both kept")
	}

	count := 0
	for _, c := range cols {
		if c == source.OrderIDColumn {
			count++
		}
	}
	assert.Equal(t, 1, count, "Order_ID appears once")
}

func TestMerger_UnmatchedRowsAreAbsent(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			testutil.WriteSources(t, dir)

			res, err := runMerge(t, dir, Options{Backend: backend, StrictContract: true})
			require.NoError(t, err)
			tbl := res.Table

			// ORD000002 has no delivery record.
			for _, col := range []string{"Carrier", "Promised_Delivery_Days", "Actual_Delivery_Days", "Delivery_Cost_INR"} {
				assert.Equal(t, table.Null, cell(t, tbl, 1, col), col)
			}
			assert.Equal(t, "1460.0", cell(t, tbl, 1, "Distance_KM").Text, "other joins still match")

			// Bangalore has no vehicle.
			assert.Equal(t, table.Null, cell(t, tbl, 2, "Vehicle_ID"))
			assert.Equal(t, "WH003", cell(t, tbl, 2, "Warehouse_ID").Text)

			assert.Equal(t, "Late, but courteous driver", cell(t, tbl, 0, "Feedback_Text").Text)
		})
	}
}

func TestMerger_WarehouseFanOut(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteSources(t, dir, testutil.WithFile(testutil.WarehouseFile,
		testutil.WarehouseCSV+"WH005,Mumbai,Toys,90,30,4.10,2024-08-28\n"))

	logger, capture := testutil.NewCaptureLogger()
	res, err := runMerge(t, dir, Options{StrictContract: true, Logger: logger})
	require.NoError(t, err)

	assert.Equal(t, 5, res.Rows)
	assert.Equal(t, []string{"ORD000001", "ORD000001", "ORD000002", "ORD000003", "ORD000004"}, orderIDs(t, res.Table))
	assert.Equal(t, "WH001", cell(t, res.Table, 0, "Warehouse_ID").Text)
	assert.Equal(t, "WH005", cell(t, res.Table, 1, "Warehouse_ID").Text, "matches follow right-table order")

	require.Len(t, res.Warnings, 1)
	w := res.Warnings[0]
	assert.Equal(t, source.Warehouse, w.Source)
	assert.Equal(t, "Origin=Location", w.Key)
	assert.Equal(t, 1, w.FannedOutRows)
	assert.Equal(t, 1, w.ExtraRows)
	assert.Contains(t, w.String(), "step 5 (warehouse)")

	warns := capture.AtLevel(slog.LevelWarn)
	require.Len(t, warns, 1)
	assert.Equal(t, "join fan-out preserved", warns[0].Message)
}

func TestMerger_FleetFanOut(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			testutil.WriteSources(t, dir, testutil.WithFile(testutil.FleetFile, testutil.FleetFanoutCSV))

			res, err := runMerge(t, dir, Options{Backend: backend, StrictContract: true})
			require.NoError(t, err)

			assert.Equal(t, 5, res.Rows)
			assert.Equal(t, "VEH001", cell(t, res.Table, 0, "Vehicle_ID").Text)
			assert.Equal(t, "VEH004", cell(t, res.Table, 1, "Vehicle_ID").Text)
			require.Len(t, res.Warnings, 1)
			assert.Equal(t, source.Fleet, res.Warnings[0].Source)

			fleet := res.Steps[5].Stats
			assert.Equal(t, 4, fleet.LeftRows)
			assert.Equal(t, 5, fleet.OutRows)
			assert.Equal(t, 1, fleet.Unmatched)
		})
	}
}

func TestMerger_BackendsProduceIdenticalBytes(t *testing.T) {
	fixtures := map[string][]testutil.SourceOption{
		"baseline": nil,
		"fan-out in both location joins": {
			testutil.WithFile(testutil.FleetFile, testutil.FleetFanoutCSV),
			testutil.WithFile(testutil.WarehouseFile, testutil.WarehouseCSV+"WH005,Mumbai,Toys,90,30,4.10,2024-08-28\n"),
		},
		"duplicate order key and absent origin": {
			testutil.WithFile(testutil.CostFile, testutil.CostCSV+"ORD000003,1,1,1,1,1,1,1\n"),
			testutil.WithFile(testutil.OrdersFile, testutil.OrdersCSV+"ORD000005,2024-09-05,SMB,Express,Books,120.00,,Goa,\n"),
		},
		"column names differing only in case": {
			testutil.WithFile(testutil.FeedbackFile, caseFeedbackCSV),
		},
		"row number column names in a source": {
			testutil.WithFile(testutil.FeedbackFile, rowNumberFeedbackCSV),
		},
	}

	for name, opts := range fixtures {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			testutil.WriteSources(t, dir, opts...)

			results := make(map[string]*Result)
			for bname, backend := range backends(t) {
				res, err := runMerge(t, dir, Options{Backend: backend, StrictContract: true})
				require.NoError(t, err, bname)
				results[bname] = res
			}

			mem, duck := results[BackendMemory], results[BackendDuckDB]
			assert.Equal(t, mem.OutputSHA256, duck.OutputSHA256)
			assert.Equal(t, mem.Warnings, duck.Warnings)
			for i := range mem.Steps {
				assert.Equal(t, mem.Steps[i].Stats, duck.Steps[i].Stats, "step %d", i+1)
			}

			memBytes, err := os.ReadFile(mem.OutputPath)
			require.NoError(t, err)
			duckBytes, err := os.ReadFile(duck.OutputPath)
			require.NoError(t, err)
			assert.Equal(t, string(memBytes), string(duckBytes))
		})
	}
}

// caseFeedbackCSV has a carrier column that differs from the delivery
// Carrier column only in case.
const caseFeedbackCSV = `Order_ID,carrier,Feedback_Date,Rating,Feedback_Text
ORD000001,x,2024-09-05,4,Late
ORD000004,y,2024-09-09,2,Wrong item delivered
`

// rowNumberFeedbackCSV has headers that look like row number columns.
const rowNumberFeedbackCSV = `Order_ID,__rn,__rn_0,__rn_3,Rating
ORD000001,a,b,c,4
ORD000004,d,e,f,2
`

func TestMerger_SourceHeadersKeepTheirIdentity(t *testing.T) {
	tests := []struct {
		name     string
		feedback string
		want     map[string]string
	}{
		{
			name:     "case",
			feedback: caseFeedbackCSV,
			want:     map[string]string{"Carrier": "SpeedyLogistics", "carrier": "x"},
		},
		{
			name:     "row numbers",
			feedback: rowNumberFeedbackCSV,
			want:     map[string]string{"__rn": "a", "__rn_0": "b", "__rn_3": "c", "Rating": "4"},
		},
	}

	for _, tt := range tests {
		for bname, backend := range backends(t) {
			t.Run(tt.name+"/"+bname, func(t *testing.T) {
				dir := t.TempDir()
				testutil.WriteSources(t, dir, testutil.WithFile(testutil.FeedbackFile, tt.feedback))

				res, err := runMerge(t, dir, Options{Backend: backend, StrictContract: true})
				require.NoError(t, err)
				require.Equal(t, "ORD000001", cell(t, res.Table, 0, source.OrderIDColumn).String())

				for column, want := range tt.want {
					assert.Equal(t, table.Str(want), cell(t, res.Table, 0, column), "column %s", column)
				}
				assert.Equal(t, table.Null, cell(t, res.Table, 1, "Rating"), "ORD000002 has no feedback")
			})
		}
	}
}

func TestMerger_RerunIsByteIdentical(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteSources(t, dir, testutil.WithFile(testutil.FleetFile, testutil.FleetFanoutCSV))
	out := filepath.Join(t.TempDir(), DefaultOutputFile)

	first, err := runMerge(t, dir, Options{OutputPath: out, StrictContract: true})
	require.NoError(t, err)
	firstBytes, err := os.ReadFile(out)
	require.NoError(t, err)

	second, err := runMerge(t, dir, Options{OutputPath: out, StrictContract: true})
	require.NoError(t, err)
	secondBytes, err := os.ReadFile(out)
	require.NoError(t, err)

	assert.Equal(t, first.OutputSHA256, second.OutputSHA256)
	assert.Equal(t, firstBytes, secondBytes)
}

func TestMerger_DefaultOutputPath(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteSources(t, dir)

	res, err := New(Options{DataDir: dir, StrictContract: true}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultOutputFile), res.OutputPath)
	assert.FileExists(t, res.OutputPath)
	assert.Equal(t, "merged_master_dataset", res.Table.Name)
}

func TestMerger_FailuresLeaveOutputUntouched(t *testing.T) {
	tests := []struct {
		name  string
		opts  []testutil.SourceOption
		check func(t *testing.T, err error)
	}{
		{
			name: "missing delivery file",
			opts: []testutil.SourceOption{testutil.WithoutFile(testutil.DeliveryFile)},
			check: func(t *testing.T, err error) {
				var notFound *source.SourceNotFoundError
				require.ErrorAs(t, err, &notFound)
				assert.Equal(t, source.Delivery, notFound.Source)
			},
		},
		{
			name: "warehouse without Location",
			opts: []testutil.SourceOption{testutil.WithFile(testutil.WarehouseFile, "Warehouse_ID,City\nWH001,Mumbai\n")},
			check: func(t *testing.T, err error) {
				var missing *source.MissingColumnError
				require.ErrorAs(t, err, &missing)
				assert.Equal(t, source.Warehouse, missing.Source)
				assert.Equal(t, source.LocationColumn, missing.Column)
			},
		},
		{
			name: "delivery without Carrier breaks the contract",
			opts: []testutil.SourceOption{testutil.WithFile(testutil.DeliveryFile,
				"Order_ID,Promised_Delivery_Days,Actual_Delivery_Days,Customer_Rating,Delivery_Cost_INR\nORD000001,2,3,4,320.50\n")},
			check: func(t *testing.T, err error) {
				var missing *source.MissingColumnError
				require.ErrorAs(t, err, &missing)
				assert.Equal(t, "contract", missing.Step)
				assert.Equal(t, "Carrier", missing.Column)
				assert.Equal(t, source.Delivery, missing.Source)
			},
		},
		{
			name: "suffix collision",
			opts: []testutil.SourceOption{testutil.WithFile(testutil.DeliveryFile,
				"Order_ID,Priority,Priority_x\nORD000001,High,High\n")},
			check: func(t *testing.T, err error) {
				var dup *table.DuplicateColumnError
				require.ErrorAs(t, err, &dup)
				assert.Equal(t, "Priority_x", dup.Column)
				assert.Contains(t, err.Error(), "step 1 (delivery)")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			testutil.WriteSources(t, dir, tt.opts...)

			out := filepath.Join(t.TempDir(), DefaultOutputFile)
			require.NoError(t, os.WriteFile(out, []byte("previous\n"), 0600))

			_, err := runMerge(t, dir, Options{OutputPath: out, StrictContract: true})
			require.Error(t, err)
			tt.check(t, err)

			data, readErr := os.ReadFile(out)
			require.NoError(t, readErr)
			assert.Equal(t, "previous\n", string(data))

			entries, readErr := os.ReadDir(filepath.Dir(out))
			require.NoError(t, readErr)
			assert.Len(t, entries, 1, "no temp files left behind")
		})
	}
}

func TestMerger_LenientContract(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteSources(t, dir, testutil.WithFile(testutil.RoutesFile, "Order_ID,Route\nORD000001,Mumbai-Delhi\n"))

	logger, capture := testutil.NewCaptureLogger()
	res, err := runMerge(t, dir, Options{StrictContract: false, Logger: logger})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Rows)

	var missing []any
	for _, r := range capture.AtLevel(slog.LevelWarn) {
		if r.Message == "downstream column missing" {
			missing = append(missing, r.Attrs["column"])
		}
	}
	assert.ElementsMatch(t, []any{"Distance_KM", "Fuel_Consumption_L", "Traffic_Delay_Minutes"}, missing)
}

func TestMerger_CanonicalNames(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteSources(t, dir)

	res, err := runMerge(t, dir, Options{StrictContract: true, CanonicalNames: true})
	require.NoError(t, err)

	assert.Equal(t, "Product_Category", res.Table.Columns[4])
	assert.Contains(t, res.Table.Columns, "Product_Category_y")
	assert.Equal(t, "Electronics", cell(t, res.Table, 0, "Product_Category").Text)
}

func TestMerger_RecordsRunHistory(t *testing.T) {
	store := state.NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Migrate())
	defer func() { _ = store.Close() }()

	dir := t.TempDir()
	testutil.WriteSources(t, dir, testutil.WithFile(testutil.FleetFile, testutil.FleetFanoutCSV))

	res, err := runMerge(t, dir, Options{StrictContract: true, Store: store, Environment: "dev"})
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	run, err := store.GetRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, state.RunStatusCompleted, run.Status)
	assert.Equal(t, "dev", run.Environment)
	assert.Equal(t, BackendMemory, run.Backend)
	assert.Equal(t, 5, run.Rows)
	assert.Equal(t, res.OutputSHA256, run.OutputSHA256)

	sources, err := store.GetRunSources(res.RunID)
	require.NoError(t, err)
	require.Len(t, sources, 7)
	assert.Equal(t, "orders", sources[0].Source)
	assert.Equal(t, 4, sources[0].Rows)

	warnings, err := store.GetRunWarnings(res.RunID)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, state.RunWarning{Step: "fleet", Source: "vehicle_fleet", Key: "Origin=Current_Location", FannedOutRows: 1, ExtraRows: 1}, warnings[0])

	// A failed run is recorded with its error.
	_, err = runMerge(t, t.TempDir(), Options{Store: store, Environment: "dev"})
	require.Error(t, err)

	latest, err := store.GetLatestRun("dev")
	require.NoError(t, err)
	assert.Equal(t, state.RunStatusFailed, latest.Status)
	assert.Contains(t, latest.Error, "orders")
}
