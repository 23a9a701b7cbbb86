package dataset

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexgen-logistics/shipmerge/internal/merge"
	"github.com/nexgen-logistics/shipmerge/internal/source"
	"github.com/nexgen-logistics/shipmerge/internal/table"
	"github.com/nexgen-logistics/shipmerge/internal/testutil"
)

// loadFixture merges the default fixtures and loads the result.
func loadFixture(t *testing.T) *Dataset {
	t.Helper()

	dir := t.TempDir()
	testutil.WriteSources(t, dir)

	res, err := merge.New(merge.Options{DataDir: dir, Logger: testutil.NewTestLogger(t)}).Run(context.Background())
	require.NoError(t, err)

	ds, err := Load(res.OutputPath)
	require.NoError(t, err)
	return ds
}

func fixed(d decimal.NullDecimal) string {
	if !d.Valid {
		return "null"
	}
	return d.Decimal.StringFixed(kpiPlaces)
}

func TestLoad(t *testing.T) {
	ds := loadFixture(t)

	assert.Equal(t, 4, ds.Len())
	cols := ds.Columns()
	assert.Contains(t, cols, ProductCategory)
	assert.NotContains(t, cols, "Product_Category_x")
	assert.Contains(t, cols, "Product_Category_y")
	assert.Equal(t, DeliveryDelay, cols[len(cols)-1])

	delays, ok := ds.View().Table().Column(DeliveryDelay)
	require.True(t, ok)
	assert.Equal(t, []table.Value{table.Str("1"), table.Null, table.Str("0"), table.Str("3")}, delays)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(t.TempDir() + "/missing.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read merged dataset")
}

// contractTable builds a one-row table carrying every contract column.
func contractTable(t *testing.T, pad string, values map[string]string) *table.Table {
	t.Helper()

	var cols []string
	for _, c := range merge.Contract {
		cols = append(cols, pad+c.Name+pad)
	}
	tbl, err := table.New("merged", append([]string{OrderID}, cols...))
	require.NoError(t, err)

	row := table.Row{table.Str("ORD000009")}
	for _, c := range merge.Contract {
		if v, ok := values[c.Name]; ok {
			row = append(row, table.Str(v))
		} else {
			row = append(row, table.Null)
		}
	}
	require.NoError(t, tbl.Append(row))
	return tbl
}

func TestFromTable_TrimsHeaders(t *testing.T) {
	tbl := contractTable(t, " ", map[string]string{PromisedDays: "3", ActualDays: "2", DeliveryCost: "n/a"})

	ds, err := FromTable("inline", tbl)
	require.NoError(t, err)

	assert.Contains(t, ds.Columns(), Carrier)
	k := ComputeKPIs(ds.View())
	assert.Equal(t, "-1.00", fixed(k.AvgDelayDays))
	assert.Equal(t, "100.00", fixed(k.OnTimePercent))
	assert.False(t, k.AvgCostINR.Valid, "non-numeric cost is not averaged")
}

func TestFromTable_MissingContractColumn(t *testing.T) {
	tbl, err := table.New("merged", []string{OrderID, Origin, Priority})
	require.NoError(t, err)

	_, err = FromTable("inline", tbl)
	var missing *source.MissingColumnError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "Order_Value_INR", missing.Column)
	assert.Equal(t, "dataset", missing.Step)
}

func TestFilterOptions(t *testing.T) {
	opts := loadFixture(t).FilterOptions()

	assert.Equal(t, []string{"Mumbai", "Delhi", "Bangalore", "Kolkata"}, opts.Origins)
	assert.Equal(t, []string{"SpeedyLogistics", "QuickShip", "BlueDart"}, opts.Carriers)
	assert.Equal(t, []string{"Express", "Standard", "Economy"}, opts.Priorities)
}

func TestView_Apply(t *testing.T) {
	ds := loadFixture(t)
	base := ds.View()

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "empty filter", filter: Filter{}, want: []string{"ORD000001", "ORD000002", "ORD000003", "ORD000004"}},
		{name: "priority", filter: Filter{Priorities: []string{"Express"}}, want: []string{"ORD000001", "ORD000004"}},
		{name: "two origins", filter: Filter{Origins: []string{"Delhi", "Kolkata"}}, want: []string{"ORD000002", "ORD000004"}},
		{name: "carrier skips absent", filter: Filter{Carriers: []string{"QuickShip", "BlueDart"}}, want: []string{"ORD000003", "ORD000004"}},
		{name: "combined", filter: Filter{Origins: []string{"Mumbai", "Delhi"}, Priorities: []string{"Standard"}}, want: []string{"ORD000002"}},
		{name: "no match", filter: Filter{Origins: []string{"Pune"}}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := base.Apply(tt.filter)
			ids, _ := v.Table().Column(OrderID)
			var got []string
			for _, id := range ids {
				got = append(got, id.Text)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, 4, base.Len(), "applying a filter leaves the source view untouched")
	assert.Equal(t, 4, ds.Len())
}

func TestView_ApplyChained(t *testing.T) {
	v := loadFixture(t).View().
		Apply(Filter{Priorities: []string{"Express"}}).
		Apply(Filter{Carriers: []string{"BlueDart"}})

	assert.Equal(t, 1, v.Len())
	assert.Equal(t, Filter{Priorities: []string{"Express"}, Carriers: []string{"BlueDart"}}, v.Filter())
}

func TestComputeKPIs(t *testing.T) {
	ds := loadFixture(t)

	tests := []struct {
		name   string
		filter Filter
		orders int
		delay  string
		onTime string
		cost   string
		rating string
	}{
		{name: "all", orders: 4, delay: "1.33", onTime: "25.00", cost: "330.42", rating: "3.67"},
		// 881.25 / 2 = 440.625 rounds half to even.
		{name: "express", filter: Filter{Priorities: []string{"Express"}}, orders: 2, delay: "2.00", onTime: "0.00", cost: "440.62", rating: "3.00"},
		{name: "no delivery record", filter: Filter{Origins: []string{"Delhi"}}, orders: 1, delay: "null", onTime: "0.00", cost: "null", rating: "null"},
		{name: "empty", filter: Filter{Origins: []string{"Pune"}}, orders: 0, delay: "null", onTime: "null", cost: "null", rating: "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := ComputeKPIs(ds.View().Apply(tt.filter))
			assert.Equal(t, tt.orders, k.Orders)
			assert.Equal(t, tt.delay, fixed(k.AvgDelayDays))
			assert.Equal(t, tt.onTime, fixed(k.OnTimePercent))
			assert.Equal(t, tt.cost, fixed(k.AvgCostINR))
			assert.Equal(t, tt.rating, fixed(k.AvgRating))
		})
	}
}

func TestWarehousePerformance(t *testing.T) {
	stats := WarehousePerformance(loadFixture(t).View())
	require.Len(t, stats, 4)

	var origins []string
	for _, s := range stats {
		origins = append(origins, s.Origin)
		assert.Equal(t, 1, s.Orders)
	}
	assert.Equal(t, []string{"Bangalore", "Delhi", "Kolkata", "Mumbai"}, origins)

	assert.Equal(t, "0.00", fixed(stats[0].AvgDelayDays))
	assert.Equal(t, "110.00", fixed(stats[0].AvgCostINR))
	assert.Equal(t, "null", fixed(stats[1].AvgRating))
	assert.Equal(t, "3.00", fixed(stats[2].AvgDelayDays))
	assert.Equal(t, "320.50", fixed(stats[3].AvgCostINR))
}

func TestWarehousePerformance_FanOut(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteSources(t, dir, testutil.WithFile(testutil.FleetFile, testutil.FleetFanoutCSV))

	res, err := merge.New(merge.Options{DataDir: dir}).Run(context.Background())
	require.NoError(t, err)
	ds, err := Load(res.OutputPath)
	require.NoError(t, err)

	stats := WarehousePerformance(ds.View())
	require.Len(t, stats, 4)
	assert.Equal(t, "Mumbai", stats[3].Origin)
	assert.Equal(t, 2, stats[3].Orders, "fanned-out rows are counted as merged")
}

func TestFeatures(t *testing.T) {
	fs := Features(loadFixture(t).View())

	assert.Equal(t, FeatureColumns, fs.Columns)
	require.Len(t, fs.Rows, 3)
	assert.Equal(t, 2, fs.DelayedCount())

	first := fs.Rows[0]
	assert.Equal(t, "ORD000001", first.OrderID)
	assert.True(t, first.IsDelayed)
	want := []string{"2", "320.50", "1420.5", "180.2", "45"}
	for i, w := range want {
		assert.True(t, decimal.RequireFromString(w).Equal(first.Values[i]), "feature %s", FeatureColumns[i])
	}

	assert.Equal(t, "ORD000003", fs.Rows[1].OrderID)
	assert.False(t, fs.Rows[1].IsDelayed, "on-time delivery is not delayed")
}

func TestFeatures_AbsentOptionalFeatureIsZero(t *testing.T) {
	tbl := contractTable(t, "", map[string]string{
		PromisedDays: "2", ActualDays: "2", DeliveryCost: "100", DistanceKM: "50",
	})
	ds, err := FromTable("inline", tbl)
	require.NoError(t, err)

	fs := Features(ds.View())
	require.Len(t, fs.Rows, 1)
	assert.True(t, fs.Rows[0].Values[3].IsZero())
	assert.True(t, fs.Rows[0].Values[4].IsZero())
	assert.False(t, fs.Rows[0].IsDelayed)
}

func TestFeatureSet_WriteCSV(t *testing.T) {
	fs := Features(loadFixture(t).View())

	var buf bytes.Buffer
	require.NoError(t, fs.WriteCSV(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Order_ID,Promised_Delivery_Days,Delivery_Cost_INR,Distance_KM,Fuel_Consumption_L,Traffic_Delay_Minutes,Is_Delayed", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "ORD000001,2,"))
	assert.True(t, strings.HasSuffix(lines[1], ",1"))
	assert.True(t, strings.HasSuffix(lines[2], ",0"))
}

func TestExport(t *testing.T) {
	ds := loadFixture(t)
	v := ds.View().Apply(Filter{Priorities: []string{"Express"}})

	var buf bytes.Buffer
	require.NoError(t, Export(v, &buf))

	exported, err := table.ReadCSV(&buf, "export")
	require.NoError(t, err)
	assert.Equal(t, ds.Columns(), exported.Columns)
	assert.Equal(t, 2, exported.Len())
}
