package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeftJoin_SharedKeyAppearsOnce(t *testing.T) {
	orders := mustRead(t, "orders", "Order_ID,Origin\nORD1,Mumbai\nORD2,Delhi\n")
	delivery := mustRead(t, "delivery", "Order_ID,Carrier\nORD1,BlueDart\n")

	out, stats, err := LeftJoin(orders, delivery, JoinSpec{LeftOn: "Order_ID", RightOn: "Order_ID"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Order_ID", "Origin", "Carrier"}, out.Columns)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, Str("BlueDart"), out.Rows[0][2])
	assert.Equal(t, Null, out.Rows[1][2], "unmatched order keeps absent right cells")
	assert.Equal(t, JoinStats{LeftRows: 2, RightRows: 1, OutRows: 2, Unmatched: 1}, stats)
}

func TestLeftJoin_DifferentKeysAreBothKept(t *testing.T) {
	orders := mustRead(t, "orders", "Order_ID,Origin\nORD1,Mumbai\n")
	warehouse := mustRead(t, "warehouse", "Warehouse_ID,Location\nWH1,Mumbai\n")

	out, _, err := LeftJoin(orders, warehouse, JoinSpec{LeftOn: "Origin", RightOn: "Location"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Order_ID", "Origin", "Warehouse_ID", "Location"}, out.Columns)
	assert.Equal(t, Row{Str("ORD1"), Str("Mumbai"), Str("WH1"), Str("Mumbai")}, out.Rows[0])
}

func TestLeftJoin_CollidingColumnsAreSuffixed(t *testing.T) {
	orders := mustRead(t, "orders", "Order_ID,Origin,Product_Category\nORD1,Mumbai,Books\n")
	warehouse := mustRead(t, "warehouse", "Location,Product_Category\nMumbai,Electronics\n")

	out, _, err := LeftJoin(orders, warehouse, JoinSpec{LeftOn: "Origin", RightOn: "Location"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Order_ID", "Origin", "Product_Category_x", "Location", "Product_Category_y"}, out.Columns)
	assert.Equal(t, Str("Books"), out.Rows[0][2])
	assert.Equal(t, Str("Electronics"), out.Rows[0][4])
}

func TestLeftJoin_FanOutDuplicatesAnchorRow(t *testing.T) {
	orders := mustRead(t, "orders", "Order_ID,Origin\n1,A\n")
	warehouse := mustRead(t, "warehouse", "Warehouse_ID,Location\nW1,A\nW2,A\n")

	out, stats, err := LeftJoin(orders, warehouse, JoinSpec{LeftOn: "Origin", RightOn: "Location"})
	require.NoError(t, err)

	require.Equal(t, 2, out.Len())
	for _, row := range out.Rows {
		assert.Equal(t, Str("1"), row[0])
	}
	assert.Equal(t, Str("W1"), out.Rows[0][2], "right matches keep right-table order")
	assert.Equal(t, Str("W2"), out.Rows[1][2])
	assert.True(t, stats.FannedOut())
	assert.Equal(t, 1, stats.FannedOutRows)
	assert.Equal(t, 1, stats.ExtraRows())
}

func TestLeftJoin_AbsentKeysNeverMatch(t *testing.T) {
	orders := mustRead(t, "orders", "Order_ID,Origin\n1,\n")
	fleet := mustRead(t, "fleet", "Vehicle_ID,Current_Location\nV1,\n")

	out, stats, err := LeftJoin(orders, fleet, JoinSpec{LeftOn: "Origin", RightOn: "Current_Location"})
	require.NoError(t, err)

	require.Equal(t, 1, out.Len())
	assert.Equal(t, Null, out.Rows[0][2])
	assert.Equal(t, 1, stats.Unmatched)
}

func TestLeftJoin_PreservesLeftOrder(t *testing.T) {
	orders := mustRead(t, "orders", "Order_ID\n3\n1\n2\n")
	cost := mustRead(t, "cost", "Order_ID,Fuel_Cost\n1,10\n2,20\n3,30\n")

	out, _, err := LeftJoin(orders, cost, JoinSpec{LeftOn: "Order_ID", RightOn: "Order_ID"})
	require.NoError(t, err)

	got := make([]string, out.Len())
	for i, r := range out.Rows {
		got[i] = r[0].Text + ":" + r[1].Text
	}
	assert.Equal(t, []string{"3:30", "1:10", "2:20"}, got)
}

func TestJoinLayout_Errors(t *testing.T) {
	tests := []struct {
		name   string
		left   []string
		right  []string
		spec   JoinSpec
		target any
	}{
		{
			name:   "missing left key",
			left:   []string{"Order_ID"},
			right:  []string{"Location"},
			spec:   JoinSpec{LeftOn: "Origin", RightOn: "Location"},
			target: new(*ColumnNotFoundError),
		},
		{
			name:   "missing right key",
			left:   []string{"Origin"},
			right:  []string{"Warehouse_ID"},
			spec:   JoinSpec{LeftOn: "Origin", RightOn: "Location"},
			target: new(*ColumnNotFoundError),
		},
		{
			name:   "suffix collides with existing column",
			left:   []string{"Order_ID", "Rating", "Rating_x"},
			right:  []string{"Order_ID", "Rating"},
			spec:   JoinSpec{LeftOn: "Order_ID", RightOn: "Order_ID"},
			target: new(*DuplicateColumnError),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := JoinLayout(tt.left, tt.right, tt.spec)
			require.Error(t, err)
			assert.ErrorAs(t, err, tt.target)
		})
	}
}

func TestJoinLayout_CustomSuffixes(t *testing.T) {
	refs, err := JoinLayout(
		[]string{"id", "v"},
		[]string{"id", "v"},
		JoinSpec{LeftOn: "id", RightOn: "id", Suffixes: [2]string{"_left", "_right"}},
	)
	require.NoError(t, err)

	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"id", "v_left", "v_right"}, names)
}
