package dataset

import (
	"io"

	"github.com/shopspring/decimal"

	"github.com/nexgen-logistics/shipmerge/internal/table"
)

// FeatureColumns are the delay classifier inputs, in order.
var FeatureColumns = []string{PromisedDays, DeliveryCost, DistanceKM, FuelConsumption, TrafficDelay}

// requiredForFeatures must all be numeric for a row to enter the extract.
var requiredForFeatures = []string{PromisedDays, ActualDays, DeliveryCost, DistanceKM}

// FeatureRow is one labelled classifier example.
type FeatureRow struct {
	OrderID   string            `json:"order_id"`
	Values    []decimal.Decimal `json:"values"`
	IsDelayed bool              `json:"is_delayed"`
}

// FeatureSet is the classifier extract of a view.
type FeatureSet struct {
	Columns []string     `json:"columns"`
	Rows    []FeatureRow `json:"rows"`
}

// DelayedCount returns the number of positive examples.
func (fs *FeatureSet) DelayedCount() int {
	n := 0
	for _, r := range fs.Rows {
		if r.IsDelayed {
			n++
		}
	}
	return n
}

// Features extracts classifier rows from v. Rows missing any of promised
// days, actual days, cost or distance are skipped; other absent features
// are zero. A row is delayed when actual days exceed promised days.
func Features(v *View) *FeatureSet {
	t := v.table
	orderID := t.ColumnIndex(OrderID)
	actual := t.ColumnIndex(ActualDays)
	promised := t.ColumnIndex(PromisedDays)

	required := make([]int, len(requiredForFeatures))
	for i, c := range requiredForFeatures {
		required[i] = t.ColumnIndex(c)
	}
	features := make([]int, len(FeatureColumns))
	for i, c := range FeatureColumns {
		features[i] = t.ColumnIndex(c)
	}

	fs := &FeatureSet{Columns: append([]string(nil), FeatureColumns...)}
rows:
	for _, r := range t.Rows {
		for _, i := range required {
			if i < 0 {
				continue rows
			}
			if _, ok := number(r[i]); !ok {
				continue rows
			}
		}

		row := FeatureRow{Values: make([]decimal.Decimal, len(features))}
		if orderID >= 0 {
			row.OrderID = r[orderID].String()
		}
		for j, i := range features {
			if i < 0 {
				continue
			}
			if d, ok := number(r[i]); ok {
				row.Values[j] = d
			}
		}
		a, _ := number(r[actual])
		p, _ := number(r[promised])
		row.IsDelayed = a.GreaterThan(p)
		fs.Rows = append(fs.Rows, row)
	}
	return fs
}

// Table returns the extract as a table with Order_ID first and the
// Is_Delayed label (1 or 0) last.
func (fs *FeatureSet) Table() (*table.Table, error) {
	cols := append(append([]string{OrderID}, fs.Columns...), IsDelayed)
	out, err := table.New("features", cols)
	if err != nil {
		return nil, err
	}
	for _, r := range fs.Rows {
		row := make(table.Row, 0, len(cols))
		row = append(row, table.Str(r.OrderID))
		for _, v := range r.Values {
			row = append(row, table.Str(v.String()))
		}
		label := "0"
		if r.IsDelayed {
			label = "1"
		}
		if err := out.Append(append(row, table.Str(label))); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// WriteCSV writes the extract as CSV.
func (fs *FeatureSet) WriteCSV(w io.Writer) error {
	t, err := fs.Table()
	if err != nil {
		return err
	}
	return table.WriteCSV(w, t)
}
