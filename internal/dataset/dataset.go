// Package dataset is the read side of the merged master dataset: filtered
// views, KPI summaries, per-warehouse aggregates and the delay classifier
// feature extract.
package dataset

import (
	"fmt"
	"strings"
	"time"

	"github.com/nexgen-logistics/shipmerge/internal/merge"
	"github.com/nexgen-logistics/shipmerge/internal/source"
	"github.com/nexgen-logistics/shipmerge/internal/table"
)

// Logical column names read by the dashboard layer.
const (
	OrderID         = "Order_ID"
	Origin          = "Origin"
	Carrier         = "Carrier"
	Priority        = "Priority"
	ProductCategory = "Product_Category"
	PromisedDays    = "Promised_Delivery_Days"
	ActualDays      = "Actual_Delivery_Days"
	DeliveryCost    = "Delivery_Cost_INR"
	CustomerRating  = "Customer_Rating"
	DistanceKM      = "Distance_KM"
	FuelConsumption = "Fuel_Consumption_L"
	TrafficDelay    = "Traffic_Delay_Minutes"
	DeliveryDelay   = "Delivery_Delay_Days"
	IsDelayed       = "Is_Delayed"
)

const contractStepName = "dataset"

// Dataset is a loaded merged file. It is never mutated after Load.
type Dataset struct {
	Path     string
	LoadedAt time.Time
	table    *table.Table
}

// Load reads the merged file at path, trims header names, maps suffixed
// contract columns to their logical names and derives Delivery_Delay_Days.
func Load(path string) (*Dataset, error) {
	t, err := table.ReadCSVFile(path, "merged")
	if err != nil {
		return nil, fmt.Errorf("failed to read merged dataset: %w", err)
	}
	return FromTable(path, t)
}

// FromTable builds a Dataset from an already parsed merged table.
func FromTable(path string, t *table.Table) (*Dataset, error) {
	t, err := trimHeaders(t)
	if err != nil {
		return nil, err
	}

	if missing := merge.CheckContract(t.Columns); len(missing) > 0 {
		c := missing[0]
		return nil, &source.MissingColumnError{Source: c.Source, Step: contractStepName, Column: c.Name}
	}

	if t, err = merge.Canonicalize(t); err != nil {
		return nil, err
	}

	promised, actual := t.ColumnIndex(PromisedDays), t.ColumnIndex(ActualDays)
	if !t.HasColumn(DeliveryDelay) {
		t, err = t.WithColumn(DeliveryDelay, func(r table.Row) table.Value {
			p, okP := number(r[promised])
			a, okA := number(r[actual])
			if !okP || !okA {
				return table.Null
			}
			return table.Str(a.Sub(p).String())
		})
		if err != nil {
			return nil, err
		}
	}

	return &Dataset{Path: path, LoadedAt: time.Now().UTC(), table: t}, nil
}

func trimHeaders(t *table.Table) (*table.Table, error) {
	out := t
	for _, c := range t.Columns {
		trimmed := strings.TrimSpace(c)
		if trimmed == c {
			continue
		}
		var err error
		if out, err = out.Rename(c, trimmed); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Columns returns the dataset's column names.
func (d *Dataset) Columns() []string {
	return d.table.Columns
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return d.table.Len()
}

// View returns an unfiltered view over the whole dataset.
func (d *Dataset) View() *View {
	return &View{table: d.table}
}

// Options returns the distinct present values of column in order of first
// appearance. Unknown columns yield nil.
func (d *Dataset) Options(column string) []string {
	vals, ok := d.table.Column(column)
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, v := range vals {
		if !v.Valid {
			continue
		}
		if _, dup := seen[v.Text]; dup {
			continue
		}
		seen[v.Text] = struct{}{}
		out = append(out, v.Text)
	}
	return out
}

// FilterOptions is the set of values offered for each filter.
type FilterOptions struct {
	Origins    []string `json:"origins"`
	Carriers   []string `json:"carriers"`
	Priorities []string `json:"priorities"`
}

// FilterOptions returns the values offered for every filter.
func (d *Dataset) FilterOptions() FilterOptions {
	return FilterOptions{
		Origins:    d.Options(Origin),
		Carriers:   d.Options(Carrier),
		Priorities: d.Options(Priority),
	}
}

// Filter selects rows by origin, carrier and priority. An empty list
// does not constrain its column.
type Filter struct {
	Origins    []string `json:"origins,omitempty"`
	Carriers   []string `json:"carriers,omitempty"`
	Priorities []string `json:"priorities,omitempty"`
}

// IsZero reports whether the filter selects every row.
func (f Filter) IsZero() bool {
	return len(f.Origins) == 0 && len(f.Carriers) == 0 && len(f.Priorities) == 0
}

type predicate struct {
	col    int
	values map[string]struct{}
}

func (f Filter) predicates(t *table.Table) []predicate {
	var out []predicate
	add := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		set := make(map[string]struct{}, len(values))
		for _, v := range values {
			set[v] = struct{}{}
		}
		out = append(out, predicate{col: t.ColumnIndex(column), values: set})
	}
	add(Origin, f.Origins)
	add(Carrier, f.Carriers)
	add(Priority, f.Priorities)
	return out
}

// View is an immutable filtered slice of a Dataset.
type View struct {
	table  *table.Table
	filter Filter
}

// Apply returns a new view holding the rows of v that match f. An absent
// cell never matches a non-empty filter.
func (v *View) Apply(f Filter) *View {
	if f.IsZero() {
		return v
	}
	preds := f.predicates(v.table)
	filtered := v.table.Filter(func(r table.Row) bool {
		for _, p := range preds {
			if p.col < 0 || !r[p.col].Valid {
				return false
			}
			if _, ok := p.values[r[p.col].Text]; !ok {
				return false
			}
		}
		return true
	})
	return &View{table: filtered, filter: merged(v.filter, f)}
}

func merged(a, b Filter) Filter {
	pick := func(x, y []string) []string {
		if len(y) > 0 {
			return y
		}
		return x
	}
	return Filter{
		Origins:    pick(a.Origins, b.Origins),
		Carriers:   pick(a.Carriers, b.Carriers),
		Priorities: pick(a.Priorities, b.Priorities),
	}
}

// Filter returns the most recent filter applied per column.
func (v *View) Filter() Filter {
	return v.filter
}

// Len returns the number of rows in the view.
func (v *View) Len() int {
	return v.table.Len()
}

// Table returns the view's rows. Callers must not modify it.
func (v *View) Table() *table.Table {
	return v.table
}
