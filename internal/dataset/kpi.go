package dataset

import (
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nexgen-logistics/shipmerge/internal/table"
)

// kpiPlaces is the rounding applied to every reported aggregate.
const kpiPlaces = 2

var hundred = decimal.NewFromInt(100)

// number parses a present cell as a decimal. Absent and non-numeric cells
// are not numbers.
func number(v table.Value) (decimal.Decimal, bool) {
	if !v.Valid {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v.Text))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// mean accumulates an average over the values that are present.
type mean struct {
	sum decimal.Decimal
	n   int64
}

func (m *mean) add(v table.Value) {
	if d, ok := number(v); ok {
		m.sum = m.sum.Add(d)
		m.n++
	}
}

func (m *mean) value() decimal.NullDecimal {
	if m.n == 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(m.sum.Div(decimal.NewFromInt(m.n)).RoundBank(kpiPlaces))
}

// KPIs summarises a view.
type KPIs struct {
	Orders int `json:"orders"`
	// AvgDelayDays averages actual minus promised days.
	AvgDelayDays decimal.NullDecimal `json:"avg_delay_days"`
	// OnTimePercent is the share of all rows whose delay is zero or
	// negative. Rows without a delay count as not on time.
	OnTimePercent decimal.NullDecimal `json:"on_time_percent"`
	AvgCostINR    decimal.NullDecimal `json:"avg_cost_inr"`
	AvgRating     decimal.NullDecimal `json:"avg_rating"`
}

// ComputeKPIs computes the headline figures for v. Averages that have no
// contributing rows are null.
func ComputeKPIs(v *View) KPIs {
	t := v.table
	delay, cost, rating := t.ColumnIndex(DeliveryDelay), t.ColumnIndex(DeliveryCost), t.ColumnIndex(CustomerRating)

	var avgDelay, avgCost, avgRating mean
	var onTime int64
	for _, r := range t.Rows {
		avgDelay.add(r[delay])
		avgCost.add(r[cost])
		avgRating.add(r[rating])
		if d, ok := number(r[delay]); ok && !d.IsPositive() {
			onTime++
		}
	}

	k := KPIs{
		Orders:       t.Len(),
		AvgDelayDays: avgDelay.value(),
		AvgCostINR:   avgCost.value(),
		AvgRating:    avgRating.value(),
	}
	if t.Len() > 0 {
		pct := decimal.NewFromInt(onTime).Div(decimal.NewFromInt(int64(t.Len()))).Mul(hundred)
		k.OnTimePercent = decimal.NewNullDecimal(pct.RoundBank(kpiPlaces))
	}
	return k
}

// WarehouseStats aggregates the orders shipped from one origin.
type WarehouseStats struct {
	Origin       string              `json:"origin"`
	Orders       int                 `json:"orders"`
	AvgDelayDays decimal.NullDecimal `json:"avg_delay_days"`
	AvgCostINR   decimal.NullDecimal `json:"avg_cost_inr"`
	AvgRating    decimal.NullDecimal `json:"avg_rating"`
}

// WarehousePerformance groups v by origin, sorted by origin name. Rows
// without an origin are dropped.
func WarehousePerformance(v *View) []WarehouseStats {
	t := v.table
	origin := t.ColumnIndex(Origin)
	delay, cost, rating := t.ColumnIndex(DeliveryDelay), t.ColumnIndex(DeliveryCost), t.ColumnIndex(CustomerRating)

	type group struct {
		orders              int
		delay, cost, rating mean
	}
	groups := make(map[string]*group)
	for _, r := range t.Rows {
		if !r[origin].Valid {
			continue
		}
		g, ok := groups[r[origin].Text]
		if !ok {
			g = &group{}
			groups[r[origin].Text] = g
		}
		g.orders++
		g.delay.add(r[delay])
		g.cost.add(r[cost])
		g.rating.add(r[rating])
	}

	out := make([]WarehouseStats, 0, len(groups))
	for name, g := range groups {
		out = append(out, WarehouseStats{
			Origin:       name,
			Orders:       g.orders,
			AvgDelayDays: g.delay.value(),
			AvgCostINR:   g.cost.value(),
			AvgRating:    g.rating.value(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Origin < out[j].Origin })
	return out
}

// Export writes the rows of v as CSV with a header row.
func Export(v *View, w io.Writer) error {
	return table.WriteCSV(w, v.table)
}
