package merge

import (
	"github.com/nexgen-logistics/shipmerge/internal/source"
	"github.com/nexgen-logistics/shipmerge/internal/table"
)

// ContractColumn is a logical column downstream consumers read from the
// merged dataset.
type ContractColumn struct {
	Name string
	// Source is the input expected to provide the column.
	Source source.Name
	// Candidates lists physical column names in preference order. When
	// empty, the logical name and then its left-suffixed form are tried.
	Candidates []string
}

// Contract is the set of columns the dashboard data layer depends on.
//
// Product_Category exists in both orders and warehouse inventory, so the
// merged file carries Product_Category_x and Product_Category_y; the
// orders-side value is authoritative.
var Contract = []ContractColumn{
	{Name: "Origin", Source: source.Orders},
	{Name: "Priority", Source: source.Orders},
	{Name: "Order_Value_INR", Source: source.Orders},
	{Name: "Product_Category", Source: source.Orders, Candidates: []string{"Product_Category_x", "Product_Category"}},
	{Name: "Carrier", Source: source.Delivery},
	{Name: "Promised_Delivery_Days", Source: source.Delivery},
	{Name: "Actual_Delivery_Days", Source: source.Delivery},
	{Name: "Delivery_Cost_INR", Source: source.Delivery},
	{Name: "Customer_Rating", Source: source.Delivery},
	{Name: "Distance_KM", Source: source.Routes},
	{Name: "Fuel_Consumption_L", Source: source.Routes},
	{Name: "Traffic_Delay_Minutes", Source: source.Routes},
}

func (c ContractColumn) candidates() []string {
	if len(c.Candidates) > 0 {
		return c.Candidates
	}
	return []string{c.Name, c.Name + table.DefaultSuffixes[0]}
}

// ResolveColumn returns the physical column holding a logical name.
// Names outside the contract resolve to themselves or their left-suffixed
// form.
func ResolveColumn(columns []string, logical string) (string, bool) {
	cands := []string{logical, logical + table.DefaultSuffixes[0]}
	for _, c := range Contract {
		if c.Name == logical {
			cands = c.candidates()
			break
		}
	}
	for _, cand := range cands {
		if contains(columns, cand) {
			return cand, true
		}
	}
	return "", false
}

// CheckContract returns the contract columns that cannot be resolved.
func CheckContract(columns []string) []ContractColumn {
	var missing []ContractColumn
	for _, c := range Contract {
		if _, ok := ResolveColumn(columns, c.Name); !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

// Canonicalize renames resolved contract columns to their logical names.
// A logical name that already exists as a column is left alone.
func Canonicalize(t *table.Table) (*table.Table, error) {
	out := t
	for _, c := range Contract {
		phys, ok := ResolveColumn(out.Columns, c.Name)
		if !ok || phys == c.Name || out.HasColumn(c.Name) {
			continue
		}
		renamed, err := out.Rename(phys, c.Name)
		if err != nil {
			return nil, err
		}
		out = renamed
	}
	return out, nil
}
