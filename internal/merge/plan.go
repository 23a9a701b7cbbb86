// Package merge joins the seven logistics sources into the master dataset.
//
// The join plan is fixed: orders is the anchor and every step is a left
// outer join that keeps all accumulated rows. Order-keyed sources join on
// Order_ID; warehouse and fleet join on the order's origin city, which may
// match several rows and fan the anchor row out. Fan-out is kept and
// reported as a JoinCardinalityWarning.
package merge

import (
	"fmt"

	"github.com/nexgen-logistics/shipmerge/internal/source"
	"github.com/nexgen-logistics/shipmerge/internal/table"
)

// Step is one left join of the plan.
type Step struct {
	Number  int         `json:"number"`
	Name    string      `json:"name"`
	Source  source.Name `json:"source"`
	LeftOn  string      `json:"left_on"`
	RightOn string      `json:"right_on"`
}

// Spec returns the join specification for the step.
func (s Step) Spec() table.JoinSpec {
	return table.JoinSpec{LeftOn: s.LeftOn, RightOn: s.RightOn, Suffixes: table.DefaultSuffixes}
}

// ByLocation reports whether the step joins on a location rather than
// Order_ID. Location joins are many-to-one and may fan out.
func (s Step) ByLocation() bool {
	return s.LeftOn != s.RightOn
}

// Key describes the join condition, e.g. "Order_ID" or "Origin=Location".
func (s Step) Key() string {
	if s.LeftOn == s.RightOn {
		return s.LeftOn
	}
	return s.LeftOn + "=" + s.RightOn
}

func (s Step) String() string {
	return fmt.Sprintf("step %d (%s)", s.Number, s.Name)
}

// Plan returns the six join steps in execution order.
func Plan() []Step {
	return []Step{
		{Number: 1, Name: "delivery", Source: source.Delivery, LeftOn: source.OrderIDColumn, RightOn: source.OrderIDColumn},
		{Number: 2, Name: "routes", Source: source.Routes, LeftOn: source.OrderIDColumn, RightOn: source.OrderIDColumn},
		{Number: 3, Name: "feedback", Source: source.Feedback, LeftOn: source.OrderIDColumn, RightOn: source.OrderIDColumn},
		{Number: 4, Name: "cost", Source: source.Cost, LeftOn: source.OrderIDColumn, RightOn: source.OrderIDColumn},
		{Number: 5, Name: "warehouse", Source: source.Warehouse, LeftOn: source.OriginColumn, RightOn: source.LocationColumn},
		{Number: 6, Name: "fleet", Source: source.Fleet, LeftOn: source.OriginColumn, RightOn: source.CurrentLocationColumn},
	}
}

// StepResult is the outcome of one executed step.
type StepResult struct {
	Step  Step            `json:"step"`
	Stats table.JoinStats `json:"stats"`
}

// stepLayout is the column layout a step produces.
type stepLayout struct {
	Step    Step
	Refs    []table.ColumnRef
	Columns []string
}

// layoutPlan checks every join key and computes each step's output columns
// without touching rows. Both backends call it so they fail identically.
func layoutPlan(set source.Set, plan []Step) ([]stepLayout, error) {
	anchor := set.Table(source.Orders)
	if anchor == nil {
		return nil, &source.SourceNotFoundError{Source: source.Orders, Err: fmt.Errorf("not loaded")}
	}

	cols := anchor.Columns
	layouts := make([]stepLayout, 0, len(plan))
	for _, st := range plan {
		right := set.Table(st.Source)
		if right == nil {
			return nil, &source.SourceNotFoundError{Source: st.Source, Err: fmt.Errorf("not loaded")}
		}
		if !contains(cols, st.LeftOn) {
			return nil, &source.MissingColumnError{Source: source.Orders, Step: st.Name, Column: st.LeftOn}
		}
		if !right.HasColumn(st.RightOn) {
			return nil, &source.MissingColumnError{Source: st.Source, Step: st.Name, Column: st.RightOn}
		}

		refs, err := table.JoinLayout(cols, right.Columns, st.Spec())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", st, err)
		}

		next := make([]string, len(refs))
		for i, r := range refs {
			next[i] = r.Name
		}
		layouts = append(layouts, stepLayout{Step: st, Refs: refs, Columns: next})
		cols = next
	}
	return layouts, nil
}

func contains(cols []string, name string) bool {
	for _, c := range cols {
		if c == name {
			return true
		}
	}
	return false
}
