package merge

import (
	"fmt"
	"log/slog"

	"github.com/nexgen-logistics/shipmerge/internal/source"
)

// JoinCardinalityWarning reports a join that matched some left rows more
// than once. It does not stop the run.
type JoinCardinalityWarning struct {
	Step   Step        `json:"step"`
	Source source.Name `json:"source"`
	Key    string      `json:"key"`
	// FannedOutRows counts left rows with more than one match.
	FannedOutRows int `json:"fanned_out_rows"`
	// ExtraRows is how many rows the step added over its left input.
	ExtraRows int `json:"extra_rows"`
}

func (w JoinCardinalityWarning) String() string {
	return fmt.Sprintf("%s: %d row(s) matched more than one %s row on %s, adding %d row(s)",
		w.Step, w.FannedOutRows, w.Source, w.Key, w.ExtraRows)
}

// LogValue implements slog.LogValuer.
func (w JoinCardinalityWarning) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("step", w.Step.Number),
		slog.String("step_name", w.Step.Name),
		slog.String("source", string(w.Source)),
		slog.String("key", w.Key),
		slog.Int("fanned_out_rows", w.FannedOutRows),
		slog.Int("extra_rows", w.ExtraRows),
	)
}

// cardinalityWarnings returns a warning for every step that fanned out.
func cardinalityWarnings(steps []StepResult) []JoinCardinalityWarning {
	var out []JoinCardinalityWarning
	for _, r := range steps {
		if !r.Stats.FannedOut() {
			continue
		}
		out = append(out, JoinCardinalityWarning{
			Step:          r.Step,
			Source:        r.Step.Source,
			Key:           r.Step.Key(),
			FannedOutRows: r.Stats.FannedOutRows,
			ExtraRows:     r.Stats.ExtraRows(),
		})
	}
	return out
}
