package merge

import (
	"context"
	"log/slog"

	"github.com/nexgen-logistics/shipmerge/internal/source"
	"github.com/nexgen-logistics/shipmerge/internal/table"
)

// MemoryBackend joins sources with in-process hash joins.
type MemoryBackend struct {
	logger *slog.Logger
}

// NewMemoryBackend creates a memory backend. A nil logger discards output.
func NewMemoryBackend(logger *slog.Logger) *MemoryBackend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MemoryBackend{logger: logger}
}

// Name implements Backend.
func (b *MemoryBackend) Name() string { return BackendMemory }

// Execute implements Backend.
func (b *MemoryBackend) Execute(ctx context.Context, set source.Set, plan []Step) (*Output, error) {
	if _, err := layoutPlan(set, plan); err != nil {
		return nil, err
	}

	acc := set.Table(source.Orders)
	results := make([]StepResult, 0, len(plan))
	for _, st := range plan {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, stats, err := table.LeftJoin(acc, set.Table(st.Source), st.Spec())
		if err != nil {
			return nil, err
		}

		b.logger.Debug("join step complete",
			slog.Int("step", st.Number),
			slog.String("source", string(st.Source)),
			slog.Int("rows", stats.OutRows),
			slog.Int("unmatched", stats.Unmatched))

		results = append(results, StepResult{Step: st, Stats: stats})
		acc = out
	}

	return &Output{Table: acc, Steps: results}, nil
}

var _ Backend = (*MemoryBackend)(nil)
