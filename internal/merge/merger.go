package merge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nexgen-logistics/shipmerge/internal/source"
	"github.com/nexgen-logistics/shipmerge/internal/state"
	"github.com/nexgen-logistics/shipmerge/internal/table"
)

// DefaultOutputFile is the merged dataset's file name.
const DefaultOutputFile = "merged_master_dataset.csv"

// Options configures a Merger.
type Options struct {
	// DataDir holds the seven source files.
	DataDir string
	// OutputPath is where the merged CSV is written.
	// Defaults to DataDir/merged_master_dataset.csv.
	OutputPath string
	// Backend executes the join plan. Defaults to the memory backend.
	Backend Backend
	// StrictContract fails the run when a downstream column is missing.
	StrictContract bool
	// CanonicalNames renames resolved contract columns to their logical
	// names, e.g. Product_Category_x to Product_Category.
	CanonicalNames bool
	// Environment labels the run in history.
	Environment string
	// Store records run history when set.
	Store state.Store
	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

// Merger runs the merge pipeline.
type Merger struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Merger.
func New(opts Options) *Merger {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Backend == nil {
		opts.Backend = NewMemoryBackend(opts.Logger)
	}
	if opts.OutputPath == "" {
		opts.OutputPath = filepath.Join(opts.DataDir, DefaultOutputFile)
	}
	return &Merger{opts: opts, logger: opts.Logger}
}

// Result describes a completed merge.
type Result struct {
	RunID        string                   `json:"run_id,omitempty"`
	Backend      string                   `json:"backend"`
	Table        *table.Table             `json:"-"`
	Steps        []StepResult             `json:"steps"`
	Warnings     []JoinCardinalityWarning `json:"warnings"`
	Sources      []*source.Loaded         `json:"-"`
	OutputPath   string                   `json:"output_path"`
	OutputSHA256 string                   `json:"output_sha256"`
	Rows         int                      `json:"rows"`
	Columns      int                      `json:"columns"`
}

// Run loads the sources, executes the join plan and writes the merged
// file. Any error aborts the run before the output file is replaced.
func (m *Merger) Run(ctx context.Context) (*Result, error) {
	backend := m.opts.Backend
	m.logger.Info("starting merge",
		slog.String("data_dir", m.opts.DataDir),
		slog.String("backend", backend.Name()))

	var runID string
	if m.opts.Store != nil {
		run, err := m.opts.Store.CreateRun(m.opts.Environment, backend.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to create run: %w", err)
		}
		runID = run.ID
		m.logger.Debug("created run", slog.String("run_id", runID))
	}

	res, err := m.run(ctx, runID)
	if err != nil {
		m.logger.Error("merge failed", slog.String("run_id", runID), slog.String("error", err.Error()))
		m.complete(runID, state.RunStatusFailed, state.RunOutput{}, err.Error())
		return nil, err
	}

	m.complete(runID, state.RunStatusCompleted, state.RunOutput{
		Path:    res.OutputPath,
		SHA256:  res.OutputSHA256,
		Rows:    res.Rows,
		Columns: res.Columns,
	}, "")

	m.logger.Info("merge complete",
		slog.String("output", res.OutputPath),
		slog.Int("rows", res.Rows),
		slog.Int("columns", res.Columns),
		slog.Int("warnings", len(res.Warnings)))

	return res, nil
}

func (m *Merger) run(ctx context.Context, runID string) (*Result, error) {
	set, err := source.NewLoader(m.opts.DataDir, m.logger).Load(ctx)
	if err != nil {
		return nil, err
	}

	sources := set.Ordered()
	for _, l := range sources {
		m.record(func(s state.Store) error {
			return s.RecordSource(runID, state.RunSource{
				Source: string(l.Name),
				Path:   l.Path,
				Rows:   l.Table.Len(),
				SHA256: l.SHA256,
			})
		})
	}

	out, err := m.opts.Backend.Execute(ctx, set, Plan())
	if err != nil {
		return nil, err
	}

	warnings := cardinalityWarnings(out.Steps)
	for _, w := range warnings {
		m.logger.Warn("join fan-out preserved", slog.Any("join", w))
		m.record(func(s state.Store) error {
			return s.RecordWarning(runID, state.RunWarning{
				Step:          w.Step.Name,
				Source:        string(w.Source),
				Key:           w.Key,
				FannedOutRows: w.FannedOutRows,
				ExtraRows:     w.ExtraRows,
			})
		})
	}

	merged := out.Table
	if missing := CheckContract(merged.Columns); len(missing) > 0 {
		if m.opts.StrictContract {
			c := missing[0]
			return nil, &source.MissingColumnError{Source: c.Source, Step: "contract", Column: c.Name}
		}
		for _, c := range missing {
			m.logger.Warn("downstream column missing", slog.String("column", c.Name), slog.String("source", string(c.Source)))
		}
	}

	if m.opts.CanonicalNames {
		if merged, err = Canonicalize(merged); err != nil {
			return nil, err
		}
	}
	merged.Name = stem(m.opts.OutputPath)

	sum, err := writeAtomic(m.opts.OutputPath, merged)
	if err != nil {
		return nil, err
	}

	return &Result{
		RunID:        runID,
		Backend:      m.opts.Backend.Name(),
		Table:        merged,
		Steps:        out.Steps,
		Warnings:     warnings,
		Sources:      sources,
		OutputPath:   m.opts.OutputPath,
		OutputSHA256: sum,
		Rows:         merged.Len(),
		Columns:      merged.Width(),
	}, nil
}

// record writes to the run history if one is configured. History
// failures are logged and do not fail the merge.
func (m *Merger) record(fn func(state.Store) error) {
	if m.opts.Store == nil {
		return
	}
	if err := fn(m.opts.Store); err != nil {
		m.logger.Warn("failed to record run history", slog.String("error", err.Error()))
	}
}

func (m *Merger) complete(runID string, status state.RunStatus, out state.RunOutput, errMsg string) {
	if runID == "" {
		return
	}
	m.record(func(s state.Store) error {
		return s.CompleteRun(runID, status, out, errMsg)
	})
}

// writeAtomic writes t to a temporary file beside path and renames it into
// place, returning the SHA-256 of the written bytes.
func writeAtomic(path string, t *table.Table) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	h := sha256.New()
	if err := table.WriteCSV(io.MultiWriter(tmp, h), t); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil { //nolint:gosec // the merged dataset is meant to be readable
		return "", fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("failed to replace %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
