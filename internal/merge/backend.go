package merge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nexgen-logistics/shipmerge/internal/source"
	"github.com/nexgen-logistics/shipmerge/internal/table"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendDuckDB = "duckdb"
)

// Output is the joined table and per-step statistics.
type Output struct {
	Table *table.Table
	Steps []StepResult
}

// Backend executes a join plan over loaded sources.
type Backend interface {
	Name() string
	Execute(ctx context.Context, set source.Set, plan []Step) (*Output, error)
}

// BackendConfig configures backend construction.
type BackendConfig struct {
	// DuckDBPath is the database file used by the duckdb backend.
	// Empty means an in-memory database.
	DuckDBPath string
	Logger     *slog.Logger
}

// Backends returns the available backend names.
func Backends() []string {
	return []string{BackendDuckDB, BackendMemory}
}

// NewBackend creates the named backend.
func NewBackend(name string, cfg BackendConfig) (Backend, error) {
	switch name {
	case "", BackendMemory:
		return NewMemoryBackend(cfg.Logger), nil
	case BackendDuckDB:
		return NewDuckDBBackend(cfg.DuckDBPath, cfg.Logger), nil
	default:
		return nil, &UnknownBackendError{Name: name, Available: Backends()}
	}
}

// UnknownBackendError is returned for an unrecognised backend name.
type UnknownBackendError struct {
	Name      string
	Available []string
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("unknown merge backend %q (available: %v)", e.Name, e.Available)
}
