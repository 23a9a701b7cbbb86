// Package source describes the seven logistics extracts and loads them
// from a data directory.
package source

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nexgen-logistics/shipmerge/internal/table"
)

// Name identifies a source.
type Name string

// Source names. Each matches its file stem.
const (
	Orders    Name = "orders"
	Delivery  Name = "delivery_performance"
	Routes    Name = "routes_distance"
	Fleet     Name = "vehicle_fleet"
	Warehouse Name = "warehouse_inventory"
	Feedback  Name = "customer_feedback"
	Cost      Name = "cost_breakdown"
)

// Join key columns.
const (
	OrderIDColumn         = "Order_ID"
	OriginColumn          = "Origin"
	LocationColumn        = "Location"
	CurrentLocationColumn = "Current_Location"
)

// Definition describes one source file.
type Definition struct {
	Name        Name
	File        string
	Description string
	// Required lists the columns the merge needs from this source.
	Required []string
	// RequiredBy names the join step that first needs each required column.
	RequiredBy map[string]string
}

// StepFor returns the join step that needs column, or "load" when no step
// claims it.
func (d Definition) StepFor(column string) string {
	if step, ok := d.RequiredBy[column]; ok {
		return step
	}
	return "load"
}

var catalog = []Definition{
	{
		Name: Orders, File: "orders.csv", Description: "Order metadata (anchor)",
		Required:   []string{OrderIDColumn, OriginColumn},
		RequiredBy: map[string]string{OrderIDColumn: "delivery", OriginColumn: "warehouse"},
	},
	{
		Name: Delivery, File: "delivery_performance.csv", Description: "Promised vs. actual delivery",
		Required:   []string{OrderIDColumn},
		RequiredBy: map[string]string{OrderIDColumn: "delivery"},
	},
	{
		Name: Routes, File: "routes_distance.csv", Description: "Route distance and traffic",
		Required:   []string{OrderIDColumn},
		RequiredBy: map[string]string{OrderIDColumn: "routes"},
	},
	{
		Name: Fleet, File: "vehicle_fleet.csv", Description: "Vehicle attributes by location",
		Required:   []string{CurrentLocationColumn},
		RequiredBy: map[string]string{CurrentLocationColumn: "fleet"},
	},
	{
		Name: Warehouse, File: "warehouse_inventory.csv", Description: "Warehouse attributes by location",
		Required:   []string{LocationColumn},
		RequiredBy: map[string]string{LocationColumn: "warehouse"},
	},
	{
		Name: Feedback, File: "customer_feedback.csv", Description: "Customer rating and feedback",
		Required:   []string{OrderIDColumn},
		RequiredBy: map[string]string{OrderIDColumn: "feedback"},
	},
	{
		Name: Cost, File: "cost_breakdown.csv", Description: "Cost components",
		Required:   []string{OrderIDColumn},
		RequiredBy: map[string]string{OrderIDColumn: "cost"},
	},
}

// Catalog returns the source definitions in load order.
func Catalog() []Definition {
	return append([]Definition(nil), catalog...)
}

// Lookup returns the definition for name.
func Lookup(name Name) (Definition, bool) {
	for _, d := range catalog {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}

// Loaded is a source read into memory.
type Loaded struct {
	Definition
	Path   string
	Table  *table.Table
	SHA256 string
	Size   int64
}

// Set holds every loaded source keyed by name.
type Set map[Name]*Loaded

// Table returns the table for name, or nil if it was not loaded.
func (s Set) Table(name Name) *table.Table {
	if l, ok := s[name]; ok {
		return l.Table
	}
	return nil
}

// Ordered returns the loaded sources in catalog order.
func (s Set) Ordered() []*Loaded {
	out := make([]*Loaded, 0, len(s))
	for _, d := range catalog {
		if l, ok := s[d.Name]; ok {
			out = append(out, l)
		}
	}
	return out
}

// Loader reads sources from a directory.
type Loader struct {
	dir    string
	logger *slog.Logger
}

// NewLoader creates a loader for dir. A nil logger discards output.
func NewLoader(dir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{dir: dir, logger: logger}
}

// Load reads all seven sources sequentially and validates their required
// columns. It stops at the first failure.
func (l *Loader) Load(ctx context.Context) (Set, error) {
	set := make(Set, len(catalog))
	for _, def := range catalog {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		loaded, err := l.LoadOne(def)
		if err != nil {
			return nil, err
		}
		set[def.Name] = loaded
	}
	return set, nil
}

// LoadOne reads a single source and validates its required columns.
func (l *Loader) LoadOne(def Definition) (*Loaded, error) {
	path := filepath.Join(l.dir, def.File)

	l.logger.Debug("loading source", "source", def.Name, "path", path)

	data, err := os.ReadFile(path) //nolint:gosec // path is built from the configured data directory
	if err != nil {
		return nil, &SourceNotFoundError{Source: def.Name, Path: path, Err: err}
	}

	t, err := table.ReadCSV(bytes.NewReader(data), string(def.Name))
	if err != nil {
		return nil, &SourceNotFoundError{Source: def.Name, Path: path, Err: fmt.Errorf("parse: %w", err)}
	}

	for _, col := range def.Required {
		if !t.HasColumn(col) {
			return nil, &MissingColumnError{Source: def.Name, Step: def.StepFor(col), Column: col}
		}
	}

	sum := sha256.Sum256(data)
	l.logger.Debug("source loaded", "source", def.Name, "rows", t.Len(), "columns", t.Width())

	return &Loaded{
		Definition: def,
		Path:       path,
		Table:      t,
		SHA256:     hex.EncodeToString(sum[:]),
		Size:       int64(len(data)),
	}, nil
}

// Summary describes one source file without validating it.
type Summary struct {
	Name    Name     `json:"name"`
	File    string   `json:"file"`
	Path    string   `json:"path"`
	Found   bool     `json:"found"`
	Rows    int      `json:"rows"`
	Columns []string `json:"columns"`
	Missing []string `json:"missing_required,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Describe lists each source's columns and row count. Missing or unreadable
// files are reported in the summary rather than returned as errors.
func (l *Loader) Describe() []Summary {
	out := make([]Summary, 0, len(catalog))
	for _, def := range catalog {
		path := filepath.Join(l.dir, def.File)
		s := Summary{Name: def.Name, File: def.File, Path: path}

		t, err := table.ReadCSVFile(path, string(def.Name))
		if err != nil {
			s.Error = err.Error()
			out = append(out, s)
			continue
		}

		s.Found = true
		s.Rows = t.Len()
		s.Columns = t.Columns
		for _, col := range def.Required {
			if !t.HasColumn(col) {
				s.Missing = append(s.Missing, col)
			}
		}
		out = append(out, s)
	}
	return out
}
