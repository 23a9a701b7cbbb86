// Package state records merge run history in SQLite.
// It tracks each run, the source files it read, and the join
// cardinality warnings it raised.
package state

import "time"

// RunStatus is the lifecycle state of a merge run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one execution of the merge pipeline.
type Run struct {
	ID           string     `json:"id"`
	Environment  string     `json:"environment"`
	Backend      string     `json:"backend"`
	Status       RunStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Error        string     `json:"error,omitempty"`
	Rows         int        `json:"rows"`
	Columns      int        `json:"columns"`
	OutputPath   string     `json:"output_path,omitempty"`
	OutputSHA256 string     `json:"output_sha256,omitempty"`
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// RunOutput describes the file a completed run wrote.
type RunOutput struct {
	Path    string
	SHA256  string
	Rows    int
	Columns int
}

// RunSource is a source file read by a run.
type RunSource struct {
	Source string `json:"source"`
	Path   string `json:"path"`
	Rows   int    `json:"rows"`
	SHA256 string `json:"sha256"`
}

// RunWarning is a join that produced more rows than its left input.
type RunWarning struct {
	Step          string `json:"step"`
	Source        string `json:"source"`
	Key           string `json:"key"`
	FannedOutRows int    `json:"fanned_out_rows"`
	ExtraRows     int    `json:"extra_rows"`
}

// Store persists run history.
type Store interface {
	Open(path string) error
	Close() error
	Migrate() error

	CreateRun(env, backend string) (*Run, error)
	RecordSource(runID string, src RunSource) error
	RecordWarning(runID string, w RunWarning) error
	CompleteRun(id string, status RunStatus, out RunOutput, errMsg string) error

	GetRun(id string) (*Run, error)
	GetLatestRun(env string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)
	GetRunSources(runID string) ([]RunSource, error)
	GetRunWarnings(runID string) ([]RunWarning, error)
}
