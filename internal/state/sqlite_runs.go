package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const runColumns = `id, environment, backend, status, started_at, completed_at, error,
	row_count, column_count, output_path, output_sha256`

// CreateRun creates a new merge run in the running state.
func (s *SQLiteStore) CreateRun(env, backend string) (*Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	run := &Run{
		ID:          generateID(),
		Environment: env,
		Backend:     backend,
		Status:      RunStatusRunning,
		StartedAt:   time.Now().UTC(),
	}

	s.logger.Debug("creating run", slog.String("id", run.ID), slog.String("environment", env))

	_, err := s.db.Exec(
		`INSERT INTO runs (id, environment, backend, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Environment, run.Backend, string(run.Status), formatTime(run.StartedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	return run, nil
}

// RecordSource stores a source file read by a run.
func (s *SQLiteStore) RecordSource(runID string, src RunSource) error {
	if s.db == nil {
		return errNotOpened
	}

	_, err := s.db.Exec(
		`INSERT INTO run_sources (run_id, source, path, row_count, sha256) VALUES (?, ?, ?, ?, ?)`,
		runID, src.Source, src.Path, src.Rows, src.SHA256,
	)
	if err != nil {
		return fmt.Errorf("failed to record source %s: %w", src.Source, err)
	}
	return nil
}

// RecordWarning stores a join cardinality warning raised by a run.
func (s *SQLiteStore) RecordWarning(runID string, w RunWarning) error {
	if s.db == nil {
		return errNotOpened
	}

	_, err := s.db.Exec(
		`INSERT INTO run_warnings (run_id, step, source, join_key, fanned_out_rows, extra_rows) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, w.Step, w.Source, w.Key, w.FannedOutRows, w.ExtraRows,
	)
	if err != nil {
		return fmt.Errorf("failed to record warning for step %s: %w", w.Step, err)
	}
	return nil
}

// CompleteRun marks a run as finished with the given status.
func (s *SQLiteStore) CompleteRun(id string, status RunStatus, out RunOutput, errMsg string) error {
	if s.db == nil {
		return errNotOpened
	}

	var errVal sql.NullString
	if errMsg != "" {
		errVal = sql.NullString{String: errMsg, Valid: true}
	}

	res, err := s.db.Exec(
		`UPDATE runs
		SET status = ?, completed_at = ?, error = ?, row_count = ?, column_count = ?, output_path = ?, output_sha256 = ?
		WHERE id = ?`,
		string(status), formatTime(time.Now()), errVal, out.Rows, out.Columns, out.Path, out.SHA256, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetLatestRun retrieves the most recent run for an environment.
// It returns nil without error when no run exists.
func (s *SQLiteStore) GetLatestRun(env string) (*Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	row := s.db.QueryRow(
		`SELECT `+runColumns+` FROM runs WHERE environment = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`,
		env,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves the most recent runs up to the given limit.
func (s *SQLiteStore) ListRuns(limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// GetRunSources returns the sources recorded for a run in insertion order.
func (s *SQLiteStore) GetRunSources(runID string) ([]RunSource, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.Query(
		`SELECT source, path, row_count, sha256 FROM run_sources WHERE run_id = ? ORDER BY rowid`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get run sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunSource
	for rows.Next() {
		var src RunSource
		if err := rows.Scan(&src.Source, &src.Path, &src.Rows, &src.SHA256); err != nil {
			return nil, fmt.Errorf("failed to scan run source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// GetRunWarnings returns the warnings recorded for a run in insertion order.
func (s *SQLiteStore) GetRunWarnings(runID string) ([]RunWarning, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.Query(
		`SELECT step, source, join_key, fanned_out_rows, extra_rows FROM run_warnings WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get run warnings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunWarning
	for rows.Next() {
		var w RunWarning
		if err := rows.Scan(&w.Step, &w.Source, &w.Key, &w.FannedOutRows, &w.ExtraRows); err != nil {
			return nil, fmt.Errorf("failed to scan run warning: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run         Run
		status      string
		startedAt   string
		completedAt sql.NullString
		errMsg      sql.NullString
	)
	err := sc.Scan(&run.ID, &run.Environment, &run.Backend, &status, &startedAt, &completedAt, &errMsg,
		&run.Rows, &run.Columns, &run.OutputPath, &run.OutputSHA256)
	if err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	run.Error = errMsg.String

	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("invalid started_at %q: %w", startedAt, err)
	}
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("invalid completed_at %q: %w", completedAt.String, err)
		}
		run.CompletedAt = &t
	}
	return &run, nil
}
