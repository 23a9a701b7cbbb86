package source

import "fmt"

// SourceNotFoundError is returned when a source file is missing, unreadable
// or cannot be parsed as CSV.
type SourceNotFoundError struct {
	Source Name
	Path   string
	Err    error
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("source %s: cannot load %s: %v", e.Source, e.Path, e.Err)
}

func (e *SourceNotFoundError) Unwrap() error {
	return e.Err
}

// MissingColumnError is returned when a join key or a column required by
// downstream consumers is absent.
type MissingColumnError struct {
	Source Name
	// Step is the pipeline step that needed the column: a join step name,
	// "contract", or "load" for a column no step claims.
	Step   string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("source %s is missing column %q (step %s)", e.Source, e.Column, e.Step)
}
