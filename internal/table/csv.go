package table

// csv.go - CSV reading and writing

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const utf8BOM = "\ufeff"

// ErrNoHeader is returned when a CSV input has no header row.
var ErrNoHeader = errors.New("missing header row")

// ReadCSV parses comma-delimited input with a header row.
// Header names are trimmed of surrounding whitespace; empty fields are read
// as absent values.
func ReadCSV(r io.Reader, name string) (*Table, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoHeader
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		columns[i] = strings.TrimSpace(h)
	}

	t, err := New(name, columns)
	if err != nil {
		return nil, err
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}

		row := make(Row, len(record))
		for i, field := range record {
			if field == "" {
				row[i] = Null
				continue
			}
			row[i] = Str(field)
		}
		t.Rows = append(t.Rows, row)
	}

	return t, nil
}

// ReadCSVFile opens and parses a CSV file.
func ReadCSVFile(path, name string) (*Table, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the configured data directory
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return ReadCSV(f, name)
}

// WriteCSV writes the table with a header row and no index column.
// Absent values are written as empty fields. Output is deterministic for a
// given table.
func WriteCSV(w io.Writer, t *Table) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, v := range row {
			record[i] = v.String()
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
