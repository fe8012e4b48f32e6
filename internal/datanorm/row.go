package datanorm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ignite/rtb-ingest/internal/reports"
)

var (
	// ErrMissingValue marks a required dimension that is empty in a row.
	ErrMissingValue = errors.New("missing value")
	// ErrInvalidDate marks a date no known layout could parse.
	ErrInvalidDate = errors.New("invalid date")
)

// RawRow maps header text to the cell value of one CSV line.
type RawRow map[string]string

// NewRawRow pairs record cells with header names. Short records read as
// empty cells; cells beyond the header are dropped. A repeated header keeps
// the cell of its first column, the one the classifier maps.
func NewRawRow(header, record []string) RawRow {
	row := make(RawRow, len(header))
	for i, h := range header {
		if _, seen := row[h]; seen {
			continue
		}
		if i < len(record) {
			row[h] = record[i]
		} else {
			row[h] = ""
		}
	}
	return row
}

// Issue is a value that could not be parsed and fell back to a default.
type Issue struct {
	Field  reports.Field
	Value  string
	Reason string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s %q", i.Field, i.Reason, i.Value)
}

// RowReader reads typed values for logical fields out of a RawRow. Every
// fallback to a default is recorded as an Issue instead of disappearing.
type RowReader struct {
	row    RawRow
	cols   map[reports.Field]string
	issues []Issue
}

// NewRowReader reads row through the column map of a detection.
func NewRowReader(row RawRow, cols map[reports.Field]string) *RowReader {
	return &RowReader{row: row, cols: cols}
}

// Issues returns the fallbacks recorded so far.
func (r *RowReader) Issues() []Issue { return r.issues }

func (r *RowReader) cell(f reports.Field) (string, bool) {
	h, ok := r.cols[f]
	if !ok {
		return "", false
	}
	return strings.TrimSpace(r.row[h]), true
}

func (r *RowReader) issue(f reports.Field, val, reason string) {
	r.issues = append(r.issues, Issue{Field: f, Value: val, Reason: reason})
}

// Text returns the trimmed cell, empty when the column is absent.
func (r *RowReader) Text(f reports.Field) string {
	v, _ := r.cell(f)
	return v
}

// Required returns the trimmed cell or ErrMissingValue when it is empty.
func (r *RowReader) Required(f reports.Field) (string, error) {
	v := r.Text(f)
	if v == "" {
		return "", fmt.Errorf("%s: %w", reports.Label(f), ErrMissingValue)
	}
	return v, nil
}

// Optional returns nil for an absent column or empty cell.
func (r *RowReader) Optional(f reports.Field) *string {
	v, ok := r.cell(f)
	if !ok || v == "" {
		return nil
	}
	return &v
}

// Int parses a count, recording an issue and returning 0 on failure.
func (r *RowReader) Int(f reports.Field) int64 {
	v, _ := r.cell(f)
	n, ok := ParseInt(v)
	if !ok {
		r.issue(f, v, "invalid integer")
	}
	return n
}

// OptionalInt is Int for columns that may be absent; nil when absent or empty.
func (r *RowReader) OptionalInt(f reports.Field) *int64 {
	v, ok := r.cell(f)
	if !ok || v == "" {
		return nil
	}
	n, ok := ParseInt(v)
	if !ok {
		r.issue(f, v, "invalid integer")
		return nil
	}
	return &n
}

// Micros parses a currency amount into micros, recording an issue on failure.
func (r *RowReader) Micros(f reports.Field) int64 {
	v, _ := r.cell(f)
	n, ok := ParseMicros(v)
	if !ok {
		r.issue(f, v, "invalid amount")
	}
	return n
}

// Bool reads a flag column; absent columns read false.
func (r *RowReader) Bool(f reports.Field) bool {
	return ParseBool(r.Text(f))
}

// Date parses a required date dimension. Empty or unparsable dates are row
// errors because a record cannot be keyed without one.
func (r *RowReader) Date(f reports.Field) (string, error) {
	v, err := r.Required(f)
	if err != nil {
		return "", err
	}
	d, ok := ParseDate(v)
	if !ok {
		return "", fmt.Errorf("%s %q: %w", reports.Label(f), v, ErrInvalidDate)
	}
	return d, nil
}
