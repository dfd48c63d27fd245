// Package roster holds the uploaded table of student records. Every column is
// kept as text so that the table exported after prediction carries exactly
// the bytes the teacher uploaded, plus the risk label column.
//
// Numeric views of the table (the feature matrix) are derived on demand and
// never written back into the roster itself.
package roster

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"simpleml/internal/common"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

var (
	// ErrMalformedCSV is returned when the upload cannot be parsed as CSV.
	ErrMalformedCSV = errors.New("malformed CSV")
	// ErrNoRows is returned when the upload has a header but no records.
	ErrNoRows = errors.New("no student records in upload")
	// ErrLabelCount is returned when labels do not line up with the rows.
	ErrLabelCount = errors.New("label count does not match row count")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Roster is one uploaded table of student records.
type Roster struct {
	df dataframe.DataFrame
}

// Load parses a CSV with a header row. Column names must be unique.
func Load(r io.Reader) (*Roster, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrNoRows
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
	}
	if len(records) < 2 {
		return nil, ErrNoRows
	}
	if err := checkHeader(records[0]); err != nil {
		return nil, err
	}

	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nil),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCSV, df.Err)
	}

	return &Roster{df: df}, nil
}

// checkHeader rejects header rows the table would have to rename.
func checkHeader(header []string) error {
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		if name == "" {
			return fmt.Errorf("%w: column %d has no name", ErrMalformedCSV, i+1)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate column %q", ErrMalformedCSV, name)
		}
		seen[name] = true
	}
	return nil
}

func fromFrame(df dataframe.DataFrame) (*Roster, error) {
	if df.Err != nil {
		return nil, df.Err
	}
	return &Roster{df: df}, nil
}

// Columns returns the column names in upload order.
func (r *Roster) Columns() []string {
	return r.df.Names()
}

// HasColumn reports whether the named column exists.
func (r *Roster) HasColumn(name string) bool {
	for _, n := range r.df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Len is the number of student records.
func (r *Roster) Len() int {
	return r.df.Nrow()
}

// Column returns the raw cell values of one column.
func (r *Roster) Column(name string) ([]string, error) {
	if !r.HasColumn(name) {
		return nil, fmt.Errorf("column %q not found", name)
	}
	return r.df.Col(name).Records(), nil
}

// Records returns the header followed by every row.
func (r *Roster) Records() [][]string {
	return r.df.Records()
}

// Preview returns the header and at most n rows.
func (r *Roster) Preview(n int) [][]string {
	records := r.df.Records()
	if n >= 0 && len(records) > n+1 {
		records = records[:n+1]
	}
	return records
}

// WithColumn returns a copy of the roster with the column added, or replaced
// when a column of that name already exists.
func (r *Roster) WithColumn(name string, values []string) (*Roster, error) {
	if len(values) != r.Len() {
		return nil, fmt.Errorf("column %q: %d values for %d rows", name, len(values), r.Len())
	}
	return fromFrame(r.df.Mutate(series.New(values, series.String, name)))
}

// WithLabels appends the risk label column.
func (r *Roster) WithLabels(labels []string) (*Roster, error) {
	if len(labels) != r.Len() {
		return nil, fmt.Errorf("%w: %d labels for %d rows", ErrLabelCount, len(labels), r.Len())
	}
	return r.WithColumn(common.RiskColumn, labels)
}

// Display is the table shown to the teacher: the name column next to the
// risk label when the name column exists, otherwise the whole table.
func (r *Roster) Display(nameColumn string) [][]string {
	if nameColumn != "" && r.HasColumn(nameColumn) && r.HasColumn(common.RiskColumn) {
		return r.df.Select([]string{nameColumn, common.RiskColumn}).Records()
	}
	return r.df.Records()
}

// WriteCSV exports the roster with its header.
func (r *Roster) WriteCSV(w io.Writer) error {
	return r.df.WriteCSV(w)
}
