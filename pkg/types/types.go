package types

import (
	"errors"
	"fmt"
)

// XColumn is the name of the shared x-axis column of every table
const XColumn = "x"

var (
	// ErrMissingX is returned when a table has no x-axis column
	ErrMissingX = errors.New("table has no x column")

	// ErrRaggedTable is returned when the columns of a table differ in length
	ErrRaggedTable = errors.New("table columns differ in length")
)

// Series is one named column of samples
type Series struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Len returns the number of samples in the series
func (s Series) Len() int {
	return len(s.Values)
}

// Clone returns a deep copy of the series
func (s Series) Clone() Series {
	return Series{
		Name:   s.Name,
		Values: append([]float64(nil), s.Values...),
	}
}

// Table is an ordered set of equally long columns sharing the x column.
// Column order is significant: selection and classification pair columns
// by their ordinal position.
type Table struct {
	Name    string   `json:"name"`
	Columns []Series `json:"columns"`
}

// NewTable builds a table from columns in the given order
func NewTable(name string, columns ...Series) *Table {
	return &Table{Name: name, Columns: columns}
}

// X returns the x-axis column
func (t *Table) X() (Series, bool) {
	return t.Column(XColumn)
}

// Column returns the first column with the given name
func (t *Table) Column(name string) (Series, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Series{}, false
}

// ValueColumns returns every non-x column in table order
func (t *Table) ValueColumns() []Series {
	cols := make([]Series, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name != XColumn {
			cols = append(cols, c)
		}
	}
	return cols
}

// ColumnNames returns all column names in table order
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Rows returns the number of rows, taken from the first column
func (t *Table) Rows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return t.Columns[0].Len()
}

// Validate checks that the table has an x column and that all columns
// share the same length
func (t *Table) Validate() error {
	if _, ok := t.X(); !ok {
		return fmt.Errorf("%q: %w", t.Name, ErrMissingX)
	}

	rows := t.Rows()
	for _, c := range t.Columns {
		if c.Len() != rows {
			return fmt.Errorf("%q column %q has %d rows, want %d: %w",
				t.Name, c.Name, c.Len(), rows, ErrRaggedTable)
		}
	}

	return nil
}

// Clone returns a deep copy of the table
func (t *Table) Clone() *Table {
	cols := make([]Series, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = c.Clone()
	}
	return &Table{Name: t.Name, Columns: cols}
}

// Pair links a training column to the candidate chosen for it
type Pair struct {
	Training  string  `json:"training"`
	Candidate string  `json:"candidate"`
	SSE       float64 `json:"sse"`
}

// CandidateMatch is the result of candidate selection, ordered like the
// training columns it was built from
type CandidateMatch struct {
	Pairs []Pair `json:"pairs"`
}

// Lookup returns the candidate chosen for a training column
func (m CandidateMatch) Lookup(training string) (string, bool) {
	for _, p := range m.Pairs {
		if p.Training == training {
			return p.Candidate, true
		}
	}
	return "", false
}

// QueryPoint is a single (x, y) test sample
type QueryPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PointResult is the classification outcome of one query point.
// Candidate is empty when Matched is false.
type PointResult struct {
	Point     QueryPoint `json:"point"`
	Candidate string     `json:"candidate,omitempty"`
	Matched   bool       `json:"matched"`
	Deviation float64    `json:"deviation"`
	Err       string     `json:"error,omitempty"`
}

// Failed reports whether the point could not be classified at all
func (r PointResult) Failed() bool {
	return r.Err != ""
}
