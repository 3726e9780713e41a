// Package dataset reads training, ideal and test tables from CSV and writes
// classified test points back out.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/vjranagit/idealfit/pkg/types"
)

var (
	// ErrSourceUnavailable wraps failures to open an input file
	ErrSourceUnavailable = errors.New("dataset: source unavailable")

	// ErrMalformed wraps CSV content that cannot become a table
	ErrMalformed = errors.New("dataset: malformed input")
)

// ReadCSV loads a table from a CSV file with a header row
func ReadCSV(path, name string) (*types.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}
	defer f.Close()

	return Read(f, name)
}

// Read parses CSV content into a table. Header names are trimmed and
// lower-cased so "X" and "x" both mark the x column. NaN and infinite
// cells are rejected.
func Read(r io.Reader, name string) (*types.Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s: empty input", ErrMalformed, name)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
	}

	table := &types.Table{Name: name, Columns: make([]types.Series, len(header))}
	for i, h := range header {
		table.Columns[i].Name = strings.ToLower(strings.TrimSpace(h))
	}

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrMalformed, name, line, err)
		}

		for i, cell := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s line %d column %q: %v",
					ErrMalformed, name, line, table.Columns[i].Name, err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: %s line %d column %q: non-finite value %q",
					ErrMalformed, name, line, table.Columns[i].Name, cell)
			}
			table.Columns[i].Values = append(table.Columns[i].Values, v)
		}
	}

	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return table, nil
}

// ReadPoints loads query points from a CSV file with x and y columns
func ReadPoints(path string) ([]types.QueryPoint, error) {
	table, err := ReadCSV(path, "test")
	if err != nil {
		return nil, err
	}
	return Points(table)
}

// Points turns a table with x and y columns into query points
func Points(table *types.Table) ([]types.QueryPoint, error) {
	xs, _ := table.X()
	ys, ok := table.Column("y")
	if !ok {
		return nil, fmt.Errorf("%w: %s: no y column", ErrMalformed, table.Name)
	}

	points := make([]types.QueryPoint, xs.Len())
	for i := range points {
		points[i] = types.QueryPoint{X: xs.Values[i], Y: ys.Values[i]}
	}
	return points, nil
}

// WriteResults writes classified points as x,y,ideal_function,deviation.
// Unmatched points leave ideal_function empty.
func WriteResults(w io.Writer, results []types.PointResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"x", "y", "ideal_function", "deviation"}); err != nil {
		return err
	}

	for _, r := range results {
		record := []string{
			strconv.FormatFloat(r.Point.X, 'g', -1, 64),
			strconv.FormatFloat(r.Point.Y, 'g', -1, 64),
			r.Candidate,
			strconv.FormatFloat(r.Deviation, 'g', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
