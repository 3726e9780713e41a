package dataset

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjranagit/idealfit/pkg/types"
)

const trainCSV = `x,y1,y2,y3,y4
-20.0,39.778572,-40.07859,-20.214268,-0.32491425
-19.9,39.604813,-39.784,-20.07095,-0.058819864
-19.8,40.09907,-40.018845,-19.906782,-0.4518296
-19.7,40.1511,-39.518402,-19.389118,-0.6120442
`

func TestRead(t *testing.T) {
	table, err := Read(strings.NewReader(trainCSV), "train")
	require.NoError(t, err)

	assert.Equal(t, "train", table.Name)
	assert.Equal(t, []string{"x", "y1", "y2", "y3", "y4"}, table.ColumnNames())
	assert.Equal(t, 4, table.Rows())

	y2, ok := table.Column("y2")
	require.True(t, ok)
	assert.Equal(t, -39.784, y2.Values[1])
}

func TestReadNormalisesHeader(t *testing.T) {
	table, err := Read(strings.NewReader(" X , Y\n1, 2\n"), "test")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, table.ColumnNames())
}

func TestReadMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "non numeric", input: "x,y\n1,abc\n"},
		{name: "no x column", input: "a,b\n1,2\n"},
		{name: "short row", input: "x,y\n1,2\n3\n"},
		{name: "nan cell", input: "x,y\n1,NaN\n"},
		{name: "lower case nan", input: "x,y\n1,2\n2,nan\n"},
		{name: "infinite cell", input: "x,y\n+Inf,2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input), "bad")
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestReadCSVMissingFile(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "nope.csv"), "train")
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestReadPoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.csv")
	require.NoError(t, os.WriteFile(path, []byte("x,y\n17.5,34.16104\n0.3,1.2151024\n-8.7,-16.843908\n"), 0o644))

	points, err := ReadPoints(path)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, types.QueryPoint{X: 0.3, Y: 1.2151024}, points[1])
}

func TestPointsNeedsY(t *testing.T) {
	table := types.NewTable("t", types.Series{Name: "x", Values: []float64{1}})
	_, err := Points(table)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestWriteResults(t *testing.T) {
	results := []types.PointResult{
		{Point: types.QueryPoint{X: 1, Y: 2}, Candidate: "y36", Matched: true, Deviation: 0.25},
		{Point: types.QueryPoint{X: 3, Y: 4}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, results))

	assert.Equal(t, "x,y,ideal_function,deviation\n1,2,y36,0.25\n3,4,,0\n", buf.String())
}
