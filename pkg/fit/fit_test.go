package fit_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjranagit/idealfit/pkg/fit"
	"github.com/vjranagit/idealfit/pkg/types"
)

func col(name string, vals ...float64) types.Series {
	return types.Series{Name: name, Values: vals}
}

// ---------------------------------------------------------------------------
// Select
// ---------------------------------------------------------------------------

func TestSelect_PicksZeroErrorCandidate(t *testing.T) {
	train := types.NewTable("train", col("x", 0, 1, 2), col("y1", 1, 2, 3))
	ideal := types.NewTable("ideal", col("x", 0, 1, 2), col("c1", 1, 2, 3), col("c2", 10, 20, 30))

	sel, err := fit.Select(train, ideal)
	require.NoError(t, err)

	got, ok := sel.Match.Lookup("y1")
	require.True(t, ok)
	assert.Equal(t, "c1", got)
	assert.Equal(t, 0.0, sel.Match.Pairs[0].SSE)
}

func TestSelect_TieGoesToFirstCandidate(t *testing.T) {
	train := types.NewTable("train", col("x", 0, 1), col("y1", 0, 0))
	ideal := types.NewTable("ideal", col("x", 0, 1), col("up", 1, 1), col("down", -1, -1))

	sel, err := fit.Select(train, ideal)
	require.NoError(t, err)
	assert.Equal(t, "up", sel.Match.Pairs[0].Candidate)
}

func TestSelect_ReducedTableLayout(t *testing.T) {
	train := types.NewTable("train",
		col("x", 0, 1, 2),
		col("y1", 1, 2, 3),
		col("y2", -1, -2, -3),
		col("y3", 1, 2, 3),
	)
	ideal := types.NewTable("ideal",
		col("x", 0.5, 1.5, 2.5),
		col("neg", -1, -2, -3.1),
		col("pos", 1, 2, 3.1),
	)

	sel, err := fit.Select(train, ideal)
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "pos", "neg", "pos"}, sel.Reduced.ColumnNames(),
		"chosen columns follow training order and may repeat")

	x, ok := sel.Reduced.X()
	require.True(t, ok)
	assert.Equal(t, []float64{0.5, 1.5, 2.5}, x.Values, "x comes from the candidate table")

	sel.Reduced.Columns[1].Values[0] = 99
	assert.Equal(t, 1.0, ideal.Columns[2].Values[0], "reduced table must not alias the input")
}

func TestSelect_Minimality(t *testing.T) {
	train := types.NewTable("train",
		col("x", 0, 1, 2, 3),
		col("y1", 0.1, 1.1, 3.9, 9.2),
		col("y2", 3.0, 2.1, 0.8, 0.1),
	)
	ideal := types.NewTable("ideal",
		col("x", 0, 1, 2, 3),
		col("lin", 0, 1, 2, 3),
		col("sq", 0, 1, 4, 9),
		col("dec", 3, 2, 1, 0),
		col("flat", 1, 1, 1, 1),
	)

	sel, err := fit.Select(train, ideal)
	require.NoError(t, err)

	for _, p := range sel.Match.Pairs {
		tr, _ := train.Column(p.Training)
		for _, cand := range ideal.ValueColumns() {
			sse, err := fit.PositionalSSE(tr, cand)
			require.NoError(t, err)
			assert.LessOrEqual(t, p.SSE, sse, "%s: chosen %s beaten by %s", p.Training, p.Candidate, cand.Name)
		}
	}
	assert.Equal(t, "sq", sel.Match.Pairs[0].Candidate)
	assert.Equal(t, "dec", sel.Match.Pairs[1].Candidate)
}

func TestSelect_NaNTotalNeverWins(t *testing.T) {
	train := types.NewTable("train", col("x", 0, 1, 2), col("y1", 1, 2, 3))
	ideal := types.NewTable("ideal",
		col("x", 0, 1, 2),
		col("bad", math.NaN(), 50, 50),
		col("good", 1, 2, 3),
	)

	sel, err := fit.Select(train, ideal)
	require.NoError(t, err)
	assert.Equal(t, "good", sel.Match.Pairs[0].Candidate)
	assert.Equal(t, 0.0, sel.Match.Pairs[0].SSE)

	// with nothing finite to choose from the first column still wins
	only := types.NewTable("ideal", col("x", 0, 1, 2), col("bad", math.NaN(), 1, 1))
	sel, err = fit.Select(train, only)
	require.NoError(t, err)
	assert.Equal(t, "bad", sel.Match.Pairs[0].Candidate)
	assert.True(t, math.IsInf(sel.Match.Pairs[0].SSE, 1))
}

func TestFromReduced(t *testing.T) {
	train := types.NewTable("train", col("x", 0, 1, 2), col("y1", 1, 2, 3), col("y2", 3, 2, 1))
	ideal := types.NewTable("ideal", col("x", 0, 1, 2), col("up", 1, 2, 3.5), col("down", 3, 2, 1))

	sel, err := fit.Select(train, ideal)
	require.NoError(t, err)

	rebuilt, err := fit.FromReduced(train, sel.Reduced)
	require.NoError(t, err)
	assert.Equal(t, sel.Match, rebuilt.Match)
	assert.Equal(t, sel.Reduced, rebuilt.Reduced)

	short := types.NewTable("selected", col("x", 0, 1, 2), col("up", 1, 2, 3.5))
	_, err = fit.FromReduced(train, short)
	assert.ErrorIs(t, err, fit.ErrShapeMismatch)
}

func TestSelect_Deterministic(t *testing.T) {
	train := types.NewTable("train", col("x", 0, 1, 2), col("y1", 1, 2, 3), col("y2", 3, 2, 1))
	ideal := types.NewTable("ideal", col("x", 0, 1, 2), col("a", 1, 2, 3), col("b", 3, 2, 1), col("c", 1, 2, 3))

	first, err := fit.Select(train, ideal)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := fit.Select(train, ideal)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSelect_Errors(t *testing.T) {
	tests := []struct {
		name    string
		train   *types.Table
		ideal   *types.Table
		wantErr error
	}{
		{
			name:    "length mismatch",
			train:   types.NewTable("train", col("x", 0, 1, 2), col("y1", 1, 2, 3)),
			ideal:   types.NewTable("ideal", col("x", 0, 1), col("a", 1, 2)),
			wantErr: fit.ErrShapeMismatch,
		},
		{
			name:    "training without x",
			train:   types.NewTable("train", col("y1", 1)),
			ideal:   types.NewTable("ideal", col("x", 0), col("a", 1)),
			wantErr: types.ErrMissingX,
		},
		{
			name:    "candidates without value columns",
			train:   types.NewTable("train", col("x", 0), col("y1", 1)),
			ideal:   types.NewTable("ideal", col("x", 0)),
			wantErr: fit.ErrNoValueColumns,
		},
		{
			name:    "nil training",
			ideal:   types.NewTable("ideal", col("x", 0), col("a", 1)),
			wantErr: fit.ErrNoValueColumns,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fit.Select(tt.train, tt.ideal)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSelect_ShapeErrorDetails(t *testing.T) {
	train := types.NewTable("train", col("x", 0, 1, 2), col("y1", 1, 2, 3))
	ideal := types.NewTable("ideal", col("x", 0, 1), col("a", 1, 2))

	_, err := fit.Select(train, ideal)
	var shape *fit.ShapeError
	require.True(t, errors.As(err, &shape))
	assert.Equal(t, "y1", shape.Left)
	assert.Equal(t, 3, shape.LeftLen)
	assert.Equal(t, "a", shape.Right)
	assert.Equal(t, 2, shape.RightLen)
}

// ---------------------------------------------------------------------------
// Classifier
// ---------------------------------------------------------------------------

// toleranceOneTables builds a single pair whose training deviations are [0,0,1].
func toleranceOneTables() (*types.Table, *types.Table) {
	train := types.NewTable("train", col("x", 0, 1, 2), col("y1", 1, 2, 3))
	reduced := types.NewTable("selected", col("x", 0, 1, 2), col("c", 1, 2, 4))
	return train, reduced
}

func TestClassifier_ToleranceBasis(t *testing.T) {
	train, reduced := toleranceOneTables()

	clf, err := fit.NewClassifier(train, reduced, nil)
	require.NoError(t, err)

	curves := clf.Curves()
	require.Len(t, curves, 1)
	assert.Equal(t, "y1", curves[0].Training)
	assert.Equal(t, "c", curves[0].Candidate)
	assert.Equal(t, 1.0, curves[0].ToleranceBasis)
	assert.Equal(t, math.Sqrt2, curves[0].Threshold)
}

func TestClassifier_Admissibility(t *testing.T) {
	train, reduced := toleranceOneTables()
	clf, err := fit.NewClassifier(train, reduced, nil)
	require.NoError(t, err)

	tests := []struct {
		name        string
		y           float64
		wantMatched bool
		wantDev     float64
	}{
		{name: "deviation 1.0 is inside the √2 band", y: 5, wantMatched: true, wantDev: 1},
		{name: "deviation 1.5 is outside the √2 band", y: 5.5, wantMatched: false, wantDev: 0},
		{name: "exact hit", y: 4, wantMatched: true, wantDev: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := clf.Classify(types.QueryPoint{X: 2, Y: tt.y})
			require.NoError(t, err)
			assert.Equal(t, tt.wantMatched, res.Matched)
			assert.Equal(t, tt.wantDev, res.Deviation)
			if tt.wantMatched {
				assert.Equal(t, "c", res.Candidate)
			} else {
				assert.Empty(t, res.Candidate)
			}
		})
	}
}

func TestClassifier_BoundaryIsExclusive(t *testing.T) {
	train := types.NewTable("train", col("x", 0, 1, 2), col("y1", 0, 0, 1))
	reduced := types.NewTable("selected", col("x", 0, 1, 2), col("c", 0, 0, 0))

	clf, err := fit.NewClassifier(train, reduced, nil)
	require.NoError(t, err)

	res, err := clf.Classify(types.QueryPoint{X: 0, Y: math.Sqrt2})
	require.NoError(t, err)
	assert.False(t, res.Matched, "deviation equal to the threshold is not admissible")

	res, err = clf.Classify(types.QueryPoint{X: 0, Y: math.Nextafter(math.Sqrt2, 0)})
	require.NoError(t, err)
	assert.True(t, res.Matched, "deviation just below the threshold is admissible")
}

func TestClassifier_MissingXFails(t *testing.T) {
	train, reduced := toleranceOneTables()
	clf, err := fit.NewClassifier(train, reduced, nil)
	require.NoError(t, err)

	res, err := clf.Classify(types.QueryPoint{X: 0.5, Y: 1})
	require.ErrorIs(t, err, fit.ErrNoExactX)

	var lookup *fit.LookupError
	require.True(t, errors.As(err, &lookup))
	assert.Equal(t, "c", lookup.Candidate)
	assert.Equal(t, 0.5, lookup.X)
	assert.True(t, res.Failed())
	assert.False(t, res.Matched)
}

func TestClassifier_PicksSmallestDeviation(t *testing.T) {
	train := types.NewTable("train", col("x", 0, 1), col("y1", 0, 0), col("y2", 0, 0))
	reduced := types.NewTable("selected", col("x", 0, 1), col("c1", 1.0, 0), col("c2", 1.2, 0))

	clf, err := fit.NewClassifier(train, reduced, nil)
	require.NoError(t, err)

	res, err := clf.Classify(types.QueryPoint{X: 0, Y: 1.5})
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, "c2", res.Candidate)
	assert.InDelta(t, 0.3, res.Deviation, 1e-12)
}

func TestClassifier_TieGoesToFirstColumn(t *testing.T) {
	train := types.NewTable("train", col("x", 0, 1), col("y1", 0, 1), col("y2", 0, 1))
	reduced := types.NewTable("selected", col("x", 0, 1), col("a", 0, 2), col("b", 0, 2))

	clf, err := fit.NewClassifier(train, reduced, nil)
	require.NoError(t, err)

	res, err := clf.Classify(types.QueryPoint{X: 0, Y: 0.5})
	require.NoError(t, err)
	assert.Equal(t, "a", res.Candidate)
}

func TestClassifier_ToleranceMonotonicity(t *testing.T) {
	points := []types.QueryPoint{{X: 0, Y: 0.2}, {X: 1, Y: 1.9}, {X: 2, Y: 3.5}, {X: 2, Y: 5.3}}
	reduced := types.NewTable("selected", col("x", 0, 1, 2), col("c", 0, 1, 4))

	prev := map[int]bool{}
	for _, widen := range []float64{0, 0.5, 1, 3} {
		train := types.NewTable("train", col("x", 0, 1, 2), col("y1", 0, 1, 3-widen))
		clf, err := fit.NewClassifier(train, reduced, nil)
		require.NoError(t, err)

		for i, p := range points {
			res, err := clf.Classify(p)
			require.NoError(t, err)
			if prev[i] {
				assert.True(t, res.Matched, "point %d lost admissibility at widen=%v", i, widen)
			}
			prev[i] = res.Matched
		}
	}
}

func TestClassifier_MaxPairs(t *testing.T) {
	train := types.NewTable("train",
		col("x", 0), col("y1", 0), col("y2", 0), col("y3", 0), col("y4", 0), col("y5", 0))
	reduced := types.NewTable("selected",
		col("x", 0), col("a", 1), col("b", 1), col("c", 1), col("d", 1), col("e", 1))

	clf, err := fit.NewClassifier(train, reduced, nil)
	require.NoError(t, err)
	assert.Len(t, clf.Curves(), fit.DefaultMaxPairs)

	clf, err = fit.NewClassifier(train, reduced, &fit.Options{MaxPairs: 0})
	require.NoError(t, err)
	assert.Len(t, clf.Curves(), 5)

	_, err = fit.NewClassifier(train, reduced, &fit.Options{MaxPairs: -1})
	assert.ErrorIs(t, err, fit.ErrBadOption)
}

func TestClassifier_ShapeMismatch(t *testing.T) {
	train := types.NewTable("train", col("x", 0, 1, 2), col("y1", 0, 1, 2))
	reduced := types.NewTable("selected", col("x", 0, 1), col("c", 0, 1))

	_, err := fit.NewClassifier(train, reduced, nil)
	assert.ErrorIs(t, err, fit.ErrShapeMismatch)
}

func TestClassifier_DoesNotMutateInputs(t *testing.T) {
	train, reduced := toleranceOneTables()
	trainCopy, reducedCopy := train.Clone(), reduced.Clone()

	clf, err := fit.NewClassifier(train, reduced, nil)
	require.NoError(t, err)
	_, _ = clf.Classify(types.QueryPoint{X: 1, Y: 2})

	assert.Equal(t, trainCopy, train)
	assert.Equal(t, reducedCopy, reduced)

	// later edits to the inputs do not leak into the classifier
	reduced.Columns[1].Values[2] = 100
	res, err := clf.Classify(types.QueryPoint{X: 2, Y: 4})
	require.NoError(t, err)
	assert.True(t, res.Matched)
}

func TestClassifier_ClassifyAll(t *testing.T) {
	train, reduced := toleranceOneTables()
	points := []types.QueryPoint{
		{X: 0, Y: 1},
		{X: 9, Y: 1},
		{X: 2, Y: 5.5},
		{X: 1, Y: 2.5},
	}

	for _, workers := range []int{1, 3} {
		clf, err := fit.NewClassifier(train, reduced, &fit.Options{MaxPairs: fit.DefaultMaxPairs, Workers: workers})
		require.NoError(t, err)

		results := clf.ClassifyAll(points)
		require.Len(t, results, len(points))

		for i, r := range results {
			assert.Equal(t, points[i], r.Point, "results keep input order")
		}
		assert.True(t, results[0].Matched)
		assert.True(t, results[1].Failed(), "unknown x fails only its own point")
		assert.False(t, results[2].Matched)
		assert.False(t, results[2].Failed())
		assert.True(t, results[3].Matched)
		assert.Equal(t, 0.5, results[3].Deviation)
	}
}

// ---------------------------------------------------------------------------
// alignment helpers
// ---------------------------------------------------------------------------

func TestExactLookup_FirstMatchWins(t *testing.T) {
	xs := col("x", 0, 1, 1, 2)
	ys := col("c", 10, 11, 12, 13)

	y, err := fit.ExactLookup(xs, ys, 1)
	require.NoError(t, err)
	assert.Equal(t, 11.0, y)

	_, err = fit.ExactLookup(xs, ys, 1.0000001)
	assert.ErrorIs(t, err, fit.ErrNoExactX, "no nearest-match fallback")
}

func TestPositionalHelpers(t *testing.T) {
	a := col("a", 1, 2, 3)
	b := col("b", 2, 2, 1)

	sse, err := fit.PositionalSSE(a, b)
	require.NoError(t, err)
	assert.Equal(t, 5.0, sse)

	worst, err := fit.PositionalMaxAbs(a, b)
	require.NoError(t, err)
	assert.Equal(t, 2.0, worst)

	_, err = fit.PositionalMaxAbs(a, col("short", 1))
	assert.ErrorIs(t, err, fit.ErrShapeMismatch)
}
