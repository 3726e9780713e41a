package fit

import (
	"math"

	"github.com/vjranagit/idealfit/pkg/types"
)

// PositionalSSE returns Σ (candidate[i] - training[i])² with rows matched by
// ordinal index, not by x value.
func PositionalSSE(training, candidate types.Series) (float64, error) {
	if err := sameLength(training, candidate); err != nil {
		return 0, err
	}

	var sum float64
	for i, t := range training.Values {
		d := candidate.Values[i] - t
		sum += d * d
	}
	return sum, nil
}

// PositionalMaxAbs returns max |training[i] - candidate[i]| with rows matched
// by ordinal index. This is the tolerance basis of a chosen candidate.
func PositionalMaxAbs(training, candidate types.Series) (float64, error) {
	if err := sameLength(training, candidate); err != nil {
		return 0, err
	}

	var worst float64
	for i, t := range training.Values {
		worst = math.Max(worst, math.Abs(t-candidate.Values[i]))
	}
	return worst, nil
}

// ExactLookup returns y at the first row whose x equals x0 exactly.
// There is no interpolation and no nearest-row fallback.
func ExactLookup(xs, ys types.Series, x0 float64) (float64, error) {
	for i, x := range xs.Values {
		if x == x0 && i < len(ys.Values) {
			return ys.Values[i], nil
		}
	}
	return 0, &LookupError{Candidate: ys.Name, X: x0}
}

func sameLength(a, b types.Series) error {
	if a.Len() != b.Len() {
		return &ShapeError{Left: a.Name, LeftLen: a.Len(), Right: b.Name, RightLen: b.Len()}
	}
	return nil
}
