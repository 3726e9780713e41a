package fit

import (
	"fmt"
	"math"

	"github.com/vjranagit/idealfit/pkg/types"
)

// SelectedTableName names the reduced candidate table built by Select.
const SelectedTableName = "selected"

// Selection is the outcome of candidate selection.
type Selection struct {
	// Match pairs every training column with its closest candidate,
	// in training column order.
	Match types.CandidateMatch

	// Reduced holds the candidate table's x column followed by the chosen
	// candidate columns, positionally aligned with the training columns.
	Reduced *types.Table
}

// Select picks, for every non-x training column, the non-x candidate column
// with the smallest total squared error. Rows are compared by position.
// Ties go to the candidate that comes first in the candidate table.
// A NaN total ranks as +Inf.
func Select(training, candidates *types.Table) (*Selection, error) {
	if err := checkTable(training); err != nil {
		return nil, fmt.Errorf("training: %w", err)
	}
	if err := checkTable(candidates); err != nil {
		return nil, fmt.Errorf("candidates: %w", err)
	}

	cx, _ := candidates.X()
	pool := candidates.ValueColumns()

	reduced := &types.Table{
		Name:    SelectedTableName,
		Columns: []types.Series{cx.Clone()},
	}
	var match types.CandidateMatch

	for _, train := range training.ValueColumns() {
		best, bestSSE := -1, 0.0
		for i, cand := range pool {
			sse, err := PositionalSSE(train, cand)
			if err != nil {
				return nil, err
			}
			// NaN never compares smaller; rank it behind every finite total
			if math.IsNaN(sse) {
				sse = math.Inf(1)
			}
			if best < 0 || sse < bestSSE {
				best, bestSSE = i, sse
			}
		}

		chosen := pool[best]
		match.Pairs = append(match.Pairs, types.Pair{
			Training:  train.Name,
			Candidate: chosen.Name,
			SSE:       bestSSE,
		})
		reduced.Columns = append(reduced.Columns, chosen.Clone())
	}

	return &Selection{Match: match, Reduced: reduced}, nil
}

// checkTable verifies the table is well formed and has something to compare.
func checkTable(t *types.Table) error {
	if t == nil {
		return ErrNoValueColumns
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if len(t.ValueColumns()) == 0 {
		return fmt.Errorf("%q: %w", t.Name, ErrNoValueColumns)
	}
	return nil
}

// FromReduced rebuilds a Selection from a training table and a reduced table
// previously produced by Select, pairing value columns by position and
// recomputing each pair's squared error.
func FromReduced(training, reduced *types.Table) (*Selection, error) {
	if err := checkTable(training); err != nil {
		return nil, fmt.Errorf("training: %w", err)
	}
	if err := checkTable(reduced); err != nil {
		return nil, fmt.Errorf("candidates: %w", err)
	}

	trains := training.ValueColumns()
	cands := reduced.ValueColumns()
	if len(trains) != len(cands) {
		return nil, fmt.Errorf("%w: %d training columns but %d chosen candidates",
			ErrShapeMismatch, len(trains), len(cands))
	}

	var match types.CandidateMatch
	for i, train := range trains {
		sse, err := PositionalSSE(train, cands[i])
		if err != nil {
			return nil, err
		}
		match.Pairs = append(match.Pairs, types.Pair{
			Training:  train.Name,
			Candidate: cands[i].Name,
			SSE:       sse,
		})
	}

	return &Selection{Match: match, Reduced: reduced.Clone()}, nil
}
