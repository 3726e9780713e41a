package fit

import (
	"fmt"
	"math"
	"sync"

	"github.com/vjranagit/idealfit/pkg/types"
)

// ToleranceFactor scales a candidate's tolerance basis into its
// admissibility threshold.
const ToleranceFactor = math.Sqrt2

// DefaultMaxPairs is the number of training/candidate pairs compared when
// no other limit is configured.
const DefaultMaxPairs = 4

// Options configures a Classifier.
type Options struct {
	// MaxPairs limits the comparison to the leading training/candidate
	// pairs. Zero means every pair present in both tables.
	MaxPairs int

	// Workers is the number of goroutines used by ClassifyAll.
	// Values below 1 mean one.
	Workers int
}

// DefaultOptions returns Options with MaxPairs=DefaultMaxPairs and Workers=1.
func DefaultOptions() *Options {
	return &Options{MaxPairs: DefaultMaxPairs, Workers: 1}
}

// Curve is one chosen candidate as seen by the classifier.
type Curve struct {
	Training       string  `json:"training"`
	Candidate      string  `json:"candidate"`
	ToleranceBasis float64 `json:"tolerance_basis"`
	Threshold      float64 `json:"threshold"`

	ys types.Series
}

// Classifier assigns query points to the chosen candidate curves.
// It owns copies of its tables, so the tolerance bases computed at
// construction never go stale.
type Classifier struct {
	xs      types.Series
	curves  []Curve
	workers int
}

// NewClassifier pairs the value columns of training and reduced by ordinal
// position and computes each candidate's tolerance basis.
// A nil opts means DefaultOptions.
func NewClassifier(training, reduced *types.Table, opts *Options) (*Classifier, error) {
	o := *DefaultOptions()
	if opts != nil {
		o = *opts
	}
	if o.MaxPairs < 0 {
		return nil, fmt.Errorf("%w: MaxPairs=%d", ErrBadOption, o.MaxPairs)
	}
	if o.Workers < 1 {
		o.Workers = 1
	}

	if err := checkTable(training); err != nil {
		return nil, fmt.Errorf("training: %w", err)
	}
	if err := checkTable(reduced); err != nil {
		return nil, fmt.Errorf("candidates: %w", err)
	}

	trains := training.ValueColumns()
	cands := reduced.ValueColumns()

	n := min(len(trains), len(cands))
	if o.MaxPairs > 0 {
		n = min(n, o.MaxPairs)
	}

	xs, _ := reduced.X()
	c := &Classifier{
		xs:      xs.Clone(),
		curves:  make([]Curve, 0, n),
		workers: o.Workers,
	}

	for i := 0; i < n; i++ {
		basis, err := PositionalMaxAbs(trains[i], cands[i])
		if err != nil {
			return nil, err
		}
		c.curves = append(c.curves, Curve{
			Training:       trains[i].Name,
			Candidate:      cands[i].Name,
			ToleranceBasis: basis,
			Threshold:      basis * ToleranceFactor,
			ys:             cands[i].Clone(),
		})
	}

	return c, nil
}

// Curves returns the compared pairs in column order.
func (c *Classifier) Curves() []Curve {
	out := make([]Curve, len(c.curves))
	copy(out, c.curves)
	return out
}

// Classify finds the admissible candidate closest to p.
//
// A candidate is admissible when |y(p.X) - p.Y| < ToleranceBasis·√2.
// Among admissible candidates the smallest deviation wins, ties going to
// the earlier column. With no admissible candidate the result has
// Matched=false and Deviation=0.
//
// If any compared candidate lacks an exact row for p.X the whole point
// fails with a *LookupError, even when other candidates would match.
func (c *Classifier) Classify(p types.QueryPoint) (types.PointResult, error) {
	res := types.PointResult{Point: p}
	best := -1

	for i := range c.curves {
		curve := &c.curves[i]
		y, err := ExactLookup(c.xs, curve.ys, p.X)
		if err != nil {
			res.Err = err.Error()
			return res, err
		}

		dev := math.Abs(y - p.Y)
		if dev < curve.Threshold && (best < 0 || dev < res.Deviation) {
			best = i
			res.Deviation = dev
		}
	}

	if best >= 0 {
		res.Matched = true
		res.Candidate = c.curves[best].Candidate
	}
	return res, nil
}

// ClassifyAll classifies every point independently. A failing point only
// records its error in its own result; results keep the input order.
func (c *Classifier) ClassifyAll(points []types.QueryPoint) []types.PointResult {
	results := make([]types.PointResult, len(points))
	if c.workers <= 1 || len(points) < 2 {
		for i, p := range points {
			results[i], _ = c.Classify(p)
		}
		return results
	}

	next := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < c.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				results[i], _ = c.Classify(points[i])
			}
		}()
	}
	for i := range points {
		next <- i
	}
	close(next)
	wg.Wait()

	return results
}
