// Package fit picks ideal curves for training data and classifies test
// points against them.
//
// The engine runs in two stages:
//
//   - Select compares every training column with every candidate column by
//     total squared error and keeps the closest candidate per training column.
//   - Classifier takes the training table and the reduced candidate table
//     produced by Select. For a query point it looks up each chosen
//     candidate's y at exactly the same x, and accepts the candidate when
//     the deviation stays below the largest training deviation times √2.
//
// Two alignment strategies are used. PositionalSSE and PositionalMaxAbs
// compare rows by ordinal index; ExactLookup finds a row by x value equality.
//
// Example:
//
//	sel, err := fit.Select(train, ideal)
//	if err != nil {
//		// handle *fit.ShapeError
//	}
//	clf, err := fit.NewClassifier(train, sel.Reduced, nil)
//	if err != nil {
//		return err
//	}
//	res, err := clf.Classify(types.QueryPoint{X: 17.5, Y: 34.16})
//	if errors.Is(err, fit.ErrNoExactX) {
//		// x does not occur in the candidate table
//	}
//
// Everything here is pure computation over in-memory tables. Selection and
// Classifier values are immutable once built and safe for concurrent use.
package fit
