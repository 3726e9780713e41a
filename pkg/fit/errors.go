package fit

import (
	"errors"
	"fmt"
)

var (
	// ErrShapeMismatch is matched by every *ShapeError.
	ErrShapeMismatch = errors.New("fit: series length mismatch")

	// ErrNoExactX is matched by every *LookupError.
	ErrNoExactX = errors.New("fit: no exact x coincidence")

	// ErrNoValueColumns is returned when a table has only the x column.
	ErrNoValueColumns = errors.New("fit: table has no value columns")

	// ErrBadOption is returned for invalid classifier options.
	ErrBadOption = errors.New("fit: invalid option")
)

// ShapeError reports two position-aligned series of different length.
type ShapeError struct {
	Left, Right       string
	LeftLen, RightLen int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("fit: series %q has %d rows but %q has %d",
		e.Left, e.LeftLen, e.Right, e.RightLen)
}

// Is makes errors.Is(err, ErrShapeMismatch) hold.
func (e *ShapeError) Is(target error) bool {
	return target == ErrShapeMismatch
}

// LookupError reports a query x that does not occur in a candidate's x-axis.
type LookupError struct {
	Candidate string
	X         float64
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("fit: x=%g not found on candidate %q", e.X, e.Candidate)
}

// Is makes errors.Is(err, ErrNoExactX) hold.
func (e *LookupError) Is(target error) bool {
	return target == ErrNoExactX
}
