// internal/grid/errors.go
//
// Sentinel errors for layouts, scoring and the widget lifecycle. Callers
// match them with errors.Is; wrapped forms carry the offending values.

package grid

import "errors"

var (
	ErrUnknownSymbol     = errors.New("grid: unknown symbol")
	ErrEmptyLayout       = errors.New("grid: empty layout")
	ErrRaggedLayout      = errors.New("grid: rows have different lengths")
	ErrDimensionMismatch = errors.New("grid: layout dimensions differ")
	ErrNothingToScore    = errors.New("grid: no scorable cells")
	ErrOutOfBounds       = errors.New("grid: point outside layout")
	ErrOverBudget        = errors.New("grid: room already exceeds the obstacle budget")

	ErrMissingGroundTruth = errors.New("grid: feedback trial without ground truth")
	ErrCannotAdvance      = errors.New("grid: obstacle budget not reached")
	ErrLocked             = errors.New("grid: layout is locked for review")
	ErrFinalized          = errors.New("grid: trial already finalized")
)
