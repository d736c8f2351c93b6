// internal/grid/compare.go
//
// Ground-truth comparison and weighted scoring.
//
// Compare classifies every cell of a response against the ground truth:
//
//	boundary in either layout (w, b, e, x)  → excluded, not scored
//	empty    / empty                        → correct-room-chunk  +0.75
//	obstacle / obstacle                     → correct             +1.00
//	obstacle / empty                        → incorrect           -0.50
//	empty    / obstacle                     → missing             -0.25
//
// Score = sum(weights) / scored cells × 100, rounded to two decimals and
// not clamped (it goes negative when wrong placements dominate).

package grid

import (
	"fmt"
	"math"
)

// Class is the comparison outcome for one cell.
type Class uint8

const (
	ClassExcluded Class = iota
	ClassCorrectRoomChunk
	ClassCorrect
	ClassIncorrect
	ClassMissing
)

// Weight is the score contribution of the class.
func (c Class) Weight() float64 {
	switch c {
	case ClassCorrectRoomChunk:
		return 0.75
	case ClassCorrect:
		return 1.0
	case ClassIncorrect:
		return -0.5
	case ClassMissing:
		return -0.25
	}
	return 0
}

// Rune is the wire character recorded by the front-end ("1", "c", "i", "m").
// Excluded cells have no character of their own; see CompareCell.Rune.
func (c Class) Rune() rune {
	switch c {
	case ClassCorrectRoomChunk:
		return '1'
	case ClassCorrect:
		return 'c'
	case ClassIncorrect:
		return 'i'
	case ClassMissing:
		return 'm'
	}
	return '-'
}

func (c Class) String() string {
	switch c {
	case ClassExcluded:
		return "excluded"
	case ClassCorrectRoomChunk:
		return "correct-room-chunk"
	case ClassCorrect:
		return "correct"
	case ClassIncorrect:
		return "incorrect"
	case ClassMissing:
		return "missing"
	}
	return fmt.Sprintf("Class(%d)", uint8(c))
}

// Style maps a scored class to its presentation. Excluded cells are styled
// by their boundary symbol instead.
func (c Class) Style() Style {
	switch c {
	case ClassCorrectRoomChunk:
		return Style{Name: c.String(), Fill: "#e8f5e9"}
	case ClassCorrect:
		return Style{Name: c.String(), Fill: "#2e7d32"}
	case ClassIncorrect:
		return Style{Name: c.String(), Fill: "#c62828"}
	case ClassMissing:
		return Style{Name: c.String(), Fill: "#f9a825"}
	}
	panic(fmt.Sprintf("grid: no style for %v", c))
}

// CompareCell is one classified cell. Boundary holds the excluded symbol
// (ground truth first, then response) when Class is ClassExcluded.
type CompareCell struct {
	Class    Class  `json:"class"`
	Boundary Symbol `json:"-"`
}

// Style resolves the presentation for the cell.
func (c CompareCell) Style() Style {
	if c.Class == ClassExcluded {
		return c.Boundary.Style()
	}
	return c.Class.Style()
}

// Rune returns the wire character for the cell.
func (c CompareCell) Rune() rune {
	if c.Class == ClassExcluded {
		return rune(c.Boundary)
	}
	return c.Class.Rune()
}

// Comparison is the per-cell classification of a response.
type Comparison [][]CompareCell

// Strings renders rows of wire characters (e.g. "w1cimw").
func (c Comparison) Strings() []string {
	out := make([]string, len(c))
	for y, row := range c {
		rs := make([]rune, len(row))
		for x, cell := range row {
			rs[x] = cell.Rune()
		}
		out[y] = string(rs)
	}
	return out
}

// Tally counts cells per class.
func (c Comparison) Tally() map[Class]int {
	out := make(map[Class]int, 5)
	for _, row := range c {
		for _, cell := range row {
			out[cell.Class]++
		}
	}
	return out
}

// Compare classifies response against truth. Both layouts must have the
// same dimensions.
func Compare(response, truth Layout) (Comparison, error) {
	if response.Rows() == 0 || truth.Rows() == 0 {
		return nil, ErrEmptyLayout
	}
	if !response.SameDims(truth) {
		return nil, fmt.Errorf("%w: response %dx%d, ground truth %dx%d",
			ErrDimensionMismatch, response.Rows(), response.Cols(), truth.Rows(), truth.Cols())
	}
	out := make(Comparison, len(truth))
	for y := range truth {
		out[y] = make([]CompareCell, len(truth[y]))
		for x := range truth[y] {
			out[y][x] = classify(response[y][x], truth[y][x])
		}
	}
	return out, nil
}

func classify(resp, gt Symbol) CompareCell {
	switch {
	case gt.Excluded():
		return CompareCell{Class: ClassExcluded, Boundary: gt}
	case resp.Excluded():
		return CompareCell{Class: ClassExcluded, Boundary: resp}
	case resp == Obstacle && gt == Obstacle:
		return CompareCell{Class: ClassCorrect}
	case resp == Obstacle:
		return CompareCell{Class: ClassIncorrect}
	case gt == Obstacle:
		return CompareCell{Class: ClassMissing}
	default:
		return CompareCell{Class: ClassCorrectRoomChunk}
	}
}

// Score returns the weighted percentage for a comparison.
func Score(c Comparison) (float64, error) {
	var sum float64
	n := 0
	for _, row := range c {
		for _, cell := range row {
			if cell.Class == ClassExcluded {
				continue
			}
			sum += cell.Class.Weight()
			n++
		}
	}
	if n == 0 {
		return 0, ErrNothingToScore
	}
	return round2(sum / float64(n) * 100), nil
}

// ScoreLayouts compares and scores in one step.
func ScoreLayouts(response, truth Layout) (float64, Comparison, error) {
	c, err := Compare(response, truth)
	if err != nil {
		return 0, nil, err
	}
	pct, err := Score(c)
	if err != nil {
		return 0, c, err
	}
	return pct, c, nil
}

// round2 rounds half up (towards +Inf), matching what participants saw in
// the browser build for negative scores.
func round2(v float64) float64 { return math.Floor(v*100+0.5) / 100 }
