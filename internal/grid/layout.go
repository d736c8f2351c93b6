// internal/grid/layout.go
//
// Room layouts: a rectangular grid of Symbols addressed by Point{X: col, Y: row}.
//
// Notes:
//   - Layouts are plain [][]Symbol values; Clone before mutating a layout
//     that may be shared (condition templates are reused across trials).
//   - JSON form is an array of rows, each row an array of one-char strings,
//     which is what the experiment front-end records.

package grid

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Point addresses a cell by column (X) and row (Y).
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// Layout is a rows × cols grid of cell symbols.
type Layout [][]Symbol

// Parse builds a Layout from rows of single-character symbols.
// Every row must have the same length and every character must be known.
func Parse(rows []string) (Layout, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmptyLayout
	}
	cols := len([]rune(rows[0]))
	out := make(Layout, len(rows))
	for y, row := range rows {
		runes := []rune(row)
		if len(runes) != cols {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrRaggedLayout, y, len(runes), cols)
		}
		out[y] = make([]Symbol, cols)
		for x, r := range runes {
			s, err := ParseSymbol(r)
			if err != nil {
				return nil, fmt.Errorf("row %d col %d: %w", y, x, err)
			}
			out[y][x] = s
		}
	}
	return out, nil
}

// ParseText splits a multi-line block and parses it. Blank lines are
// skipped; spaces inside a row are empty room chunks.
func ParseText(text string) (Layout, error) {
	var rows []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, line)
	}
	return Parse(rows)
}

// MustParse is Parse for fixtures; it panics on error.
func MustParse(rows ...string) Layout {
	l, err := Parse(rows)
	if err != nil {
		panic(err)
	}
	return l
}

// Rows returns the number of rows.
func (l Layout) Rows() int { return len(l) }

// Cols returns the number of columns (0 for an empty layout).
func (l Layout) Cols() int {
	if len(l) == 0 {
		return 0
	}
	return len(l[0])
}

// SameDims reports whether two layouts have identical shape.
func (l Layout) SameDims(o Layout) bool {
	if l.Rows() != o.Rows() {
		return false
	}
	for y := range l {
		if len(l[y]) != len(o[y]) {
			return false
		}
	}
	return true
}

// Validate checks the layout is non-empty, rectangular and uses only known symbols.
func (l Layout) Validate() error {
	if l.Rows() == 0 || l.Cols() == 0 {
		return ErrEmptyLayout
	}
	for y, row := range l {
		if len(row) != l.Cols() {
			return fmt.Errorf("%w: row %d", ErrRaggedLayout, y)
		}
		for x, s := range row {
			if !s.Valid() {
				return fmt.Errorf("row %d col %d: %w: %q", y, x, ErrUnknownSymbol, byte(s))
			}
		}
	}
	return nil
}

// In reports whether p addresses a cell.
func (l Layout) In(p Point) bool {
	return p.Y >= 0 && p.Y < len(l) && p.X >= 0 && p.X < len(l[p.Y])
}

// At returns the symbol at p. p must be in bounds.
func (l Layout) At(p Point) Symbol { return l[p.Y][p.X] }

// Set writes the symbol at p. p must be in bounds.
func (l Layout) Set(p Point, s Symbol) { l[p.Y][p.X] = s }

// Clone returns a deep copy.
func (l Layout) Clone() Layout {
	if l == nil {
		return nil
	}
	out := make(Layout, len(l))
	for y, row := range l {
		out[y] = append([]Symbol(nil), row...)
	}
	return out
}

// Count returns how many cells hold s.
func (l Layout) Count(s Symbol) int {
	n := 0
	for _, row := range l {
		for _, c := range row {
			if c == s {
				n++
			}
		}
	}
	return n
}

// Points returns the coordinates of every cell holding s, row-major.
func (l Layout) Points(s Symbol) []Point {
	var out []Point
	for y, row := range l {
		for x, c := range row {
			if c == s {
				out = append(out, Point{X: x, Y: y})
			}
		}
	}
	return out
}

// Expand replicates each cell into a k×k block. k < 1 is treated as 1.
func (l Layout) Expand(k int) Layout {
	if k < 1 {
		k = 1
	}
	out := make(Layout, 0, len(l)*k)
	for _, row := range l {
		wide := make([]Symbol, 0, len(row)*k)
		for _, c := range row {
			for i := 0; i < k; i++ {
				wide = append(wide, c)
			}
		}
		for i := 0; i < k; i++ {
			out = append(out, append([]Symbol(nil), wide...))
		}
	}
	return out
}

// Strings renders each row as its wire characters.
func (l Layout) Strings() []string {
	out := make([]string, len(l))
	for y, row := range l {
		b := make([]byte, len(row))
		for x, c := range row {
			b[x] = byte(c)
		}
		out[y] = string(b)
	}
	return out
}

func (l Layout) String() string { return strings.Join(l.Strings(), "\n") }

// MarshalJSON writes [["w","0",...],...].
func (l Layout) MarshalJSON() ([]byte, error) {
	rows := make([][]string, len(l))
	for y, row := range l {
		rows[y] = make([]string, len(row))
		for x, c := range row {
			rows[y][x] = string(rune(c))
		}
	}
	return json.Marshal(rows)
}

// UnmarshalJSON accepts either [["w","0"],...] or ["w0",...].
func (l *Layout) UnmarshalJSON(b []byte) error {
	var cells [][]string
	if err := json.Unmarshal(b, &cells); err == nil {
		rows := make([]string, len(cells))
		for y, row := range cells {
			rows[y] = strings.Join(row, "")
		}
		parsed, err := Parse(rows)
		if err != nil {
			return err
		}
		*l = parsed
		return nil
	}
	var rows []string
	if err := json.Unmarshal(b, &rows); err != nil {
		return fmt.Errorf("grid: layout json: %w", err)
	}
	parsed, err := Parse(rows)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// MarshalYAML writes one string per row.
func (l Layout) MarshalYAML() (any, error) { return l.Strings(), nil }

// UnmarshalYAML reads one string per row.
func (l *Layout) UnmarshalYAML(unmarshal func(any) error) error {
	var rows []string
	if err := unmarshal(&rows); err != nil {
		return err
	}
	parsed, err := Parse(rows)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
