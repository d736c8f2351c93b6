// internal/grid/symbol.go
//
// Cell symbols for a room layout.
// Defines:
//   - Symbol: the closed alphabet a layout cell can hold.
//   - Style:  presentation hints (name + fill colour) for a render surface.
//
// Symbols are stored as their single-character wire form so that layouts
// round-trip through JSON/YAML exactly as the experiment front-end writes
// them ("w", "e", "x", "b", "0", "o").

package grid

import "fmt"

// Symbol is the content of one layout cell.
type Symbol byte

const (
	Wall       Symbol = 'w' // immutable boundary
	Entrance   Symbol = 'e' // boundary marker, only used for depth ordering
	Exit       Symbol = 'x' // boundary variant replacing a wall for a condition
	OutsideFOV Symbol = 'b' // outside the field of view
	RoomChunk  Symbol = '0' // empty, paintable
	Obstacle   Symbol = 'o' // painted room chunk
)

// ParseSymbol converts a wire character into a Symbol.
// Uppercase letters are accepted; a space is read as RoomChunk.
func ParseSymbol(r rune) (Symbol, error) {
	switch r {
	case 'w', 'W':
		return Wall, nil
	case 'e', 'E':
		return Entrance, nil
	case 'x', 'X':
		return Exit, nil
	case 'b', 'B':
		return OutsideFOV, nil
	case '0', ' ':
		return RoomChunk, nil
	case 'o', 'O':
		return Obstacle, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSymbol, r)
}

// Valid reports whether s belongs to the alphabet.
func (s Symbol) Valid() bool {
	switch s {
	case Wall, Entrance, Exit, OutsideFOV, RoomChunk, Obstacle:
		return true
	}
	return false
}

// Excluded reports whether the cell is a boundary kind that never takes part
// in scoring.
func (s Symbol) Excluded() bool {
	switch s {
	case Wall, OutsideFOV, Entrance, Exit:
		return true
	}
	return false
}

// Paintable reports whether a participant may convert the cell to an obstacle.
func (s Symbol) Paintable() bool { return s == RoomChunk }

// String returns the long name used in styles and logs.
func (s Symbol) String() string {
	switch s {
	case Wall:
		return "wall"
	case Entrance:
		return "entrance"
	case Exit:
		return "exit"
	case OutsideFOV:
		return "outside-fov"
	case RoomChunk:
		return "room-chunk"
	case Obstacle:
		return "obstacle"
	}
	return fmt.Sprintf("Symbol(%q)", byte(s))
}

// MarshalText writes the single-character wire form.
func (s Symbol) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSymbol, byte(s))
	}
	return []byte{byte(s)}, nil
}

// UnmarshalText parses the single-character wire form.
func (s *Symbol) UnmarshalText(b []byte) error {
	if len(b) != 1 {
		return fmt.Errorf("%w: %q", ErrUnknownSymbol, b)
	}
	v, err := ParseSymbol(rune(b[0]))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Style is what a render surface needs to paint a cell.
type Style struct {
	Name string `json:"name"` // e.g. "room-chunk", "correct"
	Fill string `json:"fill"` // CSS hex colour
}

// Style maps every symbol to its presentation. It panics on a value outside
// the alphabet; layouts built through Parse can never hold one.
func (s Symbol) Style() Style {
	switch s {
	case Wall:
		return Style{Name: s.String(), Fill: "#3c3c3c"}
	case Entrance:
		return Style{Name: s.String(), Fill: "#4a90d9"}
	case Exit:
		return Style{Name: s.String(), Fill: "#2e8b57"}
	case OutsideFOV:
		return Style{Name: s.String(), Fill: "#9a9a9a"}
	case RoomChunk:
		return Style{Name: s.String(), Fill: "#f0f0f0"}
	case Obstacle:
		return Style{Name: s.String(), Fill: "#d2691e"}
	}
	panic(fmt.Sprintf("grid: no style for %v", s))
}
