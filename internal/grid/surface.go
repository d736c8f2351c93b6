// internal/grid/surface.go
//
// Render surface abstraction.
// The widget owns grid semantics only; anything that can paint rectangles
// and stack images (browser canvas over a websocket, a terminal, a test
// recorder) implements Surface.

package grid

import "sync"

// Surface receives render instructions from a Widget.
type Surface interface {
	// DrawGrid paints every cell of the layout at cellPx pixels per cell.
	DrawGrid(l Layout, cellPx float64)
	// SetCell repaints one cell.
	SetCell(p Point, s Symbol)
	// Preview marks a cell under an in-flight gesture.
	Preview(p Point, m Mode)
	// ClearPreview drops gesture previews.
	ClearPreview()
	// AddOverlay stacks an obstacle image over a cell.
	AddOverlay(o Overlay)
	// RemoveOverlay drops the image over a cell.
	RemoveOverlay(p Point)
	// SetMode reflects the active paint/erase affordance.
	SetMode(m Mode)
	// SetAdvance enables or disables the advance affordance(s).
	SetAdvance(enabled bool)
	// DrawComparison replaces the grid with a feedback comparison and hides
	// the paint affordances.
	DrawComparison(c Comparison, score float64, passed bool)
	// Clear tears the display down.
	Clear()
}

// NopSurface discards everything.
type NopSurface struct{}

func (NopSurface) DrawGrid(Layout, float64)                 {}
func (NopSurface) SetCell(Point, Symbol)                    {}
func (NopSurface) Preview(Point, Mode)                      {}
func (NopSurface) ClearPreview()                            {}
func (NopSurface) AddOverlay(Overlay)                       {}
func (NopSurface) RemoveOverlay(Point)                      {}
func (NopSurface) SetMode(Mode)                             {}
func (NopSurface) SetAdvance(bool)                          {}
func (NopSurface) DrawComparison(Comparison, float64, bool) {}
func (NopSurface) Clear()                                   {}

// Op is one serialized render instruction.
type Op struct {
	Kind    string    `json:"op"`
	Point   *Point    `json:"point,omitempty"`
	Style   *Style    `json:"style,omitempty"`
	Mode    Mode      `json:"mode,omitempty"`
	Overlay *Overlay  `json:"overlay,omitempty"`
	Enabled *bool     `json:"enabled,omitempty"`
	Rows    []string  `json:"rows,omitempty"`
	CellPx  float64   `json:"cellPx,omitempty"`
	Score   *float64  `json:"score,omitempty"`
	Passed  *bool     `json:"passed,omitempty"`
	Styles  [][]Style `json:"styles,omitempty"`
}

const (
	OpDrawGrid       = "draw_grid"
	OpSetCell        = "set_cell"
	OpPreview        = "preview"
	OpClearPreview   = "clear_preview"
	OpAddOverlay     = "add_overlay"
	OpRemoveOverlay  = "remove_overlay"
	OpSetMode        = "set_mode"
	OpSetAdvance     = "set_advance"
	OpDrawComparison = "draw_comparison"
	OpClear          = "clear"
)

// Recorder is a Surface that queues Ops for a remote renderer.
// It is safe for concurrent use.
type Recorder struct {
	mu  sync.Mutex
	ops []Op
}

func (r *Recorder) push(op Op) {
	r.mu.Lock()
	r.ops = append(r.ops, op)
	r.mu.Unlock()
}

// Drain returns and forgets the queued ops.
func (r *Recorder) Drain() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.ops
	r.ops = nil
	return out
}

func (r *Recorder) DrawGrid(l Layout, cellPx float64) {
	styles := make([][]Style, len(l))
	for y, row := range l {
		styles[y] = make([]Style, len(row))
		for x, s := range row {
			styles[y][x] = s.Style()
		}
	}
	r.push(Op{Kind: OpDrawGrid, Rows: l.Strings(), CellPx: cellPx, Styles: styles})
}

func (r *Recorder) SetCell(p Point, s Symbol) {
	st := s.Style()
	r.push(Op{Kind: OpSetCell, Point: &p, Style: &st})
}

func (r *Recorder) Preview(p Point, m Mode) { r.push(Op{Kind: OpPreview, Point: &p, Mode: m}) }

func (r *Recorder) ClearPreview() { r.push(Op{Kind: OpClearPreview}) }

func (r *Recorder) AddOverlay(o Overlay) { r.push(Op{Kind: OpAddOverlay, Overlay: &o}) }

func (r *Recorder) RemoveOverlay(p Point) { r.push(Op{Kind: OpRemoveOverlay, Point: &p}) }

func (r *Recorder) SetMode(m Mode) { r.push(Op{Kind: OpSetMode, Mode: m}) }

func (r *Recorder) SetAdvance(enabled bool) { r.push(Op{Kind: OpSetAdvance, Enabled: &enabled}) }

func (r *Recorder) DrawComparison(c Comparison, score float64, passed bool) {
	styles := make([][]Style, len(c))
	for y, row := range c {
		styles[y] = make([]Style, len(row))
		for x, cell := range row {
			styles[y][x] = cell.Style()
		}
	}
	r.push(Op{Kind: OpDrawComparison, Rows: c.Strings(), Styles: styles, Score: &score, Passed: &passed})
}

func (r *Recorder) Clear() { r.push(Op{Kind: OpClear}) }
