// internal/tui/canvas.go
//
// Canvas is a terminal render surface for a grid widget. It keeps a small
// framebuffer of what the widget drew and renders it with lipgloss, two
// terminal columns per cell.

package tui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/zyedidia/generic/mapset"

	"github.com/robalobadob/gridrecon/internal/grid"
)

// cellCols is the terminal width of one cell.
const cellCols = 2

var (
	overlayGlyph = "◆ "
	cursorGlyph  = "[]"

	previewDraw  = lipgloss.NewStyle().Foreground(lipgloss.Color("#d2691e")).Bold(true)
	previewErase = lipgloss.NewStyle().Foreground(lipgloss.Color("#c62828")).Bold(true)

	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#2e7d32")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#c62828")).Bold(true)
)

// Canvas implements grid.Surface.
type Canvas struct {
	mu       sync.Mutex
	cells    grid.Layout
	cellPx   float64
	preview  map[grid.Point]grid.Mode
	overlays mapset.Set[grid.Point]
	mode     grid.Mode
	advance  bool
	cmp      grid.Comparison
	score    float64
	passed   bool
	cleared  bool
}

// NewCanvas returns an empty canvas.
func NewCanvas() *Canvas {
	return &Canvas{
		preview:  make(map[grid.Point]grid.Mode),
		overlays: mapset.New[grid.Point](),
		mode:     grid.ModeDraw,
	}
}

func (c *Canvas) DrawGrid(l grid.Layout, cellPx float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cells = l.Clone()
	c.cellPx = cellPx
	c.cmp = nil
	c.cleared = false
}

func (c *Canvas) SetCell(p grid.Point, s grid.Symbol) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cells.In(p) {
		c.cells.Set(p, s)
	}
}

func (c *Canvas) Preview(p grid.Point, m grid.Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preview[p] = m
}

func (c *Canvas) ClearPreview() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.preview)
}

func (c *Canvas) AddOverlay(o grid.Overlay) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overlays.Put(o.Point)
}

func (c *Canvas) RemoveOverlay(p grid.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overlays.Remove(p)
}

func (c *Canvas) SetMode(m grid.Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
}

func (c *Canvas) SetAdvance(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advance = enabled
}

func (c *Canvas) DrawComparison(cmp grid.Comparison, score float64, passed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmp, c.score, c.passed = cmp, score, passed
	clear(c.preview)
}

func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cells, c.cmp = nil, nil
	clear(c.preview)
	c.overlays = mapset.New[grid.Point]()
	c.cleared = true
}

// CellPx is the pixel size of a cell as last drawn.
func (c *Canvas) CellPx() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cellPx
}

// Render draws the grid. cursor may be nil.
func (c *Canvas) Render(cursor *grid.Point) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cleared {
		return statusStyle.Render("(trial closed)")
	}
	var b strings.Builder
	for y, row := range c.cells {
		for x, s := range row {
			p := grid.Point{X: x, Y: y}
			b.WriteString(c.renderCell(p, s, cursor != nil && *cursor == p))
		}
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (c *Canvas) renderCell(p grid.Point, s grid.Symbol, atCursor bool) string {
	fill := s.Style().Fill
	if c.cmp != nil {
		fill = c.cmp[p.Y][p.X].Style().Fill
	}
	st := lipgloss.NewStyle().Background(lipgloss.Color(fill))

	glyph := "  "
	switch m, ok := c.preview[p]; {
	case ok && m == grid.ModeErase:
		st = st.Inherit(previewErase)
		glyph = "xx"
	case ok:
		st = st.Inherit(previewDraw)
		glyph = "··"
	case c.cmp != nil:
		glyph = string(c.cmp[p.Y][p.X].Rune()) + " "
	case c.overlays.Has(p):
		glyph = overlayGlyph
	}
	if atCursor {
		glyph = cursorGlyph
	}
	return st.Render(glyph)
}

// Status summarizes mode, advance state and, after review, the score.
func (c *Canvas) Status(obstacles, budget int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := "next: locked"
	if c.advance {
		next = "next: [n]"
	}
	line := statusStyle.Render(fmt.Sprintf("mode %-5s  obstacles %d/%d  %s", c.mode, obstacles, budget, next))
	if c.cmp == nil {
		return line
	}
	verdict := failStyle.Render(fmt.Sprintf("score %.2f%%  below threshold", c.score))
	if c.passed {
		verdict = passStyle.Render(fmt.Sprintf("score %.2f%%  passed", c.score))
	}
	return line + "\n" + verdict
}
