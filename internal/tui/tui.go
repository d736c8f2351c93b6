// internal/tui/tui.go
//
// Terminal front-end for one reconstruction trial.
//
// Mouse: press, drag and release paint (or erase) a stroke.
// Keys:
//   - arrows / hjkl  move the cursor
//   - space          paint or erase the cursor cell
//   - d / e / tab    draw mode, erase mode, toggle
//   - n / enter      advance (review, then finish on feedback trials)
//   - q / esc        abandon the trial

package tui

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/robalobadob/gridrecon/internal/grid"
)

// Rows above the grid in View: a blank line and the title.
const gridTop = 2

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#c62828"))
)

// Model is the bubbletea model around a grid widget.
type Model struct {
	widget *grid.Widget
	canvas *Canvas
	title  string
	rows   int
	cols   int
	cursor grid.Point
	result *grid.Result
	notice string
}

// New builds the widget for cfg on a fresh canvas.
func New(cfg grid.Config, title string) (Model, error) {
	canvas := NewCanvas()
	wdg, err := grid.NewWidget(cfg, canvas, nil, nil)
	if err != nil {
		return Model{}, err
	}
	return Model{
		widget: wdg,
		canvas: canvas,
		title:  title,
		rows:   cfg.Room.Rows(),
		cols:   cfg.Room.Cols(),
		cursor: grid.Point{X: cfg.Room.Cols() / 2, Y: cfg.Room.Rows() / 2},
	}, nil
}

func (m Model) Init() tea.Cmd { return nil }

// Result is the finalized trial, if the participant finished it.
func (m Model) Result() (grid.Result, bool) {
	if m.result == nil {
		return grid.Result{}, false
	}
	return *m.result, true
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.MouseMsg:
		m.handleMouse(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.notice = ""
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		m.widget.Abort()
		return m, tea.Quit
	case "up", "k":
		m.cursor.Y = max(m.cursor.Y-1, 0)
	case "down", "j":
		m.cursor.Y = min(m.cursor.Y+1, m.rows-1)
	case "left", "h":
		m.cursor.X = max(m.cursor.X-1, 0)
	case "right", "l":
		m.cursor.X = min(m.cursor.X+1, m.cols-1)
	case " ":
		if m.widget.Mode() == grid.ModeErase {
			m.widget.EraseCell(m.cursor)
		} else {
			m.widget.PaintCell(m.cursor)
		}
	case "d":
		m.setMode(grid.ModeDraw)
	case "e":
		m.setMode(grid.ModeErase)
	case "tab":
		if m.widget.Mode() == grid.ModeDraw {
			m.setMode(grid.ModeErase)
		} else {
			m.setMode(grid.ModeDraw)
		}
	case "n", "enter":
		out, err := m.widget.Advance()
		switch {
		case errors.Is(err, grid.ErrCannotAdvance):
			m.notice = "place all obstacles first"
		case err != nil:
			m.notice = err.Error()
		case out.Stage == grid.StageFinished:
			m.result = out.Result
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *Model) setMode(mode grid.Mode) {
	if err := m.widget.SetMode(mode); errors.Is(err, grid.ErrLocked) {
		m.notice = "review in progress, press n to continue"
	}
}

// handleMouse converts terminal coordinates to the widget's pixel space.
func (m Model) handleMouse(msg tea.MouseMsg) {
	px := m.canvas.CellPx()
	x := float64(msg.X/cellCols) * px
	y := float64(msg.Y-gridTop) * px

	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button == tea.MouseButtonLeft {
			m.widget.PointerDown(x, y)
		}
	case tea.MouseActionMotion:
		m.widget.PointerMove(x, y)
	case tea.MouseActionRelease:
		m.widget.PointerUp(x, y)
	}
}

func (m Model) View() string {
	snap := m.widget.Snapshot()
	title := m.title
	if snap.IsExample {
		title += " (example)"
	}
	s := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(title),
		m.canvas.Render(&m.cursor),
		"",
		m.canvas.Status(snap.Obstacles, snap.MaxObstacles),
	)
	if m.notice != "" {
		s += "\n" + errStyle.Render(m.notice)
	}
	help := helpStyle.Render("drag or space: paint   d/e/tab: mode   n: next   q: quit")
	return fmt.Sprintf("\n%s\n\n%s\n", s, help)
}

// Run shows the trial until it is finished or abandoned. The Result is nil
// when the participant quit.
func Run(cfg grid.Config, title string) (*grid.Result, error) {
	m, err := New(cfg, title)
	if err != nil {
		return nil, err
	}
	final, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion()).Run()
	if err != nil {
		return nil, err
	}
	if res, ok := final.(Model).Result(); ok {
		return &res, nil
	}
	return nil, nil
}
