package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/gridrecon/internal/grid"
)

var room = grid.MustParse(
	"wwwwwww",
	"w00000w",
	"w00000w",
	"wb000bw",
	"bbbebbb",
)

func key(s string) tea.KeyMsg {
	switch s {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, keys ...string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(key(k))
		m = next.(Model)
	}
	return m, cmd
}

func mouse(m Model, action tea.MouseAction, col, row int) Model {
	next, _ := m.Update(tea.MouseMsg{
		X:      col*cellCols + 1,
		Y:      row + gridTop,
		Action: action,
		Button: tea.MouseButtonLeft,
	})
	return next.(Model)
}

func newModel(t *testing.T, cfg grid.Config) Model {
	t.Helper()
	if cfg.Room == nil {
		cfg.Room = room
	}
	m, err := New(cfg, "scene 1")
	require.NoError(t, err)
	return m
}

func TestKeyboardPaintAndErase(t *testing.T) {
	t.Parallel()
	m := newModel(t, grid.Config{MaxObstacles: 2})
	assert.Equal(t, grid.Point{X: 3, Y: 2}, m.cursor)

	m, _ = press(t, m, " ", "left", " ")
	assert.ElementsMatch(t, []grid.Point{{X: 3, Y: 2}, {X: 2, Y: 2}}, m.widget.Obstacles())
	assert.True(t, m.canvas.overlays.Has(grid.Point{X: 2, Y: 2}))
	assert.True(t, m.canvas.advance)

	m, _ = press(t, m, "e", " ")
	assert.Equal(t, []grid.Point{{X: 3, Y: 2}}, m.widget.Obstacles())
	assert.False(t, m.canvas.overlays.Has(grid.Point{X: 2, Y: 2}))
	assert.False(t, m.canvas.advance)
	assert.Equal(t, grid.ModeErase, m.canvas.mode)

	m, _ = press(t, m, "tab")
	assert.Equal(t, grid.ModeDraw, m.widget.Mode())

	m, _ = press(t, m, "up", "up", " ")
	assert.Len(t, m.widget.Obstacles(), 1, "walls cannot be painted")
}

func TestMouseStroke(t *testing.T) {
	t.Parallel()
	m := newModel(t, grid.Config{})

	m = mouse(m, tea.MouseActionPress, 1, 1)
	m = mouse(m, tea.MouseActionMotion, 2, 1)
	m = mouse(m, tea.MouseActionMotion, 3, 1)
	assert.Len(t, m.canvas.preview, 3)
	assert.Empty(t, m.widget.Obstacles(), "nothing commits before release")

	m = mouse(m, tea.MouseActionRelease, 3, 1)
	assert.Empty(t, m.canvas.preview)
	assert.Equal(t, grid.Obstacle, m.canvas.cells.At(grid.Point{X: 2, Y: 1}))
	assert.Len(t, m.widget.Obstacles(), 3)
}

func TestAdvanceFlow(t *testing.T) {
	t.Parallel()
	truth := grid.MustParse(
		"wwwwwww",
		"w0o000w",
		"w00000w",
		"wb000bw",
		"bbbebbb",
	)
	m := newModel(t, grid.Config{MaxObstacles: 1, IsFeedback: true, GroundTruth: truth, PassingPercentage: 50})

	m, cmd := press(t, m, "n")
	assert.Nil(t, cmd)
	assert.Equal(t, "place all obstacles first", m.notice)

	m = mouse(m, tea.MouseActionPress, 2, 1)
	m = mouse(m, tea.MouseActionRelease, 2, 1)

	m, cmd = press(t, m, "enter")
	assert.Nil(t, cmd, "first advance only shows the review")
	require.NotNil(t, m.canvas.cmp)
	// 1 + 12*0.75 over 13 scorable cells
	assert.Contains(t, m.View(), "score 76.92%  passed")

	m, _ = press(t, m, "e")
	assert.Contains(t, m.notice, "review")

	m, cmd = press(t, m, "n")
	require.NotNil(t, cmd)
	res, ok := m.Result()
	require.True(t, ok)
	assert.Equal(t, 1, res.NObstacles)
	require.NotNil(t, res.FeedbackPercentage)
	assert.Equal(t, 76.92, *res.FeedbackPercentage)
	assert.True(t, m.canvas.cleared)
}

func TestQuitAbandons(t *testing.T) {
	t.Parallel()
	m := newModel(t, grid.Config{})
	m, cmd := press(t, m, "q")
	require.NotNil(t, cmd)
	_, ok := m.Result()
	assert.False(t, ok)
	assert.Equal(t, grid.StageAborted, m.widget.Stage())
	assert.Contains(t, m.View(), "(trial closed)")
}
