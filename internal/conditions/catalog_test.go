package conditions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/gridrecon/internal/grid"
)

const smallRoom = `
wwwww
w   w
w   w
bbebb
`

const smallCatalog = `
imagePath: /img/obstacles
stimPath: /img/stims
conditions:
  - {id: 0, name: none, exits: [], baseImage: empty.png}
  - {id: 1, name: left, exits: [1], baseImage: left.png}
stimuli:
  - sceneId: 4
    condition: 1
    obstacles: [{x: 1, y: 1}, {x: 3, y: 2}]
  - id: plain
    sceneId: 5
    condition: 0
  - id: rows
    sceneId: 6
    condition: 0
    truth: ["wwwww", "wo0ow", "w000w", "bbebb"]
`

func mustCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Parse([]byte(smallCatalog), smallRoom)
	require.NoError(t, err)
	return c
}

func TestRoomSetsExits(t *testing.T) {
	t.Parallel()

	c := mustCatalog(t)
	none, err := c.Room(0)
	require.NoError(t, err)
	assert.Equal(t, "wwwww", none.Strings()[0])

	left, err := c.Room(1)
	require.NoError(t, err)
	assert.Equal(t, "wxwww", left.Strings()[0])
	assert.Equal(t, "bbebb", left.Strings()[3])

	_, err = c.Room(9)
	assert.ErrorIs(t, err, ErrUnknownCondition)
}

func TestRoomNeverSharesTemplate(t *testing.T) {
	t.Parallel()

	c := mustCatalog(t)
	a, err := c.Room(1)
	require.NoError(t, err)
	a.Set(grid.Point{X: 2, Y: 1}, grid.Obstacle)
	a[0][3] = grid.Exit

	b, err := c.Room(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"wwwww", "w000w", "w000w", "bbebb"}, b.Strings())

	again, err := c.Room(1)
	require.NoError(t, err)
	assert.Equal(t, "wxwww", again.Strings()[0])
}

func TestStimuliAndGroundTruth(t *testing.T) {
	t.Parallel()

	c := mustCatalog(t)
	list := c.Stimuli()
	require.Len(t, list, 3)
	assert.Equal(t, "4_1", list[0].ID, "id derived from scene and condition")
	assert.Equal(t, "4_1.png", list[0].Image)

	truth, err := c.GroundTruth("4_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"wxwww", "wo00w", "w00ow", "bbebb"}, truth.Strings())

	rows, err := c.GroundTruth("rows")
	require.NoError(t, err)
	assert.Equal(t, 2, rows.Count(grid.Obstacle))

	_, err = c.GroundTruth("plain")
	assert.ErrorIs(t, err, ErrNoGroundTruth)

	_, err = c.Stimulus("nope")
	assert.ErrorIs(t, err, ErrUnknownStimulus)
}

func TestImagePaths(t *testing.T) {
	t.Parallel()

	c := mustCatalog(t)
	assert.Equal(t, "/img/stims/left.png", c.BaseImage(1))
	assert.Equal(t, "", c.BaseImage(7))
	s, err := c.Stimulus("plain")
	require.NoError(t, err)
	assert.Equal(t, "/img/stims/plain.png", c.StimulusImage(s))
	assert.Equal(t, "/img/obstacles", c.ImagePath())

	o := c.WithPaths("/cdn/o", "")
	assert.Equal(t, "/cdn/o", o.ImagePath())
	assert.Equal(t, "/img/stims", o.StimPath())
	assert.Equal(t, "/img/obstacles", c.ImagePath(), "original untouched")
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		catalog string
		room    string
	}{
		{"ragged room", smallCatalog, "www\nww\n"},
		{"exit outside row", "conditions:\n  - {id: 0, exits: [9]}\n", smallRoom},
		{"duplicate condition", "conditions:\n  - {id: 0}\n  - {id: 0}\n", smallRoom},
		{"unknown condition", "conditions:\n  - {id: 0}\nstimuli:\n  - {id: a, condition: 3}\n", smallRoom},
		{"obstacle on wall", "conditions:\n  - {id: 0}\nstimuli:\n  - {id: a, condition: 0, obstacles: [{x: 0, y: 0}]}\n", smallRoom},
		{"bad yaml", "conditions: [", smallRoom},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tc.catalog), tc.room)
			assert.Error(t, err)
		})
	}
}

func TestOpenFallsBackToEmbedded(t *testing.T) {
	t.Parallel()

	c, err := Open("", "")
	require.NoError(t, err)
	room, err := c.Room(2)
	require.NoError(t, err)
	assert.Equal(t, 16, room.Rows())
	assert.Equal(t, 16, room.Cols())
	assert.Equal(t, grid.Exit, room.At(grid.Point{X: 11, Y: 0}))
	assert.Equal(t, grid.Entrance, room.At(grid.Point{X: 7, Y: 15}))
	assert.Equal(t, 7.0, grid.EntranceColumn(room))

	for _, s := range c.Stimuli() {
		if s.HasGroundTruth() {
			truth, err := c.GroundTruth(s.ID)
			require.NoError(t, err, s.ID)
			assert.Equal(t, 5, truth.Count(grid.Obstacle), s.ID)
		}
	}

	d, err := Default()
	require.NoError(t, err)
	assert.Len(t, d.Stimuli(), len(c.Stimuli()))
}

func TestOpenFromFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cat := filepath.Join(dir, "catalog.yaml")
	room := filepath.Join(dir, "room.txt")
	require.NoError(t, os.WriteFile(cat, []byte(smallCatalog), 0o644))
	require.NoError(t, os.WriteFile(room, []byte(smallRoom), 0o644))

	c, err := Open(cat, room)
	require.NoError(t, err)
	assert.Len(t, c.Conditions(), 2)

	_, err = Open(filepath.Join(dir, "missing.yaml"), "")
	assert.Error(t, err)
}

func TestLoadSharesEmbeddedCatalog(t *testing.T) {
	t.Parallel()

	d, err := Default()
	require.NoError(t, err)
	l, err := Load("", "")
	require.NoError(t, err)
	assert.Same(t, d, l, "no overrides reuses the embedded catalog")

	dir := t.TempDir()
	cat := filepath.Join(dir, "catalog.yaml")
	room := filepath.Join(dir, "room.txt")
	require.NoError(t, os.WriteFile(cat, []byte(smallCatalog), 0o644))
	require.NoError(t, os.WriteFile(room, []byte(smallRoom), 0o644))

	o, err := Load(cat, room)
	require.NoError(t, err)
	assert.NotSame(t, d, o)
	assert.Len(t, o.Conditions(), 2)
}
