// internal/conditions/catalog.go
//
// Condition and stimulus catalog.
//
// Responsibilities:
//   - Load the base room template and the condition/stimulus YAML, from files
//     when configured or from the embedded assets otherwise.
//   - Build a condition's room: a fresh copy of the template with the top row
//     rewritten so only the condition's exit columns are exits.
//   - Resolve stimuli and their ground truth (the condition's room with the
//     stimulus obstacles painted in).
//
// Loading behavior (Open):
//  1. A non-empty path is read from disk.
//  2. An empty path falls back to the embedded asset.
//
// The catalog is immutable once loaded and safe for concurrent use.

package conditions

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/robalobadob/gridrecon/assets"
	"github.com/robalobadob/gridrecon/internal/grid"
)

var (
	ErrUnknownCondition = errors.New("conditions: unknown condition")
	ErrUnknownStimulus  = errors.New("conditions: unknown stimulus")
	ErrNoGroundTruth    = errors.New("conditions: stimulus has no ground truth")
)

// Condition is an exit arrangement shared by many scenes.
type Condition struct {
	ID        int    `yaml:"id" json:"id"`
	Name      string `yaml:"name" json:"name"`
	Exits     []int  `yaml:"exits" json:"exits"`
	BaseImage string `yaml:"baseImage" json:"baseImage"`
}

// Stimulus is one flashed scene.
type Stimulus struct {
	ID        string       `yaml:"id" json:"id"`
	SceneID   int          `yaml:"sceneId" json:"sceneId"`
	Condition int          `yaml:"condition" json:"condition"`
	Image     string       `yaml:"image" json:"image"`
	Example   bool         `yaml:"example" json:"example"`
	Obstacles []grid.Point `yaml:"obstacles,omitempty" json:"-"`
	Truth     grid.Layout  `yaml:"truth,omitempty" json:"-"`
}

// HasGroundTruth reports whether the stimulus can be scored.
func (s Stimulus) HasGroundTruth() bool { return len(s.Obstacles) > 0 || s.Truth != nil }

type catalogFile struct {
	ImagePath  string      `yaml:"imagePath"`
	StimPath   string      `yaml:"stimPath"`
	Conditions []Condition `yaml:"conditions"`
	Stimuli    []Stimulus  `yaml:"stimuli"`
}

// Catalog holds the base room, the conditions and the stimuli.
type Catalog struct {
	base       grid.Layout
	conditions map[int]Condition
	stimuli    map[string]Stimulus
	order      []string
	imagePath  string
	stimPath   string
}

// Parse builds a catalog from raw YAML and base room text.
func Parse(catalogYAML []byte, baseRoom string) (*Catalog, error) {
	base, err := grid.ParseText(baseRoom)
	if err != nil {
		return nil, fmt.Errorf("base room: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(catalogYAML, &f); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	c := &Catalog{
		base:       base,
		conditions: make(map[int]Condition, len(f.Conditions)),
		stimuli:    make(map[string]Stimulus, len(f.Stimuli)),
		imagePath:  f.ImagePath,
		stimPath:   f.StimPath,
	}
	for _, cond := range f.Conditions {
		if _, dup := c.conditions[cond.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate condition %d", cond.ID)
		}
		for _, x := range cond.Exits {
			if x < 0 || x >= base.Cols() {
				return nil, fmt.Errorf("catalog: condition %d exit %d: %w", cond.ID, x, grid.ErrOutOfBounds)
			}
		}
		c.conditions[cond.ID] = cond
	}
	for _, s := range f.Stimuli {
		if s.ID == "" {
			s.ID = fmt.Sprintf("%d_%d", s.SceneID, s.Condition)
		}
		if _, dup := c.stimuli[s.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate stimulus %q", s.ID)
		}
		if _, ok := c.conditions[s.Condition]; !ok {
			return nil, fmt.Errorf("stimulus %q: %w %d", s.ID, ErrUnknownCondition, s.Condition)
		}
		if s.Image == "" {
			s.Image = s.ID + ".png"
		}
		c.stimuli[s.ID] = s
		c.order = append(c.order, s.ID)
		if s.HasGroundTruth() {
			if _, err := c.GroundTruth(s.ID); err != nil {
				return nil, fmt.Errorf("stimulus %q: %w", s.ID, err)
			}
		}
	}
	return c, nil
}

// Open loads the catalog from the given files, using the embedded assets for
// any empty path.
func Open(catalogFile, baseRoomFile string) (*Catalog, error) {
	var (
		raw  []byte
		base string
		err  error
	)
	if catalogFile != "" {
		raw, err = os.ReadFile(catalogFile)
	} else {
		raw, err = assets.Conditions()
	}
	if err != nil {
		return nil, err
	}
	if baseRoomFile != "" {
		var b []byte
		b, err = os.ReadFile(baseRoomFile)
		base = string(b)
	} else {
		base, err = assets.BaseRoom()
	}
	if err != nil {
		return nil, err
	}
	return Parse(raw, base)
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

// Default returns the catalog built from the embedded assets, loaded once.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = Open("", "")
	})
	return defaultCat, defaultErr
}

// Load is Open with a shortcut: with no override files it returns the
// shared embedded catalog from Default.
func Load(catalogFile, baseRoomFile string) (*Catalog, error) {
	if catalogFile == "" && baseRoomFile == "" {
		return Default()
	}
	return Open(catalogFile, baseRoomFile)
}

// Condition looks up a condition by id.
func (c *Catalog) Condition(id int) (Condition, error) {
	cond, ok := c.conditions[id]
	if !ok {
		return Condition{}, fmt.Errorf("%w %d", ErrUnknownCondition, id)
	}
	return cond, nil
}

// Conditions returns all conditions ordered by id.
func (c *Catalog) Conditions() []Condition {
	out := make([]Condition, 0, len(c.conditions))
	for _, cond := range c.conditions {
		out = append(out, cond)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Room returns a new room for the condition. Each call starts from its own
// copy of the template, so callers may mutate the result freely.
func (c *Catalog) Room(conditionID int) (grid.Layout, error) {
	cond, err := c.Condition(conditionID)
	if err != nil {
		return nil, err
	}
	room := c.base.Clone()
	exits := make(map[int]bool, len(cond.Exits))
	for _, x := range cond.Exits {
		exits[x] = true
	}
	for x := range room[0] {
		if exits[x] {
			room[0][x] = grid.Exit
		} else {
			room[0][x] = grid.Wall
		}
	}
	return room, nil
}

// Stimulus looks up a stimulus by id.
func (c *Catalog) Stimulus(id string) (Stimulus, error) {
	s, ok := c.stimuli[id]
	if !ok {
		return Stimulus{}, fmt.Errorf("%w %q", ErrUnknownStimulus, id)
	}
	return s, nil
}

// Stimuli returns the stimuli in catalog order.
func (c *Catalog) Stimuli() []Stimulus {
	out := make([]Stimulus, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.stimuli[id])
	}
	return out
}

// GroundTruth returns the scored layout for a stimulus: its explicit truth
// rows when given, otherwise the condition room with the obstacles painted.
func (c *Catalog) GroundTruth(stimulusID string) (grid.Layout, error) {
	s, err := c.Stimulus(stimulusID)
	if err != nil {
		return nil, err
	}
	if !s.HasGroundTruth() {
		return nil, fmt.Errorf("%w: %q", ErrNoGroundTruth, stimulusID)
	}
	room, err := c.Room(s.Condition)
	if err != nil {
		return nil, err
	}
	if s.Truth != nil {
		if !s.Truth.SameDims(room) {
			return nil, grid.ErrDimensionMismatch
		}
		return s.Truth.Clone(), nil
	}
	for _, p := range s.Obstacles {
		if !room.In(p) {
			return nil, fmt.Errorf("obstacle %s: %w", p, grid.ErrOutOfBounds)
		}
		if room.At(p) != grid.RoomChunk {
			return nil, fmt.Errorf("obstacle %s on %s", p, room.At(p))
		}
		room.Set(p, grid.Obstacle)
	}
	return room, nil
}

// BaseImage is the empty-room image for a condition.
func (c *Catalog) BaseImage(conditionID int) string {
	cond, ok := c.conditions[conditionID]
	if !ok || cond.BaseImage == "" {
		return ""
	}
	return path.Join(c.StimPath(), cond.BaseImage)
}

// StimulusImage is the flashed image for a stimulus.
func (c *Catalog) StimulusImage(s Stimulus) string { return path.Join(c.StimPath(), s.Image) }

// ImagePath is the obstacle overlay directory.
func (c *Catalog) ImagePath() string {
	if c.imagePath == "" {
		return grid.DefaultImagePath
	}
	return c.imagePath
}

// StimPath is the stimulus image directory.
func (c *Catalog) StimPath() string {
	if c.stimPath == "" {
		return grid.DefaultImagePath
	}
	return c.stimPath
}

// WithPaths overrides the image directories; empty values keep the catalog's.
func (c *Catalog) WithPaths(imagePath, stimPath string) *Catalog {
	cp := *c
	if imagePath != "" {
		cp.imagePath = imagePath
	}
	if stimPath != "" {
		cp.stimPath = stimPath
	}
	return &cp
}
