// internal/grid/widget.go
//
// Grid reconstruction widget for a single trial.
// Responsibilities:
//   - Own a private copy of the room layout and the set of painted obstacles.
//   - Interpret pointer gestures in draw/erase mode, bounded by an obstacle budget.
//   - Gate the advance affordance on the budget.
//   - In feedback mode, score the response against ground truth before the
//     final advance.
//   - Build the Result exactly once and hand it to the Host.
//
// State transitions:
//
//	editing ──Advance──▶ finished                  (plain trials)
//	editing ──Advance──▶ review ──Advance──▶ finished (feedback trials)
//	any live stage ──Abort──▶ aborted
//
// All methods are serialized by an internal mutex, so the widget can be
// driven from HTTP handlers, a websocket reader and timer callbacks at once.
// There is one gesture buffer: while a pointer gesture is open, cell strokes
// are ignored until the pointer is released.
//
// Obstacles already present in the room count toward the budget but are
// fixed; only room chunks can be painted and erased.

package grid

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/zyedidia/generic/mapset"
)

const (
	DefaultMaxObstacles = 5
	DefaultCellSize     = 25
)

// Mode is the active paint affordance.
type Mode string

const (
	ModeDraw  Mode = "draw"
	ModeErase Mode = "erase"
)

// Valid reports whether m is draw or erase.
func (m Mode) Valid() bool { return m == ModeDraw || m == ModeErase }

// Stage is the widget lifecycle position.
type Stage string

const (
	StageEditing  Stage = "editing"
	StageReview   Stage = "review"
	StageFinished Stage = "finished"
	StageAborted  Stage = "aborted"
)

// Config is the per-trial input supplied by the host.
type Config struct {
	Room              Layout  // copied before use
	GroundTruth       Layout  // required when IsFeedback
	CellSize          float64 // pixels per cell before display scaling
	DisplayScale      float64 // calibration scale applied to CellSize
	RoomScaleFactor   int     // k for the rescaled result layout
	MaxObstacles      int     // obstacle budget
	IsExample         bool
	IsFeedback        bool
	PassingPercentage float64
	BaseImage         string
	ImagePath         string
	Depth             DepthFunc // defaults to DepthCurrent
	Logger            *zerolog.Logger
}

// Host receives the finalized Result.
type Host interface {
	FinishTrial(Result)
}

// HostFunc adapts a function to Host.
type HostFunc func(Result)

func (f HostFunc) FinishTrial(r Result) { f(r) }

// Result is the trial outcome record. It is never modified after it is built.
type Result struct {
	OriginalRoom       Layout   `json:"original_room" yaml:"original_room"`
	RescaledRoom       Layout   `json:"rescaled_room" yaml:"rescaled_room"`
	NObstacles         int      `json:"n_obstacles" yaml:"n_obstacles"`
	RT                 float64  `json:"rt" yaml:"rt"`
	FeedbackPercentage *float64 `json:"feedback_percentage,omitempty" yaml:"feedback_percentage,omitempty"`
	Passed             *bool    `json:"passed,omitempty" yaml:"passed,omitempty"`
	IsExample          bool     `json:"is_example" yaml:"is_example"`
	IsFeedback         bool     `json:"is_feedback" yaml:"is_feedback"`
}

// Outcome is what Advance reports.
type Outcome struct {
	Stage      Stage      `json:"stage"`
	Score      *float64   `json:"score,omitempty"`
	Passed     *bool      `json:"passed,omitempty"`
	Comparison Comparison `json:"-"`
	Result     *Result    `json:"result,omitempty"`
}

// Snapshot is a read-only view of the widget.
type Snapshot struct {
	Stage        Stage     `json:"stage"`
	Mode         Mode      `json:"mode"`
	Room         Layout    `json:"room"`
	Obstacles    int       `json:"obstacles"`
	MaxObstacles int       `json:"maxObstacles"`
	CanAdvance   bool      `json:"canAdvance"`
	Overlays     []Overlay `json:"overlays"`
	Score        *float64  `json:"score,omitempty"`
	Passed       *bool     `json:"passed,omitempty"`
	Comparison   []string  `json:"comparison,omitempty"`
	IsExample    bool      `json:"isExample"`
	IsFeedback   bool      `json:"isFeedback"`
	BaseImage    string    `json:"baseImage"`
	CellPx       float64   `json:"cellPx"`
}

// Widget is one trial's reconstruction grid.
type Widget struct {
	mu sync.Mutex

	cfg      Config
	room     Layout
	truth    Layout
	eligible mapset.Set[Point]
	overlays map[Point]Overlay
	entrance float64
	depth    DepthFunc

	mode       Mode
	stage      Stage
	canAdvance bool

	gesture     []Point
	gestureMode Mode
	pointerDown bool

	score      *float64
	passed     *bool
	comparison Comparison
	result     *Result

	started   time.Time
	timers    map[int]Timer
	nextTimer int

	surface Surface
	host    Host
	clock   Clock
	log     zerolog.Logger
}

// NewWidget validates cfg, draws the grid and starts the reaction-time clock.
// surface, host and clock may be nil.
func NewWidget(cfg Config, surface Surface, host Host, clock Clock) (*Widget, error) {
	if err := cfg.Room.Validate(); err != nil {
		return nil, fmt.Errorf("room: %w", err)
	}
	if cfg.IsFeedback {
		if cfg.GroundTruth == nil {
			return nil, ErrMissingGroundTruth
		}
		if err := cfg.GroundTruth.Validate(); err != nil {
			return nil, fmt.Errorf("ground truth: %w", err)
		}
		if !cfg.Room.SameDims(cfg.GroundTruth) {
			return nil, fmt.Errorf("%w: room %dx%d, ground truth %dx%d", ErrDimensionMismatch,
				cfg.Room.Rows(), cfg.Room.Cols(), cfg.GroundTruth.Rows(), cfg.GroundTruth.Cols())
		}
	}
	if cfg.MaxObstacles <= 0 {
		cfg.MaxObstacles = DefaultMaxObstacles
	}
	if n := cfg.Room.Count(Obstacle); n > cfg.MaxObstacles {
		return nil, fmt.Errorf("%w: room holds %d obstacles, budget %d", ErrOverBudget, n, cfg.MaxObstacles)
	}
	if cfg.CellSize <= 0 {
		cfg.CellSize = DefaultCellSize
	}
	if cfg.DisplayScale <= 0 {
		cfg.DisplayScale = 1
	}
	if cfg.RoomScaleFactor <= 0 {
		cfg.RoomScaleFactor = 1
	}
	if cfg.ImagePath == "" {
		cfg.ImagePath = DefaultImagePath
	}
	if surface == nil {
		surface = NopSurface{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	lg := log.Logger.With().Str("component", "grid").Logger()
	if cfg.Logger != nil {
		lg = *cfg.Logger
	}
	depth := cfg.Depth
	if depth == nil {
		depth = DepthCurrent
	}

	w := &Widget{
		cfg:      cfg,
		room:     cfg.Room.Clone(),
		truth:    cfg.GroundTruth.Clone(),
		eligible: mapset.New[Point](),
		overlays: make(map[Point]Overlay),
		depth:    depth,
		mode:     ModeDraw,
		stage:    StageEditing,
		timers:   make(map[int]Timer),
		surface:  surface,
		host:     host,
		clock:    clock,
		log:      lg,
	}
	w.entrance = EntranceColumn(w.room)

	for y, row := range w.room {
		for x, s := range row {
			if s == RoomChunk {
				w.eligible.Put(Point{X: x, Y: y})
			}
		}
	}
	if w.eligible.Size() < cfg.MaxObstacles {
		w.log.Warn().Int("eligible", w.eligible.Size()).Int("budget", cfg.MaxObstacles).
			Msg("room has fewer paintable cells than the obstacle budget")
	}

	w.surface.DrawGrid(w.room, w.gridSize())
	for _, p := range w.room.Points(Obstacle) {
		w.addOverlay(p)
	}
	w.surface.SetMode(w.mode)
	w.canAdvance = w.obstacleCount() >= cfg.MaxObstacles
	w.surface.SetAdvance(w.canAdvance)
	w.started = clock.Now()
	return w, nil
}

func (w *Widget) gridSize() float64 { return w.cfg.CellSize * w.cfg.DisplayScale }

func (w *Widget) obstacleCount() int { return w.room.Count(Obstacle) }

func (w *Widget) live() bool { return w.stage == StageEditing || w.stage == StageReview }

// SetMode switches between draw and erase. The modes are exclusive.
func (w *Widget) SetMode(m Mode) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !m.Valid() {
		return fmt.Errorf("grid: unknown mode %q", m)
	}
	switch w.stage {
	case StageReview:
		return ErrLocked
	case StageFinished, StageAborted:
		return ErrFinalized
	}
	w.mode = m
	w.surface.SetMode(m)
	return nil
}

// Mode returns the active mode.
func (w *Widget) Mode() Mode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mode
}

// CellAt rounds pixel coordinates to the nearest cell.
func (w *Widget) CellAt(x, y float64) Point {
	gs := w.gridSize()
	return Point{X: roundHalfUp(x / gs), Y: roundHalfUp(y / gs)}
}

func roundHalfUp(v float64) int { return int(math.Floor(v + 0.5)) }

// PointerDown starts a gesture at pixel (x, y).
func (w *Widget) PointerDown(x, y float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stage != StageEditing {
		w.log.Debug().Str("stage", string(w.stage)).Msg("gesture ignored, editing closed")
		return
	}
	w.gesture = w.gesture[:0]
	w.gestureMode = w.mode
	w.pointerDown = true
	w.surface.ClearPreview()
	w.collect(w.CellAt(x, y))
}

// PointerMove extends the current gesture.
func (w *Widget) PointerMove(x, y float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.pointerDown || w.stage != StageEditing {
		return
	}
	w.collect(w.CellAt(x, y))
}

// PointerUp commits the gesture and returns how many cells changed.
func (w *Widget) PointerUp(x, y float64) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.pointerDown {
		return 0
	}
	w.pointerDown = false
	if w.stage != StageEditing {
		w.gesture = w.gesture[:0]
		return 0
	}
	return w.commit()
}

// Stroke applies a gesture given directly in cell coordinates, using the
// active mode. It returns how many cells changed.
func (w *Widget) Stroke(cells ...Point) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stroke(cells)
}

// PaintCell paints one cell. It does nothing outside draw mode.
func (w *Widget) PaintCell(p Point) bool { return w.single(ModeDraw, p) }

// EraseCell erases one cell. It does nothing outside erase mode.
func (w *Widget) EraseCell(p Point) bool { return w.single(ModeErase, p) }

func (w *Widget) single(m Mode, p Point) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.mode != m {
		w.log.Debug().Stringer("cell", p).Str("mode", string(w.mode)).Msg("wrong mode for single-cell gesture")
		return false
	}
	return w.stroke([]Point{p}) == 1
}

func (w *Widget) stroke(cells []Point) int {
	if w.stage != StageEditing {
		w.log.Debug().Str("stage", string(w.stage)).Msg("stroke ignored, editing closed")
		return 0
	}
	if w.pointerDown {
		w.log.Debug().Int("cells", len(cells)).Msg("stroke ignored, pointer gesture in progress")
		return 0
	}
	w.gesture = w.gesture[:0]
	w.gestureMode = w.mode
	w.pointerDown = false
	for _, p := range cells {
		w.collect(p)
	}
	return w.commit()
}

func (w *Widget) collect(p Point) {
	if !w.room.In(p) || !w.eligible.Has(p) {
		w.log.Debug().Stringer("cell", p).Msg("cell cannot hold an obstacle")
		return
	}
	if n := len(w.gesture); n > 0 && w.gesture[n-1] == p {
		return
	}
	w.gesture = append(w.gesture, p)
	w.surface.Preview(p, w.gestureMode)
}

func (w *Widget) commit() int {
	changed := 0
	for _, p := range w.gesture {
		var ok bool
		switch w.gestureMode {
		case ModeDraw:
			ok = w.paint(p)
		case ModeErase:
			ok = w.erase(p)
		}
		if ok {
			changed++
		}
	}
	w.gesture = w.gesture[:0]
	w.surface.ClearPreview()
	w.refreshAdvance()
	return changed
}

func (w *Widget) paint(p Point) bool {
	if s := w.room.At(p); s != RoomChunk {
		w.log.Debug().Stringer("cell", p).Stringer("symbol", s).Msg("paint rejected")
		return false
	}
	if n := w.obstacleCount(); n >= w.cfg.MaxObstacles {
		w.log.Debug().Stringer("cell", p).Int("obstacles", n).Msg("paint rejected, budget reached")
		return false
	}
	w.room.Set(p, Obstacle)
	w.surface.SetCell(p, Obstacle)
	w.addOverlay(p)
	return true
}

func (w *Widget) erase(p Point) bool {
	if s := w.room.At(p); s != Obstacle {
		w.log.Debug().Stringer("cell", p).Stringer("symbol", s).Msg("erase rejected")
		return false
	}
	w.room.Set(p, RoomChunk)
	w.surface.SetCell(p, RoomChunk)
	if _, ok := w.overlays[p]; ok {
		delete(w.overlays, p)
		w.surface.RemoveOverlay(p)
	}
	w.sweepOverlays()
	return true
}

func (w *Widget) addOverlay(p Point) {
	if _, ok := w.overlays[p]; ok {
		return
	}
	o := Overlay{
		Point:  p,
		Image:  OverlayImage(w.cfg.ImagePath, p),
		ZIndex: w.depth(p, w.entrance, w.room.Rows()),
	}
	w.overlays[p] = o
	w.surface.AddOverlay(o)
}

// sweepOverlays drops any overlay whose cell is no longer an obstacle.
func (w *Widget) sweepOverlays() {
	for p := range w.overlays {
		if w.room.At(p) != Obstacle {
			delete(w.overlays, p)
			w.surface.RemoveOverlay(p)
		}
	}
}

func (w *Widget) refreshAdvance() {
	can := w.obstacleCount() >= w.cfg.MaxObstacles
	if can != w.canAdvance {
		w.canAdvance = can
		w.surface.SetAdvance(can)
	}
}

// CanAdvance reports whether the budget is met.
func (w *Widget) CanAdvance() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.canAdvance
}

// Obstacles returns the painted cells, row-major.
func (w *Widget) Obstacles() []Point {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.room.Points(Obstacle)
}

// Advance moves the trial forward. Plain trials finalize immediately;
// feedback trials show the scored comparison first and finalize on the
// second call. The Host is notified after the widget lock is released.
func (w *Widget) Advance() (Outcome, error) {
	w.mu.Lock()
	switch {
	case !w.live():
		st := w.stage
		w.mu.Unlock()
		return Outcome{Stage: st}, ErrFinalized
	case !w.canAdvance:
		n := w.obstacleCount()
		w.mu.Unlock()
		w.log.Debug().Int("obstacles", n).Int("budget", w.cfg.MaxObstacles).Msg("advance rejected")
		return Outcome{Stage: StageEditing}, ErrCannotAdvance
	case w.cfg.IsFeedback && w.stage == StageEditing:
		out, err := w.review()
		w.mu.Unlock()
		return out, err
	}
	// plain trial, or the second advance of a feedback trial
	res := w.finalize()
	host := w.host
	w.mu.Unlock()

	if host != nil {
		host.FinishTrial(res)
	}
	return Outcome{Stage: StageFinished, Score: res.FeedbackPercentage, Passed: res.Passed, Result: &res}, nil
}

func (w *Widget) review() (Outcome, error) {
	pct, cmp, err := ScoreLayouts(w.room, w.truth)
	if err != nil {
		return Outcome{Stage: w.stage}, fmt.Errorf("score: %w", err)
	}
	passed := pct >= w.cfg.PassingPercentage
	w.score, w.passed, w.comparison = &pct, &passed, cmp
	w.stage = StageReview
	w.pointerDown = false
	w.gesture = w.gesture[:0]
	w.surface.DrawComparison(cmp, pct, passed)
	w.log.Info().Float64("score", pct).Bool("passed", passed).Msg("feedback scored")
	return Outcome{Stage: StageReview, Score: w.score, Passed: w.passed, Comparison: cmp}, nil
}

func (w *Widget) finalize() Result {
	w.cancelTimers()
	rt := w.clock.Now().Sub(w.started)
	res := Result{
		OriginalRoom:       w.room.Clone(),
		RescaledRoom:       w.room.Expand(w.cfg.RoomScaleFactor),
		NObstacles:         w.obstacleCount(),
		RT:                 float64(rt) / float64(time.Millisecond),
		FeedbackPercentage: w.score,
		Passed:             w.passed,
		IsExample:          w.cfg.IsExample,
		IsFeedback:         w.cfg.IsFeedback,
	}
	w.result = &res
	w.stage = StageFinished
	w.surface.Clear()
	w.log.Info().Int("obstacles", res.NObstacles).Float64("rt", res.RT).Msg("trial finished")
	return res
}

// Abort tears the widget down without producing a Result.
func (w *Widget) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.live() {
		return
	}
	w.cancelTimers()
	w.stage = StageAborted
	w.surface.Clear()
}

// Result returns the finalized record, if any.
func (w *Widget) Result() (Result, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.result == nil {
		return Result{}, false
	}
	return *w.result, true
}

// Stage returns the lifecycle position.
func (w *Widget) Stage() Stage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stage
}

// After schedules fn on the widget's clock. The callback never runs once the
// widget is finalized or aborted. The returned func cancels it.
func (w *Widget) After(d time.Duration, fn func()) (cancel func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.live() {
		return func() {}
	}
	id := w.nextTimer
	w.nextTimer++
	w.timers[id] = w.clock.AfterFunc(d, func() {
		w.mu.Lock()
		_, pending := w.timers[id]
		delete(w.timers, id)
		run := pending && w.live()
		w.mu.Unlock()
		if run {
			fn()
		}
	})
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if t, ok := w.timers[id]; ok {
			t.Stop()
			delete(w.timers, id)
		}
	}
}

func (w *Widget) cancelTimers() {
	for id, t := range w.timers {
		t.Stop()
		delete(w.timers, id)
	}
}

// PendingTimers reports how many scheduled callbacks are outstanding.
func (w *Widget) PendingTimers() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.timers)
}

// Snapshot returns a copy of the visible state.
func (w *Widget) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	ov := make([]Overlay, 0, len(w.overlays))
	for _, o := range w.overlays {
		ov = append(ov, o)
	}
	sort.Slice(ov, func(i, j int) bool {
		if ov[i].Point.Y != ov[j].Point.Y {
			return ov[i].Point.Y < ov[j].Point.Y
		}
		return ov[i].Point.X < ov[j].Point.X
	})
	s := Snapshot{
		Stage:        w.stage,
		Mode:         w.mode,
		Room:         w.room.Clone(),
		Obstacles:    w.obstacleCount(),
		MaxObstacles: w.cfg.MaxObstacles,
		CanAdvance:   w.canAdvance,
		Overlays:     ov,
		Score:        w.score,
		Passed:       w.passed,
		IsExample:    w.cfg.IsExample,
		IsFeedback:   w.cfg.IsFeedback,
		BaseImage:    w.cfg.BaseImage,
		CellPx:       w.gridSize(),
	}
	if w.comparison != nil {
		s.Comparison = w.comparison.Strings()
	}
	return s
}
