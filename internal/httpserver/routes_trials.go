// internal/httpserver/routes_trials.go
//
// HTTP routes driving a grid reconstruction trial.
//   - POST   /trials/new            → build a widget for a stimulus or condition
//   - GET    /trials/{id}           → snapshot
//   - POST   /trials/{id}/mode      → draw | erase
//   - POST   /trials/{id}/gesture   → pixel path or cell list, committed as one gesture
//   - POST   /trials/{id}/advance   → review (feedback trials) or finish
//   - DELETE /trials/{id}           → abandon
//
// Every response carries the render ops the widget emitted since the last
// response, plus a snapshot. Sessions live in the in-memory store until the
// trial finishes, is abandoned, or outlives TRIAL_TTL. Finished trials are
// written to the results store by the widget's Host callback, exactly once.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/gridrecon/internal/conditions"
	"github.com/robalobadob/gridrecon/internal/grid"
	"github.com/robalobadob/gridrecon/internal/results"
	"github.com/robalobadob/gridrecon/internal/store"
)

func (s *Server) mountTrials(r chi.Router) {
	r.Post("/trials/new", s.handleNewTrial)
	r.Get("/trials/{id}", s.withTrial(s.handleSnapshot))
	r.Delete("/trials/{id}", s.withTrial(s.handleAbandon))
	r.Post("/trials/{id}/mode", s.withTrial(s.handleMode))
	r.Post("/trials/{id}/gesture", s.withTrial(s.handleGesture))
	r.Post("/trials/{id}/advance", s.withTrial(s.handleAdvance))
}

// -----------------------------------------------------------------------------
// /trials/new

// newTrialReq selects the room either by stimulus id or by condition.
type newTrialReq struct {
	StimulusID        string  `json:"stimulusId"`
	SceneID           int     `json:"sceneId"`
	Condition         *int    `json:"condition"`
	IsExample         bool    `json:"isExample"`
	IsFeedback        bool    `json:"isFeedback"`
	DisplayScale      float64 `json:"displayScale"`
	RoomScaleFactor   int     `json:"roomScaleFactor"`
	CellSize          float64 `json:"cellSize"`
	MaxObstacles      int     `json:"maxObstacles"`
	PassingPercentage float64 `json:"passingPercentage"`
	LegacyDepth       bool    `json:"legacyDepth"`
}

// trialRes is the common response of every trial route.
type trialRes struct {
	TrialID       string        `json:"trialId"`
	StimulusImage string        `json:"stimulusImage,omitempty"`
	Ops           []grid.Op     `json:"ops"`
	Snapshot      grid.Snapshot `json:"snapshot"`
	Changed       *int          `json:"changed,omitempty"`
	Outcome       *grid.Outcome `json:"outcome,omitempty"`
}

func (s *Server) handleNewTrial(w http.ResponseWriter, r *http.Request) {
	var req newTrialReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	sess, stimImage, err := s.newSession(participantFrom(r), req)
	switch {
	case errors.Is(err, conditions.ErrUnknownStimulus), errors.Is(err, conditions.ErrUnknownCondition):
		http.Error(w, `{"error":"unknown_stimulus"}`, http.StatusNotFound)
		return
	case errors.Is(err, conditions.ErrNoGroundTruth), errors.Is(err, grid.ErrMissingGroundTruth):
		http.Error(w, `{"error":"no_ground_truth"}`, http.StatusUnprocessableEntity)
		return
	case errors.Is(err, errNoRoom):
		http.Error(w, `{"error":"stimulusId_or_condition_required"}`, http.StatusBadRequest)
		return
	case errors.As(err, new(*rangeError)), errors.Is(err, grid.ErrOverBudget):
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
		return
	case err != nil:
		log.Error().Err(err).Msg("create trial")
		http.Error(w, `{"error":"create_failed"}`, http.StatusInternalServerError)
		return
	}
	if err := s.store.Save(r.Context(), sess); err != nil {
		sess.Widget.Abort()
		http.Error(w, `{"error":"save_failed"}`, http.StatusInternalServerError)
		return
	}
	s.scheduleEviction(sess)
	log.Info().Str("trial", sess.ID).Str("participant", sess.ParticipantID).
		Str("stimulus", sess.StimulusID).Int("condition", sess.ConditionID).Msg("trial started")

	res := s.respond(sess)
	res.StimulusImage = stimImage
	_ = json.NewEncoder(w).Encode(res)
}

var errNoRoom = errors.New("neither stimulus nor condition given")

// Upper bounds for client-supplied geometry. The rescaled layout grows with
// the square of roomScaleFactor, whose cap comes from MAX_SCALE_FACTOR.
const (
	maxDisplayScale = 10
	maxCellSize     = 200
)

type rangeError struct {
	Field string
	Max   float64
}

func (e *rangeError) Error() string {
	return fmt.Sprintf("%s_out_of_range (max %g)", e.Field, e.Max)
}

// checkBounds rejects out-of-range request values. Zero selects the default
// for every field; negatives never do.
func (s *Server) checkBounds(req newTrialReq) error {
	switch {
	case req.RoomScaleFactor < 0 || req.RoomScaleFactor > s.cfg.MaxScaleFactor:
		return &rangeError{"roomScaleFactor", float64(s.cfg.MaxScaleFactor)}
	case req.DisplayScale < 0 || req.DisplayScale > maxDisplayScale:
		return &rangeError{"displayScale", maxDisplayScale}
	case req.CellSize < 0 || req.CellSize > maxCellSize:
		return &rangeError{"cellSize", maxCellSize}
	case req.PassingPercentage < 0 || req.PassingPercentage > 100:
		return &rangeError{"passingPercentage", 100}
	case req.MaxObstacles < 0:
		return &rangeError{"maxObstacles", 0}
	}
	return nil
}

// newSession resolves the room and ground truth and builds the widget.
func (s *Server) newSession(participant string, req newTrialReq) (*store.Session, string, error) {
	if err := s.checkBounds(req); err != nil {
		return nil, "", err
	}
	sess := &store.Session{
		ID:            uuid.NewString(),
		ParticipantID: participant,
		SceneID:       req.SceneID,
		CreatedAt:     time.Now().UTC(),
		Recorder:      &grid.Recorder{},
	}
	var stimImage string
	switch {
	case req.StimulusID != "":
		stim, err := s.catalog.Stimulus(req.StimulusID)
		if err != nil {
			return nil, "", err
		}
		sess.StimulusID, sess.SceneID, sess.ConditionID = stim.ID, stim.SceneID, stim.Condition
		req.IsExample = req.IsExample || stim.Example
		stimImage = s.catalog.StimulusImage(stim)
	case req.Condition != nil:
		sess.ConditionID = *req.Condition
	default:
		return nil, "", errNoRoom
	}

	room, err := s.catalog.Room(sess.ConditionID)
	if err != nil {
		return nil, "", err
	}
	if paintable := room.Count(grid.RoomChunk); req.MaxObstacles > paintable {
		return nil, "", &rangeError{"maxObstacles", float64(paintable)}
	}
	var truth grid.Layout
	if req.IsFeedback {
		if sess.StimulusID == "" {
			return nil, "", grid.ErrMissingGroundTruth
		}
		if truth, err = s.catalog.GroundTruth(sess.StimulusID); err != nil {
			return nil, "", err
		}
	}

	cfg := grid.Config{
		Room:              room,
		GroundTruth:       truth,
		CellSize:          req.CellSize,
		DisplayScale:      req.DisplayScale,
		RoomScaleFactor:   req.RoomScaleFactor,
		MaxObstacles:      req.MaxObstacles,
		IsExample:         req.IsExample,
		IsFeedback:        req.IsFeedback,
		PassingPercentage: req.PassingPercentage,
		BaseImage:         s.catalog.BaseImage(sess.ConditionID),
		ImagePath:         s.catalog.ImagePath(),
	}
	if cfg.CellSize <= 0 {
		cfg.CellSize = s.cfg.CellSize
	}
	if cfg.MaxObstacles <= 0 {
		cfg.MaxObstacles = s.cfg.MaxObstacles
	}
	if req.LegacyDepth {
		cfg.Depth = grid.DepthLegacy
	}
	lg := log.With().Str("trial", sess.ID).Logger()
	cfg.Logger = &lg

	trial := results.Trial{
		ID:            sess.ID,
		ParticipantID: sess.ParticipantID,
		StimulusID:    sess.StimulusID,
		SceneID:       sess.SceneID,
		ConditionID:   sess.ConditionID,
	}
	wdg, err := grid.NewWidget(cfg, sess.Recorder, grid.HostFunc(func(res grid.Result) {
		s.finishTrial(trial, res)
	}), s.clock)
	if err != nil {
		return nil, "", err
	}
	sess.Widget = wdg
	return sess, stimImage, nil
}

// scheduleEviction drops the session once it outlives TRIAL_TTL. The timer
// belongs to the widget, so finishing or abandoning the trial cancels it.
func (s *Server) scheduleEviction(sess *store.Session) {
	if s.cfg.TrialTTL <= 0 {
		return
	}
	sess.Widget.After(s.cfg.TrialTTL, func() {
		sess.Widget.Abort()
		_ = s.store.Delete(context.Background(), sess.ID)
		log.Info().Str("trial", sess.ID).Dur("ttl", s.cfg.TrialTTL).Msg("abandoned trial evicted")
	})
}

// finishTrial is the widget Host: persist the result and drop the session.
func (s *Server) finishTrial(t results.Trial, res grid.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.results.Insert(ctx, results.NewRecord(t, res)); err != nil {
		log.Warn().Err(err).Str("trial", t.ID).Msg("persist trial result")
	}
	_ = s.store.Delete(ctx, t.ID)
}

// -----------------------------------------------------------------------------
// per-trial routes

type trialHandler func(w http.ResponseWriter, r *http.Request, sess *store.Session)

// withTrial loads the session and hides other participants' trials.
func (s *Server) withTrial(h trialHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil || sess.ParticipantID != participantFrom(r) {
			http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
			return
		}
		h(w, r, sess)
	}
}

// respond drains pending render ops into a response.
func (s *Server) respond(sess *store.Session) trialRes {
	ops := sess.Recorder.Drain()
	if ops == nil {
		ops = []grid.Op{}
	}
	return trialRes{TrialID: sess.ID, Ops: ops, Snapshot: sess.Widget.Snapshot()}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, sess *store.Session) {
	_ = json.NewEncoder(w).Encode(s.respond(sess))
}

func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request, sess *store.Session) {
	sess.Widget.Abort()
	_ = s.store.Delete(r.Context(), sess.ID)
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

type modeReq struct {
	Mode grid.Mode `json:"mode"`
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request, sess *store.Session) {
	var req modeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Mode.Valid() {
		http.Error(w, `{"error":"mode must be draw or erase"}`, http.StatusBadRequest)
		return
	}
	if err := sess.Widget.SetMode(req.Mode); err != nil {
		trialError(w, sess, err)
		return
	}
	_ = json.NewEncoder(w).Encode(s.respond(sess))
}

// gestureReq is either a pixel path (pointer down, moves, up) or cell list.
type gestureReq struct {
	Path  []pixel      `json:"path"`
	Cells []grid.Point `json:"cells"`
}

type pixel struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (s *Server) handleGesture(w http.ResponseWriter, r *http.Request, sess *store.Session) {
	var req gestureReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	if len(req.Path) == 0 && len(req.Cells) == 0 {
		http.Error(w, `{"error":"empty_gesture"}`, http.StatusBadRequest)
		return
	}
	changed := applyGesture(sess.Widget, req)
	res := s.respond(sess)
	res.Changed = &changed
	_ = json.NewEncoder(w).Encode(res)
}

// applyGesture commits a whole gesture; invalid cells are silently skipped.
func applyGesture(wdg *grid.Widget, req gestureReq) int {
	if len(req.Cells) > 0 {
		return wdg.Stroke(req.Cells...)
	}
	first, last := req.Path[0], req.Path[len(req.Path)-1]
	wdg.PointerDown(first.X, first.Y)
	for _, p := range req.Path[1:] {
		wdg.PointerMove(p.X, p.Y)
	}
	return wdg.PointerUp(last.X, last.Y)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request, sess *store.Session) {
	out, err := sess.Widget.Advance()
	if err != nil {
		trialError(w, sess, err)
		return
	}
	res := s.respond(sess)
	res.Outcome = &out
	_ = json.NewEncoder(w).Encode(res)
}

// trialError maps widget errors to JSON error bodies.
func trialError(w http.ResponseWriter, sess *store.Session, err error) {
	switch {
	case errors.Is(err, grid.ErrCannotAdvance):
		http.Error(w, `{"error":"cannot_advance"}`, http.StatusConflict)
	case errors.Is(err, grid.ErrLocked):
		http.Error(w, `{"error":"locked"}`, http.StatusConflict)
	case errors.Is(err, grid.ErrFinalized):
		http.Error(w, `{"error":"finished"}`, http.StatusConflict)
	default:
		log.Error().Err(err).Str("trial", sess.ID).Msg("trial operation failed")
		http.Error(w, `{"error":"trial_failed"}`, http.StatusInternalServerError)
	}
}
