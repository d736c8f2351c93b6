// internal/httpserver/mocks_test.go
//
// Routes exercised against a mocked results store, for failure paths the
// SQLite store cannot produce on demand.

package httpserver

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/gridrecon/internal/conditions"
	"github.com/robalobadob/gridrecon/internal/config"
	"github.com/robalobadob/gridrecon/internal/grid"
	"github.com/robalobadob/gridrecon/internal/results"
	"github.com/robalobadob/gridrecon/internal/store"
)

// --- ResultStore ---

type MockResultStore struct {
	mock.Mock
}

func (m *MockResultStore) Insert(ctx context.Context, r results.Record) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockResultStore) ListByParticipant(ctx context.Context, participantID string, limit int) ([]results.Record, error) {
	args := m.Called(ctx, participantID, limit)
	out, _ := args.Get(0).([]results.Record)
	return out, args.Error(1)
}

func (m *MockResultStore) List(ctx context.Context, limit int) ([]results.Record, error) {
	args := m.Called(ctx, limit)
	out, _ := args.Get(0).([]results.Record)
	return out, args.Error(1)
}

func (m *MockResultStore) Summary(ctx context.Context, participantID string) (results.Summary, error) {
	args := m.Called(ctx, participantID)
	return args.Get(0).(results.Summary), args.Error(1)
}

func newMockedHarness(t *testing.T, rs ResultStore) *harness {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:      "test-secret",
		JWTExpires:     time.Hour,
		CookieName:     "gridrecon_token",
		ClientOrigin:   "http://localhost:5173",
		TrialTTL:       time.Minute,
		MaxObstacles:   5,
		CellSize:       25,
		MaxScaleFactor: 8,
	}
	cat, err := conditions.Default()
	require.NoError(t, err)
	st := store.NewMemoryStore()
	srv := New(Options{Config: cfg, Store: st, Results: rs, Catalog: cat})
	return &harness{srv: srv, h: srv.Router(), store: st, cfg: cfg}
}

func TestFinishSurvivesPersistFailure(t *testing.T) {
	t.Parallel()
	rs := &MockResultStore{}
	h := newMockedHarness(t, rs)
	tok := h.login(t, "p5")

	tr := h.newTrial(t, tok, map[string]any{"stimulusId": "21_2", "maxObstacles": 2})
	rs.On("Insert", mock.Anything, mock.MatchedBy(func(r results.Record) bool {
		return r.ID == tr.TrialID && r.ParticipantID == "p5" && r.SceneID == 21 && r.NObstacles == 2
	})).Return(assert.AnError).Once()

	h.do(t, http.MethodPost, "/trials/"+tr.TrialID+"/gesture",
		map[string]any{"cells": []grid.Point{{X: 3, Y: 3}, {X: 4, Y: 3}}}, tok)
	rec := h.do(t, http.MethodPost, "/trials/"+tr.TrialID+"/advance", nil, tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, grid.StageFinished, decode[trialRes](t, rec).Outcome.Stage)
	assert.Equal(t, 0, h.store.Len())

	rs.AssertExpectations(t)
}

func TestResultReadFailures(t *testing.T) {
	t.Parallel()
	rs := &MockResultStore{}
	h := newMockedHarness(t, rs)
	tok := h.login(t, "p6")

	rs.On("ListByParticipant", mock.Anything, "p6", 5).Return(nil, assert.AnError).Once()
	rs.On("Summary", mock.Anything, "p6").Return(results.Summary{}, assert.AnError).Once()

	rec := h.do(t, http.MethodGet, "/results/mine?limit=5", nil, tok)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "db_error")

	rec = h.do(t, http.MethodGet, "/results/summary", nil, tok)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rs.AssertExpectations(t)
}
