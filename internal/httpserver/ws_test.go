package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/gridrecon/internal/grid"
)

func dialTrial(t *testing.T, ts *httptest.Server, trialID, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/trials/" + trialID + "/ws"
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+token)
	return websocket.DefaultDialer.Dial(u, hdr)
}

func readOut(t *testing.T, c *websocket.Conn) wsOut {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	var out wsOut
	require.NoError(t, c.ReadJSON(&out))
	return out
}

func send(t *testing.T, c *websocket.Conn, in wsIn) wsOut {
	t.Helper()
	require.NoError(t, c.WriteJSON(in))
	return readOut(t, c)
}

func TestGestureStream(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ts := httptest.NewServer(h.h)
	t.Cleanup(ts.Close)

	tok := h.login(t, "streamer")
	tr := h.newTrial(t, tok, map[string]any{"condition": 0})

	c, _, err := dialTrial(t, ts, tr.TrialID, tok)
	require.NoError(t, err)
	defer c.Close()

	first := readOut(t, c)
	assert.Equal(t, "ops", first.Type)
	require.NotNil(t, first.Snapshot)
	assert.Equal(t, grid.StageEditing, first.Snapshot.Stage)

	send(t, c, wsIn{Type: "down", X: 25, Y: 25})
	mv := send(t, c, wsIn{Type: "move", X: 50, Y: 25})
	require.NotEmpty(t, mv.Ops)
	assert.Equal(t, grid.OpPreview, mv.Ops[len(mv.Ops)-1].Kind)
	up := send(t, c, wsIn{Type: "up", X: 50, Y: 25})
	require.NotNil(t, up.Changed)
	assert.Equal(t, 2, *up.Changed)
	assert.Equal(t, 2, up.Snapshot.Obstacles)

	adv := send(t, c, wsIn{Type: "advance"})
	assert.Equal(t, "error", adv.Type)
	assert.Equal(t, "cannot_advance", adv.Error)

	bad := send(t, c, wsIn{Type: "mode", Mode: "spray"})
	assert.Equal(t, "invalid", bad.Error)
	unk := send(t, c, wsIn{Type: "wiggle"})
	assert.Equal(t, "unknown_type", unk.Error)

	for _, x := range []float64{75, 100, 125} {
		send(t, c, wsIn{Type: "down", X: x, Y: 50})
		up := send(t, c, wsIn{Type: "up", X: x, Y: 50})
		require.NotNil(t, up.Changed)
		assert.Equal(t, 1, *up.Changed)
	}

	fin := send(t, c, wsIn{Type: "advance"})
	assert.Equal(t, "outcome", fin.Type)
	require.NotNil(t, fin.Outcome)
	assert.Equal(t, grid.StageFinished, fin.Outcome.Stage)
	require.NotNil(t, fin.Outcome.Result)
	assert.Equal(t, 5, fin.Outcome.Result.NObstacles)

	_, _, err = c.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	rec := h.do(t, http.MethodGet, "/results/mine", nil, tok)
	assert.Contains(t, rec.Body.String(), tr.TrialID)
}

func TestGestureStreamRejectsStrangers(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ts := httptest.NewServer(h.h)
	t.Cleanup(ts.Close)

	owner := h.login(t, "owner")
	tr := h.newTrial(t, owner, map[string]any{"condition": 1})

	_, resp, err := dialTrial(t, ts, tr.TrialID, h.login(t, "other"))
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = dialTrial(t, ts, tr.TrialID, "nope")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGestureStreamThrottlesMoves(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ts := httptest.NewServer(h.h)
	t.Cleanup(ts.Close)

	tok := h.login(t, "sprinter")
	tr := h.newTrial(t, tok, map[string]any{"condition": 0})

	c, _, err := dialTrial(t, ts, tr.TrialID, tok)
	require.NoError(t, err)
	defer c.Close()
	readOut(t, c)
	send(t, c, wsIn{Type: "down", X: 25, Y: 25})

	const moves = 4 * wsMoveBurst
	sent := make(chan error, 1)
	go func() {
		for i := 0; i < moves; i++ {
			x := 25.0 + float64(i%2)*25
			if err := c.WriteJSON(wsIn{Type: "move", X: x, Y: 25}); err != nil {
				sent <- err
				return
			}
		}
		if err := c.WriteJSON(wsIn{Type: "up", X: 50, Y: 25}); err != nil {
			sent <- err
			return
		}
		sent <- c.WriteJSON(wsIn{Type: "mode", Mode: grid.ModeErase})
	}()

	previews := 0
	var up wsOut
	for {
		out := readOut(t, c)
		if out.Changed != nil {
			up = out
			break
		}
		previews++
	}
	require.NoError(t, <-sent)

	assert.Positive(t, previews)
	assert.Less(t, previews, moves, "moves past the burst are dropped")
	assert.Equal(t, 2, *up.Changed, "the gesture survives the dropped moves")

	mode := readOut(t, c)
	assert.Equal(t, "ops", mode.Type)
	require.NotNil(t, mode.Snapshot)
	assert.Equal(t, grid.ModeErase, mode.Snapshot.Mode)
}
