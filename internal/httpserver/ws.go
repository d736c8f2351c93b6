// internal/httpserver/ws.go
//
// Live gesture stream for one trial: GET /trials/{id}/ws.
//
// Inbound messages are JSON:
//
//	{"type":"down","x":..,"y":..}  {"type":"move",..}  {"type":"up",..}
//	{"type":"mode","mode":"erase"}  {"type":"advance"}
//
// Pointer moves beyond the per-connection rate are dropped; every other
// message waits for the limiter. After each message the server sends the
// render ops it produced ({"type":"ops"}), an outcome on advance, or an
// error. The socket is closed once the trial finishes.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/robalobadob/gridrecon/internal/grid"
	"github.com/robalobadob/gridrecon/internal/store"
)

const (
	wsPongWait   = time.Minute
	wsPingPeriod = 25 * time.Second
	wsWriteWait  = 10 * time.Second

	// pointer moves per second, with a burst for fast strokes
	wsMoveRate  = 60
	wsMoveBurst = 30
)

type wsIn struct {
	Type string    `json:"type"`
	X    float64   `json:"x"`
	Y    float64   `json:"y"`
	Mode grid.Mode `json:"mode,omitempty"`
}

type wsOut struct {
	Type     string         `json:"type"`
	Ops      []grid.Op      `json:"ops,omitempty"`
	Snapshot *grid.Snapshot `json:"snapshot,omitempty"`
	Changed  *int           `json:"changed,omitempty"`
	Outcome  *grid.Outcome  `json:"outcome,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// wsConn serializes writes; the ping loop and the reader both write.
type wsConn struct {
	mu     sync.Mutex
	socket *websocket.Conn
}

func newWSConn(conn *websocket.Conn) *wsConn {
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	return &wsConn{socket: conn}
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.socket.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.socket.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (c *wsConn) close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.socket.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), time.Now().Add(wsWriteWait))
	_ = c.socket.Close()
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || origin == s.cfg.ClientOrigin {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && u.Host == r.Host
		},
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil || sess.ParticipantID != participantFrom(r) {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	up := s.upgrader()
	socket, err := up.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("trial", sess.ID).Msg("websocket upgrade failed")
		return
	}
	conn := newWSConn(socket)
	lg := log.With().Str("trial", sess.ID).Logger()
	lg.Debug().Msg("gesture stream opened")

	done := make(chan struct{})
	go func() {
		t := time.NewTicker(wsPingPeriod)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := conn.ping(); err != nil {
					return
				}
			}
		}
	}()
	defer close(done)

	reason := s.serveStream(r.Context(), conn, sess, lg)
	conn.close(reason)
	lg.Debug().Str("reason", reason).Msg("gesture stream closed")
}

// serveStream runs the read loop and returns the close reason.
func (s *Server) serveStream(ctx context.Context, conn *wsConn, sess *store.Session, lg zerolog.Logger) string {
	limiter := rate.NewLimiter(wsMoveRate, wsMoveBurst)

	// initial state
	if err := conn.writeJSON(opsMessage(sess, nil)); err != nil {
		return "write_failed"
	}
	for {
		_, data, err := conn.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				lg.Debug().Err(err).Msg("gesture stream read")
			}
			return "read_closed"
		}
		var in wsIn
		if err := json.Unmarshal(data, &in); err != nil {
			_ = conn.writeJSON(wsOut{Type: "error", Error: "bad_json"})
			continue
		}

		if in.Type == "move" {
			if !limiter.Allow() {
				continue
			}
		} else if err := limiter.Wait(ctx); err != nil {
			return "rate_limited"
		}

		out, finished := s.applyMessage(sess, in)
		if err := conn.writeJSON(out); err != nil {
			return "write_failed"
		}
		if finished {
			return "finished"
		}
	}
}

// applyMessage routes one message to the widget.
func (s *Server) applyMessage(sess *store.Session, in wsIn) (wsOut, bool) {
	wdg := sess.Widget
	switch in.Type {
	case "down":
		wdg.PointerDown(in.X, in.Y)
	case "move":
		wdg.PointerMove(in.X, in.Y)
	case "up":
		n := wdg.PointerUp(in.X, in.Y)
		return opsMessage(sess, &n), false
	case "mode":
		if err := wdg.SetMode(in.Mode); err != nil {
			return wsOut{Type: "error", Error: wsErrorCode(err)}, false
		}
	case "advance":
		out, err := wdg.Advance()
		if err != nil {
			return wsOut{Type: "error", Error: wsErrorCode(err)}, false
		}
		msg := opsMessage(sess, nil)
		msg.Type, msg.Outcome = "outcome", &out
		return msg, out.Stage == grid.StageFinished
	default:
		return wsOut{Type: "error", Error: "unknown_type"}, false
	}
	return opsMessage(sess, nil), false
}

func opsMessage(sess *store.Session, changed *int) wsOut {
	snap := sess.Widget.Snapshot()
	return wsOut{Type: "ops", Ops: sess.Recorder.Drain(), Snapshot: &snap, Changed: changed}
}

func wsErrorCode(err error) string {
	switch {
	case errors.Is(err, grid.ErrCannotAdvance):
		return "cannot_advance"
	case errors.Is(err, grid.ErrLocked):
		return "locked"
	case errors.Is(err, grid.ErrFinalized):
		return "finished"
	default:
		return "invalid"
	}
}
