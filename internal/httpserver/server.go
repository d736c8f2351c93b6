// internal/httpserver/server.go
//
// HTTP server wiring for the grid reconstruction backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health".
//   - Participant session endpoints: /session, /session/me.
//   - Trial endpoints (participant auth): /trials/*, including the websocket
//     gesture stream.
//   - Result endpoints: /results/mine, /results/summary, and the researcher
//     export /admin/results behind basic auth.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - The websocket route sits outside the request timeout group; a hijacked
//     connection outlives any handler deadline.

package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/gridrecon/internal/conditions"
	"github.com/robalobadob/gridrecon/internal/config"
	"github.com/robalobadob/gridrecon/internal/grid"
	"github.com/robalobadob/gridrecon/internal/results"
	"github.com/robalobadob/gridrecon/internal/store"
)

// ResultStore persists finalized trials.
type ResultStore interface {
	Insert(ctx context.Context, r results.Record) error
	ListByParticipant(ctx context.Context, participantID string, limit int) ([]results.Record, error)
	List(ctx context.Context, limit int) ([]results.Record, error)
	Summary(ctx context.Context, participantID string) (results.Summary, error)
}

// Options are the Server's dependencies. Clock may be nil.
type Options struct {
	Config  *config.Config
	Store   store.Store
	Results ResultStore
	Catalog *conditions.Catalog
	Clock   grid.Clock
}

// Server bundles router, in-flight trial store, result store and catalog.
type Server struct {
	r       *chi.Mux
	cfg     *config.Config
	store   store.Store
	results ResultStore
	catalog *conditions.Catalog
	clock   grid.Clock
}

// New constructs a Server, installs middleware, and registers routes.
func New(o Options) *Server {
	if o.Clock == nil {
		o.Clock = grid.SystemClock{}
	}
	s := &Server{
		r:       chi.NewRouter(),
		cfg:     o.Config,
		store:   o.Store,
		results: o.Results,
		catalog: o.Catalog,
		clock:   o.Clock,
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID) // add X-Request-ID
	s.r.Use(chimw.RealIP)    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer) // recover from panics
	s.r.Use(corsFor(s.cfg.ClientOrigin))

	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
		r.Use(jsonContentType)                 // default JSON responses

		// --- diagnostics ---
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"service":"gridrecon","endpoints":["/health","POST /session","POST /trials/new","/trials/{id}/*","/results/*"]}`))
		})
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true}`))
		})

		s.mountSession(r)
		s.mountTrials(r.With(s.requireParticipant()))
		s.mountResults(r)
	})

	// Live gesture stream (participant auth, no timeout)
	s.r.With(s.requireParticipant()).Get("/trials/{id}/ws", s.handleWS)

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
	})

	return s
}

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error {
	log.Info().Str("addr", addr).Msg("listening")
	return http.ListenAndServe(addr, s.r)
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// corsFor enables credentialed CORS for a single origin.
func corsFor(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
