// internal/httpserver/routes_results.go
//
// Persisted results.
//   - GET /results/mine     → the participant's trials, newest first
//   - GET /results/summary  → trial count, feedback attempts, best score
//   - GET /admin/results    → researcher export (basic auth), JSON or ?format=yaml

package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

func (s *Server) mountResults(r chi.Router) {
	r.With(s.requireParticipant()).Get("/results/mine", func(w http.ResponseWriter, r *http.Request) {
		out, err := s.results.ListByParticipant(r.Context(), participantFrom(r), queryInt(r, "limit", 50))
		if err != nil {
			log.Warn().Err(err).Msg("list participant results")
			http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.With(s.requireParticipant()).Get("/results/summary", func(w http.ResponseWriter, r *http.Request) {
		sum, err := s.results.Summary(r.Context(), participantFrom(r))
		if err != nil {
			log.Warn().Err(err).Msg("summarize results")
			http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(sum)
	})

	r.With(s.requireAdmin()).Get("/admin/results", s.handleExport)
}

// handleExport dumps every stored trial for analysis.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	out, err := s.results.List(r.Context(), queryInt(r, "limit", 10000))
	if err != nil {
		log.Warn().Err(err).Msg("export results")
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	if r.URL.Query().Get("format") == "yaml" {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			log.Warn().Err(err).Msg("encode yaml export")
		}
		_ = enc.Close()
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}

// queryInt reads a positive integer query parameter.
func queryInt(r *http.Request, k string, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get(k)); err == nil && n > 0 {
		return n
	}
	return def
}
