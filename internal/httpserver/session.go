// internal/httpserver/session.go
//
// Participant sessions and researcher access.
//   - POST   /session     → issue a participant JWT cookie (id given or generated)
//   - GET    /session/me  → current participant (requires a valid token)
//   - DELETE /session     → clear the cookie
//
// Participants have no password: the token only ties trials and results to an
// id handed out by the study platform. The researcher export uses HTTP basic
// auth checked with bcrypt against ADMIN_PASSWORD_HASH.

package httpserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// ctxParticipantKey is the context key type for the participant id.
type ctxParticipantKey struct{}

// participantFrom returns the participant id placed by requireParticipant.
func participantFrom(r *http.Request) string {
	id, _ := r.Context().Value(ctxParticipantKey{}).(string)
	return id
}

type sessionReq struct {
	ParticipantID string `json:"participantId"`
}

type sessionRes struct {
	ParticipantID string    `json:"participantId"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

func (s *Server) mountSession(r chi.Router) {
	r.Post("/session", s.handleSession)
	r.Delete("/session", func(w http.ResponseWriter, r *http.Request) {
		s.clearAuthCookie(w)
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	r.With(s.requireParticipant()).Get("/session/me", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"participantId": participantFrom(r)})
	})
}

// handleSession signs a token for the given participant id, or a fresh one.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var body sessionReq
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, `{"error":"invalid_json"}`, http.StatusBadRequest)
			return
		}
	}
	id := strings.TrimSpace(body.ParticipantID)
	if id == "" {
		id = uuid.NewString()
	}
	if err := validateParticipantID(id); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}
	tok, exp, err := s.signJWT(id)
	if err != nil {
		log.Error().Err(err).Msg("sign participant token")
		http.Error(w, `{"error":"sign_failed"}`, http.StatusInternalServerError)
		return
	}
	s.setAuthCookie(w, tok, exp)
	_ = json.NewEncoder(w).Encode(sessionRes{ParticipantID: id, ExpiresAt: exp.UTC()})
}

// validateParticipantID allows platform ids: 1-64 letters, digits, '-' or '_'.
func validateParticipantID(id string) error {
	if len(id) > 64 {
		return errors.New("participantId must be at most 64 chars")
	}
	for _, r := range id {
		if !(r == '_' || r == '-' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return errors.New("participantId: letters, numbers, '-' and '_' only")
		}
	}
	return nil
}

// ------------------------------ JWT & cookies ------------------------------

// signJWT creates an HS256 JWT carrying the participant id.
func (s *Server) signJWT(id string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.cfg.JWTExpires)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  id,
		"exp": exp.Unix(),
		"iat": now.Unix(),
	})
	ss, err := t.SignedString([]byte(s.cfg.JWTSecret))
	return ss, exp, err
}

// parseJWT verifies a token and returns its participant id.
func (s *Server) parseJWT(tok string) (string, error) {
	claims := jwt.MapClaims{}
	t, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !t.Valid {
		return "", errors.New("invalid token")
	}
	id, _ := claims["id"].(string)
	if id == "" {
		return "", errors.New("token without id")
	}
	return id, nil
}

func (s *Server) cookieSecurity() (bool, http.SameSite) {
	if s.cfg.Production {
		return true, http.SameSiteNoneMode // required for third-party contexts when Secure
	}
	return false, http.SameSiteLaxMode
}

// setAuthCookie writes the token cookie with appropriate security attributes.
func (s *Server) setAuthCookie(w http.ResponseWriter, token string, exp time.Time) {
	secure, sameSite := s.cookieSecurity()
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		Expires:  exp,
	})
}

// clearAuthCookie deletes the token cookie.
func (s *Server) clearAuthCookie(w http.ResponseWriter) {
	secure, sameSite := s.cookieSecurity()
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		MaxAge:   -1,
	})
}

// bearerOrCookie extracts a bearer token from Authorization header or auth cookie.
func (s *Server) bearerOrCookie(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(s.cfg.CookieName); err == nil {
		return c.Value
	}
	return ""
}

// ---------------------------- auth middleware ------------------------------

// requireParticipant enforces a valid token and injects the participant id.
func (s *Server) requireParticipant() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := s.bearerOrCookie(r)
			if tok == "" {
				http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
				return
			}
			id, err := s.parseJWT(tok)
			if err != nil {
				log.Debug().Err(err).Msg("rejected participant token")
				http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxParticipantKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireAdmin checks HTTP basic auth against ADMIN_USER/ADMIN_PASSWORD_HASH.
// Without a configured hash the export is disabled.
func (s *Server) requireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.cfg.AdminPasswordHash == "" {
				http.Error(w, `{"error":"export_disabled"}`, http.StatusForbidden)
				return
			}
			user, pw, ok := r.BasicAuth()
			userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.AdminUser)) == 1
			if !ok || !userOK || !checkPassword(s.cfg.AdminPasswordHash, pw) {
				w.Header().Set("WWW-Authenticate", `Basic realm="gridrecon"`)
				http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// checkPassword is a bcrypt verifier.
func checkPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}
