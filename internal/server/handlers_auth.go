package server

import (
	"encoding/json"
	"net/http"

	"github.com/pquerna/otp/totp"

	"github.com/decenza/de1core/internal/logging"
)

type loginRequest struct {
	Code string `json:"code"`
}

// handleAuthLogin verifies a TOTP code against the configured shared
// secret and, on success, issues a session cookie (§4.6 "Authentication").
func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !s.rateLimiter.allow(ip) {
		logging.Audit().AuthRateLimited(ip)
		http.Error(w, "too many attempts", http.StatusTooManyRequests)
		return
	}

	var body loginRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	if s.cfg.TOTPSecret == "" || !totp.Validate(body.Code, s.cfg.TOTPSecret) {
		logging.Audit().AuthAttempt(ip, false)
		http.Error(w, "invalid code", http.StatusUnauthorized)
		return
	}

	sess, err := s.sessions.create(r.UserAgent())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	logging.Audit().AuthAttempt(ip, true)
	setSessionCookie(w, sess)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		s.sessions.delete(cookie.Value)
	}
	clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}
