package gateway

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"dietpi-dashboard/internal/auth"
)

const maxLoginBody = 4 << 10

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleLogin takes the raw password as request body and answers a token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.auth.Enabled() {
		writeJSON(w, http.StatusOK, map[string]string{"message": "No login needed"})
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxLoginBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request too large"})
		return
	}
	token, exp, err := s.auth.Login(strings.TrimRight(string(body), "\r\n"))
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.logger.Warn("login rejected", "remote", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	case err != nil:
		s.logger.Error("login failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: exp.UTC()})
}
