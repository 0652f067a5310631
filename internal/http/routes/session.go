package routes

import (
	"encoding/json"
	"net/http"

	"github.com/hubview/hubview/internal/gateway"
	"github.com/hubview/hubview/internal/github"
	"github.com/hubview/hubview/internal/session"
)

type sessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	User          *github.User `json:"user,omitempty"`
}

// handleSessionCheck reports whether the browser holds a live credential.
// This is the gate's liveness check: a credential the upstream has since
// revoked is discovered here and the session torn down.
func (s *Server) handleSessionCheck(w http.ResponseWriter, r *http.Request) {
	token, ok := s.Gate.RequireSession(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, sessionResponse{})
		return
	}

	user, err := s.Gate.Authenticate(r.Context(), w, token)
	if err != nil {
		if github.IsInvalidCredential(err) {
			writeJSON(w, http.StatusUnauthorized, sessionResponse{})
			return
		}
		s.Log.Error().Err(err).Msg("session check: upstream unavailable")
		writeError(w, http.StatusInternalServerError, "upstream_error", "upstream unavailable")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{Authenticated: true, User: user})
}

// handleLogin validates a submitted token against the upstream before
// persisting it into the session. Client-asserted validity is never trusted.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if !gateway.LooksLikeToken(body.Token) {
		writeError(w, http.StatusBadRequest, "invalid_request", "token must be a non-empty string")
		return
	}

	user, err := s.Gate.Authenticate(r.Context(), w, body.Token)
	if err != nil {
		if github.IsInvalidCredential(err) {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "credential rejected")
			return
		}
		s.Log.Error().Err(err).Msg("login: upstream unavailable")
		writeError(w, http.StatusInternalServerError, "upstream_error", "upstream unavailable")
		return
	}

	if err := s.Sessions.Write(w, session.Session{Token: body.Token}); err != nil {
		s.Log.Error().Err(err).Msg("login: session encode failed")
		writeError(w, http.StatusInternalServerError, "internal", "could not establish session")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{Authenticated: true, User: user})
}

// handleLogout destroys the session unconditionally. Logging out without a
// session is still a success.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token, ok := s.Gate.RequireSession(r); ok {
		s.Gate.Forget(token)
	}
	s.Sessions.Destroy(w)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
