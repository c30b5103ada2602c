package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-gateway/internal/audit"
	"github.com/nerrad567/gray-logic-gateway/internal/auth"
)

// defaultTokenTTL is used when the configured TTL is zero (minutes).
const defaultTokenTTL = 15

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the response body for POST /auth/login.
type loginResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	ExpiresIn   int        `json:"expires_in"`
	User        *auth.User `json:"user"`
}

// meResponse describes the caller and the devices it may reach.
type meResponse struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Role     auth.Role `json:"role"`
	Devices  []string  `json:"devices"`
}

// handleLogin exchanges a username/password pair for an access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	token, user, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			s.record(r.Context(), &audit.Entry{
				Action:  audit.ActionLoginFailed,
				Actor:   req.Username,
				Details: map[string]any{"remote_addr": r.RemoteAddr},
			})
			writeUnauthorized(w, "invalid credentials")
		case errors.Is(err, auth.ErrUserInactive):
			writeForbidden(w, "account is inactive")
		default:
			s.logger.Error("login failed", "username", req.Username, "error", err)
			writeInternalError(w, "failed to log in")
		}
		return
	}

	ttl := s.secCfg.JWT.AccessTokenTTL
	if ttl == 0 {
		ttl = defaultTokenTTL
	}

	s.logger.Info("user logged in", "user_id", user.ID, "username", user.Username)
	s.record(r.Context(), &audit.Entry{Action: audit.ActionLogin, SubjectID: user.ID, Actor: user.Username})
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   ttl * 60, // seconds
		User:        user,
	})
}

// handleMe returns the authenticated caller.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())
	if session == nil {
		writeUnauthorized(w, "not authenticated")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		UserID:   session.UserID,
		Username: session.Username,
		Role:     session.Role,
		Devices:  session.DeviceIDs(),
	})
}
