package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/security-onion-solutions/shallot/internal/auth"
	"github.com/security-onion-solutions/shallot/internal/domain"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// handleToken is the OAuth2 password flow: form username/password in,
// bearer token out.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid form body")
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	user, err := s.store.GetWebUser(r.Context(), username)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Error("web user lookup failed", "username", username, "err", err)
		}
		badCredentials(w)
		return
	}
	if !auth.CheckPassword(user.HashedPassword, password) {
		badCredentials(w)
		return
	}
	if !user.IsActive {
		writeDetail(w, http.StatusBadRequest, "Inactive user")
		return
	}

	token, err := s.tokens.Generate(*user)
	if err != nil {
		s.logger.Error("token generation failed", "username", username, "err", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

func badCredentials(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
}

// handleSetupRequired tells the UI whether the first-run account still
// needs to be created.
func (s *Server) handleSetupRequired(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.CountWebUsers(r.Context())
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"setup_required": count == 0})
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleFirstUser creates the initial administrator. Only works while
// no web user exists; the account is always a superuser.
func (s *Server) handleFirstUser(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.CountWebUsers(r.Context())
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if count > 0 {
		writeDetail(w, http.StatusBadRequest, "Setup already completed")
		return
	}

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" {
		writeDetail(w, http.StatusBadRequest, "Username is required")
		return
	}
	if len(req.Password) < 8 {
		writeDetail(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	user, err := s.store.CreateWebUser(r.Context(), domain.WebUser{
		Username:       req.Username,
		HashedPassword: hash,
		IsActive:       true,
		IsSuperuser:    true,
	})
	if err != nil {
		s.logger.Error("first user creation failed", "username", req.Username, "err", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	s.logger.Info("initial web user created", "username", user.Username)
	writeJSON(w, http.StatusCreated, user)
}

// handleRefresh issues a fresh token for the already-authenticated
// caller.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	token, err := s.tokens.Generate(*user)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}
