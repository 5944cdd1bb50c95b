package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/security-onion-solutions/shallot/internal/domain"
)

// chatUserResponse is the API view of a chat user. The admin role is
// additionally surfaced as is_superuser for the UI.
type chatUserResponse struct {
	ID          int64     `json:"id"`
	Platform    string    `json:"platform"`
	PlatformID  string    `json:"platform_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	IsSuperuser bool      `json:"is_superuser"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func chatUserView(u domain.ChatUser) chatUserResponse {
	return chatUserResponse{
		ID:          u.ID,
		Platform:    string(u.Platform),
		PlatformID:  u.PlatformID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Role:        string(u.Role),
		IsSuperuser: u.Role == domain.RoleAdmin,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func (s *Server) handleListChatUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListChatUsers(r.Context())
	if err != nil {
		s.logger.Error("chat user list failed", "err", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	views := make([]chatUserResponse, 0, len(users))
	for _, u := range users {
		views = append(views, chatUserView(u))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetChatUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.chatUserFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, chatUserView(*user))
}

type chatUserRequest struct {
	Platform    string `json:"platform"`
	PlatformID  string `json:"platform_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

func (s *Server) handleCreateChatUser(w http.ResponseWriter, r *http.Request) {
	var req chatUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	platform, err := domain.ParsePlatform(req.Platform)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid platform")
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid role")
		return
	}
	if req.PlatformID == "" {
		writeDetail(w, http.StatusBadRequest, "platform_id is required")
		return
	}

	if _, err := s.store.GetChatUser(r.Context(), platform, req.PlatformID); err == nil {
		writeDetail(w, http.StatusConflict, "Chat user already exists")
		return
	}

	user, err := s.store.CreateChatUser(r.Context(), domain.ChatUser{
		Platform:    platform,
		PlatformID:  req.PlatformID,
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Role:        role,
	})
	if err != nil {
		s.logger.Error("chat user create failed", "platform", platform, "platform_id", req.PlatformID, "err", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, chatUserView(*user))
}

// handleUpdateChatUser changes the mutable fields: username, display
// name and role. Platform identity never changes.
func (s *Server) handleUpdateChatUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.chatUserFromPath(w, r)
	if !ok {
		return
	}

	var req chatUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Role != "" {
		role, err := domain.ParseRole(req.Role)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid role")
			return
		}
		user.Role = role
	}
	if req.Username != "" {
		user.Username = req.Username
	}
	if req.DisplayName != "" {
		user.DisplayName = req.DisplayName
	}

	updated, err := s.store.UpdateChatUser(r.Context(), *user)
	if err != nil {
		s.logger.Error("chat user update failed", "id", user.ID, "err", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, chatUserView(*updated))
}

func (s *Server) handleDeleteChatUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.chatUserFromPath(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteChatUser(r.Context(), user.ID); err != nil {
		s.logger.Error("chat user delete failed", "id", user.ID, "err", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat user deleted successfully"})
}

// chatUserFromPath loads the {id} chat user, answering 404 itself when
// the ID is malformed or unknown.
func (s *Server) chatUserFromPath(w http.ResponseWriter, r *http.Request) (*domain.ChatUser, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Chat user not found")
		return nil, false
	}
	user, err := s.store.GetChatUserByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, "Chat user not found")
			return nil, false
		}
		s.logger.Error("chat user lookup failed", "id", id, "err", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}
	return user, true
}
