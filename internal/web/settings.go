package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/security-onion-solutions/shallot/internal/domain"
	"github.com/security-onion-solutions/shallot/internal/settings"
)

// handleListSettings returns every settings document. Secrets come back
// in plaintext only for superusers.
func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	values, err := s.settings.List(r.Context(), currentUser(r).IsSuperuser)
	if err != nil {
		s.logger.Error("settings list failed", "err", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var (
		value *settings.Value
		err   error
	)
	if currentUser(r).IsSuperuser {
		value, err = s.settings.Get(r.Context(), key)
	} else {
		value, err = s.settings.GetRedacted(r.Context(), key)
	}
	if err != nil {
		if errors.Is(err, settings.ErrUnknownKey) || errors.Is(err, domain.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, "Setting not found")
			return
		}
		s.logger.Error("setting read failed", "key", key, "err", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, value)
}

type putSettingRequest struct {
	Value json.RawMessage `json:"value"`
}

// handlePutSetting validates and stores a settings document. The write
// announces itself on the event bus, which restarts the matching chat
// client or rebuilds the SIEM client.
func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req putSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Value) == 0 {
		writeDetail(w, http.StatusBadRequest, "Missing value")
		return
	}

	value, err := s.settings.Put(r.Context(), key, req.Value)
	if err != nil {
		if errors.Is(err, settings.ErrUnknownKey) {
			writeDetail(w, http.StatusNotFound, "Setting not found")
			return
		}
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, value)
}
