package web

import (
	"encoding/json"
	"net/http"
	"strings"
)

// handleListCommands returns the command catalog with permission
// requirements, for the UI's command reference page.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"commands": s.catalog.All()})
}

type testCommandRequest struct {
	Command string `json:"command"`
}

// handleTestCommand runs a command through the real pipeline as the web
// caller. Web callers bypass role checks, so any command can be
// exercised from the UI.
func (s *Server) handleTestCommand(w http.ResponseWriter, r *http.Request) {
	var req testCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	command := strings.TrimSpace(req.Command)
	if command == "" {
		writeDetail(w, http.StatusBadRequest, "Missing command")
		return
	}

	reply := s.engine.ProcessDirect(r.Context(), command, "web", currentUser(r).Username)
	writeJSON(w, http.StatusOK, map[string]string{
		"command":  command,
		"response": reply,
	})
}
