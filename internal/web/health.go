package web

import (
	"context"
	"net/http"
	"time"
)

type healthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Database      string            `json:"database"`
	SecurityOnion string            `json:"security_onion"`
	Channels      map[string]string `json:"channels"`
	Timestamp     string            `json:"timestamp"`
}

// handleHealth reports the database, manager connection and chat
// channel states. Only a database failure makes the service degraded;
// the manager being unreachable is reported but survivable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:    "healthy",
		Version:   s.version,
		Database:  "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	status := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		resp.Database = "error: " + err.Error()
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	if s.siem != nil && s.siem.Connected() {
		resp.SecurityOnion = "connected"
	} else {
		resp.SecurityOnion = "not connected"
	}

	if s.channels != nil {
		statuses := s.channels.Statuses(ctx)
		resp.Channels = make(map[string]string, len(statuses))
		for platform, status := range statuses {
			resp.Channels[string(platform)] = status
		}
	}

	writeJSON(w, status, resp)
}
