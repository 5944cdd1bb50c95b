package vidalia

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/security-onion-solutions/shallot/internal/so"
)

type gridRow struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LastCheck   string `json:"last_check"`
	Uptime      string `json:"uptime"`
	NeedsReboot bool   `json:"needs_reboot"`
	CPUUsed     string `json:"cpu_used"`
	MemoryUsed  string `json:"memory_used"`
	DiskUsed    string `json:"disk_used"`
}

// nodeHealth folds the manager status and pending-reboot flag into the
// three dashboard states.
func nodeHealth(n so.GridNode) string {
	if n.OsNeedsRestart == 1 {
		return "warning"
	}
	switch strings.ToLower(n.Status) {
	case "ok":
		return "healthy"
	case "degraded", "warning":
		return "warning"
	default:
		return "error"
	}
}

func formatUptime(seconds int64) string {
	days := seconds / 86400
	hours := seconds % 86400 / 3600
	return fmt.Sprintf("%dd %dh", days, hours)
}

func gridRowFromNode(n so.GridNode) gridRow {
	return gridRow{
		Name:        n.ID,
		Status:      nodeHealth(n),
		LastCheck:   n.UpdateTime,
		Uptime:      formatUptime(n.OsUptimeSeconds),
		NeedsReboot: n.OsNeedsRestart == 1,
		CPUUsed:     fmt.Sprintf("%.1f%%", n.CPUUsedPct),
		MemoryUsed:  fmt.Sprintf("%.1f%%", n.MemoryUsedPct),
		DiskUsed:    fmt.Sprintf("%.1f%%", n.DiskUsedRootPct),
	}
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.siem.GridNodes(r.Context())
	if err != nil {
		s.logger.Error("grid fetch failed", "err", err)
		if wantsJSON(r) {
			s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Error retrieving grid status"})
			return
		}
		s.render(w, "grid.html", map[string]any{"Title": "Grid", "Error": "Error retrieving grid status"})
		return
	}

	rows := make([]gridRow, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, gridRowFromNode(n))
	}

	if wantsJSON(r) {
		s.writeJSON(w, http.StatusOK, map[string]any{"nodes": rows})
		return
	}
	s.render(w, "grid.html", map[string]any{"Title": "Grid", "Nodes": rows})
}

func (s *Server) handleReboot(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	nodes, err := s.siem.GridNodes(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status":  "error",
			"message": "Error rebooting node: " + err.Error(),
		})
		return
	}
	known := false
	for _, n := range nodes {
		if n.ID == name {
			known = true
			break
		}
	}
	if !known {
		s.writeJSON(w, http.StatusNotFound, map[string]any{
			"status":  "error",
			"message": fmt.Sprintf("Node '%s' not found in grid nodes", name),
		})
		return
	}

	if err := s.siem.RestartGridMember(r.Context(), name); err != nil {
		s.logger.Error("node reboot failed", "node", name, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status":  "error",
			"message": "Error rebooting node: " + err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("Reboot initiated for node %s", name),
	})
}
