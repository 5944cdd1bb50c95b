package vidalia

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/security-onion-solutions/shallot/internal/so"
)

const (
	// alertWindow is how far back the alerts page looks.
	alertWindow = 24 * time.Hour

	metricLimit = 10000

	// pcapMargin pads the capture window around the alert timestamp.
	pcapMargin = 5 * time.Minute

	jobTimeLayout    = "2006-01-02T15:04:05Z"
	lookupTimeLayout = "2006-01-02T15:04:05.000000Z"
	filenameLayout   = "20060102-150405"
)

type alertRow struct {
	ID        string
	Name      string
	Severity  string
	RuleID    string
	SrcIP     string
	SrcPort   string
	DstIP     string
	DstPort   string
	Observer  string
	Timestamp string
}

// fetchAlerts pulls the recent unacknowledged alerts, newest first.
func (s *Server) fetchAlerts(ctx context.Context) ([]so.Event, error) {
	now := time.Now()
	resp, err := s.siem.QueryEvents(ctx, so.QueryOptions{
		Query:       so.AlertQuery,
		From:        now.Add(-alertWindow),
		To:          now,
		EventLimit:  s.alertsLimit,
		MetricLimit: metricLimit,
	})
	if err != nil {
		return nil, err
	}
	events := resp.Events
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp > events[j].Timestamp
	})
	return events, nil
}

func findAlert(events []so.Event, id string) *so.Event {
	for i := range events {
		if events[i].ID == id {
			return &events[i]
		}
	}
	return nil
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	events, err := s.fetchAlerts(r.Context())
	if err != nil {
		s.logger.Error("alert fetch failed", "err", err)
		if wantsJSON(r) {
			s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		s.renderError(w, http.StatusInternalServerError, "Error retrieving alerts")
		return
	}

	noCache(w)
	if wantsJSON(r) {
		s.writeJSON(w, http.StatusOK, events)
		return
	}

	rows := make([]alertRow, 0, len(events))
	for _, e := range events {
		a := so.ParseAlert(e)
		rows = append(rows, alertRow{
			ID:        e.ID,
			Name:      a.Name,
			Severity:  a.Severity,
			RuleID:    a.RuleID,
			SrcIP:     a.SrcIP,
			SrcPort:   a.SrcPort,
			DstIP:     a.DstIP,
			DstPort:   a.DstPort,
			Observer:  a.Observer,
			Timestamp: a.Timestamp,
		})
	}
	s.render(w, "alerts.html", map[string]any{"Title": "Alerts", "Alerts": rows})
}

// pcapFilter builds the capture window and flow tuple for an alert.
// Fields embedded in the payload message JSON win over the flattened
// copies, matching how the sensors populate them.
func pcapFilter(e so.Event) (so.JobFilter, string, error) {
	if e.Timestamp == "" {
		return so.JobFilter{}, "", fmt.Errorf("alert missing required timestamp")
	}
	ts, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return so.JobFilter{}, "", fmt.Errorf("invalid timestamp format: %s", e.Timestamp)
	}

	p := e.Payload
	var msg map[string]any
	if raw, ok := p["message"].(string); ok && raw != "" {
		json.Unmarshal([]byte(raw), &msg)
	}
	pick := func(msgKey, flatKey string) any {
		if msg != nil {
			if v, ok := msg[msgKey]; ok {
				return v
			}
		}
		return p[flatKey]
	}

	node := textValue(p["observer.name"])
	if node == "" {
		return so.JobFilter{}, "", fmt.Errorf("alert missing required sensor information (observer.name)")
	}

	filter := so.JobFilter{
		BeginTime: ts.Add(-pcapMargin).UTC().Format(jobTimeLayout),
		EndTime:   ts.Add(pcapMargin).UTC().Format(jobTimeLayout),
		SrcIP:     textValue(pick("src_ip", "source.ip")),
		SrcPort:   intValue(pick("src_port", "source.port")),
		DstIP:     textValue(pick("dest_ip", "destination.ip")),
		DstPort:   intValue(pick("dest_port", "destination.port")),
		Protocol:  strings.ToLower(textValue(pick("proto", "network.transport"))),
	}
	return filter, node, nil
}

func (s *Server) handleCreatePCAPJob(w http.ResponseWriter, r *http.Request) {
	events, err := s.fetchAlerts(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	alert := findAlert(events, chi.URLParam(r, "id"))
	if alert == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "Alert not found"})
		return
	}

	filter, nodeID, err := pcapFilter(*alert)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	job, err := s.siem.CreatePCAPJob(r.Context(), nodeID, filter)
	if err != nil {
		s.logger.Error("pcap job creation failed", "alert", alert.ID, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "pending",
		"message": "PCAP job created",
		"job_id":  job.ID,
	})
}

func (s *Server) handlePCAPStatus(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.Atoi(chi.URLParam(r, "job"))
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "Invalid job id"})
		return
	}

	job, err := s.siem.GetJob(r.Context(), jobID)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	switch job.Status {
	case so.JobStatusPending:
		s.writeJSON(w, http.StatusAccepted, map[string]any{
			"status":     "pending",
			"message":    "PCAP job in progress",
			"job_id":     jobID,
			"job_status": job,
		})
	case so.JobStatusComplete:
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status":  "complete",
			"message": "PCAP job complete",
			"job_id":  jobID,
		})
	default:
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status":     "failed",
			"message":    fmt.Sprintf("PCAP job failed with status: %d", job.Status),
			"job_id":     jobID,
			"job_status": job,
		})
	}
}

func (s *Server) handlePCAPDownload(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.Atoi(chi.URLParam(r, "job"))
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "Invalid job id"})
		return
	}

	job, err := s.siem.GetJob(r.Context(), jobID)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if job.Status != so.JobStatusComplete {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{
			"status":     "failed",
			"message":    "PCAP job not complete",
			"job_id":     jobID,
			"job_status": job,
		})
		return
	}

	data, err := s.siem.DownloadPCAP(r.Context(), jobID)
	if err != nil {
		s.logger.Error("pcap download failed", "job", jobID, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.sendPCAP(w, chi.URLParam(r, "id"), data)
}

func (s *Server) handleDirectPCAP(w http.ResponseWriter, r *http.Request) {
	events, err := s.fetchAlerts(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	alertID := chi.URLParam(r, "id")
	alert := findAlert(events, alertID)
	if alert == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "Alert not found"})
		return
	}

	if alert.Timestamp == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Alert missing timestamp"})
		return
	}
	ts, err := time.Parse(time.RFC3339, alert.Timestamp)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid timestamp format: " + alert.Timestamp})
		return
	}

	esID := alert.ID
	ncID := communityID(*alert)
	if esID == "" && ncID == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Alert missing required identifiers (esid or community_id)"})
		return
	}

	data, err := s.siem.LookupPCAP(r.Context(), ts.UTC().Format(lookupTimeLayout), esID, ncID)
	if err != nil {
		s.logger.Error("direct pcap lookup failed", "alert", alertID, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.sendPCAP(w, alertID, data)
}

func (s *Server) sendPCAP(w http.ResponseWriter, alertID string, data []byte) {
	filename := fmt.Sprintf("alert_%s_%s.pcap", alertID, time.Now().Format(filenameLayout))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// communityID digs the Zeek community ID out of its three possible
// homes: nested object, message JSON, flattened field.
func communityID(e so.Event) string {
	p := e.Payload
	if network, ok := p["network"].(map[string]any); ok {
		if id := textValue(network["community_id"]); id != "" {
			return id
		}
	}
	if raw, ok := p["message"].(string); ok && raw != "" {
		var msg map[string]any
		if json.Unmarshal([]byte(raw), &msg) == nil {
			if network, ok := msg["network"].(map[string]any); ok {
				if id := textValue(network["community_id"]); id != "" {
					return id
				}
			}
		}
	}
	return textValue(p["network.community_id"])
}

func textValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	}
	return ""
}

func intValue(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return 0
}
