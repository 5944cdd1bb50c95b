package vidalia

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/security-onion-solutions/shallot/internal/so"
)

const caseUnconfiguredMsg = "Case management is not configured on the server"

type caseRow struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Severity    string    `json:"severity"`
	Priority    int       `json:"priority"`
	Category    string    `json:"category"`
	Owner       string    `json:"owner"`
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
}

type commentView struct {
	Text    string    `json:"text"`
	Created time.Time `json:"created"`
	User    string    `json:"user"`
	UserID  string    `json:"user_id"`
}

func (s *Server) caseRow(ctx context.Context, c so.Case) caseRow {
	return caseRow{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Status:      c.Status,
		Severity:    c.Severity,
		Priority:    c.Priority,
		Category:    c.Category,
		Owner:       s.caseOwner(ctx, c),
		Created:     c.CreateTime,
		Updated:     c.UpdateTime,
	}
}

// caseOwner resolves the assignee to a display name, or empty when the
// roster lookup cannot improve on the raw ID.
func (s *Server) caseOwner(ctx context.Context, c so.Case) string {
	id := c.UserID
	if id == "" {
		id = c.AssigneeID
	}
	if id == "" {
		return ""
	}
	name := s.users.Name(ctx, id)
	if name == id || name == "Unknown User" {
		return ""
	}
	return name
}

func caseError(err error) (int, string) {
	if errors.Is(err, so.ErrCasesUnavailable) {
		return http.StatusServiceUnavailable, caseUnconfiguredMsg
	}
	return http.StatusInternalServerError, "Error retrieving cases"
}

func (s *Server) handleCases(w http.ResponseWriter, r *http.Request) {
	cases, err := s.siem.ListCases(r.Context())
	if err != nil {
		status, msg := caseError(err)
		s.logger.Error("case list failed", "err", err)
		if wantsJSON(r) {
			s.writeJSON(w, status, map[string]string{"error": msg})
			return
		}
		s.render(w, "cases.html", map[string]any{"Title": "Cases", "Error": msg})
		return
	}

	rows := make([]caseRow, 0, len(cases))
	for _, c := range cases {
		rows = append(rows, s.caseRow(r.Context(), c))
	}

	if wantsJSON(r) {
		s.writeJSON(w, http.StatusOK, map[string]any{"cases": rows})
		return
	}
	s.render(w, "cases.html", map[string]any{"Title": "Cases", "Cases": rows})
}

func (s *Server) handleCase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := s.siem.GetCase(r.Context(), id)
	if err != nil {
		status, msg := caseError(err)
		s.logger.Error("case fetch failed", "case", id, "err", err)
		if wantsJSON(r) {
			s.writeJSON(w, status, map[string]string{"error": msg})
			return
		}
		http.Redirect(w, r, "/cases", http.StatusFound)
		return
	}
	row := s.caseRow(r.Context(), *c)

	// Comment retrieval failures degrade to an empty list; the case
	// itself still renders.
	var comments []commentView
	raw, err := s.siem.CaseComments(r.Context(), id)
	if err != nil {
		s.logger.Warn("case comments unavailable", "case", id, "err", err)
	} else {
		sort.Slice(raw, func(i, j int) bool {
			return raw[i].CreateTime.After(raw[j].CreateTime)
		})
		for _, cm := range raw {
			user := ""
			if cm.UserID != "" {
				user = s.users.Name(r.Context(), cm.UserID)
			}
			comments = append(comments, commentView{
				Text:    cm.Description,
				Created: cm.CreateTime,
				User:    user,
				UserID:  cm.UserID,
			})
		}
	}

	if wantsJSON(r) {
		s.writeJSON(w, http.StatusOK, map[string]any{"case": row, "comments": comments})
		return
	}
	s.render(w, "case.html", map[string]any{"Title": row.Title, "Case": row, "Comments": comments})
}
