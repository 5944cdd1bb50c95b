package so

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// ErrCasesUnavailable means the manager does not expose the case
// module (it replies 405 on the case endpoints).
var ErrCasesUnavailable = errors.New("case management is not available")

// Case mirrors the manager's case document.
type Case struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Severity    string    `json:"severity"`
	Priority    int       `json:"priority"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags"`
	UserID      string    `json:"userId"`
	AssigneeID  string    `json:"assigneeId"`
	CreateTime  time.Time `json:"createTime"`
	UpdateTime  time.Time `json:"updateTime"`
}

// Comment is one comment on a case.
type Comment struct {
	ID          string    `json:"id"`
	CaseID      string    `json:"caseId"`
	UserID      string    `json:"userId"`
	Description string    `json:"description"`
	CreateTime  time.Time `json:"createTime"`
}

// CreateCase opens a new case. Severity and status follow the
// manager's defaults for escalations.
func (c *Client) CreateCase(ctx context.Context, title, description string) (*Case, error) {
	req := map[string]any{
		"title":       title,
		"description": description,
		"status":      "new",
		"severity":    "medium",
	}
	var out Case
	if err := c.sendJSON(ctx, http.MethodPost, "connect/case/", req, &out, defaultTimeout); err != nil {
		return nil, fmt.Errorf("create case: %w", mapCaseErr(err))
	}
	return &out, nil
}

func (c *Client) GetCase(ctx context.Context, id string) (*Case, error) {
	var out Case
	if err := c.getJSON(ctx, "connect/case/"+id, nil, &out, defaultTimeout); err != nil {
		return nil, fmt.Errorf("get case %s: %w", id, mapCaseErr(err))
	}
	return &out, nil
}

// ListCases returns all cases, most recently updated first.
func (c *Client) ListCases(ctx context.Context) ([]Case, error) {
	var out []Case
	if err := c.getJSON(ctx, "connect/case/", nil, &out, defaultTimeout); err != nil {
		return nil, fmt.Errorf("list cases: %w", mapCaseErr(err))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdateTime.After(out[j].UpdateTime)
	})
	return out, nil
}

// CaseComments returns the comments attached to a case.
func (c *Client) CaseComments(ctx context.Context, caseID string) ([]Comment, error) {
	var out []Comment
	if err := c.getJSON(ctx, "connect/case/comments/"+caseID, nil, &out, defaultTimeout); err != nil {
		return nil, fmt.Errorf("case comments %s: %w", caseID, mapCaseErr(err))
	}
	return out, nil
}

// AttachEvent links an event's flattened fields to a case.
func (c *Client) AttachEvent(ctx context.Context, caseID string, fields map[string]any) error {
	req := map[string]any{
		"caseId": caseID,
		"fields": fields,
	}
	if err := c.sendJSON(ctx, http.MethodPost, "connect/case/events", req, nil, defaultTimeout); err != nil {
		return fmt.Errorf("attach event to case %s: %w", caseID, mapCaseErr(err))
	}
	return nil
}

// mapCaseErr translates the 405 the manager sends when the case module
// is disabled into a sentinel callers can test for.
func mapCaseErr(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusMethodNotAllowed {
		return ErrCasesUnavailable
	}
	return err
}
