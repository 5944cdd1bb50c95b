package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/security-onion-solutions/shallot/internal/domain"
	"github.com/security-onion-solutions/shallot/internal/so"
)

const recentAlertCount = 5

// Alerts shows the newest unacknowledged alerts from the last day.
func (h *Handlers) Alerts(ctx context.Context, inv domain.Invocation) (domain.Result, error) {
	if h.siem == nil || !h.siem.Connected() {
		return domain.OK("Error: Not connected to Security Onion"), nil
	}

	now := time.Now()
	resp, err := h.siem.QueryEvents(ctx, so.QueryOptions{
		Query:      so.AlertQuery,
		From:       now.Add(-24 * time.Hour),
		To:         now,
		EventLimit: recentAlertCount,
	})
	if err != nil {
		return domain.Result{}, err
	}
	if len(resp.Events) == 0 {
		return domain.OK("No unacknowledged alerts in the last 24 hours."), nil
	}

	blocks := make([]string, 0, len(resp.Events))
	for _, e := range resp.Events {
		blocks = append(blocks, so.FormatAlert(so.ParseAlert(e)))
	}

	text := fmt.Sprintf("Here are the newest %d alerts:\n\n%s",
		recentAlertCount, strings.Join(blocks, "\n\n"))
	return domain.CodeBlock(text), nil
}

// Ack acknowledges every alert document carrying the given event ID.
func (h *Handlers) Ack(ctx context.Context, inv domain.Invocation) (domain.Result, error) {
	id := inv.Args[0]
	count, err := h.siem.AckAlert(ctx, id)
	if err != nil {
		return domain.Result{}, err
	}
	if count == 0 {
		return domain.OK(fmt.Sprintf("No alert found with ID: %s", id)), nil
	}
	return domain.OK(fmt.Sprintf("Successfully acknowledged alert with ID: %s", id)), nil
}
