package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/security-onion-solutions/shallot/internal/domain"
	"github.com/security-onion-solutions/shallot/internal/so"
)

// huntInlineLimit is the largest reply that still fits a Discord
// message; bigger results are attached as a file.
const huntInlineLimit = 1990

// Hunt returns the full event record for an event ID, inline when it
// fits and as a text attachment otherwise.
func (h *Handlers) Hunt(ctx context.Context, inv domain.Invocation) (domain.Result, error) {
	id := inv.Args[0]
	now := time.Now()
	resp, err := h.siem.QueryEvents(ctx, so.QueryOptions{
		Query:      fmt.Sprintf("log.id.uid:%q", id),
		From:       now.AddDate(0, 0, -30),
		To:         now,
		EventLimit: 10,
	})
	if err != nil {
		return domain.Result{}, err
	}
	if len(resp.Events) == 0 {
		return domain.OK(fmt.Sprintf("No events found with ID: %s", id)), nil
	}

	pretty, err := json.MarshalIndent(resp.Events[0].Payload, "", "  ")
	if err != nil {
		return domain.Result{}, fmt.Errorf("encode event: %w", err)
	}

	fenced := fmt.Sprintf("```json\n%s\n```", pretty)
	if len(fenced) <= huntInlineLimit {
		return domain.OK(fenced), nil
	}

	return domain.Result{
		Kind: domain.ResultOK,
		Text: fmt.Sprintf("Hunt results for %s are attached.", id),
		File: &domain.File{
			Name:        fmt.Sprintf("hunt_results_%s.txt", id),
			ContentType: "text/plain",
			Data:        pretty,
		},
	}, nil
}

// Escalate opens a case for an event and attaches related events from
// the last day.
func (h *Handlers) Escalate(ctx context.Context, inv domain.Invocation) (domain.Result, error) {
	id := inv.Args[0]
	title := "Escalated Event"
	if len(inv.Args) > 1 && inv.Args[1] != "" {
		title = inv.Args[1]
	}

	now := time.Now()
	related, err := h.siem.QueryEvents(ctx, so.QueryOptions{
		Query:      relatedEventsQuery(ctx, h.siem, id, now),
		From:       now.Add(-24 * time.Hour),
		To:         now,
		EventLimit: 100,
	})
	if err != nil {
		return domain.Result{}, err
	}

	description := fmt.Sprintf("Escalated from chat by %s (event %s)", inv.Username, id)
	created, err := h.siem.CreateCase(ctx, title, description)
	if err != nil {
		return domain.Result{}, err
	}

	attached := 0
	for _, e := range related.Events {
		if err := h.siem.AttachEvent(ctx, created.ID, e.Payload); err != nil {
			h.logger.Warn("cannot attach event to case", "case", created.ID, "event", e.ID, "err", err)
			continue
		}
		attached++
	}

	return domain.OK(fmt.Sprintf("Escalated event %s to case %s (%d related events attached)", id, created.ID, attached)), nil
}

// relatedEventsQuery widens the lookup to the flow's community ID when
// the event carries one, so both sides of a connection land in the
// case.
func relatedEventsQuery(ctx context.Context, siem SIEM, id string, now time.Time) string {
	base := fmt.Sprintf("log.id.uid:%q", id)
	probe, err := siem.QueryEvents(ctx, so.QueryOptions{
		Query:      base,
		From:       now.Add(-24 * time.Hour),
		To:         now,
		EventLimit: 1,
	})
	if err != nil || len(probe.Events) == 0 {
		return base
	}
	if cid, ok := probe.Events[0].Payload["network.community_id"].(string); ok && cid != "" {
		return fmt.Sprintf("%s OR network.community_id:%q", base, cid)
	}
	return base
}
