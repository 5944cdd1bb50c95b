package sched

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/security-onion-solutions/shallot/internal/bus"
	"github.com/security-onion-solutions/shallot/internal/domain"
	"github.com/security-onion-solutions/shallot/internal/so"
)

const (
	// DefaultPollInterval is used when the SECURITY_ONION settings
	// document does not set one.
	DefaultPollInterval = 60 * time.Second

	// pollWindow is how far back each poll looks. Fixed at the default
	// cadence so the notification header stays truthful.
	pollWindow = 60 * time.Second

	pollLimit      = 10000
	alertChunkSize = 10
)

// EventSource is the slice of the manager client the poller needs.
type EventSource interface {
	QueryEvents(ctx context.Context, opts so.QueryOptions) (*so.EventsResponse, error)
}

// Notifier delivers an alert message to the active chat channel.
// Returns the platform it went to, or empty when nothing is configured.
type Notifier interface {
	NotifyAlert(ctx context.Context, content string) domain.Platform
}

// AlertPoller pushes fresh unacknowledged alerts to the configured chat
// channel and the websocket feed.
type AlertPoller struct {
	siem     EventSource
	notifier Notifier
	events   *bus.EventBus
	logger   *slog.Logger
}

type AlertPollerConfig struct {
	SIEM     EventSource
	Notifier Notifier
	Events   *bus.EventBus
	Logger   *slog.Logger
}

func NewAlertPoller(cfg AlertPollerConfig) *AlertPoller {
	return &AlertPoller{
		siem:     cfg.SIEM,
		notifier: cfg.Notifier,
		events:   cfg.Events,
		logger:   cfg.Logger,
	}
}

// Poll queries the last minute of unacknowledged alerts and fans them
// out in chunks of ten. Chat delivery failures do not stop the feed
// announcement.
func (p *AlertPoller) Poll(ctx context.Context) {
	now := time.Now()
	resp, err := p.siem.QueryEvents(ctx, so.QueryOptions{
		Query:       so.AlertQuery,
		From:        now.Add(-pollWindow),
		To:          now,
		EventLimit:  pollLimit,
		MetricLimit: pollLimit,
	})
	if err != nil {
		p.logger.Error("alert poll failed", "err", err)
		return
	}
	if len(resp.Events) == 0 {
		return
	}

	alerts := make([]so.Alert, 0, len(resp.Events))
	for _, e := range resp.Events {
		alerts = append(alerts, so.ParseAlert(e))
	}
	total := len(alerts)
	p.logger.Info("new alerts found", "count", total)

	for start := 0; start < total; start += alertChunkSize {
		end := start + alertChunkSize
		if end > total {
			end = total
		}

		var b strings.Builder
		fmt.Fprintf(&b, "🚨 Alerts %d-%d of %d from the last 60 seconds:", start+1, end, total)
		for _, a := range alerts[start:end] {
			b.WriteString("\n\n")
			b.WriteString(so.FormatAlert(a))
		}
		content := b.String()

		platform := p.notifier.NotifyAlert(ctx, content)
		p.events.Emit(bus.Event{
			Type:   bus.EventAlertNotified,
			Source: "poller",
			Payload: map[string]any{
				"platform": string(platform),
				"content":  content,
				"first":    start + 1,
				"last":     end,
				"total":    total,
			},
		})
	}
}
