package so

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// rangeLayout is the manager's expected date range format.
const rangeLayout = "2006/01/02 3:04:05 PM"

// AlertQuery selects unacknowledged alerts.
const AlertQuery = "tags:alert AND NOT event.acknowledged:true"

// Event is one hit from the events index. Payload is the flattened
// field map, with the original log line under "message".
type Event struct {
	Source    string         `json:"source"`
	Timestamp string         `json:"timestamp"`
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Score     float64        `json:"score"`
	Payload   map[string]any `json:"payload"`
}

type EventsResponse struct {
	Events       []Event `json:"events"`
	TotalEvents  int     `json:"totalEvents"`
	FetchElapsed int     `json:"elapsedMs"`
}

type QueryOptions struct {
	Query       string
	From        time.Time
	To          time.Time
	EventLimit  int
	MetricLimit int
}

// QueryEvents runs an onion query over the given time range.
func (c *Client) QueryEvents(ctx context.Context, opts QueryOptions) (*EventsResponse, error) {
	if opts.EventLimit <= 0 {
		opts.EventLimit = 100
	}
	q := url.Values{}
	q.Set("query", opts.Query)
	q.Set("range", FormatRange(opts.From, opts.To))
	q.Set("zone", "UTC")
	q.Set("format", "hours")
	q.Set("fields", "*")
	q.Set("metricLimit", strconv.Itoa(opts.MetricLimit))
	q.Set("eventLimit", strconv.Itoa(opts.EventLimit))
	q.Set("sort", "@timestamp:desc")

	var out EventsResponse
	if err := c.getJSON(ctx, "connect/events", q, &out, defaultTimeout); err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return &out, nil
}

// FormatRange renders a manager date range in UTC.
func FormatRange(from, to time.Time) string {
	return from.UTC().Format(rangeLayout) + " - " + to.UTC().Format(rangeLayout)
}

type ackRequest struct {
	DateRange    string         `json:"dateRange"`
	EventFilter  map[string]any `json:"eventFilter"`
	SearchFilter string         `json:"searchFilter"`
	Acknowledge  bool           `json:"acknowledge"`
	Escalate     bool           `json:"escalate"`
}

type ackResponse struct {
	UpdatedCount int `json:"updatedCount"`
}

// AckAlert acknowledges every alert carrying the given log.id.uid and
// returns how many documents were updated. The search window spans six
// months back so old alerts stay reachable by ID.
func (c *Client) AckAlert(ctx context.Context, eventID string) (int, error) {
	now := time.Now()
	req := ackRequest{
		DateRange:    FormatRange(now.AddDate(0, -6, 0), now),
		EventFilter:  map[string]any{"log.id.uid": eventID},
		SearchFilter: "tags:alert",
		Acknowledge:  true,
	}
	var out ackResponse
	if err := c.sendJSON(ctx, "POST", "connect/events/ack", req, &out, defaultTimeout); err != nil {
		return 0, fmt.Errorf("ack alert %s: %w", eventID, err)
	}
	return out.UpdatedCount, nil
}

// Alert is the display form of an alert event.
type Alert struct {
	Name      string
	Severity  string
	RuleID    string
	EventID   string
	SrcIP     string
	SrcPort   string
	DstIP     string
	DstPort   string
	Observer  string
	Timestamp string
}

// ParseAlert extracts display fields from an alert event. The embedded
// message JSON wins for the network tuple, flattened fields fill gaps.
func ParseAlert(e Event) Alert {
	p := e.Payload
	var msg map[string]any
	if raw := stringValue(p["message"]); raw != "" {
		json.Unmarshal([]byte(raw), &msg)
	}

	a := Alert{
		Name:      stringValue(p["rule.name"]),
		Severity:  stringValue(p["event.severity_label"]),
		RuleID:    stringValue(p["rule.uuid"]),
		EventID:   stringValue(p["log.id.uid"]),
		SrcIP:     stringValue(p["source.ip"]),
		SrcPort:   stringValue(p["source.port"]),
		DstIP:     stringValue(p["destination.ip"]),
		DstPort:   stringValue(p["destination.port"]),
		Observer:  stringValue(p["observer.name"]),
		Timestamp: e.Timestamp,
	}

	if msg != nil {
		if a.SrcIP == "" {
			a.SrcIP = stringValue(msg["src_ip"])
		}
		if a.SrcPort == "" {
			a.SrcPort = stringValue(msg["src_port"])
		}
		if a.DstIP == "" {
			a.DstIP = stringValue(msg["dest_ip"])
		}
		if a.DstPort == "" {
			a.DstPort = stringValue(msg["dest_port"])
		}
		if a.Name == "" {
			if alert, ok := msg["alert"].(map[string]any); ok {
				a.Name = stringValue(alert["signature"])
			}
		}
	}

	if a.Severity == "" {
		a.Severity = "unknown"
	}
	if a.Timestamp == "" {
		a.Timestamp = stringValue(p["@timestamp"])
	}
	return a
}

// FormatAlert renders the per-alert block used in chat notifications.
func FormatAlert(a Alert) string {
	return fmt.Sprintf("[%s] - %s\n  ruleid: %s\n  eventid: %s\n  source: %s:%s\n  destination: %s:%s\n  observer.name: %s\n  timestamp: %s",
		a.Severity, a.Name, a.RuleID, a.EventID,
		a.SrcIP, a.SrcPort, a.DstIP, a.DstPort,
		a.Observer, a.Timestamp)
}

// stringValue renders a JSON scalar as a string. Numbers lose no
// precision for the integer ports and IDs seen in event payloads.
func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
