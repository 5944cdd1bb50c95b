package so

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Detection is the raw rule document. It stays a map so that toggling
// one field round-trips every other field unchanged through the PUT.
type Detection map[string]any

func (d Detection) ID() string       { return stringValue(d["id"]) }
func (d Detection) PublicID() string { return stringValue(d["publicId"]) }
func (d Detection) Title() string    { return stringValue(d["title"]) }
func (d Detection) Severity() string { return stringValue(d["severity"]) }
func (d Detection) Engine() string   { return stringValue(d["engine"]) }
func (d Detection) Ruleset() string  { return stringValue(d["ruleset"]) }
func (d Detection) Language() string { return stringValue(d["language"]) }

func (d Detection) IsEnabled() bool {
	enabled, _ := d["isEnabled"].(bool)
	return enabled
}

func (d Detection) Overrides() []map[string]any {
	raw, _ := d["overrides"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, o := range raw {
		if m, ok := o.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// GetDetection fetches a rule by its public ID (e.g. a Suricata SID).
func (c *Client) GetDetection(ctx context.Context, publicID string) (Detection, error) {
	var out Detection
	if err := c.getJSON(ctx, "connect/detection/public/"+publicID, nil, &out, detectionTimeout); err != nil {
		return nil, fmt.Errorf("get detection %s: %w", publicID, err)
	}
	return out, nil
}

// UpdateDetection pushes a full rule document back to the manager.
func (c *Client) UpdateDetection(ctx context.Context, d Detection) error {
	if err := c.sendJSON(ctx, http.MethodPut, "connect/detection/", d, nil, detectionTimeout); err != nil {
		return fmt.Errorf("update detection %s: %w", d.PublicID(), err)
	}
	return nil
}

// SetDetectionEnabled toggles a rule and returns the updated document.
func (c *Client) SetDetectionEnabled(ctx context.Context, publicID string, enabled bool) (Detection, error) {
	d, err := c.GetDetection(ctx, publicID)
	if err != nil {
		return nil, err
	}
	d["isEnabled"] = enabled
	if err := c.UpdateDetection(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// SuppressDetection appends suppression overrides for the given track
// ("by_src" or "by_dst", "by_either" expands to both) and IP or CIDR.
func (c *Client) SuppressDetection(ctx context.Context, publicID, track, ip string) (Detection, error) {
	tracks := []string{track}
	if track == "by_either" {
		tracks = []string{"by_src", "by_dst"}
	}

	d, err := c.GetDetection(ctx, publicID)
	if err != nil {
		return nil, err
	}

	overrides, _ := d["overrides"].([]any)
	for _, t := range tracks {
		overrides = append(overrides, map[string]any{
			"type":      "suppress",
			"track":     t,
			"ip":        ip,
			"isEnabled": true,
			"note":      fmt.Sprintf("Suppressed %s for %s via chat bot", t, ip),
		})
	}
	d["overrides"] = overrides

	if err := c.UpdateDetection(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Summary renders the rule overview shown by the detections summary
// command.
func (d Detection) Summary() string {
	var b strings.Builder
	state := "disabled"
	if d.IsEnabled() {
		state = "enabled"
	}
	fmt.Fprintf(&b, "Rule %s (%s)\n", d.PublicID(), state)
	fmt.Fprintf(&b, "  title: %s\n", d.Title())
	fmt.Fprintf(&b, "  severity: %s\n", d.Severity())
	fmt.Fprintf(&b, "  engine: %s\n", d.Engine())
	if rs := d.Ruleset(); rs != "" {
		fmt.Fprintf(&b, "  ruleset: %s\n", rs)
	}
	overrides := d.Overrides()
	fmt.Fprintf(&b, "  overrides: %d", len(overrides))
	for _, o := range overrides {
		fmt.Fprintf(&b, "\n    - %s %s %s", stringValue(o["type"]), stringValue(o["track"]), stringValue(o["ip"]))
	}
	return b.String()
}
