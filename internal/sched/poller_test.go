package sched

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/security-onion-solutions/shallot/internal/bus"
	"github.com/security-onion-solutions/shallot/internal/domain"
	"github.com/security-onion-solutions/shallot/internal/so"
)

type fakeEventSource struct {
	mu   sync.Mutex
	opts []so.QueryOptions
	resp *so.EventsResponse
	err  error
}

func (f *fakeEventSource) QueryEvents(ctx context.Context, opts so.QueryOptions) (*so.EventsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeNotifier struct {
	platform domain.Platform
	contents []string
}

func (f *fakeNotifier) NotifyAlert(ctx context.Context, content string) domain.Platform {
	f.contents = append(f.contents, content)
	return f.platform
}

func alertEvents(n int) []so.Event {
	events := make([]so.Event, 0, n)
	for i := 1; i <= n; i++ {
		events = append(events, so.Event{
			ID:        fmt.Sprintf("ev-%d", i),
			Timestamp: "2026-08-23T10:00:00Z",
			Payload: map[string]any{
				"rule.name":            fmt.Sprintf("ET SCAN Suspicious Probe %d", i),
				"event.severity_label": "high",
				"rule.uuid":            fmt.Sprintf("rule-%d", i),
				"log.id.uid":           fmt.Sprintf("uid-%d", i),
				"source.ip":            "10.0.0.5",
				"source.port":          float64(51515),
				"destination.ip":       "192.168.1.20",
				"destination.port":     float64(443),
				"observer.name":        "sensor01",
			},
		})
	}
	return events
}

func newTestPoller(src *fakeEventSource, n *fakeNotifier) (*AlertPoller, *bus.EventBus) {
	events := bus.NewEventBus(testLogger())
	p := NewAlertPoller(AlertPollerConfig{
		SIEM:     src,
		Notifier: n,
		Events:   events,
		Logger:   testLogger(),
	})
	return p, events
}

func TestPoller_QueryShape(t *testing.T) {
	src := &fakeEventSource{resp: &so.EventsResponse{Events: alertEvents(1)}}
	p, _ := newTestPoller(src, &fakeNotifier{})

	before := time.Now()
	p.Poll(context.Background())

	if len(src.opts) != 1 {
		t.Fatalf("expected 1 query, got %d", len(src.opts))
	}
	got := src.opts[0]
	if got.Query != so.AlertQuery {
		t.Errorf("query = %q, want %q", got.Query, so.AlertQuery)
	}
	if window := got.To.Sub(got.From); window != pollWindow {
		t.Errorf("window = %v, want %v", window, pollWindow)
	}
	if got.To.Before(before) || got.To.After(time.Now()) {
		t.Errorf("upper bound %v not anchored at poll time", got.To)
	}
	if got.EventLimit != pollLimit || got.MetricLimit != pollLimit {
		t.Errorf("limits = %d/%d, want %d", got.EventLimit, got.MetricLimit, pollLimit)
	}
}

func TestPoller_ChunksAlertsInTens(t *testing.T) {
	src := &fakeEventSource{resp: &so.EventsResponse{Events: alertEvents(25)}}
	notifier := &fakeNotifier{platform: domain.PlatformDiscord}
	p, _ := newTestPoller(src, notifier)

	p.Poll(context.Background())

	if len(notifier.contents) != 3 {
		t.Fatalf("expected 3 notifications for 25 alerts, got %d", len(notifier.contents))
	}

	headers := []string{
		"🚨 Alerts 1-10 of 25 from the last 60 seconds:",
		"🚨 Alerts 11-20 of 25 from the last 60 seconds:",
		"🚨 Alerts 21-25 of 25 from the last 60 seconds:",
	}
	for i, want := range headers {
		if !strings.HasPrefix(notifier.contents[i], want) {
			t.Errorf("chunk %d header:\ngot  %q\nwant prefix %q", i, firstLine(notifier.contents[i]), want)
		}
	}

	first := notifier.contents[0]
	if !strings.Contains(first, "[high] - ET SCAN Suspicious Probe 1\n") {
		t.Errorf("first chunk missing formatted alert 1:\n%s", first)
	}
	if !strings.Contains(first, "ruleid: rule-10\n") {
		t.Errorf("first chunk should end at alert 10:\n%s", first)
	}
	if strings.Contains(first, "ruleid: rule-11\n") {
		t.Errorf("first chunk leaked alert 11:\n%s", first)
	}
	if !strings.Contains(first, "source: 10.0.0.5:51515") || !strings.Contains(first, "destination: 192.168.1.20:443") {
		t.Errorf("first chunk missing network tuple:\n%s", first)
	}
	if !strings.Contains(first, "observer.name: sensor01") {
		t.Errorf("first chunk missing observer:\n%s", first)
	}

	last := notifier.contents[2]
	if !strings.Contains(last, "ruleid: rule-21\n") || !strings.Contains(last, "ruleid: rule-25\n") {
		t.Errorf("last chunk should hold alerts 21-25:\n%s", last)
	}
}

func TestPoller_AnnouncesEachChunkOnFeed(t *testing.T) {
	src := &fakeEventSource{resp: &so.EventsResponse{Events: alertEvents(12)}}
	notifier := &fakeNotifier{platform: domain.PlatformDiscord}
	p, events := newTestPoller(src, notifier)

	var announced []bus.Event
	events.On(bus.EventAlertNotified, func(e bus.Event) {
		announced = append(announced, e)
	})

	p.Poll(context.Background())

	if len(announced) != 2 {
		t.Fatalf("expected 2 feed events for 12 alerts, got %d", len(announced))
	}
	for i, e := range announced {
		if e.Source != "poller" {
			t.Errorf("event %d source = %q, want poller", i, e.Source)
		}
		if got := e.Payload["platform"]; got != string(domain.PlatformDiscord) {
			t.Errorf("event %d platform = %v", i, got)
		}
		if got := e.Payload["content"]; got != notifier.contents[i] {
			t.Errorf("event %d content does not match chat delivery", i)
		}
		if got := e.Payload["total"]; got != 12 {
			t.Errorf("event %d total = %v, want 12", i, got)
		}
	}
	if announced[0].Payload["first"] != 1 || announced[0].Payload["last"] != 10 {
		t.Errorf("first event range = %v-%v, want 1-10", announced[0].Payload["first"], announced[0].Payload["last"])
	}
	if announced[1].Payload["first"] != 11 || announced[1].Payload["last"] != 12 {
		t.Errorf("second event range = %v-%v, want 11-12", announced[1].Payload["first"], announced[1].Payload["last"])
	}
}

func TestPoller_FeedAnnouncedWithoutChatChannel(t *testing.T) {
	src := &fakeEventSource{resp: &so.EventsResponse{Events: alertEvents(2)}}
	notifier := &fakeNotifier{platform: ""}
	p, events := newTestPoller(src, notifier)

	var announced []bus.Event
	events.On(bus.EventAlertNotified, func(e bus.Event) {
		announced = append(announced, e)
	})

	p.Poll(context.Background())

	if len(announced) != 1 {
		t.Fatalf("expected 1 feed event even with no chat channel, got %d", len(announced))
	}
	if got := announced[0].Payload["platform"]; got != "" {
		t.Errorf("platform = %v, want empty", got)
	}
}

func TestPoller_QuietWhenNoAlerts(t *testing.T) {
	src := &fakeEventSource{resp: &so.EventsResponse{}}
	notifier := &fakeNotifier{}
	p, events := newTestPoller(src, notifier)

	p.Poll(context.Background())

	if len(notifier.contents) != 0 {
		t.Errorf("expected no notifications, got %d", len(notifier.contents))
	}
	if n := events.HistoryLen(); n != 0 {
		t.Errorf("expected no feed events, got %d", n)
	}
}

func TestPoller_QueryErrorSkipsCycle(t *testing.T) {
	src := &fakeEventSource{err: errors.New("manager unreachable")}
	notifier := &fakeNotifier{}
	p, events := newTestPoller(src, notifier)

	p.Poll(context.Background())

	if len(notifier.contents) != 0 {
		t.Errorf("expected no notifications after query failure, got %d", len(notifier.contents))
	}
	if n := events.HistoryLen(); n != 0 {
		t.Errorf("expected no feed events after query failure, got %d", n)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
