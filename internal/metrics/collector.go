// Package metrics exposes the bot's Prometheus metrics. Command and
// alert metrics are fed from the event bus so the dispatcher stays
// unaware of the metrics stack; HTTP metrics come from the web
// middleware.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/security-onion-solutions/shallot/internal/bus"
)

var (
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shallot_commands_total",
			Help: "Commands executed, by command name and outcome",
		},
		[]string{"command", "outcome"},
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shallot_command_duration_seconds",
			Help:    "Command execution time, including manager API calls",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"command"},
	)

	CommandsDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shallot_commands_denied_total",
			Help: "Commands rejected by the permission check",
		},
		[]string{"command", "platform"},
	)

	AlertsNotified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shallot_alerts_notified_total",
			Help: "Alert notifications pushed to a chat platform",
		},
		[]string{"platform"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shallot_http_requests_total",
			Help: "Web API requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shallot_http_request_duration_seconds",
			Help:    "Web API request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	WSClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shallot_ws_clients",
			Help: "Connected websocket feed clients",
		},
	)

	SettingUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shallot_setting_updates_total",
			Help: "Settings documents written",
		},
		[]string{"key"},
	)
)

// Observe subscribes the command, alert and settings metrics to the
// event bus. Call once at startup.
func Observe(events *bus.EventBus) {
	events.On(bus.EventCommandExecuted, func(e bus.Event) {
		command, _ := e.Payload["command"].(string)
		outcome, _ := e.Payload["outcome"].(string)
		CommandsTotal.WithLabelValues(command, outcome).Inc()
		if ms, ok := e.Payload["duration_ms"].(int64); ok {
			CommandDuration.WithLabelValues(command).Observe(float64(ms) / 1000)
		}
	})
	events.On(bus.EventCommandDenied, func(e bus.Event) {
		command, _ := e.Payload["command"].(string)
		platform, _ := e.Payload["platform"].(string)
		CommandsDenied.WithLabelValues(command, platform).Inc()
	})
	events.On(bus.EventAlertNotified, func(e bus.Event) {
		platform, _ := e.Payload["platform"].(string)
		AlertsNotified.WithLabelValues(platform).Inc()
	})
	events.On(bus.EventSettingUpdated, func(e bus.Event) {
		key, _ := e.Payload["key"].(string)
		SettingUpdates.WithLabelValues(key).Inc()
	})
}
