package domain

import "context"

// Channel is the interface for a chat transport (Discord, Slack, Matrix,
// Telegram) or the websocket feed.
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
	Send(ctx context.Context, chatID string, content string) error

	// Status reports the connection state as a short user-facing string:
	// "not initialized", "no settings found", "disabled",
	// "no bot token configured", "connecting...", "connected",
	// "error: ...", "closed".
	Status() string
}
