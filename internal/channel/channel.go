// Package channel implements the chat transports: Discord, Slack,
// Matrix and Telegram clients plus the websocket feed for the web UI.
// Exactly one chat platform is active at a time; the manager builds it
// from settings and restarts it when they change.
package channel

import (
	"strings"
	"sync"
)

// Connection state strings surfaced through Status() and the health
// endpoint.
const (
	statusNotInitialized = "not initialized"
	statusNoSettings     = "no settings found"
	statusDisabled       = "disabled"
	statusNoToken        = "no bot token configured"
	statusConnecting     = "connecting..."
	statusConnected      = "connected"
	statusClosed         = "closed"
)

// state tracks a channel's user-facing status string.
type state struct {
	mu     sync.Mutex
	status string
}

func newState() *state {
	return &state{status: statusNotInitialized}
}

func (s *state) set(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *state) setError(err error) {
	s.set("error: " + err.Error())
}

func (s *state) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// splitMessage splits a message into chunks that fit within the max
// length, preferring newline boundaries.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}
		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}

// renderChunks prepares outbound content for a platform: code-formatted
// replies are chunked with room for the fence and each chunk is fenced
// on its own, so every message stays renderable.
func renderChunks(content, format string, maxLen int) []string {
	if format != "code" {
		return splitMessage(content, maxLen)
	}

	body := strings.TrimPrefix(content, "```\n")
	body = strings.TrimSuffix(body, "\n```")
	chunks := splitMessage(body, maxLen-8)
	fenced := make([]string, 0, len(chunks))
	for _, c := range chunks {
		fenced = append(fenced, "```\n"+strings.TrimRight(c, "\n")+"\n```")
	}
	return fenced
}
