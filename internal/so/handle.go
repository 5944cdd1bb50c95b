package so

import (
	"context"
	"sync/atomic"
)

// Handle wraps a swappable Client. Long-lived holders (command
// handlers, the scheduler, the web API) keep the Handle; when the
// SECURITY_ONION settings document changes, a freshly built client is
// swapped in and every caller sees it on the next call.
type Handle struct {
	client atomic.Pointer[Client]
}

func NewHandle(c *Client) *Handle {
	h := &Handle{}
	h.client.Store(c)
	return h
}

// Swap replaces the underlying client.
func (h *Handle) Swap(c *Client) {
	h.client.Store(c)
}

// Client returns the current underlying client.
func (h *Handle) Client() *Client {
	return h.client.Load()
}

func (h *Handle) Connected() bool { return h.Client().Connected() }
func (h *Handle) BaseURL() string { return h.Client().BaseURL() }

func (h *Handle) Authenticate(ctx context.Context) error {
	return h.Client().Authenticate(ctx)
}

func (h *Handle) QueryEvents(ctx context.Context, opts QueryOptions) (*EventsResponse, error) {
	return h.Client().QueryEvents(ctx, opts)
}

func (h *Handle) AckAlert(ctx context.Context, eventID string) (int, error) {
	return h.Client().AckAlert(ctx, eventID)
}

func (h *Handle) GetDetection(ctx context.Context, publicID string) (Detection, error) {
	return h.Client().GetDetection(ctx, publicID)
}

func (h *Handle) SetDetectionEnabled(ctx context.Context, publicID string, enabled bool) (Detection, error) {
	return h.Client().SetDetectionEnabled(ctx, publicID, enabled)
}

func (h *Handle) SuppressDetection(ctx context.Context, publicID, track, ip string) (Detection, error) {
	return h.Client().SuppressDetection(ctx, publicID, track, ip)
}

func (h *Handle) CreateCase(ctx context.Context, title, description string) (*Case, error) {
	return h.Client().CreateCase(ctx, title, description)
}

func (h *Handle) AttachEvent(ctx context.Context, caseID string, fields map[string]any) error {
	return h.Client().AttachEvent(ctx, caseID, fields)
}
