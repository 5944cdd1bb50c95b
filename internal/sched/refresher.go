package sched

import (
	"context"
	"log/slog"
	"time"
)

// RefreshInterval keeps the OAuth token fresh well inside its lifetime.
const RefreshInterval = 10 * time.Minute

// TokenSource is the slice of the manager client the refresher needs.
type TokenSource interface {
	BaseURL() string
	Authenticate(ctx context.Context) error
}

// TokenRefresher pre-emptively renews the manager token so commands
// never pay the re-auth round trip.
type TokenRefresher struct {
	siem   TokenSource
	logger *slog.Logger
}

func NewTokenRefresher(siem TokenSource, logger *slog.Logger) *TokenRefresher {
	return &TokenRefresher{siem: siem, logger: logger}
}

func (r *TokenRefresher) Refresh(ctx context.Context) {
	if r.siem.BaseURL() == "" {
		return
	}
	if err := r.siem.Authenticate(ctx); err != nil {
		r.logger.Warn("token refresh failed", "err", err)
		return
	}
	r.logger.Debug("manager token refreshed")
}
