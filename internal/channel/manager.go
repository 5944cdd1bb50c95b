package channel

import (
	"context"
	"log/slog"
	"sync"

	"github.com/security-onion-solutions/shallot/internal/bus"
	"github.com/security-onion-solutions/shallot/internal/domain"
	"github.com/security-onion-solutions/shallot/internal/settings"
)

// Manager owns the chat transports. At most one platform is enabled at
// a time; the manager builds its client from settings, supervises it,
// and rebuilds when a settings write touches a chat key.
type Manager struct {
	settings *settings.Service
	bus      domain.MessageBus
	events   *bus.EventBus
	logger   *slog.Logger

	mu             sync.Mutex
	active         domain.Channel
	activePlatform domain.Platform
	activeSettings domain.ChatServiceSettings
	cancelActive   context.CancelFunc
	done           chan struct{}

	restartCh chan struct{}
}

type ManagerConfig struct {
	Settings *settings.Service
	Bus      domain.MessageBus
	Events   *bus.EventBus
	Logger   *slog.Logger
}

func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		settings:  cfg.Settings,
		bus:       cfg.Bus,
		events:    cfg.Events,
		logger:    cfg.Logger,
		restartCh: make(chan struct{}, 1),
	}
	cfg.Events.On(bus.EventSettingUpdated, func(e bus.Event) {
		key, _ := e.Payload["key"].(string)
		if isChatSettingsKey(key) {
			m.requestRestart()
		}
	})
	return m
}

func isChatSettingsKey(key string) bool {
	for _, p := range domain.ChatPlatforms {
		if p.SettingsKey() == key {
			return true
		}
	}
	return false
}

// Run starts the enabled channel and supervises it until the context
// ends, rebuilding whenever chat settings change.
func (m *Manager) Run(ctx context.Context) {
	m.startEnabled(ctx)
	for {
		select {
		case <-ctx.Done():
			m.stopActive()
			return
		case <-m.restartCh:
			m.logger.Info("chat settings changed, restarting channel")
			m.stopActive()
			m.startEnabled(ctx)
		}
	}
}

func (m *Manager) requestRestart() {
	select {
	case m.restartCh <- struct{}{}:
	default:
	}
}

func (m *Manager) startEnabled(ctx context.Context) {
	platform, cs, err := m.settings.EnabledChatService(ctx)
	if err != nil {
		m.logger.Error("cannot read chat settings", "err", err)
		return
	}
	if platform == "" {
		m.logger.Info("no chat platform enabled")
		return
	}

	ch := m.buildChannel(platform, cs)
	if ch == nil {
		m.logger.Warn("enabled platform has no client", "platform", platform)
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	m.mu.Lock()
	m.active = ch
	m.activePlatform = platform
	m.activeSettings = cs
	m.cancelActive = cancel
	m.done = done
	m.mu.Unlock()

	m.logger.Info("starting chat channel", "platform", platform)
	go func() {
		defer close(done)
		if err := ch.Start(runCtx, m.bus); err != nil {
			m.logger.Error("chat channel stopped", "platform", platform, "err", err)
		}
	}()
}

func (m *Manager) stopActive() {
	m.mu.Lock()
	cancel := m.cancelActive
	done := m.done
	active := m.active
	m.active = nil
	m.activePlatform = ""
	m.cancelActive = nil
	m.done = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if active != nil {
		active.Stop()
	}
	if done != nil {
		<-done
	}
}

func (m *Manager) buildChannel(platform domain.Platform, cs domain.ChatServiceSettings) domain.Channel {
	switch platform {
	case domain.PlatformDiscord:
		return NewDiscord(DiscordConfig{Settings: cs, Logger: m.logger})
	case domain.PlatformSlack:
		return NewSlack(SlackConfig{Settings: cs, Logger: m.logger})
	case domain.PlatformMatrix:
		return NewMatrix(MatrixConfig{Settings: cs, Logger: m.logger})
	case domain.PlatformTelegram:
		return NewTelegram(TelegramConfig{Settings: cs, Logger: m.logger})
	}
	// Teams has a settings key for parity but no client.
	return nil
}

// Active returns the running channel, or nil when none is enabled.
func (m *Manager) Active() domain.Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// ActiveMatrix returns the running Matrix client when Matrix is the
// enabled platform. The application service webhook feeds events
// through it.
func (m *Manager) ActiveMatrix() *Matrix {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mx, ok := m.active.(*Matrix); ok {
		return mx
	}
	return nil
}

// NotifyAlert sends alert text to the enabled platform's configured
// alert target. Returns the platform it delivered to, or "" when
// nothing was deliverable.
func (m *Manager) NotifyAlert(ctx context.Context, content string) domain.Platform {
	m.mu.Lock()
	active := m.active
	platform := m.activePlatform
	cs := m.activeSettings
	m.mu.Unlock()

	if active == nil || !cs.AlertNotifications {
		return ""
	}
	target := cs.AlertTarget()
	if target == "" {
		m.logger.Warn("alert notifications enabled but no target configured", "platform", platform)
		return ""
	}
	if err := active.Send(ctx, target, content); err != nil {
		m.logger.Error("alert notification failed", "platform", platform, "err", err)
		return ""
	}
	return platform
}

// Statuses reports the per-platform connection state for the health
// endpoint.
func (m *Manager) Statuses(ctx context.Context) map[domain.Platform]string {
	m.mu.Lock()
	active := m.active
	activePlatform := m.activePlatform
	m.mu.Unlock()

	out := make(map[domain.Platform]string, len(domain.ChatPlatforms))
	for _, p := range domain.ChatPlatforms {
		if p == activePlatform && active != nil {
			out[p] = active.Status()
			continue
		}
		if p == domain.PlatformTeams {
			out[p] = statusNotInitialized
			continue
		}
		cs, err := m.settings.ChatService(ctx, p)
		switch {
		case err != nil:
			out[p] = statusNoSettings
		case !cs.Enabled:
			out[p] = statusDisabled
		default:
			out[p] = statusNotInitialized
		}
	}
	return out
}
