package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/security-onion-solutions/shallot/internal/domain"
	"github.com/security-onion-solutions/shallot/internal/settings"
)

const defaultConcurrency = 3

// Engine consumes inbound chat messages from the bus, dispatches them
// and publishes the replies. One engine serves every platform.
type Engine struct {
	bus         domain.MessageBus
	dispatcher  *Dispatcher
	settings    *settings.Service
	logger      *slog.Logger
	concurrency int
}

type EngineConfig struct {
	Bus         domain.MessageBus
	Dispatcher  *Dispatcher
	Settings    *settings.Service
	Logger      *slog.Logger
	Concurrency int // max parallel commands (default 3)
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Engine{
		bus:         cfg.Bus,
		dispatcher:  cfg.Dispatcher,
		settings:    cfg.Settings,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
	}
}

// Run consumes inbound messages until the context ends. Commands run
// with bounded concurrency, handlers block on SIEM calls.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("command engine started", "concurrency", e.concurrency)

	sem := make(chan struct{}, e.concurrency)
	inbound := e.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("command engine stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				e.logger.Info("inbound channel closed, command engine stopping")
				return
			}
			sem <- struct{}{}
			go func(m domain.InboundMessage) {
				defer func() { <-sem }()
				e.processMessage(ctx, m)
			}(msg)
		}
	}
}

func (e *Engine) processMessage(ctx context.Context, msg domain.InboundMessage) {
	platform, err := domain.ParsePlatform(msg.Channel)
	if err != nil {
		e.logger.Warn("message from unknown platform dropped", "channel", msg.Channel)
		return
	}

	userType := domain.UserTypeChat
	if platform == domain.PlatformWeb {
		userType = domain.UserTypeWeb
	}

	result := e.dispatcher.Dispatch(ctx, domain.Invocation{
		Raw:         msg.Content,
		Prefix:      e.prefixFor(ctx, platform),
		Platform:    platform,
		UserID:      msg.SenderID,
		Username:    msg.SenderName,
		DisplayName: msg.DisplayName,
		ChannelID:   msg.ChatID,
		UserType:    userType,
	})

	format := "text"
	if result.Code {
		format = "code"
	}
	e.bus.SendOutbound(domain.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: result.Text,
		Format:  format,
		File:    result.File,
	})
}

// ProcessDirect dispatches one command synchronously and returns the
// reply text. Used by the CLI chat command and the web test endpoint.
func (e *Engine) ProcessDirect(ctx context.Context, content, channel, senderID string) string {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	platform, err := domain.ParsePlatform(channel)
	if err != nil {
		platform = domain.PlatformWeb
	}
	userType := domain.UserTypeChat
	if platform == domain.PlatformWeb {
		userType = domain.UserTypeWeb
	}

	result := e.dispatcher.Dispatch(ctx, domain.Invocation{
		Raw:      content,
		Prefix:   e.prefixFor(ctx, platform),
		Platform: platform,
		UserID:   senderID,
		Username: senderID,
		UserType: userType,
	})
	return result.Text
}

// prefixFor reads the platform's configured command prefix, falling
// back to the default when settings are absent.
func (e *Engine) prefixFor(ctx context.Context, platform domain.Platform) string {
	if e.settings == nil || platform == domain.PlatformWeb {
		return DefaultPrefix
	}
	cs, err := e.settings.ChatService(ctx, platform)
	if err != nil || cs.CommandPrefix == "" {
		return DefaultPrefix
	}
	return cs.CommandPrefix
}
