package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/security-onion-solutions/shallot/internal/domain"
)

// discordMaxMsgLen leaves headroom under Discord's 2000-char cap for
// fencing added per chunk.
const discordMaxMsgLen = 1990

// Discord implements domain.Channel on a bot-token gateway session.
type Discord struct {
	settings domain.ChatServiceSettings
	session  *discordgo.Session
	bus      domain.MessageBus
	logger   *slog.Logger
	state    *state
}

type DiscordConfig struct {
	Settings domain.ChatServiceSettings
	Logger   *slog.Logger
}

func NewDiscord(cfg DiscordConfig) *Discord {
	return &Discord{
		settings: cfg.Settings,
		logger:   cfg.Logger,
		state:    newState(),
	}
}

func (d *Discord) Name() string   { return "discord" }
func (d *Discord) Status() string { return d.state.get() }

// ValidDiscordUserID reports whether an ID looks like a Discord
// snowflake. Registration records reference these verbatim.
func ValidDiscordUserID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Start connects the gateway session and forwards messages until the
// context ends.
func (d *Discord) Start(ctx context.Context, bus domain.MessageBus) error {
	if !d.settings.Enabled {
		d.state.set(statusDisabled)
		return nil
	}
	if d.settings.BotToken == "" {
		d.state.set(statusNoToken)
		return fmt.Errorf("discord: no bot token configured")
	}
	d.bus = bus
	d.state.set(statusConnecting)

	session, err := discordgo.New("Bot " + d.settings.BotToken)
	if err != nil {
		d.state.setError(err)
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	d.session = session

	bus.OnOutbound("discord", func(msg domain.OutboundMessage) {
		d.deliver(msg)
	})

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
			return
		}
		content := strings.TrimSpace(m.Content)
		// !ping is a transport liveness probe, answered without
		// touching the command pipeline.
		if strings.EqualFold(content, "!ping") {
			d.sendText(m.ChannelID, "pong")
			return
		}
		if !ValidDiscordUserID(m.Author.ID) {
			d.logger.Warn("discord message with malformed author id", "author", m.Author.ID)
			return
		}

		d.logger.Info("discord message received",
			"author", m.Author.Username,
			"channel_id", m.ChannelID,
			"content_len", len(content),
		)

		bus.Publish(domain.InboundMessage{
			Channel:     "discord",
			ChatID:      m.ChannelID,
			SenderID:    m.Author.ID,
			SenderName:  m.Author.Username,
			DisplayName: displayNameFor(m),
			Content:     content,
			Timestamp:   time.Now(),
		})
	})

	if err := session.Open(); err != nil {
		d.state.setError(err)
		return fmt.Errorf("discord connect: %w", err)
	}
	d.state.set(statusConnected)
	d.logger.Info("discord bot connected", "user", session.State.User.Username)

	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")
	return d.Stop()
}

func (d *Discord) Stop() error {
	if d.session == nil {
		return nil
	}
	err := d.session.Close()
	d.state.set(statusClosed)
	return err
}

// Send delivers plain text, used by the alert poller.
func (d *Discord) Send(ctx context.Context, chatID string, content string) error {
	if d.session == nil {
		return fmt.Errorf("discord: not connected")
	}
	d.sendText(chatID, content)
	return nil
}

func (d *Discord) deliver(msg domain.OutboundMessage) {
	if msg.File != nil {
		d.sendFile(msg.ChatID, msg.Content, msg.File)
		return
	}
	if msg.Content == "" {
		return
	}
	for _, chunk := range renderChunks(msg.Content, msg.Format, discordMaxMsgLen) {
		if _, err := d.session.ChannelMessageSend(msg.ChatID, chunk); err != nil {
			d.logger.Error("discord send failed", "channel", msg.ChatID, "err", err)
		}
	}
}

func (d *Discord) sendText(chatID, content string) {
	for _, chunk := range splitMessage(content, discordMaxMsgLen) {
		if _, err := d.session.ChannelMessageSend(chatID, chunk); err != nil {
			d.logger.Error("discord send failed", "channel", chatID, "err", err)
		}
	}
}

func (d *Discord) sendFile(chatID, content string, file *domain.File) {
	_, err := d.session.ChannelMessageSendComplex(chatID, &discordgo.MessageSend{
		Content: content,
		Files: []*discordgo.File{{
			Name:        file.Name,
			ContentType: file.ContentType,
			Reader:      strings.NewReader(string(file.Data)),
		}},
	})
	if err != nil {
		d.logger.Error("discord file upload failed", "channel", chatID, "file", file.Name, "err", err)
	}
}

func displayNameFor(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
