package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/security-onion-solutions/shallot/internal/domain"
)

const (
	telegramMaxMsgLen      = 4096
	telegramMaxSendRetries = 3
)

// Telegram implements domain.Channel over the bot API's long-poll
// updates.
type Telegram struct {
	settings domain.ChatServiceSettings
	bot      *tgbotapi.BotAPI
	bus      domain.MessageBus
	logger   *slog.Logger
	state    *state
}

type TelegramConfig struct {
	Settings domain.ChatServiceSettings
	Logger   *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	return &Telegram{
		settings: cfg.Settings,
		logger:   cfg.Logger,
		state:    newState(),
	}
}

func (t *Telegram) Name() string   { return "telegram" }
func (t *Telegram) Status() string { return t.state.get() }

// Start connects to the bot API and polls for updates until the
// context ends.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	if !t.settings.Enabled {
		t.state.set(statusDisabled)
		return nil
	}
	if t.settings.BotToken == "" {
		t.state.set(statusNoToken)
		return fmt.Errorf("telegram: no bot token configured")
	}
	t.bus = bus
	t.state.set(statusConnecting)

	bot, err := tgbotapi.NewBotAPI(t.settings.BotToken)
	if err != nil {
		t.state.setError(err)
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.state.set(statusConnected)
	t.logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	bus.OnOutbound("telegram", func(msg domain.OutboundMessage) {
		t.deliver(msg)
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			t.state.set(statusClosed)
			return nil
		case update, ok := <-updates:
			if !ok {
				t.state.set(statusClosed)
				return nil
			}
			t.handleUpdate(update)
		}
	}
}

// Stop is a no-op: the bot stops when Start's context is cancelled, and
// StopReceivingUpdates panics when called twice.
func (t *Telegram) Stop() error {
	return nil
}

// Send delivers plain text, used by the alert poller.
func (t *Telegram) Send(ctx context.Context, chatID string, content string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}
	t.sendChunks(id, splitMessage(content, telegramMaxMsgLen))
	return nil
}

func (t *Telegram) handleUpdate(update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}
	if update.Message.From.IsBot {
		return
	}
	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return
	}

	from := update.Message.From
	chatID := update.Message.Chat.ID
	t.logger.Info("telegram message received",
		"user_id", from.ID,
		"chat_id", chatID,
		"content_len", len(text),
	)

	t.bus.Publish(domain.InboundMessage{
		Channel:     "telegram",
		ChatID:      strconv.FormatInt(chatID, 10),
		SenderID:    strconv.FormatInt(from.ID, 10),
		SenderName:  from.UserName,
		DisplayName: telegramDisplayName(from),
		Content:     text,
		Timestamp:   time.Unix(int64(update.Message.Date), 0),
	})
}

func telegramDisplayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.UserName != "" {
		return u.UserName
	}
	return strconv.FormatInt(u.ID, 10)
}

func (t *Telegram) deliver(msg domain.OutboundMessage) {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		t.logger.Error("invalid chat ID for telegram outbound", "chat_id", msg.ChatID, "err", err)
		return
	}
	if msg.File != nil {
		t.sendFile(chatID, msg.Content, msg.File)
		return
	}
	if msg.Content == "" {
		return
	}
	t.sendChunks(chatID, renderChunks(msg.Content, msg.Format, telegramMaxMsgLen))
}

// sendChunks sends each chunk, backing off when the bot API reports
// rate limiting.
func (t *Telegram) sendChunks(chatID int64, chunks []string) {
	for _, chunk := range chunks {
		msg := tgbotapi.NewMessage(chatID, chunk)
		for attempt := 0; attempt < telegramMaxSendRetries; attempt++ {
			_, err := t.bot.Send(msg)
			if err == nil {
				break
			}
			if strings.Contains(err.Error(), "Too Many Requests") {
				wait := time.Duration(attempt+1) * time.Second
				t.logger.Warn("telegram rate limited, backing off", "chat_id", chatID, "wait", wait)
				time.Sleep(wait)
				continue
			}
			t.logger.Error("telegram send failed", "chat_id", chatID, "err", err)
			break
		}
	}
}

func (t *Telegram) sendFile(chatID int64, comment string, file *domain.File) {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  file.Name,
		Bytes: file.Data,
	})
	doc.Caption = comment
	if _, err := t.bot.Send(doc); err != nil {
		t.logger.Error("telegram file upload failed", "chat_id", chatID, "file", file.Name, "err", err)
	}
}
