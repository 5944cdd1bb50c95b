package channel

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/security-onion-solutions/shallot/internal/domain"
)

// slackMaxMsgLen is Slack's hard message cap minus fencing headroom.
const slackMaxMsgLen = 35000

// Slack implements domain.Channel over Socket Mode, so no public
// ingress is needed.
type Slack struct {
	settings domain.ChatServiceSettings
	client   *slack.Client
	socket   *socketmode.Client
	bus      domain.MessageBus
	logger   *slog.Logger
	state    *state
	botUID   string

	nameMu sync.Mutex
	names  map[string]string
}

type SlackConfig struct {
	Settings domain.ChatServiceSettings
	Logger   *slog.Logger
}

func NewSlack(cfg SlackConfig) *Slack {
	return &Slack{
		settings: cfg.Settings,
		logger:   cfg.Logger,
		state:    newState(),
		names:    make(map[string]string),
	}
}

func (s *Slack) Name() string   { return "slack" }
func (s *Slack) Status() string { return s.state.get() }

// ValidSlackUserID reports whether an ID has Slack's member-ID shape.
func ValidSlackUserID(id string) bool {
	return len(id) > 1 && (id[0] == 'U' || id[0] == 'W')
}

// Start authenticates, opens the socket-mode connection and forwards
// events until the context ends.
func (s *Slack) Start(ctx context.Context, bus domain.MessageBus) error {
	if !s.settings.Enabled {
		s.state.set(statusDisabled)
		return nil
	}
	if s.settings.BotToken == "" || s.settings.AppToken == "" {
		s.state.set(statusNoToken)
		return fmt.Errorf("slack: bot token and app token required")
	}
	s.bus = bus
	s.state.set(statusConnecting)

	api := slack.New(s.settings.BotToken, slack.OptionAppLevelToken(s.settings.AppToken))
	s.client = api

	authResp, err := api.AuthTestContext(ctx)
	if err != nil {
		s.state.setError(err)
		return fmt.Errorf("slack auth: %w", err)
	}
	s.botUID = authResp.UserID
	s.logger.Info("slack bot authenticated", "user", authResp.User, "user_id", authResp.UserID)

	socketClient := socketmode.New(api)
	s.socket = socketClient

	bus.OnOutbound("slack", func(msg domain.OutboundMessage) {
		s.deliver(msg)
	})

	go func() {
		for evt := range socketClient.Events {
			switch evt.Type {
			case socketmode.EventTypeConnected:
				s.state.set(statusConnected)
				s.logger.Info("slack socket mode connected")
			case socketmode.EventTypeEventsAPI:
				apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				// Ack first: Slack retries unacked envelopes, which
				// would re-run commands.
				socketClient.Ack(*evt.Request)
				s.handleEventsAPI(apiEvent)
			default:
				if evt.Request != nil {
					socketClient.Ack(*evt.Request)
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- socketClient.RunContext(ctx)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("slack bot disconnecting")
		s.state.set(statusClosed)
		return nil
	case err := <-errCh:
		s.state.setError(err)
		return fmt.Errorf("slack socket mode: %w", err)
	}
}

func (s *Slack) Stop() error {
	s.state.set(statusClosed)
	return nil
}

// Send delivers plain text, used by the alert poller.
func (s *Slack) Send(ctx context.Context, chatID string, content string) error {
	if s.client == nil {
		return fmt.Errorf("slack: not connected")
	}
	s.sendChunks(chatID, splitMessage(content, slackMaxMsgLen))
	return nil
}

func (s *Slack) handleEventsAPI(event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		s.handleMessage(ev)
	case *slackevents.AppMentionEvent:
		s.handleMention(ev)
	}
}

func (s *Slack) handleMessage(ev *slackevents.MessageEvent) {
	// Edits re-deliver as message_changed with the new text nested; the
	// channel only appears on the wrapper.
	if ev.SubType == "message_changed" && ev.Message != nil {
		inner := *ev.Message
		if inner.Channel == "" {
			inner.Channel = ev.Channel
		}
		ev = &inner
	} else if ev.SubType != "" {
		return
	}
	if ev.BotID != "" || ev.User == "" || ev.User == s.botUID {
		return
	}

	s.publish(ev.Channel, ev.User, ev.Text)
}

func (s *Slack) handleMention(ev *slackevents.AppMentionEvent) {
	if ev.User == "" || ev.User == s.botUID {
		return
	}
	content := strings.TrimSpace(strings.ReplaceAll(ev.Text, "<@"+s.botUID+">", ""))
	prefix := s.settings.CommandPrefix
	if prefix == "" {
		prefix = "!"
	}
	if content != "" && !strings.HasPrefix(content, prefix) {
		content = prefix + content
	}
	s.publish(ev.Channel, ev.User, content)
}

func (s *Slack) publish(channelID, userID, text string) {
	s.logger.Info("slack message received",
		"user", userID,
		"channel", channelID,
		"content_len", len(text),
	)
	s.bus.Publish(domain.InboundMessage{
		Channel:     "slack",
		ChatID:      channelID,
		SenderID:    userID,
		SenderName:  userID,
		DisplayName: s.displayName(userID),
		Content:     text,
		Timestamp:   time.Now(),
	})
}

// displayName resolves a member ID to the best human-readable name
// Slack offers, cached per process.
func (s *Slack) displayName(userID string) string {
	s.nameMu.Lock()
	if name, ok := s.names[userID]; ok {
		s.nameMu.Unlock()
		return name
	}
	s.nameMu.Unlock()

	name := userID
	if s.client != nil {
		if user, err := s.client.GetUserInfo(userID); err == nil {
			name = slackUserName(user, userID)
		}
	}

	s.nameMu.Lock()
	s.names[userID] = name
	s.nameMu.Unlock()
	return name
}

func slackUserName(user *slack.User, fallback string) string {
	switch {
	case user == nil:
		return fallback
	case user.RealName != "":
		return user.RealName
	case user.Profile.RealName != "":
		return user.Profile.RealName
	case user.Profile.DisplayName != "":
		return user.Profile.DisplayName
	case user.Name != "":
		return user.Name
	}
	return fallback
}

func (s *Slack) deliver(msg domain.OutboundMessage) {
	if msg.File != nil {
		s.sendFile(msg.ChatID, msg.Content, msg.File)
		return
	}
	if msg.Content == "" {
		return
	}
	s.sendChunks(msg.ChatID, renderChunks(msg.Content, msg.Format, slackMaxMsgLen))
}

func (s *Slack) sendChunks(channelID string, chunks []string) {
	for _, chunk := range chunks {
		_, _, err := s.client.PostMessage(channelID, slack.MsgOptionText(chunk, false))
		if err != nil {
			s.logger.Error("slack send failed", "channel", channelID, "err", err)
		}
	}
}

func (s *Slack) sendFile(channelID, comment string, file *domain.File) {
	_, err := s.client.UploadFileV2(slack.UploadFileV2Parameters{
		Filename:       file.Name,
		FileSize:       len(file.Data),
		Reader:         bytes.NewReader(file.Data),
		Channel:        channelID,
		InitialComment: comment,
	})
	if err != nil {
		s.logger.Error("slack file upload failed", "channel", channelID, "file", file.Name, "err", err)
	}
}
