package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/security-onion-solutions/shallot/internal/domain"
)

const (
	matrixSyncTimeoutMS = 30000
	matrixUploadLimit   = 10 << 20 // homeservers commonly reject larger media
)

// Matrix implements domain.Channel against the plain client-server API.
// The dependency surface of a full SDK is not worth the five endpoints
// this bot needs: sync, join, send, state and upload.
type Matrix struct {
	settings domain.ChatServiceSettings
	http     *http.Client
	bus      domain.MessageBus
	logger   *slog.Logger
	state    *state
	baseURL  string
	txn      atomic.Int64
}

type MatrixConfig struct {
	Settings domain.ChatServiceSettings
	Logger   *slog.Logger
}

func NewMatrix(cfg MatrixConfig) *Matrix {
	return &Matrix{
		settings: cfg.Settings,
		http:     &http.Client{Timeout: 60 * time.Second},
		logger:   cfg.Logger,
		state:    newState(),
		baseURL:  strings.TrimRight(cfg.Settings.HomeserverURL, "/"),
	}
}

func (m *Matrix) Name() string   { return "matrix" }
func (m *Matrix) Status() string { return m.state.get() }

// ValidMatrixUserID reports whether an ID has the @localpart:server
// shape.
func ValidMatrixUserID(id string) bool {
	return strings.HasPrefix(id, "@") && strings.Contains(id, ":")
}

// ValidMatrixRoomID reports whether an ID has the !opaque:server shape.
func ValidMatrixRoomID(id string) bool {
	return strings.HasPrefix(id, "!") && strings.Contains(id, ":")
}

// matrixError is the wire shape of every Matrix API error.
type matrixError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"errcode"`
	Message    string `json:"error"`
}

func (e *matrixError) Error() string {
	return fmt.Sprintf("matrix %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Start long-polls /sync and forwards room messages until the context
// ends.
func (m *Matrix) Start(ctx context.Context, bus domain.MessageBus) error {
	if !m.settings.Enabled {
		m.state.set(statusDisabled)
		return nil
	}
	if m.settings.HomeserverURL == "" || m.settings.AccessToken == "" || m.settings.UserID == "" {
		m.state.set(statusNoToken)
		return fmt.Errorf("matrix: homeserver url, user id and access token required")
	}
	if !ValidMatrixUserID(m.settings.UserID) {
		err := fmt.Errorf("matrix: user id %q must look like @local:server", m.settings.UserID)
		m.state.setError(err)
		return err
	}
	m.bus = bus
	m.state.set(statusConnecting)

	bus.OnOutbound("matrix", func(msg domain.OutboundMessage) {
		m.deliver(ctx, msg)
	})

	// An initial sync establishes the batch token; its timeline is
	// history and must not replay as commands.
	since, err := m.syncOnce(ctx, "", 0)
	if err != nil {
		m.state.setError(err)
		return fmt.Errorf("matrix initial sync: %w", err)
	}
	m.state.set(statusConnected)
	m.logger.Info("matrix connected", "user", m.settings.UserID, "homeserver", m.baseURL)

	for {
		select {
		case <-ctx.Done():
			m.state.set(statusClosed)
			m.logger.Info("matrix channel stopping")
			return nil
		default:
		}

		next, err := m.syncLoop(ctx, since)
		if err != nil {
			if ctx.Err() != nil {
				m.state.set(statusClosed)
				return nil
			}
			m.state.setError(err)
			m.logger.Error("matrix sync failed, retrying", "err", err)
			time.Sleep(5 * time.Second)
			m.state.set(statusConnected)
			continue
		}
		since = next
	}
}

func (m *Matrix) Stop() error {
	m.state.set(statusClosed)
	return nil
}

// Send delivers plain text, used by the alert poller.
func (m *Matrix) Send(ctx context.Context, chatID string, content string) error {
	return m.sendMessage(ctx, chatID, content, false)
}

type syncResponse struct {
	NextBatch string `json:"next_batch"`
	Rooms     struct {
		Join   map[string]syncJoinedRoom  `json:"join"`
		Invite map[string]json.RawMessage `json:"invite"`
	} `json:"rooms"`
}

type syncJoinedRoom struct {
	Timeline struct {
		Events []matrixEvent `json:"events"`
	} `json:"timeline"`
}

type matrixEvent struct {
	Type           string         `json:"type"`
	Sender         string         `json:"sender"`
	EventID        string         `json:"event_id"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
}

func (m *Matrix) syncLoop(ctx context.Context, since string) (string, error) {
	resp, err := m.sync(ctx, since, matrixSyncTimeoutMS)
	if err != nil {
		return since, err
	}

	for roomID := range resp.Rooms.Invite {
		m.joinRoom(ctx, roomID)
	}
	for roomID, room := range resp.Rooms.Join {
		for _, ev := range room.Timeline.Events {
			m.handleEvent(roomID, ev)
		}
	}
	return resp.NextBatch, nil
}

func (m *Matrix) syncOnce(ctx context.Context, since string, timeoutMS int) (string, error) {
	resp, err := m.sync(ctx, since, timeoutMS)
	if err != nil {
		return "", err
	}
	return resp.NextBatch, nil
}

func (m *Matrix) sync(ctx context.Context, since string, timeoutMS int) (*syncResponse, error) {
	query := url.Values{}
	if since != "" {
		query.Set("since", since)
	}
	query.Set("timeout", strconv.Itoa(timeoutMS))

	var resp syncResponse
	if err := m.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/sync", query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HandleEvent processes one room event. Exported for the application
// service webhook, which receives events by push instead of sync.
func (m *Matrix) HandleEvent(roomID string, eventType, sender, eventID string, content map[string]any) {
	m.handleEvent(roomID, matrixEvent{
		Type:    eventType,
		Sender:  sender,
		EventID: eventID,
		Content: content,
	})
}

func (m *Matrix) handleEvent(roomID string, ev matrixEvent) {
	if ev.Type != "m.room.message" || ev.Sender == m.settings.UserID {
		return
	}
	msgtype, _ := ev.Content["msgtype"].(string)
	if msgtype != "m.text" {
		return
	}
	body, _ := ev.Content["body"].(string)
	if body == "" {
		return
	}

	m.logger.Info("matrix message received",
		"sender", ev.Sender,
		"room", roomID,
		"content_len", len(body),
	)

	m.bus.Publish(domain.InboundMessage{
		Channel:     "matrix",
		ChatID:      roomID,
		SenderID:    ev.Sender,
		SenderName:  matrixLocalpart(ev.Sender),
		DisplayName: matrixLocalpart(ev.Sender),
		Content:     body,
		Timestamp:   time.Now(),
	})
}

func matrixLocalpart(userID string) string {
	trimmed := strings.TrimPrefix(userID, "@")
	if idx := strings.Index(trimmed, ":"); idx >= 0 {
		return trimmed[:idx]
	}
	return trimmed
}

// joinRoom accepts an invite, then verifies the room's power levels
// actually let the bot speak; a room it cannot reply in is left again.
func (m *Matrix) joinRoom(ctx context.Context, roomID string) {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID) + "/join"
	if err := m.doRequest(ctx, http.MethodPost, path, nil, map[string]any{}, nil); err != nil {
		m.logger.Error("matrix join failed", "room", roomID, "err", err)
		return
	}
	m.logger.Info("matrix joined room", "room", roomID)

	if !m.canSendMessages(ctx, roomID) {
		m.logger.Warn("matrix room denies sending, leaving", "room", roomID)
		leave := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID) + "/leave"
		if err := m.doRequest(ctx, http.MethodPost, leave, nil, map[string]any{}, nil); err != nil {
			m.logger.Error("matrix leave failed", "room", roomID, "err", err)
		}
	}
}

type powerLevels struct {
	Events        map[string]int `json:"events"`
	EventsDefault int            `json:"events_default"`
	Users         map[string]int `json:"users"`
	UsersDefault  int            `json:"users_default"`
}

func (m *Matrix) canSendMessages(ctx context.Context, roomID string) bool {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID) + "/state/m.room.power_levels"
	var pl powerLevels
	if err := m.doRequest(ctx, http.MethodGet, path, nil, nil, &pl); err != nil {
		// No power-levels state means the room runs on defaults.
		return true
	}

	required := pl.EventsDefault
	if lvl, ok := pl.Events["m.room.message"]; ok {
		required = lvl
	}
	mine := pl.UsersDefault
	if lvl, ok := pl.Users[m.settings.UserID]; ok {
		mine = lvl
	}
	return mine >= required
}

func (m *Matrix) deliver(ctx context.Context, msg domain.OutboundMessage) {
	if msg.File != nil {
		if err := m.sendFile(ctx, msg.ChatID, msg.Content, msg.File); err != nil {
			m.logger.Error("matrix file upload failed", "room", msg.ChatID, "err", err)
		}
		return
	}
	if msg.Content == "" {
		return
	}
	if err := m.sendMessage(ctx, msg.ChatID, msg.Content, msg.Format == "code"); err != nil {
		m.logger.Error("matrix send failed", "room", msg.ChatID, "err", err)
	}
}

// sendMessage posts an m.text event; code output additionally carries
// an HTML body so clients render it monospace.
func (m *Matrix) sendMessage(ctx context.Context, roomID, text string, code bool) error {
	content := map[string]any{
		"msgtype": "m.text",
		"body":    text,
	}
	if code {
		content["format"] = "org.matrix.custom.html"
		content["formatted_body"] = "<pre><code>" + html.EscapeString(text) + "</code></pre>"
	}

	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID) +
		"/send/m.room.message/" + m.nextTxnID()
	return m.doRequest(ctx, http.MethodPut, path, nil, content, nil)
}

func (m *Matrix) sendFile(ctx context.Context, roomID, comment string, file *domain.File) error {
	if len(file.Data) > matrixUploadLimit {
		return fmt.Errorf("matrix: %s exceeds upload limit (%d bytes)", file.Name, len(file.Data))
	}
	contentType := file.ContentType
	if strings.HasSuffix(file.Name, ".txt") {
		contentType = "text/plain"
	}

	query := url.Values{"filename": {file.Name}}
	var uploaded struct {
		ContentURI string `json:"content_uri"`
	}
	if err := m.doUpload(ctx, query, contentType, file.Data, &uploaded); err != nil {
		return fmt.Errorf("upload %s: %w", file.Name, err)
	}

	if comment != "" {
		if err := m.sendMessage(ctx, roomID, comment, false); err != nil {
			return err
		}
	}

	content := map[string]any{
		"msgtype": "m.file",
		"body":    file.Name,
		"url":     uploaded.ContentURI,
		"info": map[string]any{
			"mimetype": contentType,
			"size":     len(file.Data),
		},
	}
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID) +
		"/send/m.room.message/" + m.nextTxnID()
	return m.doRequest(ctx, http.MethodPut, path, nil, content, nil)
}

func (m *Matrix) nextTxnID() string {
	return fmt.Sprintf("shallot-%d-%d", time.Now().UnixMilli(), m.txn.Add(1))
}

func (m *Matrix) doRequest(ctx context.Context, method, path string, query url.Values, body, out any) error {
	requestURL := m.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+m.settings.AccessToken)

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	return decodeMatrixReply(resp, out)
}

func (m *Matrix) doUpload(ctx context.Context, query url.Values, contentType string, data []byte, out any) error {
	requestURL := m.baseURL + "/_matrix/media/v3/upload"
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+m.settings.AccessToken)

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	return decodeMatrixReply(resp, out)
}

func decodeMatrixReply(resp *http.Response, out any) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		mErr := &matrixError{StatusCode: resp.StatusCode}
		if json.Unmarshal(raw, mErr) != nil || mErr.Code == "" {
			return fmt.Errorf("matrix returned %d: %s", resp.StatusCode, raw)
		}
		return mErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
