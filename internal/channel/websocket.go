package channel

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/security-onion-solutions/shallot/internal/bus"
	"github.com/security-onion-solutions/shallot/internal/metrics"
)

// feedHistoryWindow bounds how far back new clients are caught up.
const feedHistoryWindow = 15 * time.Minute

// Feed streams internal events (alert notifications, command traffic,
// channel state changes) to web UI clients over websockets. It is
// one-way: clients never inject commands here.
type Feed struct {
	events *bus.EventBus
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*feedClient
}

type feedClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// FeedMessage is the JSON frame sent to clients.
type FeedMessage struct {
	Type      string         `json:"type"`
	Source    string         `json:"source,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

var feedUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The UI and API share an origin; CORS is enforced upstream.
		return true
	},
}

func NewFeed(events *bus.EventBus, logger *slog.Logger) *Feed {
	f := &Feed{
		events:  events,
		logger:  logger,
		clients: make(map[string]*feedClient),
	}
	events.On("*", f.broadcast)
	return f
}

// ClientCount returns the number of connected clients.
func (f *Feed) ClientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// ServeHTTP upgrades the connection, replays recent history and keeps
// the client subscribed until it disconnects.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := feedUpgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	client := &feedClient{conn: conn}
	clientID := fmt.Sprintf("%s-%p", r.RemoteAddr, conn)

	f.mu.Lock()
	f.clients[clientID] = client
	f.mu.Unlock()
	metrics.WSClients.Inc()
	f.logger.Info("websocket client connected", "client_id", clientID)

	client.send(FeedMessage{Type: "status", Payload: map[string]any{"state": "connected"}, Timestamp: time.Now()})
	for _, e := range f.events.Replay("*", time.Now().Add(-feedHistoryWindow)) {
		client.send(feedMessageFor(e))
	}

	defer func() {
		f.mu.Lock()
		delete(f.clients, clientID)
		f.mu.Unlock()
		metrics.WSClients.Dec()
		conn.Close()
		f.logger.Info("websocket client disconnected", "client_id", clientID)
	}()

	// Read loop only notices disconnects; inbound frames are dropped.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				f.logger.Debug("websocket read error", "err", err)
			}
			return
		}
	}
}

func (f *Feed) broadcast(e bus.Event) {
	msg := feedMessageFor(e)
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, client := range f.clients {
		client.send(msg)
	}
}

func feedMessageFor(e bus.Event) FeedMessage {
	return FeedMessage{
		Type:      e.Type,
		Source:    e.Source,
		Payload:   e.Payload,
		Timestamp: e.Timestamp,
	}
}

func (c *feedClient) send(msg FeedMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.WriteMessage(websocket.TextMessage, data)
}
