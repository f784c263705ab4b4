package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// EventMessage is a server-initiated event pushed to subscribed clients.
type EventMessage struct {
	Type      string      `json:"type"`
	Event     string      `json:"event"`
	Seq       int64       `json:"seq"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// eventClient is one connected WebSocket subscriber.
type eventClient struct {
	id          string
	conn        *websocket.Conn
	writeMu     sync.Mutex
	connectedAt time.Time
}

func (c *eventClient) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

// EventHub fans out chat and session events to WebSocket subscribers.
// Subscribers are read-only; inbound frames other than control messages
// are discarded.
type EventHub struct {
	mu           sync.RWMutex
	clients      map[string]*eventClient
	upgrader     websocket.Upgrader
	logger       zerolog.Logger
	pingInterval time.Duration
	seq          uint64
	stopCh       chan struct{}
	stopOnce     sync.Once
}

// NewEventHub creates an event hub. A pingInterval of zero disables the
// keepalive pinger.
func NewEventHub(pingInterval time.Duration, logger zerolog.Logger) *EventHub {
	h := &EventHub{
		clients: make(map[string]*eventClient),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
		logger:       logger,
		pingInterval: pingInterval,
		stopCh:       make(chan struct{}),
	}

	if pingInterval > 0 {
		go h.pingLoop()
	}

	return h
}

// HandleWS upgrades the connection and registers the client.
func (h *EventHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	client := &eventClient{
		id:          clientID,
		conn:        conn,
		connectedAt: time.Now(),
	}

	h.mu.Lock()
	h.clients[clientID] = client
	h.mu.Unlock()

	h.logger.Info().
		Str("clientId", clientID).
		Str("ip", r.RemoteAddr).
		Msg("Event client connected")

	go h.readLoop(client)
}

// Broadcast sends an event to all connected clients. Slow or dead clients
// are dropped rather than blocking the caller.
func (h *EventHub) Broadcast(event string, data interface{}) {
	msg := EventMessage{
		Type:      "event",
		Event:     event,
		Seq:       int64(atomic.AddUint64(&h.seq, 1)),
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal event")
		return
	}

	for _, client := range h.snapshot() {
		if err := client.write(websocket.TextMessage, jsonData); err != nil {
			h.logger.Warn().
				Err(err).
				Str("clientId", client.id).
				Str("event", event).
				Msg("Failed to broadcast to client")
			h.drop(client.id)
		}
	}
}

// Count returns the number of connected clients.
func (h *EventHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all clients and stops the pinger.
func (h *EventHub) Close() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})

	for _, client := range h.snapshot() {
		client.conn.Close()
		h.drop(client.id)
	}
}

func (h *EventHub) snapshot() []*eventClient {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*eventClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

func (h *EventHub) drop(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, clientID)
}

// readLoop drains inbound frames so control messages are processed. Any
// read error tears down the client.
func (h *EventHub) readLoop(client *eventClient) {
	defer func() {
		client.conn.Close()
		h.drop(client.id)
		h.logger.Info().Str("clientId", client.id).Msg("Event client disconnected")
	}()

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Error().Err(err).Str("clientId", client.id).Msg("WebSocket error")
			}
			return
		}
	}
}

func (h *EventHub) pingLoop() {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			for _, client := range h.snapshot() {
				if err := client.write(websocket.PingMessage, nil); err != nil {
					h.drop(client.id)
				}
			}
		}
	}
}
