package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/livestudio/studio/internal/feed"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	sendBuffer = 256
)

// Hub fans studio events out to every connected display client. It implements feed.Sink.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.String("client_id", c.ID), zap.Int("clients", count))
}

// Unregister removes a client and closes its send queue. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client disconnected", zap.String("client_id", c.ID), zap.Int("clients", count))
}

// Publish broadcasts a studio event.
func (h *Hub) Publish(e feed.Event) {
	h.Broadcast(string(e.Type), e.Data)
}

// Broadcast sends a message to all clients. Clients whose buffer is full miss it.
func (h *Hub) Broadcast(event string, payload interface{}) {
	msg, err := newMessage(event, payload)
	if err != nil {
		h.logger.Error("encode broadcast", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("client buffer full, dropping event", zap.String("client_id", c.ID), zap.String("event", event))
		}
	}
}

// SendToClient sends a message to a single client (replies and capture signaling).
func (h *Hub) SendToClient(clientID string, event string, payload interface{}) {
	msg, err := newMessage(event, payload)
	if err != nil {
		h.logger.Error("encode message", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[clientID]
	if !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func newMessage(event string, payload interface{}) (WSMessage, error) {
	var data []byte
	switch v := payload.(type) {
	case nil:
	case json.RawMessage:
		data = v
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return WSMessage{}, err
		}
		data = b
	}
	return WSMessage{Event: event, Data: data}, nil
}
