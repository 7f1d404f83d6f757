package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/observability"
)

// Hub tracks live connections and the channels they joined.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	channels map[string]map[string]struct{}

	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewHub builds an empty hub.
func NewHub(logger *zap.Logger, metrics *observability.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:  make(map[string]*Client),
		channels: make(map[string]map[string]struct{}),
		logger:   logger,
		metrics:  metrics,
	}
}

// Client represents a websocket connection.
type Client struct {
	ID        string
	Conn      *websocket.Conn
	Send      chan []byte
	Principal domain.Principal
}

// NewClient returns a client ready for registration.
func NewClient(conn *websocket.Conn, principal domain.Principal, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		ID:        uuid.NewString(),
		Conn:      conn,
		Send:      make(chan []byte, buffer),
		Principal: principal,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.metrics.TrackRealtimeSession(1)
}

// Unregister removes a client from every channel and closes its queue.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	for name, members := range h.channels {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.channels, name)
		}
	}
	close(c.Send)
	h.mu.Unlock()
	h.metrics.TrackRealtimeSession(-1)
}

// Join subscribes a connection to channel. Unknown connections are ignored.
func (h *Hub) Join(connID, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[connID]; !ok {
		return
	}
	members, ok := h.channels[channel]
	if !ok {
		members = make(map[string]struct{})
		h.channels[channel] = members
	}
	members[connID] = struct{}{}
}

// Publish sends event to every member of channel.
func (h *Hub) Publish(channel, event string, payload any) {
	frame, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for connID := range h.channels[channel] {
		h.enqueue(h.clients[connID], frame)
	}
	h.metrics.RecordPush(event)
}

// PublishToConnection sends event to a single connection.
func (h *Hub) PublishToConnection(connID, event string, payload any) {
	frame, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.enqueue(h.clients[connID], frame)
	h.metrics.RecordPush(event)
}

// ConnectionCount reports live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Members reports how many connections joined channel.
func (h *Hub) Members(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// enqueue must be called with h.mu held; Unregister closes Send under the
// write lock, so a send here never races a close.
func (h *Hub) enqueue(c *Client, frame []byte) {
	if c == nil {
		return
	}
	select {
	case c.Send <- frame:
	default:
		h.logger.Warn("realtime send queue full, dropping frame",
			zap.String("conn_id", c.ID),
			zap.String("user_id", c.Principal.ID))
	}
}

func (h *Hub) encode(event string, payload any) ([]byte, bool) {
	frame, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		h.logger.Error("encode realtime frame", zap.String("event", event), zap.Error(err))
		return nil, false
	}
	return frame, true
}
