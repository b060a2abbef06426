package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Message types sent to dashboard clients
const (
	TypeSensorReading = "sensorReading"
	TypeAlert         = "alert"
	TypeDeviceStatus  = "deviceStatus"
	TypePong          = "pong"
	TypeAck           = "ack"
	TypeError         = "error"
)

// Envelope is the wire shape of every server message
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Target selects recipients. A client receives a message once if it matches any non-empty field.
type Target struct {
	DeviceID string `json:"deviceId,omitempty"`
	UserID   string `json:"userId,omitempty"`
	FarmID   string `json:"farmId,omitempty"`
}

// Relay forwards published messages to other server instances
type Relay interface {
	Publish(ctx context.Context, target Target, payload []byte) error
}

// TokenAuthenticator resolves an in-band auth token to a user ID
type TokenAuthenticator func(token string) (userID string, err error)

// Hub maintains the set of active clients and routes messages to them
type Hub struct {
	// Registered clients
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	id    string
	relay Relay
	auth  TokenAuthenticator
	log   *zap.Logger
}

// NewHub creates a new Hub instance
func NewHub(auth TokenAuthenticator, log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		id:         uuid.NewString(),
		auth:       auth,
		log:        log,
	}
}

// ID identifies this hub instance on the relay
func (h *Hub) ID() string {
	return h.id
}

// SetRelay enables cross-instance fan-out
func (h *Hub) SetRelay(r Relay) {
	h.relay = r
}

// Run starts the hub's main loop. It closes every client when ctx ends.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.log.Debug("websocket client connected", zap.String("client_id", client.id))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closed = true
				close(client.send)
				h.log.Debug("websocket client disconnected", zap.String("client_id", client.id))
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.closed = true
				close(client.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish delivers a message to matching local clients and forwards it to the relay.
func (h *Hub) Publish(target Target, msgType string, data interface{}) {
	payload, err := json.Marshal(Envelope{Type: msgType, Data: data})
	if err != nil {
		h.log.Error("marshal websocket message", zap.String("type", msgType), zap.Error(err))
		return
	}

	h.Deliver(target, payload)

	if h.relay != nil {
		if err := h.relay.Publish(context.Background(), target, payload); err != nil {
			h.log.Warn("relay publish failed", zap.String("type", msgType), zap.Error(err))
		}
	}
}

// Deliver sends an encoded message to local clients only. Returns the number reached.
func (h *Hub) Deliver(target Target, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for client := range h.clients {
		if !client.matches(target) {
			continue
		}
		select {
		case client.send <- payload:
			sent++
		default:
			// Buffer full; drop rather than block the publisher
			h.log.Warn("websocket send buffer full", zap.String("client_id", client.id))
		}
	}
	return sent
}

// BroadcastToDevice sends to clients subscribed to deviceID
func (h *Hub) BroadcastToDevice(deviceID, msgType string, data interface{}) {
	h.Publish(Target{DeviceID: deviceID}, msgType, data)
}

// BroadcastToUser sends to clients authenticated as userID
func (h *Hub) BroadcastToUser(userID, msgType string, data interface{}) {
	h.Publish(Target{UserID: userID}, msgType, data)
}
