package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub
	id  string

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages. Closed by the hub, guarded by hub.mu.
	send   chan []byte
	closed bool

	mu      sync.RWMutex
	devices map[string]struct{}
	farms   map[string]struct{}
	userID  string
}

// inboundMessage accepts ids either at the top level or inside data
type inboundMessage struct {
	Type     string          `json:"type"`
	DeviceID string          `json:"deviceId,omitempty"`
	FarmID   string          `json:"farmId,omitempty"`
	Token    string          `json:"token,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

type inboundData struct {
	DeviceID string `json:"deviceId"`
	FarmID   string `json:"farmId"`
	Token    string `json:"token"`
}

func (m *inboundMessage) resolve() inboundData {
	out := inboundData{DeviceID: m.DeviceID, FarmID: m.FarmID, Token: m.Token}
	if len(m.Data) > 0 {
		var d inboundData
		if err := json.Unmarshal(m.Data, &d); err == nil {
			if out.DeviceID == "" {
				out.DeviceID = d.DeviceID
			}
			if out.FarmID == "" {
				out.FarmID = d.FarmID
			}
			if out.Token == "" {
				out.Token = d.Token
			}
		}
	}
	// Device ids are stored upper-cased
	out.DeviceID = strings.ToUpper(strings.TrimSpace(out.DeviceID))
	out.FarmID = strings.TrimSpace(out.FarmID)
	return out
}

func (c *Client) matches(t Target) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t.DeviceID != "" {
		if _, ok := c.devices[t.DeviceID]; ok {
			return true
		}
	}
	if t.FarmID != "" {
		if _, ok := c.farms[t.FarmID]; ok {
			return true
		}
	}
	return t.UserID != "" && t.UserID == c.userID
}

// handle applies one client message
func (c *Client) handle(raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.reply(TypeError, map[string]string{"message": "invalid message"})
		return
	}
	data := msg.resolve()

	switch msg.Type {
	case "subscribe":
		if data.DeviceID == "" {
			c.reply(TypeError, map[string]string{"message": "deviceId is required"})
			return
		}
		c.mu.Lock()
		c.devices[data.DeviceID] = struct{}{}
		c.mu.Unlock()
		c.reply(TypeAck, map[string]string{"action": "subscribe", "deviceId": data.DeviceID})

	case "unsubscribe":
		c.mu.Lock()
		if data.DeviceID == "" {
			c.devices = make(map[string]struct{})
		} else {
			delete(c.devices, data.DeviceID)
		}
		c.mu.Unlock()
		c.reply(TypeAck, map[string]string{"action": "unsubscribe", "deviceId": data.DeviceID})

	case "subscribeFarm":
		if data.FarmID == "" {
			c.reply(TypeError, map[string]string{"message": "farmId is required"})
			return
		}
		c.mu.Lock()
		c.farms[data.FarmID] = struct{}{}
		c.mu.Unlock()
		c.reply(TypeAck, map[string]string{"action": "subscribeFarm", "farmId": data.FarmID})

	case "unsubscribeFarm":
		c.mu.Lock()
		if data.FarmID == "" {
			c.farms = make(map[string]struct{})
		} else {
			delete(c.farms, data.FarmID)
		}
		c.mu.Unlock()
		c.reply(TypeAck, map[string]string{"action": "unsubscribeFarm", "farmId": data.FarmID})

	case "auth":
		if c.hub.auth == nil || data.Token == "" {
			c.reply(TypeError, map[string]string{"message": "authentication failed"})
			return
		}
		userID, err := c.hub.auth(data.Token)
		if err != nil {
			c.reply(TypeError, map[string]string{"message": "authentication failed"})
			return
		}
		c.mu.Lock()
		c.userID = userID
		c.mu.Unlock()
		c.reply(TypeAck, map[string]string{"action": "auth", "userId": userID})

	case "ping":
		c.reply(TypePong, map[string]int64{"timestamp": time.Now().UnixMilli()})

	default:
		c.reply(TypeError, map[string]string{"message": "unknown message type"})
	}
}

// reply queues a message for this client without blocking the read loop
func (c *Client) reply(msgType string, data interface{}) {
	payload, err := json.Marshal(Envelope{Type: msgType, Data: data})
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket read error", zap.String("client_id", c.id), zap.Error(err))
			}
			break
		}
		c.handle(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Upgrader builds a websocket upgrader that accepts the given origins. Empty allows all.
func Upgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 {
				return true
			}
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}

// ServeWs upgrades the request and registers the connection with the hub.
func (h *Hub) ServeWs(upgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &Client{
		hub:     h,
		id:      "ws_" + uuid.NewString(),
		conn:    conn,
		send:    make(chan []byte, 256),
		devices: make(map[string]struct{}),
		farms:   make(map[string]struct{}),
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
