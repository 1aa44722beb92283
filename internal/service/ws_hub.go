package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"whalecycle/backend/internal/model"
	"whalecycle/backend/internal/util"
	"whalecycle/backend/pkg/logger"
	"whalecycle/backend/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = 54 * time.Second
	wsMaxMessageSize = 512
	wsSendBuffer     = 256
)

// Client represents a connected user over WebSocket
type Client struct {
	Hub    *WSHub
	Conn   *websocket.Conn
	UserID string
	Send   chan []byte
}

// WSHub relays per-user cycle events from Redis pub/sub to websocket connections.
// Any API instance may publish; every instance delivers to its own connections.
type WSHub struct {
	userConns map[string]map[*Client]struct{}
	mu        sync.RWMutex

	redis *redis.Client
	log   *logger.Logger
	ready chan struct{}
}

func NewWSHub(redisClient *redis.Client, log *logger.Logger) *WSHub {
	return &WSHub{
		userConns: make(map[string]map[*Client]struct{}),
		redis:     redisClient,
		log:       log,
		ready:     make(chan struct{}),
	}
}

// Ready is closed once the pub/sub subscription is live
func (h *WSHub) Ready() <-chan struct{} {
	return h.ready
}

// Run subscribes to every user channel and dispatches until ctx is done
func (h *WSHub) Run(ctx context.Context) {
	pubsub := h.redis.PSubscribe(ctx, redis.UserEventsPattern())
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		h.log.Error("Failed to subscribe to user events", err)
		return
	}
	close(h.ready)
	h.log.Info("WS hub listening for user events")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			userID, ok := redis.UserIDFromChannel(msg.Channel)
			if !ok {
				continue
			}
			if !json.Valid([]byte(msg.Payload)) {
				h.log.WithField("channel", msg.Channel).Warn("Dropping malformed user event")
				continue
			}
			h.SendRaw(userID, []byte(msg.Payload))
		}
	}
}

// SendToUser sends a message to all active connections for a specific user
func (h *WSHub) SendToUser(userID string, msg model.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Errorf("Failed to marshal WS direct message: %v", err)
		return
	}
	h.SendRaw(userID, data)
}

// SendRaw queues an encoded message for every connection of userID.
// Connections whose buffer is full are dropped.
func (h *WSHub) SendRaw(userID string, data []byte) {
	h.mu.RLock()
	var slow []*Client
	for client := range h.userConns[userID] {
		select {
		case client.Send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.log.WithField("user_id", userID).Warn("WS client too slow, disconnecting")
		h.unregister(client)
	}
}

// ConnectionCount returns the number of open connections of userID
func (h *WSHub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userConns[userID])
}

func (h *WSHub) register(client *Client) {
	h.mu.Lock()
	conns, ok := h.userConns[client.UserID]
	if !ok {
		conns = make(map[*Client]struct{})
		h.userConns[client.UserID] = conns
	}
	conns[client] = struct{}{}
	h.mu.Unlock()
	h.log.Debugf("WS client registered: UserID=%s", client.UserID)
}

func (h *WSHub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.userConns[client.UserID]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}
	delete(conns, client)
	close(client.Send)
	if len(conns) == 0 {
		delete(h.userConns, client.UserID)
	}
	h.log.Debugf("WS client unregistered: UserID=%s", client.UserID)
}

func (h *WSHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, conns := range h.userConns {
		for client := range conns {
			close(client.Send)
		}
		delete(h.userConns, userID)
	}
}

// ReadPump answers {"type":"ping"} with a pong and keeps the read deadline fresh
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(wsMaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Errorf("WS error: %v", err)
			}
			break
		}

		var in struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &in) == nil && in.Type == "ping" {
			c.Hub.SendToUser(c.UserID, model.WSMessage{Type: model.MessageTypePong})
		}
	}
}

// WritePump handles outgoing messages to the client
func (c *Client) WritePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				// Hub closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // bearer token already checked by middleware
	},
}

// ServeWS handles WebSocket upgrade requests
func (h *WSHub) ServeWS(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		util.SendError(c, util.ErrUnauthorized("User not authenticated"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Errorf("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		Hub:    h,
		Conn:   conn,
		UserID: userID,
		Send:   make(chan []byte, wsSendBuffer),
	}

	h.register(client)

	go client.WritePump()
	go client.ReadPump()
}
