package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pi-gateway/pi-gateway/internal/common/logger"
	"github.com/pi-gateway/pi-gateway/pkg/wsproto"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// Client is one WebSocket connection attached to the gateway's Hub.
type Client struct {
	ID            string
	conn          *websocket.Conn
	hub           *Hub
	send          chan []byte
	subscriptions map[string]bool // session IDs this client wants notifications for

	mu     sync.RWMutex
	closed bool
	logger *logger.Logger
}

// NewClient wraps conn in a Client registered under id.
func NewClient(id string, conn *websocket.Conn, hub *Hub, log *logger.Logger) *Client {
	return &Client{
		ID:            id,
		conn:          conn,
		hub:           hub,
		send:          make(chan []byte, 256),
		subscriptions: make(map[string]bool),
		logger:        log.WithFields(zap.String("client_id", id)),
	}
}

// subscribeRequest is the payload for session.subscribe/unsubscribe.
type subscribeRequest struct {
	SessionID string `json:"session_id"`
}

const (
	actionSessionSubscribe   = "session.subscribe"
	actionSessionUnsubscribe = "session.unsubscribe"
)

// ReadPump reads frames off the connection and dispatches them until the
// connection closes or ctx is cancelled.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var msg wsproto.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("", "", wsproto.ErrorCodeBadRequest, "Invalid JSON", nil)
			continue
		}

		go c.handleMessage(ctx, &msg)
	}
}

func (c *Client) handleMessage(ctx context.Context, msg *wsproto.Message) {
	switch msg.Action {
	case actionSessionSubscribe:
		c.handleSubscribe(msg)
		return
	case actionSessionUnsubscribe:
		c.handleUnsubscribe(msg)
		return
	}

	resp, err := c.hub.Dispatcher().Dispatch(ctx, msg)
	if err != nil {
		c.sendError(msg.ID, msg.Action, wsproto.ErrorCodeInternalError, err.Error(), nil)
		return
	}
	if resp != nil {
		c.sendMessage(resp)
	}
}

func (c *Client) handleSubscribe(msg *wsproto.Message) {
	var req subscribeRequest
	if err := msg.ParsePayload(&req); err != nil || req.SessionID == "" {
		c.sendError(msg.ID, msg.Action, wsproto.ErrorCodeValidation, "session_id is required", nil)
		return
	}
	c.hub.SubscribeToSession(c, req.SessionID)
	resp, _ := wsproto.NewResponse(msg.ID, msg.Action, map[string]interface{}{"success": true, "session_id": req.SessionID})
	c.sendMessage(resp)
}

func (c *Client) handleUnsubscribe(msg *wsproto.Message) {
	var req subscribeRequest
	if err := msg.ParsePayload(&req); err != nil || req.SessionID == "" {
		c.sendError(msg.ID, msg.Action, wsproto.ErrorCodeValidation, "session_id is required", nil)
		return
	}
	c.hub.UnsubscribeFromSession(c, req.SessionID)
	resp, _ := wsproto.NewResponse(msg.ID, msg.Action, map[string]interface{}{"success": true, "session_id": req.SessionID})
	c.sendMessage(resp)
}

func (c *Client) sendMessage(msg *wsproto.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal message", zap.Error(err))
		return
	}
	c.sendBytes(data)
}

func (c *Client) sendBytes(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("client send buffer full")
	}
}

func (c *Client) sendError(id, action, code, message string, details map[string]interface{}) {
	msg, err := wsproto.NewError(id, action, code, message, details)
	if err != nil {
		return
	}
	c.sendMessage(msg)
}

// WritePump drains the client's send channel onto the connection and
// keeps it alive with periodic pings until the hub closes the channel.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
