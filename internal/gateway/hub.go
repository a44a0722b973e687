package gateway

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/pi-gateway/pi-gateway/internal/common/logger"
	"github.com/pi-gateway/pi-gateway/pkg/wsproto"
)

// Hub owns every connected client and fans notifications out to them,
// either broadcast to all or scoped to clients subscribed to one session.
type Hub struct {
	clients            map[*Client]bool
	sessionSubscribers map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *wsproto.Message

	dispatcher *wsproto.Dispatcher

	mu     sync.RWMutex
	logger *logger.Logger
}

// NewHub creates a Hub wired to dispatcher for routing request messages.
func NewHub(dispatcher *wsproto.Dispatcher, log *logger.Logger) *Hub {
	return &Hub{
		clients:            make(map[*Client]bool),
		sessionSubscribers: make(map[string]map[*Client]bool),
		register:           make(chan *Client),
		unregister:         make(chan *Client),
		broadcast:          make(chan *wsproto.Message, 256),
		dispatcher:         dispatcher,
		logger:             log.WithFields(zap.String("component", "ws_hub")),
	}
}

// Run is the hub's event loop; it blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("gateway hub started")
	defer h.logger.Info("gateway hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.broadcastMessage(msg)
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.sessionSubscribers = make(map[string]map[*Client]bool)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	for sessionID := range client.subscriptions {
		if clients, ok := h.sessionSubscribers[sessionID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.sessionSubscribers, sessionID)
			}
		}
	}
}

func (h *Hub) broadcastMessage(msg *wsproto.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// Register adds client to the hub.
func (h *Hub) Register(client *Client) { h.register <- client }

// Unregister removes client from the hub.
func (h *Hub) Unregister(client *Client) { h.unregister <- client }

// Broadcast pushes msg to every connected client.
func (h *Hub) Broadcast(msg *wsproto.Message) { h.broadcast <- msg }

// BroadcastToSession pushes msg only to clients subscribed to sessionID.
func (h *Hub) BroadcastToSession(sessionID string, msg *wsproto.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal session message", zap.Error(err))
		return
	}
	h.mu.RLock()
	clients := h.sessionSubscribers[sessionID]
	h.mu.RUnlock()
	for client := range clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// SubscribeToSession marks client as interested in sessionID's notifications.
func (h *Hub) SubscribeToSession(client *Client, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessionSubscribers[sessionID]; !ok {
		h.sessionSubscribers[sessionID] = make(map[*Client]bool)
	}
	h.sessionSubscribers[sessionID][client] = true
	client.subscriptions[sessionID] = true
}

// UnsubscribeFromSession removes client's interest in sessionID.
func (h *Hub) UnsubscribeFromSession(client *Client, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(client.subscriptions, sessionID)
	if clients, ok := h.sessionSubscribers[sessionID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.sessionSubscribers, sessionID)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dispatcher returns the hub's message dispatcher.
func (h *Hub) Dispatcher() *wsproto.Dispatcher { return h.dispatcher }
