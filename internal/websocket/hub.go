package websocket

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hearth-home/hearth-backend-go/internal/entities"
	"github.com/hearth-home/hearth-backend-go/internal/integrations"
	"github.com/hearth-home/hearth-backend-go/internal/metrics"
)

// Hub maintains the set of connected clients and fans entity updates and
// integration status changes out to them. It implements entities.Sink and
// integrations.StatusSink.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	logger  *logrus.Logger
	metrics *metrics.Registry

	mu sync.RWMutex
}

// NewHub creates a websocket hub. reg may be nil.
func NewHub(logger *logrus.Logger, reg *metrics.Registry) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		metrics:    reg,
	}
}

// Run handles registration and broadcasting until the process exits
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-heartbeat.C:
			h.BroadcastToAll(NewMessage(TypeHeartbeat, map[string]interface{}{
				"clients": h.ClientCount(),
			}))
		}
	}
}

// OnEntityUpdate implements entities.Sink
func (h *Hub) OnEntityUpdate(state entities.State) {
	h.BroadcastToAll(NewMessage(TypeEntityUpdate, state))
}

// OnIntegrationStatus implements integrations.StatusSink
func (h *Hub) OnIntegrationStatus(health integrations.Health) {
	h.BroadcastToAll(NewMessage(TypeIntegrationStatus, health))
}

// BroadcastToAll queues a message for every connected client. Drops the
// message when the broadcast queue is saturated.
func (h *Hub) BroadcastToAll(message Message) {
	select {
	case h.broadcast <- message.ToJSON():
	default:
		h.logger.Warn("Broadcast channel full, message dropped")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SetWSClients(count)
	}
	h.logger.WithFields(logrus.Fields{
		"client_id":         client.ID,
		"connected_clients": count,
	}).Info("WebSocket client connected")

	client.send <- NewMessage(TypeConnection, map[string]interface{}{
		"status":    "connected",
		"client_id": client.ID,
	}).ToJSON()
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SetWSClients(count)
	}
	h.logger.WithFields(logrus.Fields{
		"client_id":         client.ID,
		"connected_clients": count,
	}).Info("WebSocket client disconnected")
}

func (h *Hub) broadcastMessage(message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			// Slow consumer; disconnect it rather than block the hub.
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}
