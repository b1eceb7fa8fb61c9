package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/kre8/diagram-relay/internal/logging"
	"github.com/kre8/diagram-relay/internal/metrics"
)

// ConnectedMessage is sent to every client as soon as it registers.
const ConnectedMessage = "Connected to diagram relay"

// Hub owns the set of live clients. Register, Unregister and Deliver are the
// only operations that touch the set.
type Hub struct {
	clients map[*Client]struct{}
	mu      sync.RWMutex

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the hub logger.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithHubMetrics sets the hub metrics.
func WithHubMetrics(m *metrics.Metrics) HubOption {
	return func(h *Hub) {
		h.metrics = m
	}
}

// NewHub creates a new Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logging.NewNop(),
		metrics: metrics.NewUnregistered(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a client to the hub and greets it.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	_, exists := h.clients[client]
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	if !exists {
		h.metrics.SessionsConnected.Inc()
		h.logger.Info("client connected", "client", client.ID(), "clients", count)
	}

	h.Deliver(client, NewInfoMessage(ConnectedMessage))
}

// Unregister removes a client from the hub. Removing a client that is not
// registered is a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	_, exists := h.clients[client]
	delete(h.clients, client)
	count := len(h.clients)
	h.mu.Unlock()

	if !exists {
		return
	}

	client.Close()
	h.metrics.SessionsConnected.Dec()
	h.logger.Info("client disconnected", "client", client.ID(), "clients", count)
}

// Deliver sends a message to one client. It reports false, and drops the
// message, when the client is no longer registered.
func (h *Hub) Deliver(client *Client, msg *Message) bool {
	h.mu.RLock()
	_, registered := h.clients[client]
	h.mu.RUnlock()

	if !registered {
		h.dropped(client, msg, "client gone")
		return false
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal message", "client", client.ID(), "type", msg.Type, "error", err)
		return false
	}

	if !client.Send(data) {
		h.dropped(client, msg, "send queue closed")
		return false
	}
	return true
}

func (h *Hub) dropped(client *Client, msg *Message, reason string) {
	h.metrics.DeliveriesDropped.Inc()
	h.logger.Debug("delivery dropped",
		"client", client.ID(),
		"type", msg.Type,
		"request", msg.RequestID,
		"reason", reason,
	)
}

// IsRegistered reports whether the client is in the active set.
func (h *Hub) IsRegistered(client *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[client]
	return ok
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close closes all client connections.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
		h.metrics.SessionsConnected.Dec()
	}
}
