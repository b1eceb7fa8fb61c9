package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kre8/diagram-relay/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Requests carry the current
	// diagram source, so this is well above a bare prompt.
	maxMessageSize = 1 << 20
)

// MessageHandler processes raw inbound frames. It is called from the client's
// read goroutine, one frame at a time, in arrival order.
type MessageHandler interface {
	HandleMessage(client *Client, data []byte)
}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(client *Client, data []byte)

// HandleMessage calls f(client, data).
func (f MessageHandlerFunc) HandleMessage(client *Client, data []byte) {
	f(client, data)
}

// Handler upgrades HTTP connections and pumps frames between the socket and
// the hub.
type Handler struct {
	hub      *Hub
	handler  MessageHandler
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a new WebSocket handler. allowedOrigins may contain "*"
// to accept any origin.
func NewHandler(hub *Hub, handler MessageHandler, allowedOrigins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		hub:     hub,
		handler: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// ServeHTTP upgrades the connection and starts the pumps. It returns once the
// pumps are running.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn)

	// Start the writer first so the greeting queued by Register is flushed.
	go h.writePump(client)
	h.hub.Register(client)
	go h.readPump(client)
}

// readPump pumps messages from the WebSocket connection to the message handler.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.Unregister(client)
		client.Conn().Close()
	}()

	client.Conn().SetReadLimit(maxMessageSize)
	client.Conn().SetReadDeadline(time.Now().Add(pongWait))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", "client", client.ID(), "error", err)
			}
			break
		}
		if messageType != websocket.TextMessage {
			h.hub.Deliver(client, NewErrorMessage("Only text frames are supported"))
			continue
		}

		h.handler.HandleMessage(client, message)
	}
}

// writePump pumps messages from the client's queue to the WebSocket connection.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One JSON document per frame; the UI parses each frame on its own.
			if err := client.Conn().WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
