package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/kre8/diagram-relay/internal/ws"
)

// WebSocketHandler serves live diagram sessions.
type WebSocketHandler struct {
	wsHandler *ws.Handler
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(wsHandler *ws.Handler) *WebSocketHandler {
	return &WebSocketHandler{
		wsHandler: wsHandler,
	}
}

// Connect handles GET /ws - upgrades to a live session.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	h.wsHandler.ServeHTTP(c.Writer, c.Request)
}

// RegisterRoutes registers the WebSocket route.
func (h *WebSocketHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ws", h.Connect)
}
